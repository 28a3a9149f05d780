package sqlident

import "strings"

// QuotingIssue is a schema identifier referenced without the quotes it needs.
type QuotingIssue struct {
	Identifier string `json:"identifier"`
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
}

// QuotingReport is the result of CheckQuoting.
type QuotingReport struct {
	Identifiers []string       `json:"identifiers"`
	Issues      []QuotingIssue `json:"issues"`
	Valid       bool           `json:"valid"`
}

// CheckQuoting parses sql and, for every known schema identifier that needs
// quoting and is referenced by the statement, reports it when sql does not
// contain it double quoted. Referenced identifiers are deduplicated ignoring case.
func CheckQuoting(sql string, known []string) (*QuotingReport, error) {
	refs, err := ParseIdentifiers(sql)
	if err != nil {
		return nil, err
	}

	report := &QuotingReport{
		Identifiers: dedupeFold(refs),
		Issues:      []QuotingIssue{},
	}

	referenced := make(map[string]bool, len(report.Identifiers))
	for _, r := range report.Identifiers {
		referenced[strings.ToLower(r)] = true
	}

	seen := make(map[string]bool, len(known))
	for _, k := range known {
		if seen[k] || !NeedsQuoting(k) || !referenced[strings.ToLower(k)] {
			continue
		}
		seen[k] = true
		if IsQuotedInSQL(sql, k) {
			continue
		}
		report.Issues = append(report.Issues, QuotingIssue{
			Identifier: k,
			Suggestion: QuoteIdentifier(k),
			Reason:     quotingReason(k),
		})
	}

	report.Valid = len(report.Issues) == 0
	return report, nil
}

func quotingReason(identifier string) string {
	if IsReservedKeyword(identifier) {
		return "reserved keyword"
	}
	if strings.ToLower(identifier) != identifier {
		return "contains uppercase characters"
	}
	return "contains characters not allowed in a bare identifier"
}

func dedupeFold(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
