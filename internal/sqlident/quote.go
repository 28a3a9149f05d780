// Package sqlident decides when PostgreSQL identifiers need double quotes and
// pulls identifiers out of parsed statements.
package sqlident

import (
	"regexp"
	"strings"
)

// bareIdentifierPattern matches identifiers Postgres leaves untouched when unquoted.
var bareIdentifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_$]*$`)

// NeedsQuoting reports whether identifier must be double quoted to be
// referenced verbatim: it is a reserved keyword, or it is not a lowercase
// bare identifier. The empty string needs quoting.
func NeedsQuoting(identifier string) bool {
	if IsReservedKeyword(identifier) {
		return true
	}
	return !bareIdentifierPattern.MatchString(identifier)
}

// escapeQuotes doubles embedded double quotes.
func escapeQuotes(identifier string) string {
	return strings.ReplaceAll(identifier, `"`, `""`)
}

// IsQuotedInSQL reports whether identifier appears double quoted anywhere in
// sql, ignoring case. The search is textual, so a quoted span inside a string
// literal or comment also counts.
func IsQuotedInSQL(sql, identifier string) bool {
	pattern := `(?i)"` + regexp.QuoteMeta(escapeQuotes(identifier)) + `"`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(sql)
}

// QuoteIdentifier wraps identifier in double quotes.
func QuoteIdentifier(identifier string) string {
	return `"` + escapeQuotes(identifier) + `"`
}

// QuoteIfNeeded quotes identifier only when NeedsQuoting says so.
func QuoteIfNeeded(identifier string) string {
	if NeedsQuoting(identifier) {
		return QuoteIdentifier(identifier)
	}
	return identifier
}

// QuoteQualified quotes each part of a dotted name as needed, e.g. schema and table.
func QuoteQualified(parts ...string) string {
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		quoted = append(quoted, QuoteIfNeeded(p))
	}
	return strings.Join(quoted, ".")
}
