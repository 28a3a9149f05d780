package sanitize

import (
	"regexp"
	"strings"
)

// secretPattern finds one shape of secret inside free text. When group is
// non-zero only that submatch is replaced, leaving the surrounding boundary
// characters in place for the next match.
type secretPattern struct {
	name  string
	re    *regexp.Regexp
	group int
}

const ipv6Group = `[0-9a-fA-F]{1,4}`

// secretPatterns run in order. Bearer and JWT come before the narrower
// patterns so a whole credential collapses into one redaction.
var secretPatterns = []secretPattern{
	{
		name: "bearer",
		re:   regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`),
	},
	{
		name: "jwt",
		re:   regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`),
	},
	{
		name: "aws_access_key_id",
		re:   regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
	},
	{
		name:  "aws_secret_access_key",
		re:    regexp.MustCompile(`(?:^|[^A-Za-z0-9/+=])([A-Za-z0-9/+]{40})(?:$|[^A-Za-z0-9/+=])`),
		group: 1,
	},
	{
		name: "ipv4",
		re:   regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`),
	},
	{
		name: "ipv6",
		re: regexp.MustCompile(`(?:^|[^0-9a-fA-F:])(` +
			`(?:` + ipv6Group + `:){7}` + ipv6Group +
			`|(?:` + ipv6Group + `:){1,6}:` + ipv6Group +
			`|(?:` + ipv6Group + `:){1,5}(?::` + ipv6Group + `){1,2}` +
			`|(?:` + ipv6Group + `:){1,4}(?::` + ipv6Group + `){1,3}` +
			`|(?:` + ipv6Group + `:){1,3}(?::` + ipv6Group + `){1,4}` +
			`|(?:` + ipv6Group + `:){1,2}(?::` + ipv6Group + `){1,5}` +
			`|` + ipv6Group + `:(?::` + ipv6Group + `){1,6}` +
			`|:(?::` + ipv6Group + `){1,7}` +
			`)(?:$|[^0-9a-fA-F:])`),
		group: 1,
	},
	{
		name:  "generic_token",
		re:    regexp.MustCompile(`(?:^|[^A-Za-z0-9_\-])([A-Za-z0-9_\-]{24,64})(?:$|[^A-Za-z0-9_\-])`),
		group: 1,
	},
}

// replace substitutes redaction for every match and reports how many were
// replaced. Each search resumes where the replaced submatch ended, so a
// trailing boundary character can lead the next match.
func (p secretPattern) replace(s, redaction string) (string, int) {
	var b strings.Builder
	last, pos, count := 0, 0, 0
	for pos < len(s) {
		m := p.re.FindStringSubmatchIndex(s[pos:])
		if m == nil {
			break
		}
		start, end := m[2*p.group], m[2*p.group+1]
		if start < 0 || end <= start {
			pos += max(m[1], 1)
			continue
		}
		start, end = pos+start, pos+end
		if count == 0 {
			b.Grow(len(s))
		}
		b.WriteString(s[last:start])
		b.WriteString(redaction)
		last, pos = end, end
		count++
	}
	if count == 0 {
		return s, 0
	}
	b.WriteString(s[last:])
	return b.String(), count
}

// RedactString replaces every secret-shaped substring of s with redaction.
func RedactString(s, redaction string) string {
	out, _ := redactString(s, redaction)
	return out
}

func redactString(s, redaction string) (string, int) {
	total := 0
	for _, p := range secretPatterns {
		var n int
		s, n = p.replace(s, redaction)
		total += n
	}
	return s, total
}
