package criteriaquery

import "strings"

// reserved lists every character with a meaning in the query_string syntax.
const reserved = `\+-!():^[]"{}~*?|&/`

// Escape backslash-escapes every reserved query_string character in s so the
// result matches literally. It is not idempotent: escaping twice escapes the
// backslashes added by the first pass.
func Escape(s string) string {
	if !strings.ContainsAny(s, reserved) {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s) + 8)
	// Reserved characters are ASCII, so bytes of other runes and invalid
	// UTF-8 are copied untouched.
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(reserved, s[i]) >= 0 {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
