package grading

import "unicode"

// normalize casefolds and collapses whitespace so blank comparison
// ignores capitalization and spacing. Punctuation is kept: "p-value"
// and "pvalue" are different answers.
func normalize(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && len(out) > 0 {
			out = append(out, ' ')
		}
		space = false
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}
