package util

import (
	"strings"
	"unicode"
)

// SanitizeText trims s, drops control and format characters, collapses
// whitespace and caps the result at max runes. Used for every free-text value
// a client can get in front of the other peer.
func SanitizeText(s string, max int) string {
	var b strings.Builder
	space := false
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if n >= max {
			break
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
			n++
			if n >= max {
				break
			}
		}
		space = false
		b.WriteRune(r)
		n++
	}
	return b.String()
}

