package strings

import (
	"strings"
)

// ReasonMaxLen is the widest disable reason shown in the roster table.
const ReasonMaxLen = 40

// ellipsis marks a shortened value.
const ellipsis = "…"

// SingleLine collapses every run of whitespace, newlines included, into a
// single space.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate returns s on one line and at most maxLen runes long, ending in an
// ellipsis when shortened. A maxLen below 2 is treated as 2.
func Truncate(s string, maxLen int) string {
	maxLen = max(maxLen, 2)
	s = SingleLine(s)
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return strings.TrimRight(string(runes[:maxLen-1]), " ") + ellipsis
}
