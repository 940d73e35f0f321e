// Package strings holds small text helpers shared by the CLI and clients.
package strings

import (
	"strings"
)

// DefaultNameMaxLen bounds field names in table output.
const DefaultNameMaxLen = 40

// MinTruncateLen is the smallest maxLen Truncate honours: one character plus "...".
const MinTruncateLen = 4

// Truncate collapses s onto a single line and cuts it to at most maxLen
// runes, marking the cut with "...". Provider payloads and user-supplied
// names go through here before reaching a terminal or a log line.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
