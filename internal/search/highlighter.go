package search

import (
	"strings"
	"unicode/utf8"
)

// Highlight truncates content to at most maxLen runes, cutting at the last space when one
// is near the limit, and appends "..." when anything was cut.
func Highlight(content string, maxLen int) string {
	content = strings.TrimSpace(content)
	if maxLen <= 0 || utf8.RuneCountInString(content) <= maxLen {
		return content
	}
	runes := []rune(content)
	cut := string(runes[:maxLen])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)*3/4 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n\t") + "..."
}
