package search

import "strings"

// Highlight truncates content to at most maxLen runes, cutting at the last word
// boundary when there is one, and appends "...".
func Highlight(content string, maxLen int) string {
	runes := []rune(content)
	if maxLen <= 0 || len(runes) <= maxLen {
		return content
	}
	cut := string(runes[:maxLen])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
