package post

import (
	"strings"
	"unicode/utf8"
)

// trimSearchWindow is how far back from the limit the sentence-boundary
// search looks.
const trimSearchWindow = 100

// TrimToLimit shortens text that exceeds a platform limit: prefer the last
// sentence boundary inside the final search window, fall back to a word
// boundary with an ellipsis, then hard cut. Cuts always land on rune
// boundaries so trimmed text stays valid UTF-8.
func TrimToLimit(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}

	window := limit - trimSearchWindow
	if window <= 0 {
		window = limit
	}
	head := truncateRunes(s, window)

	cut := -1
	for _, end := range []string{".", "!", "?"} {
		if idx := strings.LastIndex(head, end); idx > cut {
			cut = idx
		}
	}
	if cut > window/2 {
		return strings.TrimSpace(head[:cut+1])
	}

	wordCut := limit - 3
	if wordCut < 0 {
		wordCut = 0
	}
	head = truncateRunes(s, wordCut)
	if idx := strings.LastIndex(head, " "); idx > limit/2 {
		return strings.TrimSpace(head[:idx]) + "..."
	}

	return truncateRunes(s, limit)
}

// truncateRunes cuts at the last rune boundary at or before n bytes.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
