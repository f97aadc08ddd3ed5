package line

import (
	"strings"
	"unicode/utf8"
)

// splitText breaks text into chunks of at most maxLen runes, preferring
// line boundaries. Lines longer than maxLen are force-split. Chunks made
// only of newlines are dropped.
func splitText(text string, maxLen int) []string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen == 0 {
			return
		}
		// LINE rejects empty text messages.
		if chunk := strings.TrimRight(current.String(), "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
		currentLen = 0
	}

	for line := range strings.SplitSeq(text, "\n") {
		lineLen := utf8.RuneCountInString(line) + 1

		if currentLen+lineLen > maxLen {
			flush()
			if lineLen > maxLen {
				chunks = append(chunks, forceSplit(line, maxLen)...)
				continue
			}
		}

		current.WriteString(line)
		current.WriteByte('\n')
		currentLen += lineLen
	}
	flush()

	return chunks
}

// forceSplit breaks a single line into pieces of at most maxLen runes.
func forceSplit(line string, maxLen int) []string {
	runes := []rune(line)
	parts := make([]string, 0, len(runes)/maxLen+1)
	for len(runes) > maxLen {
		parts = append(parts, string(runes[:maxLen]))
		runes = runes[maxLen:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
