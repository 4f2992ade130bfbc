package relay

import (
	"regexp"
	"strings"
)

// reasoningBlock matches one <reasoning>...</reasoning> pair, shortest
// match, across newlines.
var reasoningBlock = regexp.MustCompile(`(?s)<reasoning>.*?</reasoning>`)

// Clean removes every complete reasoning block from text and trims the
// surrounding whitespace. Unmatched markers are left in place.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(StripReasoning(text))
}

// StripReasoning removes complete reasoning blocks without trimming.
func StripReasoning(text string) string {
	if !strings.Contains(text, "<reasoning>") {
		return text
	}
	return reasoningBlock.ReplaceAllString(text, "")
}
