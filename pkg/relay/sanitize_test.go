package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "keep", "keep"},
		{"leading block", "<reasoning>x</reasoning>keep", "keep"},
		{"block spans lines", "<reasoning>line1\nline2</reasoning>\n\nanswer", "answer"},
		{"several blocks", "a<reasoning>1</reasoning>b<reasoning>2</reasoning>c", "abc"},
		{"non greedy", "<reasoning>1</reasoning>mid<reasoning>2</reasoning>", "mid"},
		{"trims whitespace", "  hello \n", "hello"},
		{"unmatched open left alone", "<reasoning>dangling", "<reasoning>dangling"},
		{"unmatched close left alone", "text</reasoning>", "text</reasoning>"},
		{"only reasoning", "<reasoning>all of it</reasoning>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestCleanIdempotent(t *testing.T) {
	for _, in := range []string{"hello world", "  spaced  ", "<reasoning>x</reasoning> y ", "a</reasoning>"} {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "Clean(%q)", in)
	}
}

func TestStripReasoningKeepsWhitespace(t *testing.T) {
	assert.Equal(t, " world", StripReasoning(" world"))
	assert.Equal(t, " a ", StripReasoning(" <reasoning>x</reasoning>a "))
}
