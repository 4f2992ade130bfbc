package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{
			name:    "streaming delta",
			payload: `{"choices":[{"delta":{"content":"Hel"}}]}`,
			want:    []string{"Hel"},
		},
		{
			name:    "terminal message",
			payload: `{"choices":[{"message":{"role":"assistant","content":"Hello!"}}]}`,
			want:    []string{"Hello!"},
		},
		{
			name:    "legacy choice text",
			payload: `{"choices":[{"text":"plain"}]}`,
			want:    []string{"plain"},
		},
		{
			name:    "every choice contributes",
			payload: `{"choices":[{"delta":{"content":"a"}},{"message":{"content":"b"}}]}`,
			want:    []string{"a", "b"},
		},
		{
			name:    "message content parts",
			payload: `{"choices":[{"message":{"content":[{"type":"text","text":"x"},{"type":"text","text":"y"}]}}]}`,
			want:    []string{"x", "y"},
		},
		{
			name:    "anthropic delta",
			payload: `{"type":"content_block_delta","delta":{"type":"text_delta","text":"hi"}}`,
			want:    []string{"hi"},
		},
		{
			name:    "flat fields in order",
			payload: `{"content":"d","output_text":"c","outputText":"b","text":"a"}`,
			want:    []string{"a", "b", "c", "d"},
		},
		{
			name:    "content blocks",
			payload: `{"content":[{"type":"text","text":"one"},{"type":"image"},{"text":"two"}]}`,
			want:    []string{"one", "two"},
		},
		{
			name:    "titan results",
			payload: `{"results":[{"outputText":"titan"}]}`,
			want:    []string{"titan"},
		},
		{
			name:    "results content",
			payload: `{"results":[{"content":[{"text":"r1"},{"text":"r2"}]}]}`,
			want:    []string{"r1", "r2"},
		},
		{
			name:    "response field",
			payload: `{"response":"llama"}`,
			want:    []string{"llama"},
		},
		{
			name:    "choices and flat text both emit",
			payload: `{"choices":[{"message":{"content":"dup"}}],"text":"dup"}`,
			want:    []string{"dup", "dup"},
		},
		{
			name:    "finish chunk has no text",
			payload: `{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			want:    nil,
		},
		{
			name:    "empty strings dropped",
			payload: `{"choices":[{"delta":{"content":""}}],"text":""}`,
			want:    nil,
		},
		{
			name:    "wrong types ignored",
			payload: `{"choices":"nope","delta":[1],"text":5,"content":{"text":"x"},"results":[1,"a"]}`,
			want:    nil,
		},
		{
			name:    "metrics only",
			payload: `{"amazon-bedrock-invocationMetrics":{"inputTokenCount":3}}`,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBytes([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractNonObject(t *testing.T) {
	assert.Nil(t, Extract(nil))
	assert.Nil(t, Extract("text"))
	assert.Nil(t, Extract([]any{map[string]any{"text": "x"}}))
	assert.Nil(t, Extract(42.0))
}

func TestExtractBytesInvalidJSON(t *testing.T) {
	_, err := ExtractBytes([]byte(`{"choices":`))
	assert.Error(t, err)
}
