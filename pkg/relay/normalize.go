package relay

import (
	"encoding/json"
)

// shapeMatcher extracts text from one known payload shape. It returns
// nothing when the shape is absent or malformed.
type shapeMatcher func(payload map[string]any, emit func(string))

// shapes are probed in order and every match contributes. A payload that
// populates both choices and a top-level text field yields both.
var shapes = []shapeMatcher{
	choicesShape,
	deltaTextShape,
	flatFieldShape,
	contentListShape,
	resultsShape,
	responseFieldShape,
}

// flatFields are the top-level string fields read by flatFieldShape, in order.
var flatFields = []string{"text", "outputText", "output_text", "content"}

// Extract returns the ordered text fragments found in a decoded payload.
// Payloads that are not JSON objects, and fields of the wrong type,
// contribute nothing. Extract never fails.
func Extract(payload any) []string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	var out []string
	emit := func(s string) {
		if s != "" {
			out = append(out, s)
		}
	}
	for _, match := range shapes {
		match(obj, emit)
	}
	return out
}

// ExtractBytes decodes b as JSON and extracts its fragments.
func ExtractBytes(b []byte) ([]string, error) {
	var payload any
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, err
	}
	return Extract(payload), nil
}

// choicesShape reads Chat Completions choices: delta.content while
// streaming, message.content for terminal payloads, and the legacy
// completions text when neither is present.
func choicesShape(p map[string]any, emit func(string)) {
	choices, _ := p["choices"].([]any)
	for _, c := range choices {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if delta, ok := choice["delta"].(map[string]any); ok {
			if s, ok := delta["content"].(string); ok {
				emit(s)
				continue
			}
		}
		if msg, ok := choice["message"].(map[string]any); ok {
			switch content := msg["content"].(type) {
			case string:
				emit(content)
				continue
			case []any:
				textParts(content, emit)
				continue
			}
		}
		if s, ok := choice["text"].(string); ok {
			emit(s)
		}
	}
}

// deltaTextShape reads a top-level delta.text (content_block_delta style).
func deltaTextShape(p map[string]any, emit func(string)) {
	if delta, ok := p["delta"].(map[string]any); ok {
		if s, ok := delta["text"].(string); ok {
			emit(s)
		}
	}
}

func flatFieldShape(p map[string]any, emit func(string)) {
	for _, field := range flatFields {
		if s, ok := p[field].(string); ok {
			emit(s)
		}
	}
}

// contentListShape reads a top-level content list of text blocks.
func contentListShape(p map[string]any, emit func(string)) {
	if content, ok := p["content"].([]any); ok {
		textParts(content, emit)
	}
}

// resultsShape reads results lists: Titan-style outputText entries or
// entries carrying their own list of text blocks.
func resultsShape(p map[string]any, emit func(string)) {
	results, _ := p["results"].([]any)
	for _, r := range results {
		result, ok := r.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := result["outputText"].(string); ok {
			emit(s)
		}
		if content, ok := result["content"].([]any); ok {
			textParts(content, emit)
		}
	}
}

func responseFieldShape(p map[string]any, emit func(string)) {
	if s, ok := p["response"].(string); ok {
		emit(s)
	}
}

func textParts(parts []any, emit func(string)) {
	for _, part := range parts {
		if block, ok := part.(map[string]any); ok {
			if s, ok := block["text"].(string); ok {
				emit(s)
			}
		}
	}
}
