package providertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
)

// ServerOptions controls the behaviour of the mock backend.
type ServerOptions struct {
	// Reply computes the assistant text. Defaults to echoing the last user
	// message as "Echo: <text>".
	Reply func(messages []ChatMessage) string

	// RefuseStream makes streaming requests fail with HTTP 400, which
	// exercises the single-shot fallback.
	RefuseStream bool

	// ChunkSize is the number of runes per streamed delta (default 4).
	ChunkSize int

	// Reasoning, when set, is emitted as a <reasoning> block before the
	// reply: inline in terminal payloads, as its own delta when streaming.
	Reasoning string

	// MalformedFrame inserts one undecodable data line into each stream.
	MalformedFrame bool
}

// ChatMessage is a message as received by the mock backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []ChatMessage `json:"messages"`
	MaxCompletionTokens int           `json:"max_completion_tokens"`
	Temperature         float64       `json:"temperature"`
	Stream              bool          `json:"stream"`
}

// Server is a deterministic OpenAI-compatible Chat Completions backend.
type Server struct {
	opts     ServerOptions
	mux      *http.ServeMux
	requests atomic.Int64
}

// NewServer creates a mock backend with the given options.
func NewServer(opts ServerOptions) *Server {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 4
	}
	if opts.Reply == nil {
		opts.Reply = echoReply
	}

	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("GET /v1/models", handleModels)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Requests returns the number of completion requests served.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	reply := s.opts.Reply(req.Messages)

	if req.Stream {
		if s.opts.RefuseStream {
			writeError(w, http.StatusBadRequest, "streaming is not supported for this model")
			return
		}
		s.stream(w, req.Model, reply)
		return
	}

	content := reply
	if s.opts.Reasoning != "" {
		content = "<reasoning>" + s.opts.Reasoning + "</reasoning>" + reply
	}
	resp := map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion",
		"model":  modelOrDefault(req.Model),
		"choices": []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) stream(w http.ResponseWriter, model, reply string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	if s.opts.Reasoning != "" {
		writeDelta(w, model, "<reasoning>"+s.opts.Reasoning+"</reasoning>")
	}
	for i, piece := range splitRunes(reply, s.opts.ChunkSize) {
		if i == 1 && s.opts.MalformedFrame {
			fmt.Fprint(w, "data: {not json\n\n")
		}
		writeDelta(w, model, piece)
		rc.Flush()
	}

	finish := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  modelOrDefault(model),
		"choices": []any{map[string]any{
			"index":         0,
			"delta":         map[string]any{},
			"finish_reason": "stop",
		}},
	}
	data, _ := json.Marshal(finish)
	fmt.Fprintf(w, "data: %s\n\n", data)
	fmt.Fprint(w, "data: [DONE]\n\n")
	rc.Flush()
}

func writeDelta(w http.ResponseWriter, model, text string) {
	chunk := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  modelOrDefault(model),
		"choices": []any{map[string]any{
			"index":         0,
			"delta":         map[string]any{"content": text},
			"finish_reason": nil,
		}},
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "chatrelay-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": "invalid_request_error"},
	})
}

func echoReply(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return "Echo: " + strings.TrimSpace(messages[i].Content)
		}
	}
	return "Echo:"
}

func modelOrDefault(model string) string {
	if model == "" {
		return "mock-model"
	}
	return model
}

func splitRunes(s string, n int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		k := min(n, len(runes))
		out = append(out, string(runes[:k]))
		runes = runes[k:]
	}
	return out
}
