package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/provider"
)

type fakeCompleter struct {
	text      string
	err       error
	conv      api.Conversation
	maxTokens int
}

func (f *fakeCompleter) TryComplete(_ context.Context, conv api.Conversation, maxTokens int) (string, error) {
	f.conv = conv
	f.maxTokens = maxTokens
	return f.text, f.err
}

// connect runs server over in-memory transports and returns a client session.
func connect(t *testing.T, server *mcp.Server) *mcp.ClientSession {
	t.Helper()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func resultText(r *mcp.CallToolResult) string {
	var out string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

func callChat(t *testing.T, session *mcp.ClientSession, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "chat", Arguments: args})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	return res
}

func TestListTools(t *testing.T) {
	session := connect(t, New(&fakeCompleter{}, "test", api.DefaultValidationConfig()))

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(res.Tools) != 1 || res.Tools[0].Name != "chat" {
		t.Fatalf("tools = %+v, want single chat tool", res.Tools)
	}
	if res.Tools[0].InputSchema == nil {
		t.Error("expected an inferred input schema")
	}
}

func TestChatTool(t *testing.T) {
	fc := &fakeCompleter{text: "Hello!"}
	session := connect(t, New(fc, "test", api.DefaultValidationConfig()))

	res := callChat(t, session, map[string]any{"prompt": "hi", "system": "be terse"})
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(res))
	}
	if got := resultText(res); got != "Hello!" {
		t.Errorf("text = %q, want %q", got, "Hello!")
	}
	if len(fc.conv) != 2 || fc.conv[0].Role != api.RoleSystem || fc.conv[1].Content != "hi" {
		t.Errorf("conversation = %+v", fc.conv)
	}
	if fc.maxTokens != api.DefaultMaxTokens {
		t.Errorf("maxTokens = %d, want %d", fc.maxTokens, api.DefaultMaxTokens)
	}
}

func TestChatToolMaxTokens(t *testing.T) {
	fc := &fakeCompleter{text: "ok"}
	session := connect(t, New(fc, "test", api.DefaultValidationConfig()))

	callChat(t, session, map[string]any{"prompt": "hi", "max_tokens": 50})
	if fc.maxTokens != 50 {
		t.Errorf("maxTokens = %d, want 50", fc.maxTokens)
	}

	res := callChat(t, session, map[string]any{"prompt": "hi", "max_tokens": -1})
	if !res.IsError {
		t.Error("expected tool error for negative max_tokens")
	}
}

func TestChatToolErrors(t *testing.T) {
	tests := []struct {
		name      string
		completer Completer
		args      map[string]any
		want      string
	}{
		{"not initialized", nil, map[string]any{"prompt": "hi"}, "upstream client not initialized"},
		{"empty prompt", &fakeCompleter{}, map[string]any{"prompt": ""}, "prompt must not be empty"},
		{"local failure", &fakeCompleter{err: errors.New("connection refused")}, map[string]any{"prompt": "hi"}, "Error (server_error): connection refused"},
		{
			"upstream failure",
			&fakeCompleter{err: fmt.Errorf("completion: %w", &provider.UpstreamError{Provider: "bedrock", Op: "invoke", Code: "ValidationException", Message: "bad model"})},
			map[string]any{"prompt": "hi"},
			"Error (upstream_error): bad model",
		},
		{
			"throttled",
			&fakeCompleter{err: &provider.UpstreamError{Provider: "openai", Op: "invoke", StatusCode: 429, Message: "slow down"}},
			map[string]any{"prompt": "hi"},
			"Error (too_many_requests): slow down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := connect(t, New(tt.completer, "test", api.DefaultValidationConfig()))
			res := callChat(t, session, tt.args)
			if !res.IsError {
				t.Fatal("expected IsError")
			}
			if got := resultText(res); got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStreamableHTTPHandler(t *testing.T) {
	srv := httptest.NewServer(Handler(New(&fakeCompleter{text: "pong"}, "test", api.DefaultValidationConfig())))
	defer srv.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "http-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{Endpoint: srv.URL}, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer session.Close()

	res := callChat(t, session, map[string]any{"prompt": "ping"})
	if got := resultText(res); got != "pong" {
		t.Errorf("text = %q, want %q", got, "pong")
	}
}
