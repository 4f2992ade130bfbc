// Package mcpserver exposes the relay as a Model Context Protocol server
// with a single "chat" tool, served over streamable HTTP on /mcp.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/provider"
	"github.com/rhuss/chatrelay/pkg/relay"
)

// Completer produces a sanitized completion for a conversation.
// *relay.Client implements it.
type Completer interface {
	TryComplete(ctx context.Context, conv api.Conversation, maxTokens int) (string, error)
}

var _ Completer = (*relay.Client)(nil)

// ChatInput is the argument object of the chat tool.
type ChatInput struct {
	Prompt    string `json:"prompt" jsonschema:"the user message to send to the model"`
	System    string `json:"system,omitempty" jsonschema:"optional system instruction"`
	MaxTokens int    `json:"max_tokens,omitempty" jsonschema:"completion budget, defaults to 300"`
}

// ChatOutput is the structured result of the chat tool.
type ChatOutput struct {
	Text string `json:"text"`
}

// New returns an MCP server whose chat tool is backed by c. A nil c yields
// a server whose tool reports that the upstream is not initialized.
func New(c Completer, version string, validation api.ValidationConfig) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: "chatrelay", Version: version},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat",
		Description: "Sends a single prompt to the configured model and returns its answer with reasoning removed",
	}, chatTool(c, validation))

	return server
}

// Handler serves server over streamable HTTP.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

func chatTool(c Completer, validation api.ValidationConfig) mcp.ToolHandlerFor[ChatInput, ChatOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ChatInput) (*mcp.CallToolResult, ChatOutput, error) {
		if c == nil {
			return errorResult("upstream client not initialized"), ChatOutput{}, nil
		}
		if in.Prompt == "" {
			return errorResult("prompt must not be empty"), ChatOutput{}, nil
		}

		var conv api.Conversation
		if in.System != "" {
			conv = append(conv, api.Message{Role: api.RoleSystem, Content: in.System})
		}
		conv = append(conv, api.Message{Role: api.RoleUser, Content: in.Prompt})

		req := &api.ChatRequest{Messages: conv}
		if in.MaxTokens != 0 {
			req.MaxTokens = &in.MaxTokens
		}
		if apiErr := api.ValidateChatRequest(req, validation); apiErr != nil {
			return errorResult(apiErr.Message), ChatOutput{}, nil
		}

		text, err := c.TryComplete(ctx, conv, validation.MaxTokens(req))
		if err != nil {
			apiErr := provider.ToAPIError(err)
			return errorResult(fmt.Sprintf("Error (%s): %s", apiErr.Type, apiErr.Message)), ChatOutput{}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, ChatOutput{Text: text}, nil
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
