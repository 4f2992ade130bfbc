package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/debug"
	"github.com/rhuss/chatrelay/pkg/observability"
	"github.com/rhuss/chatrelay/pkg/provider"
)

const (
	// DefaultTemperature is the sampling temperature sent with every request.
	DefaultTemperature = 0.7

	// DefaultFallbackChunkSize is the fragment length, in characters, used
	// when a synchronous result is replayed as a stream.
	DefaultFallbackChunkSize = 40
)

var (
	// ErrEmptyConversation is returned for a conversation without messages.
	ErrEmptyConversation = errors.New("conversation must contain at least one message")

	// ErrInvalidMaxTokens is returned for a non-positive completion budget.
	ErrInvalidMaxTokens = errors.New("max tokens must be positive")
)

// CompletionRequest is the body sent to the model endpoint.
type CompletionRequest struct {
	Messages            api.Conversation `json:"messages"`
	MaxCompletionTokens int              `json:"max_completion_tokens"`
	Temperature         float64          `json:"temperature"`
	Stream              bool             `json:"stream,omitempty"`
}

// Config holds relay client settings.
type Config struct {
	// ModelID is passed to the invoker (default: provider.DefaultModelID).
	ModelID string

	// Temperature overrides DefaultTemperature when positive.
	Temperature float64

	// FallbackChunkSize overrides DefaultFallbackChunkSize when positive.
	FallbackChunkSize int

	// KeepFragmentWhitespace skips trimming of streamed fragments.
	// Reasoning blocks are still removed.
	KeepFragmentWhitespace bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ModelID == "" {
		c.ModelID = provider.DefaultModelID
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.FallbackChunkSize <= 0 {
		c.FallbackChunkSize = DefaultFallbackChunkSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client turns conversations into completions using an upstream invoker.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	invoker provider.Invoker
	cfg     Config
}

// New creates a Client for inv.
func New(inv provider.Invoker, cfg Config) (*Client, error) {
	if inv == nil {
		return nil, errors.New("relay: invoker is required")
	}
	cfg.defaults()
	return &Client{invoker: inv, cfg: cfg}, nil
}

// ModelID returns the configured model identifier.
func (c *Client) ModelID() string { return c.cfg.ModelID }

// Provider returns the invoker name.
func (c *Client) Provider() string { return c.invoker.Name() }

// Close releases the invoker.
func (c *Client) Close() error { return c.invoker.Close() }

// Complete returns the sanitized completion text for conv. It never fails:
// any error is reported inline as "Error: <message>".
func (c *Client) Complete(ctx context.Context, conv api.Conversation, maxTokens int) string {
	text, err := c.TryComplete(ctx, conv, maxTokens)
	if err != nil {
		return ErrorText(err)
	}
	return text
}

// TryComplete is Complete with the error returned separately.
func (c *Client) TryComplete(ctx context.Context, conv api.Conversation, maxTokens int) (string, error) {
	req, err := c.buildRequest(conv, maxTokens, false)
	if err != nil {
		return "", err
	}

	start := time.Now()
	raw, err := c.invoker.Invoke(ctx, req)
	c.observe("invoke", start, err)
	if err != nil {
		c.cfg.Logger.Warn("upstream invoke failed",
			"provider", c.invoker.Name(),
			"model", c.cfg.ModelID,
			"error", err,
		)
		return "", err
	}

	if debug.TraceIsEnabled("upstream") {
		debug.Trace("upstream", "terminal payload", "body", string(raw))
	}

	fragments, err := ExtractBytes(raw)
	if err != nil {
		return "", fmt.Errorf("decoding completion payload: %w", err)
	}
	return Clean(strings.Join(fragments, "")), nil
}

// ErrorText renders err the way Complete reports failures.
func ErrorText(err error) string {
	return "Error: " + err.Error()
}

func (c *Client) buildRequest(conv api.Conversation, maxTokens int, stream bool) (*provider.Request, error) {
	if len(conv) == 0 {
		return nil, ErrEmptyConversation
	}
	if maxTokens <= 0 {
		return nil, ErrInvalidMaxTokens
	}
	body, err := json.Marshal(CompletionRequest{
		Messages:            conv,
		MaxCompletionTokens: maxTokens,
		Temperature:         c.cfg.Temperature,
		Stream:              stream,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}
	debug.Log("relay", "completion request",
		"model", c.cfg.ModelID,
		"messages", len(conv),
		"max_tokens", maxTokens,
		"stream", stream,
	)
	return &provider.Request{ModelID: c.cfg.ModelID, Body: body}, nil
}

func (c *Client) observe(mode string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	name := c.invoker.Name()
	observability.UpstreamRequestsTotal.WithLabelValues(name, mode, status).Inc()
	observability.UpstreamLatency.WithLabelValues(name, mode).Observe(time.Since(start).Seconds())
}
