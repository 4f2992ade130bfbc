package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/chatrelay/pkg/debug"
	"github.com/rhuss/chatrelay/pkg/provider"
)

// ProviderName is the invoker name reported in logs and metrics.
const ProviderName = "openai"

// maxResponseSize caps how much of a terminal payload is read.
const maxResponseSize = 8 << 20

// Client performs HTTP requests against an OpenAI-compatible Chat Completions
// backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

var _ provider.Invoker = (*Client)(nil)

// NewClient creates a new Client for an OpenAI-compatible backend.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")

	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Name returns "openai".
func (c *Client) Name() string { return ProviderName }

// Invoke posts the request and returns the raw completion body.
func (c *Client) Invoke(ctx context.Context, req *provider.Request) ([]byte, error) {
	httpReq, err := c.newRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError("invoke", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError("invoke", httpResp)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, MapNetworkError("invoke", err)
	}
	return body, nil
}

// InvokeStream posts the request with streaming enabled and returns the
// SSE body as an event stream.
//
// The HTTP client timeout is not applied for streaming requests because a
// stream can legitimately last longer than any fixed timeout. Lifecycle
// control relies on context cancellation instead.
func (c *Client) InvokeStream(ctx context.Context, req *provider.Request) (provider.EventStream, error) {
	httpReq, err := c.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	streamClient := &http.Client{
		Transport: c.httpClient.Transport,
	}

	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError("stream", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, MapHTTPError("stream", httpResp)
	}

	return newSSEStream(httpResp.Body), nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) newRequest(ctx context.Context, req *provider.Request, stream bool) (*http.Request, error) {
	body, err := withModel(req.Body, req.ModelID)
	if err != nil {
		return nil, fmt.Errorf("preparing request body: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	debug.Log("upstream", "openai request", "url", url, "model", req.ModelID, "stream", stream, "bytes", len(body))
	return httpReq, nil
}

// withModel adds the "model" field to an encoded JSON object.
func withModel(body []byte, model string) ([]byte, error) {
	if model == "" {
		return body, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(model)
	if err != nil {
		return nil, err
	}
	fields["model"] = encoded
	return json.Marshal(fields)
}
