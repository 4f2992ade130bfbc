package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/chatrelay/pkg/provider"
)

// ChatErrorResponse is the error envelope returned by OpenAI-compatible
// backends.
type ChatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// MapHTTPError converts an HTTP response with a non-2xx status code into
// an UpstreamError, using the backend's error message when the body has one.
func MapHTTPError(op string, resp *http.Response) *provider.UpstreamError {
	code, message := ExtractError(resp.Body)

	if message == "" {
		switch {
		case resp.StatusCode == http.StatusBadRequest:
			message = "invalid request to backend"
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			message = "backend authentication failed"
		case resp.StatusCode == http.StatusNotFound:
			message = "backend resource not found"
		case resp.StatusCode == http.StatusTooManyRequests:
			message = "backend rate limit exceeded"
		case resp.StatusCode >= http.StatusInternalServerError:
			message = fmt.Sprintf("backend server error (HTTP %d)", resp.StatusCode)
		default:
			message = fmt.Sprintf("unexpected backend error (HTTP %d)", resp.StatusCode)
		}
	}

	return &provider.UpstreamError{
		Provider:   ProviderName,
		Op:         op,
		StatusCode: resp.StatusCode,
		Code:       code,
		Message:    message,
	}
}

// MapNetworkError wraps a transport-level failure (connection refused,
// timeout, DNS) in an UpstreamError.
func MapNetworkError(op string, err error) *provider.UpstreamError {
	return &provider.UpstreamError{
		Provider: ProviderName,
		Op:       op,
		Message:  "backend connection error: " + err.Error(),
		Err:      err,
	}
}

// ExtractError parses body as a ChatErrorResponse and returns its code
// (or type) and message. Both are empty when the body is not an error
// envelope.
func ExtractError(body io.Reader) (code, message string) {
	if body == nil {
		return "", ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "", ""
	}

	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil {
		return "", ""
	}
	code = errResp.Error.Type
	if s, ok := errResp.Error.Code.(string); ok && s != "" {
		code = s
	}
	return code, errResp.Error.Message
}
