package provider

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rhuss/chatrelay/pkg/api"
)

// UpstreamError describes a failure reported by, or while talking to, a
// remote endpoint.
type UpstreamError struct {
	Provider   string // invoker name
	Op         string // "invoke" or "stream"
	StatusCode int    // HTTP status, 0 when unknown
	Code       string // endpoint error code, e.g. "ThrottlingException"
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Provider, e.Op, e.Code, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, msg)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ToAPIError converts err into the client-facing error type.
func ToAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		msg := upErr.Message
		if msg == "" && upErr.Err != nil {
			msg = upErr.Err.Error()
		}
		if upErr.StatusCode == http.StatusTooManyRequests || upErr.Code == "ThrottlingException" {
			return api.NewTooManyRequestsError(msg)
		}
		return api.NewUpstreamError(upErr.Code, msg)
	}
	return api.NewServerError(err.Error())
}
