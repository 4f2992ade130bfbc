package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/storage"
)

func TestWriteAPIErrorStatus(t *testing.T) {
	tests := []struct {
		err  *api.APIError
		want int
	}{
		{api.NewInvalidRequestError("messages", "must be a non-empty list"), http.StatusBadRequest},
		{api.NewUnauthorizedError("authentication required"), http.StatusUnauthorized},
		{api.NewNotFoundError("session not found"), http.StatusNotFound},
		{api.NewConflictError("session exists"), http.StatusConflict},
		{api.NewTooManyRequestsError("slow down"), http.StatusTooManyRequests},
		{api.NewUpstreamError("ThrottlingException", "model busy"), http.StatusBadGateway},
		{api.NewServerError("upstream client not initialized"), http.StatusInternalServerError},
		{&api.APIError{Type: "unknown", Message: "?"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteAPIError(rec, tt.err)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var resp api.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if *resp.Error != *tt.err {
				t.Errorf("body error = %+v, want %+v", resp.Error, tt.err)
			}
		})
	}
}

func TestWriteErrorResponseKeepsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, api.NewServerError("store unavailable"), http.StatusServiceUnavailable)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestToAPIError(t *testing.T) {
	validation := api.NewInvalidRequestError("max_tokens", "must be positive")

	tests := []struct {
		name     string
		err      error
		wantType api.ErrorType
		wantMsg  string
	}{
		{"not found", fmt.Errorf("get: %w", storage.ErrNotFound), api.ErrorTypeNotFound, "session sess_1 not found"},
		{"conflict", storage.ErrConflict, api.ErrorTypeConflict, "session sess_1 already exists"},
		{"api error", fmt.Errorf("wrapped: %w", validation), api.ErrorTypeInvalidRequest, "must be positive"},
		{"other", errors.New("connection refused"), api.ErrorTypeServerError, "connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToAPIError(tt.err, "session sess_1")
			if got.Type != tt.wantType || got.Message != tt.wantMsg {
				t.Errorf("ToAPIError = %s %q, want %s %q", got.Type, got.Message, tt.wantType, tt.wantMsg)
			}
		})
	}
}
