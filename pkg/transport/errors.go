package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/storage"
)

var statusByType = map[api.ErrorType]int{
	api.ErrorTypeInvalidRequest:  http.StatusBadRequest,
	api.ErrorTypeUnauthorized:    http.StatusUnauthorized,
	api.ErrorTypeNotFound:        http.StatusNotFound,
	api.ErrorTypeConflict:        http.StatusConflict,
	api.ErrorTypeTooManyRequests: http.StatusTooManyRequests,
	api.ErrorTypeUpstreamError:   http.StatusBadGateway,
}

// HTTPStatusFromError returns the status for an APIError type. Unknown
// types and server errors map to 500.
func HTTPStatusFromError(err *api.APIError) int {
	if status, ok := statusByType[err.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ToAPIError converts err into the client-facing error. Storage sentinels
// become not_found and conflict errors about subject; an *api.APIError
// anywhere in the chain is returned as is.
func ToAPIError(err error, subject string) *api.APIError {
	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, storage.ErrNotFound):
		return api.NewNotFoundError(subject + " not found")
	case errors.Is(err, storage.ErrConflict):
		return api.NewConflictError(subject + " already exists")
	default:
		return api.NewServerError(err.Error())
	}
}

// WriteErrorResponse writes apiErr as {"error": {...}} with statusCode.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes apiErr with the status derived from its type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
