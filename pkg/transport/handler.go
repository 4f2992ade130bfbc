package transport

import (
	"context"

	"github.com/rhuss/chatrelay/pkg/api"
)

// ChatHandler handles the relay operation. The implementation receives a
// validated-shape request and writes the result (fragment events or a
// complete response) to the ResponseWriter.
type ChatHandler interface {
	Chat(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error
}

// ChatHandlerFunc is an adapter that allows using an ordinary function
// as a ChatHandler.
type ChatHandlerFunc func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error

// Chat calls f(ctx, req, w).
func (f ChatHandlerFunc) Chat(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ListOptions controls pagination and ordering for list operations.
type ListOptions struct {
	After  string // Cursor: return items after this ID.
	Before string // Cursor: return items before this ID.
	Limit  int    // Maximum number of items to return (default 20, max 100).
	Order  string // Sort order by last update: "asc" or "desc" (default "desc").
}

// Normalize clamps Limit to [1,100] with a default of 20.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Order != "asc" {
		o.Order = "desc"
	}
	return o
}

// SessionStore persists chat sessions. Sessions are scoped to the owner
// found in the context (see storage.SetOwner); a session owned by someone
// else behaves as if it did not exist.
type SessionStore interface {
	// CreateSession stores a new session. Returns storage.ErrConflict if
	// the ID is taken.
	CreateSession(ctx context.Context, s *api.Session) error

	// GetSession returns the session with its full message history.
	// Returns storage.ErrNotFound if it does not exist.
	GetSession(ctx context.Context, id string) (*api.Session, error)

	// AppendMessages atomically adds msgs to the end of the history.
	AppendMessages(ctx context.Context, id string, msgs []api.Message) error

	// ListSessions returns a page of sessions without their messages.
	ListSessions(ctx context.Context, opts ListOptions) (*api.SessionList, error)

	// DeleteSession removes a session and its history.
	DeleteSession(ctx context.Context, id string) error

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases database connections and resources.
	Close() error
}

// ResponseWriter abstracts streaming and non-streaming output for the handler.
// The transport layer creates a ResponseWriter for each request and provides
// it to the handler. The handler uses WriteEvent for streaming responses or
// WriteResponse for non-streaming responses.
//
// WriteEvent and WriteResponse are mutually exclusive on a single writer
// instance. Calling WriteEvent after a terminal event (done or error)
// returns an error.
type ResponseWriter interface {
	// WriteEvent sends a single streaming event.
	WriteEvent(ctx context.Context, event api.StreamEvent) error

	// WriteResponse sends a complete non-streaming response.
	WriteResponse(ctx context.Context, resp *api.ChatResponse) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}
