package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/storage"
	"github.com/rhuss/chatrelay/pkg/transport"
)

// Readiness is implemented by handlers that can report whether their
// upstream dependency is available.
type Readiness interface {
	Ready() bool
}

// Adapter serves the relay API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	handler  transport.ChatHandler
	ready    Readiness // nil when the handler cannot report readiness
	store    transport.SessionStore
	inflight *transport.InFlightRegistry
	router   *mux.Router
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 10 << 20, // 10 MB
	}
}

// NewAdapter creates an HTTP adapter for handler. The SessionStore is
// optional; when nil, the session endpoints return 501.
// Middleware is applied to the handler in the given order.
func NewAdapter(handler transport.ChatHandler, store transport.SessionStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	a := &Adapter{
		store:    store,
		inflight: transport.NewInFlightRegistry(),
		router:   mux.NewRouter(),
		config:   cfg,
	}
	if r, ok := handler.(Readiness); ok {
		a.ready = r
	}
	if len(middlewares) > 0 {
		handler = transport.Chain(middlewares...)(handler)
	}
	a.handler = handler

	a.router.HandleFunc("/api/chat", a.handleChat(false)).Methods(http.MethodPost)
	a.router.HandleFunc("/api/chat/stream", a.handleChat(true)).Methods(http.MethodPost)
	a.router.HandleFunc("/api/streams/{id}", a.handleCancelStream).Methods(http.MethodDelete)
	a.router.HandleFunc("/api/sessions", a.handleCreateSession).Methods(http.MethodPost)
	a.router.HandleFunc("/api/sessions", a.handleListSessions).Methods(http.MethodGet)
	a.router.HandleFunc("/api/sessions/{id}", a.handleGetSession).Methods(http.MethodGet)
	a.router.HandleFunc("/api/sessions/{id}", a.handleDeleteSession).Methods(http.MethodDelete)

	a.router.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	a.router.HandleFunc("/readyz", a.handleReadyz).Methods(http.MethodGet)

	a.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteAPIError(w, api.NewNotFoundError("no route for "+r.URL.Path))
	})
	a.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "method "+r.Method+" not allowed"),
			http.StatusMethodNotAllowed,
		)
	})

	return a
}

// Handle registers h for an exact path, e.g. "/metrics".
func (a *Adapter) Handle(path string, h http.Handler) {
	a.router.Handle(path, h)
}

// Mount registers h for every path under prefix. Mount "/" last: routes
// match in registration order.
func (a *Adapter) Mount(prefix string, h http.Handler) {
	a.router.PathPrefix(prefix).Handler(h)
}

// Use appends HTTP middleware to the router. Middleware only runs for
// matched routes.
func (a *Adapter) Use(mw ...mux.MiddlewareFunc) {
	a.router.Use(mw...)
}

// Router exposes the underlying router.
func (a *Adapter) Router() *mux.Router {
	return a.router
}

// InFlight returns the registry of active streams.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.router)
}

// httpRequestIDMiddleware takes X-Request-ID from the request, or generates
// one, stores it in the context and echoes it on the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

// handleChat handles POST /api/chat and POST /api/chat/stream.
func (a *Adapter) handleChat(forceStream bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		if !a.decodeJSON(w, r, &req, false) {
			return
		}

		if forceStream || acceptsEventStream(r) {
			req.Stream = true
		}

		if req.Stream {
			a.handleStreamingChat(w, r, &req)
			return
		}

		rw := newSSEResponseWriter(w)
		if err := a.handler.Chat(r.Context(), &req, rw); err != nil {
			a.writeHandlerError(w, rw, err)
		}
	}
}

// StreamIDHeader carries the server-issued ID of a streamed reply. Clients
// pass it to DELETE /api/streams/{id} to stop the stream.
const StreamIDHeader = "X-Stream-ID"

// handleStreamingChat runs a streaming request registered under a fresh
// stream ID and the caller's owner.
func (a *Adapter) handleStreamingChat(w http.ResponseWriter, r *http.Request, req *api.ChatRequest) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := api.NewStreamID()
	if !a.inflight.Register(id, storage.GetOwner(ctx), cancel) {
		transport.WriteAPIError(w, api.NewServerError("stream ID collision"))
		return
	}
	defer a.inflight.Remove(id)
	w.Header().Set(StreamIDHeader, id)

	rw := newSSEResponseWriter(w)
	if err := a.handler.Chat(ctx, req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleCancelStream handles DELETE /api/streams/{id}. Streams of other
// owners are reported as not found.
func (a *Adapter) handleCancelStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !a.inflight.Cancel(id, storage.GetOwner(r.Context())) {
		transport.WriteAPIError(w, api.NewNotFoundError("no active stream "+id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateSession handles POST /api/sessions. The body is optional.
func (a *Adapter) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w, "session creation") {
		return
	}

	var req api.CreateSessionRequest
	if !a.decodeJSON(w, r, &req, true) {
		return
	}

	now := time.Now().Unix()
	sess := &api.Session{
		ID:        api.NewSessionID(),
		Object:    "session",
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.System != "" {
		sess.Messages = []api.Message{{Role: api.RoleSystem, Content: req.System}}
	}

	if err := a.store.CreateSession(r.Context(), sess); err != nil {
		writeStoreError(w, sess.ID, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// handleListSessions handles GET /api/sessions.
func (a *Adapter) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w, "session listing") {
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteErrorResponse(w, apiErr, http.StatusBadRequest)
		return
	}

	result, err := a.store.ListSessions(r.Context(), opts)
	if err != nil {
		writeStoreError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetSession handles GET /api/sessions/{id}.
func (a *Adapter) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w, "session retrieval") {
		return
	}
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}

	sess, err := a.store.GetSession(r.Context(), id)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleDeleteSession handles DELETE /api/sessions/{id}.
func (a *Adapter) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w, "session deletion") {
		return
	}
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}

	if err := a.store.DeleteSession(r.Context(), id); err != nil {
		writeStoreError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// handleReadyz reports 503 while the upstream client is missing or the
// store is unhealthy.
func (a *Adapter) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil && !a.ready.Ready() {
		transport.WriteErrorResponse(w, api.NewServerError("upstream client not initialized"), http.StatusServiceUnavailable)
		return
	}
	if a.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.store.HealthCheck(ctx); err != nil {
			transport.WriteErrorResponse(w, api.NewServerError("store unavailable: "+err.Error()), http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}

// decodeJSON validates the content type, limits the body and decodes it
// into v. With allowEmpty, an empty body leaves v untouched. It writes the
// error response and returns false on failure.
func (a *Adapter) decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return false
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return false
	}
	return true
}

func (a *Adapter) requireStore(w http.ResponseWriter, op string) bool {
	if a.store != nil {
		return true
	}
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", op+" is not available (no store configured)"),
		http.StatusNotImplemented,
	)
	return false
}

func sessionIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if !api.ValidateSessionID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed session ID"),
			http.StatusBadRequest,
		)
		return "", false
	}
	return id, true
}

func acceptsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// parseListOptions extracts pagination parameters from query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		After:  q.Get("after"),
		Before: q.Get("before"),
		Order:  q.Get("order"),
	}

	if opts.After != "" && opts.Before != "" {
		return opts, api.NewInvalidRequestError("after", "cannot use both 'after' and 'before' cursors")
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts.Normalize(), nil
}

// writeHandlerError writes an error returned by the handler. If streaming
// has already started, it sends the error termination event. Otherwise it
// writes a standard JSON error response.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseResponseWriter, err error) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError(err.Error())
	}

	if rw.hasStartedStreaming() {
		if !rw.isCompleted() {
			rw.WriteEvent(context.Background(), api.ErrorEvent(apiErr.Message))
		}
		return
	}
	if rw.isCompleted() {
		return
	}

	transport.WriteAPIError(w, apiErr)
}

func writeStoreError(w http.ResponseWriter, id string, err error) {
	transport.WriteAPIError(w, transport.ToAPIError(err, "session "+id))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
