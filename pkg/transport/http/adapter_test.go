package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/storage"
	"github.com/rhuss/chatrelay/pkg/storage/memory"
	"github.com/rhuss/chatrelay/pkg/transport"
)

// mockHandler is a configurable ChatHandler for testing.
type mockHandler struct {
	text    string
	err     error
	events  []api.StreamEvent
	notSet  bool
	lastReq *api.ChatRequest
}

func (m *mockHandler) Chat(ctx context.Context, req *api.ChatRequest, w transport.ResponseWriter) error {
	m.lastReq = req
	if m.err != nil {
		return m.err
	}
	if req.Stream {
		for _, event := range m.events {
			if err := w.WriteEvent(ctx, event); err != nil {
				return err
			}
		}
		return nil
	}
	return w.WriteResponse(ctx, &api.ChatResponse{Text: m.text, SessionID: req.SessionID})
}

func (m *mockHandler) Ready() bool { return !m.notSet }

func newTestServer(t *testing.T, h transport.ChatHandler, store transport.SessionStore) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewAdapter(h, store, DefaultConfig()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) *api.APIError {
	t.Helper()
	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error == nil {
		t.Fatal("expected error object in body")
	}
	return body.Error
}

var hiRequest = api.ChatRequest{
	Messages: []api.Message{
		{Role: api.RoleSystem, Content: "be terse"},
		{Role: api.RoleUser, Content: "hi"},
	},
}

func TestChatReturnsJSON(t *testing.T) {
	h := &mockHandler{text: "Hello!"}
	srv := newTestServer(t, h, nil)

	resp := postJSON(t, srv.URL+"/api/chat", hiRequest)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}

	var got api.ChatResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Text != "Hello!" {
		t.Errorf("text = %q, want %q", got.Text, "Hello!")
	}
	if h.lastReq.Stream {
		t.Error("plain POST must not stream")
	}
}

func TestChatHandlerErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    api.ErrorType
	}{
		{"invalid", api.NewInvalidRequestError("messages", "messages must be a non-empty list"), http.StatusBadRequest, api.ErrorTypeInvalidRequest},
		{"not initialized", api.NewServerError("upstream client not initialized"), http.StatusInternalServerError, api.ErrorTypeServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, api.ErrorTypeServerError},
		{"not found", api.NewNotFoundError("session x not found"), http.StatusNotFound, api.ErrorTypeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &mockHandler{err: tt.err}, nil)
			resp := postJSON(t, srv.URL+"/api/chat", hiRequest)
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if got := decodeError(t, resp); got.Type != tt.typ {
				t.Errorf("type = %q, want %q", got.Type, tt.typ)
			}
		})
	}
}

func TestChatMalformedBody(t *testing.T) {
	srv := newTestServer(t, &mockHandler{}, nil)

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChatWrongContentType(t *testing.T) {
	srv := newTestServer(t, &mockHandler{}, nil)

	resp, err := http.Post(srv.URL+"/api/chat", "text/plain", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", resp.StatusCode)
	}
}

func TestChatBodyTooLarge(t *testing.T) {
	adapter := NewAdapter(&mockHandler{}, nil, Config{MaxBodySize: 16})
	srv := httptest.NewServer(adapter.Handler())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/chat", hiRequest)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestChatStreamSSE(t *testing.T) {
	h := &mockHandler{events: []api.StreamEvent{
		api.FragmentEvent("Hel"),
		api.FragmentEvent("lo"),
		api.FragmentEvent("!"),
		api.DoneEvent(),
	}}
	srv := newTestServer(t, h, nil)

	for _, path := range []string{"/api/chat/stream", "/api/chat"} {
		t.Run(path, func(t *testing.T) {
			data, _ := json.Marshal(hiRequest)
			req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "text/event-stream")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
				t.Errorf("Content-Type = %q", ct)
			}
			body, _ := io.ReadAll(resp.Body)
			want := "data: Hel\n\ndata: lo\n\ndata: !\n\nevent: done\ndata: end\n\n"
			if string(body) != want {
				t.Errorf("body = %q, want %q", body, want)
			}
		})
	}
}

func TestChatStreamFlagInBody(t *testing.T) {
	h := &mockHandler{events: []api.StreamEvent{api.DoneEvent()}}
	srv := newTestServer(t, h, nil)

	req := hiRequest
	req.Stream = true
	resp := postJSON(t, srv.URL+"/api/chat", req)
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestChatStreamErrorAfterStart(t *testing.T) {
	h := transport.ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w transport.ResponseWriter) error {
		w.WriteEvent(ctx, api.FragmentEvent("partial"))
		return errors.New("handler exploded")
	})
	srv := newTestServer(t, h, nil)

	resp := postJSON(t, srv.URL+"/api/chat/stream", hiRequest)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	want := "data: partial\n\nevent: error\ndata: handler exploded\n\n"
	if string(body) != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestChatStreamValidationErrorIsJSON(t *testing.T) {
	srv := newTestServer(t, &mockHandler{err: api.NewInvalidRequestError("messages", "messages must be a non-empty list")}, nil)

	resp := postJSON(t, srv.URL+"/api/chat/stream", api.ChatRequest{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

// blockingStream emits one fragment, signals started and then waits to be
// cancelled.
func blockingStream(started chan<- struct{}) transport.ChatHandler {
	return transport.ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w transport.ResponseWriter) error {
		w.WriteEvent(ctx, api.FragmentEvent("first"))
		started <- struct{}{}
		<-ctx.Done()
		return w.WriteEvent(ctx, api.ErrorEvent(ctx.Err().Error()))
	})
}

// ownerFromHeader stands in for the auth middleware: X-Owner becomes the
// storage owner of the request.
func ownerFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if o := r.Header.Get("X-Owner"); o != "" {
			r = r.WithContext(storage.SetOwner(r.Context(), o))
		}
		next.ServeHTTP(w, r)
	})
}

func newStreamServer(t *testing.T, h transport.ChatHandler) *httptest.Server {
	t.Helper()
	a := NewAdapter(h, nil, DefaultConfig())
	a.Use(ownerFromHeader)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// openStream starts a stream and waits until its first fragment was sent.
func openStream(t *testing.T, base, requestID, owner string, started <-chan struct{}) *http.Response {
	t.Helper()
	data, _ := json.Marshal(hiRequest)
	req, err := http.NewRequest(http.MethodPost, base+"/api/chat/stream", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	if owner != "" {
		req.Header.Set("X-Owner", owner)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not start")
	}
	return resp
}

func cancelStream(t *testing.T, base, id, owner string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, base+"/api/streams/"+id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if owner != "" {
		req.Header.Set("X-Owner", owner)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func streamID(t *testing.T, resp *http.Response) string {
	t.Helper()
	id := resp.Header.Get(StreamIDHeader)
	if !strings.HasPrefix(id, "strm_") {
		t.Fatalf("%s = %q, want a server-issued stream ID", StreamIDHeader, id)
	}
	return id
}

func requireCancelled(t *testing.T, resp *http.Response) {
	t.Helper()
	body, _ := io.ReadAll(bufio.NewReader(resp.Body))
	if !strings.Contains(string(body), "event: error\ndata: context canceled\n\n") {
		t.Errorf("expected cancellation error event, got %q", body)
	}
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func TestCancelStream(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := newStreamServer(t, blockingStream(started))

	resp := openStream(t, srv.URL, "", "", started)
	id := streamID(t, resp)

	if status := cancelStream(t, srv.URL, id, ""); status != http.StatusNoContent {
		t.Errorf("cancel status = %d, want 204", status)
	}
	requireCancelled(t, resp)

	if status := cancelStream(t, srv.URL, id, ""); status != http.StatusNotFound {
		t.Errorf("second cancel status = %d, want 404", status)
	}
}

func TestCancelStreamIgnoresRequestID(t *testing.T) {
	started := make(chan struct{}, 2)
	srv := newStreamServer(t, blockingStream(started))

	first := openStream(t, srv.URL, "same", "", started)
	second := openStream(t, srv.URL, "same", "", started)
	a, b := streamID(t, first), streamID(t, second)
	if a == b {
		t.Fatalf("concurrent streams share stream ID %q", a)
	}

	if status := cancelStream(t, srv.URL, "same", ""); status != http.StatusNotFound {
		t.Errorf("cancel by request ID = %d, want 404", status)
	}
	for _, s := range []struct {
		id   string
		resp *http.Response
	}{{a, first}, {b, second}} {
		if status := cancelStream(t, srv.URL, s.id, ""); status != http.StatusNoContent {
			t.Errorf("cancel %s = %d, want 204", s.id, status)
		}
		requireCancelled(t, s.resp)
	}
}

func TestCancelStreamOfOtherOwner(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := newStreamServer(t, blockingStream(started))

	resp := openStream(t, srv.URL, "", "alice", started)
	id := streamID(t, resp)

	for _, owner := range []string{"mallory", ""} {
		if status := cancelStream(t, srv.URL, id, owner); status != http.StatusNotFound {
			t.Errorf("cancel as %q = %d, want 404", owner, status)
		}
	}
	if status := cancelStream(t, srv.URL, id, "alice"); status != http.StatusNoContent {
		t.Errorf("cancel as owner = %d, want 204", status)
	}
	requireCancelled(t, resp)
}

func TestSessionsCRUD(t *testing.T) {
	store := memory.New(0)
	srv := newTestServer(t, &mockHandler{}, store)

	resp := postJSON(t, srv.URL+"/api/sessions", api.CreateSessionRequest{Title: "demo", System: "be terse"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created api.Session
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if !api.ValidateSessionID(created.ID) {
		t.Fatalf("malformed session ID %q", created.ID)
	}
	if len(created.Messages) != 1 || created.Messages[0].Role != api.RoleSystem {
		t.Errorf("expected system message, got %+v", created.Messages)
	}

	getResp := get(t, srv.URL+"/api/sessions/"+created.ID)
	var got api.Session
	json.NewDecoder(getResp.Body).Decode(&got)
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK || got.Title != "demo" {
		t.Errorf("get = %d %+v", getResp.StatusCode, got)
	}

	listResp := get(t, srv.URL+"/api/sessions?limit=10")
	var list api.SessionList
	json.NewDecoder(listResp.Body).Decode(&list)
	listResp.Body.Close()
	if len(list.Data) != 1 || list.Data[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	del, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+created.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	delResp, err := http.DefaultClient.Do(del)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", delResp.StatusCode)
	}

	missing := get(t, srv.URL+"/api/sessions/"+created.ID)
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", missing.StatusCode)
	}
}

func TestCreateSessionEmptyBody(t *testing.T) {
	srv := newTestServer(t, &mockHandler{}, memory.New(0))

	resp, err := http.Post(srv.URL+"/api/sessions", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
}

func TestSessionsWithoutStore(t *testing.T) {
	srv := newTestServer(t, &mockHandler{}, nil)

	resp := get(t, srv.URL+"/api/sessions")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}
}

func TestSessionMalformedID(t *testing.T) {
	srv := newTestServer(t, &mockHandler{}, memory.New(0))

	resp := get(t, srv.URL+"/api/sessions/not-a-session")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListSessionsBadParams(t *testing.T) {
	srv := newTestServer(t, &mockHandler{}, memory.New(0))

	for _, q := range []string{"limit=0", "limit=abc", "order=sideways", "after=a&before=b"} {
		resp := get(t, srv.URL+"/api/sessions?"+q)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestSessionsOwnerScoped(t *testing.T) {
	store := memory.New(0)
	ctx := storage.SetOwner(context.Background(), "alice")
	sess := &api.Session{ID: api.NewSessionID()}
	store.CreateSession(ctx, sess)

	adapter := NewAdapter(&mockHandler{}, store, DefaultConfig())
	adapter.Use(ownerFromHeader)
	srv := httptest.NewServer(adapter.Handler())
	defer srv.Close()

	for owner, want := range map[string]int{"alice": http.StatusOK, "bob": http.StatusNotFound} {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/sessions/"+sess.ID, nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("X-Owner", owner)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("owner %s: status = %d, want %d", owner, resp.StatusCode, want)
		}
	}
}

func TestHealthAndReadiness(t *testing.T) {
	ready := newTestServer(t, &mockHandler{}, memory.New(0))
	notReady := newTestServer(t, &mockHandler{notSet: true}, nil)

	tests := []struct {
		name   string
		url    string
		status int
	}{
		{"healthz", ready.URL + "/healthz", http.StatusOK},
		{"readyz", ready.URL + "/readyz", http.StatusOK},
		{"healthz without upstream", notReady.URL + "/healthz", http.StatusOK},
		{"readyz without upstream", notReady.URL + "/readyz", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(tt.url)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv := newTestServer(t, &mockHandler{}, nil)

	resp := get(t, srv.URL+"/nope")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", resp.StatusCode)
	}

	resp = get(t, srv.URL+"/api/chat")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/chat status = %d, want 405", resp.StatusCode)
	}
}

func TestMountAndHandle(t *testing.T) {
	adapter := NewAdapter(&mockHandler{}, nil, DefaultConfig())
	adapter.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("metrics"))
	}))
	adapter.Mount("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ui"))
	}))
	srv := httptest.NewServer(adapter.Handler())
	defer srv.Close()

	for path, want := range map[string]string{"/metrics": "metrics", "/": "ui", "/app.js": "ui"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != want {
			t.Errorf("%s: body = %q, want %q", path, body, want)
		}
	}

	resp := postJSON(t, srv.URL+"/api/chat", hiRequest)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("API routes must take precedence over the UI mount, got %d", resp.StatusCode)
	}
}
