package transport

import (
	"context"
	"testing"

	"github.com/rhuss/chatrelay/pkg/api"
)

func TestChatHandlerFuncAdapter(t *testing.T) {
	called := false
	var receivedReq *api.ChatRequest

	fn := ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
		called = true
		receivedReq = req
		return nil
	})

	req := &api.ChatRequest{SessionID: "sess_x"}
	if err := fn.Chat(context.Background(), req, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected function to be called")
	}
	if receivedReq.SessionID != "sess_x" {
		t.Errorf("expected session %q, got %q", "sess_x", receivedReq.SessionID)
	}
}

func TestChatHandlerFuncReturnsError(t *testing.T) {
	fn := ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
		return api.NewServerError("test error")
	})

	err := fn.Chat(context.Background(), &api.ChatRequest{}, nil)
	apiErr, ok := err.(*api.APIError)
	if !ok {
		t.Fatalf("expected *api.APIError, got %T", err)
	}
	if apiErr.Type != api.ErrorTypeServerError {
		t.Errorf("expected error type %q, got %q", api.ErrorTypeServerError, apiErr.Type)
	}
}

func TestListOptionsNormalize(t *testing.T) {
	tests := []struct {
		in        ListOptions
		wantLimit int
		wantOrder string
	}{
		{ListOptions{}, 20, "desc"},
		{ListOptions{Limit: 500, Order: "asc"}, 100, "asc"},
		{ListOptions{Limit: 5, Order: "sideways"}, 5, "desc"},
	}
	for _, tt := range tests {
		got := tt.in.Normalize()
		if got.Limit != tt.wantLimit || got.Order != tt.wantOrder {
			t.Errorf("Normalize(%+v) = %+v", tt.in, got)
		}
	}
}

func TestInterfaceSatisfaction(t *testing.T) {
	var _ ChatHandler = ChatHandlerFunc(nil)
	var _ SessionStore = (*mockStore)(nil)
}

type mockStore struct{}

func (m *mockStore) CreateSession(_ context.Context, _ *api.Session) error {
	return nil
}

func (m *mockStore) GetSession(_ context.Context, _ string) (*api.Session, error) {
	return nil, nil
}

func (m *mockStore) AppendMessages(_ context.Context, _ string, _ []api.Message) error {
	return nil
}

func (m *mockStore) ListSessions(_ context.Context, _ ListOptions) (*api.SessionList, error) {
	return nil, nil
}

func (m *mockStore) DeleteSession(_ context.Context, _ string) error {
	return nil
}

func (m *mockStore) HealthCheck(_ context.Context) error {
	return nil
}

func (m *mockStore) Close() error {
	return nil
}
