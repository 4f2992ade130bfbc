package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/storage"
	"github.com/rhuss/chatrelay/pkg/transport"
)

func makeSession(id string) *api.Session {
	return &api.Session{
		ID:    id,
		Title: "test",
		Messages: []api.Message{
			{Role: api.RoleSystem, Content: "be terse"},
		},
	}
}

// fixedClock returns a clock that advances one second per call.
func fixedClock() func() time.Time {
	t := time.Unix(1000, 0)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestCreateAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.CreateSession(ctx, makeSession("sess_1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := s.GetSession(ctx, "sess_1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.ID != "sess_1" || got.Object != "session" || got.Title != "test" {
		t.Errorf("unexpected session %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "be terse" {
		t.Errorf("Messages = %+v", got.Messages)
	}
	if got.CreatedAt == 0 || got.UpdatedAt != got.CreatedAt {
		t.Errorf("timestamps not initialized: created=%d updated=%d", got.CreatedAt, got.UpdatedAt)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.CreateSession(ctx, makeSession("sess_copy"))

	got, _ := s.GetSession(ctx, "sess_copy")
	got.Messages[0].Content = "mutated"

	again, _ := s.GetSession(ctx, "sess_copy")
	if again.Messages[0].Content != "be terse" {
		t.Error("mutating a returned session must not change the store")
	}
}

func TestGetNotFound(t *testing.T) {
	s := New(0)
	_, err := s.GetSession(context.Background(), "sess_missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateCreate(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.CreateSession(ctx, makeSession("sess_dup"))

	if err := s.CreateSession(ctx, makeSession("sess_dup")); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate, got %v", err)
	}
}

func TestAppendMessages(t *testing.T) {
	s := New(0)
	s.now = fixedClock()
	ctx := context.Background()
	s.CreateSession(ctx, makeSession("sess_app"))
	before, _ := s.GetSession(ctx, "sess_app")

	err := s.AppendMessages(ctx, "sess_app", []api.Message{
		{Role: api.RoleUser, Content: "hi"},
		{Role: api.RoleAssistant, Content: "Hello!"},
	})
	if err != nil {
		t.Fatalf("AppendMessages failed: %v", err)
	}

	got, _ := s.GetSession(ctx, "sess_app")
	if len(got.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(got.Messages))
	}
	if got.Messages[2].Content != "Hello!" {
		t.Errorf("last message = %+v", got.Messages[2])
	}
	if got.UpdatedAt <= before.UpdatedAt {
		t.Errorf("UpdatedAt not advanced: %d <= %d", got.UpdatedAt, before.UpdatedAt)
	}

	if err := s.AppendMessages(ctx, "sess_missing", nil); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.CreateSession(ctx, makeSession("sess_del"))

	if err := s.DeleteSession(ctx, "sess_del"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := s.GetSession(ctx, "sess_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteSession(ctx, "sess_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(3)
	ctx := context.Background()

	s.CreateSession(ctx, makeSession("sess_a"))
	s.CreateSession(ctx, makeSession("sess_b"))
	s.CreateSession(ctx, makeSession("sess_c"))

	// Touch sess_a so sess_b becomes the least recently used.
	if _, err := s.GetSession(ctx, "sess_a"); err != nil {
		t.Fatal(err)
	}

	s.CreateSession(ctx, makeSession("sess_d"))

	if _, err := s.GetSession(ctx, "sess_b"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("expected sess_b to be evicted")
	}
	for _, id := range []string{"sess_a", "sess_c", "sess_d"} {
		if _, err := s.GetSession(ctx, id); err != nil {
			t.Errorf("expected %s to exist after eviction, got %v", id, err)
		}
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestOwnerIsolation(t *testing.T) {
	s := New(0)

	ctxA := storage.SetOwner(context.Background(), "alice")
	ctxB := storage.SetOwner(context.Background(), "bob")

	s.CreateSession(ctxA, makeSession("sess_alice"))

	if _, err := s.GetSession(ctxA, "sess_alice"); err != nil {
		t.Fatalf("owner should retrieve own session: %v", err)
	}
	if _, err := s.GetSession(ctxB, "sess_alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("bob should not see alice's session")
	}
	if err := s.AppendMessages(ctxB, "sess_alice", []api.Message{{Role: api.RoleUser, Content: "x"}}); !errors.Is(err, storage.ErrNotFound) {
		t.Error("bob should not append to alice's session")
	}
	if err := s.DeleteSession(ctxB, "sess_alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("bob should not delete alice's session")
	}
	if _, err := s.GetSession(context.Background(), "sess_alice"); err != nil {
		t.Fatalf("single-user context should see all sessions: %v", err)
	}

	list, _ := s.ListSessions(ctxB, transport.ListOptions{})
	if len(list.Data) != 0 {
		t.Errorf("bob's list should be empty, got %d", len(list.Data))
	}
}

func TestListSessionsPagination(t *testing.T) {
	s := New(0)
	s.now = fixedClock()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		s.CreateSession(ctx, makeSession(fmt.Sprintf("sess_%d", i)))
	}

	page, err := s.ListSessions(ctx, transport.ListOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !page.HasMore || len(page.Data) != 2 {
		t.Fatalf("first page: has_more=%v len=%d", page.HasMore, len(page.Data))
	}
	if page.FirstID != "sess_5" || page.LastID != "sess_4" {
		t.Errorf("newest first expected, got first=%s last=%s", page.FirstID, page.LastID)
	}
	if page.Data[0].Messages != nil {
		t.Error("listed sessions must not include messages")
	}

	next, _ := s.ListSessions(ctx, transport.ListOptions{Limit: 2, After: page.LastID})
	if next.FirstID != "sess_3" || next.LastID != "sess_2" || !next.HasMore {
		t.Errorf("second page = %+v", next)
	}

	asc, _ := s.ListSessions(ctx, transport.ListOptions{Order: "asc"})
	if asc.FirstID != "sess_1" || asc.HasMore || len(asc.Data) != 5 {
		t.Errorf("ascending list = first %s, %d items", asc.FirstID, len(asc.Data))
	}

	before, _ := s.ListSessions(ctx, transport.ListOptions{Before: "sess_3"})
	if len(before.Data) != 2 || before.FirstID != "sess_5" {
		t.Errorf("before page = %+v", before)
	}

	unknown, _ := s.ListSessions(ctx, transport.ListOptions{After: "sess_nope"})
	if len(unknown.Data) != 0 || unknown.Data == nil {
		t.Errorf("unknown cursor should yield an empty, non-nil page")
	}
}

func TestHealthCheck(t *testing.T) {
	s := New(0)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
