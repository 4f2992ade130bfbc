// Package memory provides an in-memory implementation of
// transport.SessionStore for tests and single-instance deployments.
// Sessions are lost when the process restarts. Optional LRU eviction
// limits memory usage.
package memory

import (
	"container/list"
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/storage"
	"github.com/rhuss/chatrelay/pkg/transport"
)

type entry struct {
	session *api.Session
	owner   string
	lruElem *list.Element
}

// Store is an in-memory SessionStore with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
	now     func() time.Time
}

var _ transport.SessionStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. Otherwise the least recently used session is evicted
// when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// CreateSession stores a copy of sess.
func (s *Store) CreateSession(ctx context.Context, sess *api.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[sess.ID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	stored := clone(sess, true)
	now := s.now().Unix()
	if stored.CreatedAt == 0 {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt == 0 {
		stored.UpdatedAt = stored.CreatedAt
	}

	s.entries[sess.ID] = &entry{
		session: stored,
		owner:   storage.GetOwner(ctx),
		lruElem: s.lruList.PushFront(sess.ID),
	}
	return nil
}

// GetSession returns a copy of the session including its messages.
func (s *Store) GetSession(ctx context.Context, id string) (*api.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	s.lruList.MoveToFront(e.lruElem)
	return clone(e.session, true), nil
}

// AppendMessages adds msgs to the session history.
func (s *Store) AppendMessages(ctx context.Context, id string, msgs []api.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	e.session.Messages = append(e.session.Messages, msgs...)
	e.session.UpdatedAt = s.now().Unix()
	s.lruList.MoveToFront(e.lruElem)
	return nil
}

// DeleteSession removes the session.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
	return nil
}

// ListSessions returns a page of sessions visible to the caller, ordered
// by last update, without their messages.
func (s *Store) ListSessions(ctx context.Context, opts transport.ListOptions) (*api.SessionList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts = opts.Normalize()

	var matches []*api.Session
	for _, e := range s.entries {
		if storage.Visible(ctx, e.owner) {
			matches = append(matches, e.session)
		}
	}

	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].UpdatedAt != matches[j].UpdatedAt {
			if asc {
				return matches[i].UpdatedAt < matches[j].UpdatedAt
			}
			return matches[i].UpdatedAt > matches[j].UpdatedAt
		}
		if asc {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].ID > matches[j].ID
	})

	if opts.After != "" {
		idx := slices.IndexFunc(matches, func(m *api.Session) bool { return m.ID == opts.After })
		if idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	} else if opts.Before != "" {
		idx := slices.IndexFunc(matches, func(m *api.Session) bool { return m.ID == opts.Before })
		if idx > 0 {
			matches = matches[:idx]
		} else {
			matches = nil
		}
	}

	hasMore := len(matches) > opts.Limit
	if hasMore {
		matches = matches[:opts.Limit]
	}

	result := &api.SessionList{
		Object:  "list",
		Data:    make([]*api.Session, 0, len(matches)),
		HasMore: hasMore,
	}
	for _, m := range matches {
		result.Data = append(result.Data, clone(m, false))
	}
	if len(result.Data) > 0 {
		result.FirstID = result.Data[0].ID
		result.LastID = result.Data[len(result.Data)-1].ID
	}
	return result, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// lookup must be called with s.mu held.
func (s *Store) lookup(ctx context.Context, id string) (*entry, error) {
	e, ok := s.entries[id]
	if !ok || !storage.Visible(ctx, e.owner) {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}

func clone(sess *api.Session, withMessages bool) *api.Session {
	out := *sess
	out.Object = "session"
	if withMessages {
		out.Messages = slices.Clone(sess.Messages)
	} else {
		out.Messages = nil
	}
	return &out
}
