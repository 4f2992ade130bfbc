// Package providertest provides scripted provider.Invoker implementations
// and a deterministic OpenAI-compatible HTTP backend for tests and local
// development.
package providertest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rhuss/chatrelay/pkg/provider"
)

// Invoker is a scripted provider.Invoker. Unset funcs return an error.
type Invoker struct {
	NameValue  string
	InvokeFunc func(ctx context.Context, req *provider.Request) ([]byte, error)
	StreamFunc func(ctx context.Context, req *provider.Request) (provider.EventStream, error)

	mu       sync.Mutex
	requests []*provider.Request
	closed   bool
}

var _ provider.Invoker = (*Invoker)(nil)

// Name returns NameValue, or "fake".
func (f *Invoker) Name() string {
	if f.NameValue == "" {
		return "fake"
	}
	return f.NameValue
}

// Invoke records req and delegates to InvokeFunc.
func (f *Invoker) Invoke(ctx context.Context, req *provider.Request) ([]byte, error) {
	f.record(req)
	if f.InvokeFunc == nil {
		return nil, errors.New("providertest: InvokeFunc not set")
	}
	return f.InvokeFunc(ctx, req)
}

// InvokeStream records req and delegates to StreamFunc.
func (f *Invoker) InvokeStream(ctx context.Context, req *provider.Request) (provider.EventStream, error) {
	f.record(req)
	if f.StreamFunc == nil {
		return nil, errors.New("providertest: StreamFunc not set")
	}
	return f.StreamFunc(ctx, req)
}

// Close marks the invoker closed.
func (f *Invoker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Requests returns a copy of every request received so far.
func (f *Invoker) Requests() []*provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*provider.Request(nil), f.requests...)
}

// LastBody decodes the body of the most recent request into a map.
func (f *Invoker) LastBody() map[string]any {
	reqs := f.Requests()
	if len(reqs) == 0 {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(reqs[len(reqs)-1].Body, &m)
	return m
}

func (f *Invoker) record(req *provider.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

// Script is a provider.EventStream that replays fixed events. After the
// events it returns Err when set, blocks until cancellation when Block is
// set, and io.EOF otherwise.
type Script struct {
	Events []provider.RawEvent
	Err    error
	Block  bool

	mu     sync.Mutex
	pos    int
	closed atomic.Bool
}

var _ provider.EventStream = (*Script)(nil)

// NewScript returns a Script replaying events.
func NewScript(events ...provider.RawEvent) *Script {
	return &Script{Events: events}
}

// Recv returns the next scripted event.
func (s *Script) Recv(ctx context.Context) (provider.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return provider.RawEvent{}, err
	}
	s.mu.Lock()
	if s.pos < len(s.Events) {
		ev := s.Events[s.pos]
		s.pos++
		s.mu.Unlock()
		return ev, nil
	}
	s.mu.Unlock()

	switch {
	case s.Err != nil:
		return provider.RawEvent{}, s.Err
	case s.Block:
		<-ctx.Done()
		return provider.RawEvent{}, ctx.Err()
	}
	return provider.RawEvent{}, io.EOF
}

// Close marks the script closed.
func (s *Script) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (s *Script) Closed() bool {
	return s.closed.Load()
}

// Served reports how many events were delivered.
func (s *Script) Served() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// DeltaChunk returns a chunk event carrying a streaming choices delta.
func DeltaChunk(text string) provider.RawEvent {
	return provider.ChunkEvent(mustJSON(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": text}}},
	}))
}

// MessagePayload returns a terminal Chat Completions payload.
func MessagePayload(text string) []byte {
	return mustJSON(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": text}}},
	})
}

// StreamOf returns a StreamFunc that replays the given events.
func StreamOf(script *Script) func(context.Context, *provider.Request) (provider.EventStream, error) {
	return func(context.Context, *provider.Request) (provider.EventStream, error) {
		return script, nil
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("providertest: " + err.Error())
	}
	return b
}
