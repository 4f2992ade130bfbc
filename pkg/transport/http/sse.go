package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/transport"
)

// writerState tracks the state of an SSE ResponseWriter.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, no writes yet
	writerStreaming                    // WriteEvent has been called at least once
	writerCompleted                    // Terminal event sent or WriteResponse called
)

// sseResponseWriter implements transport.ResponseWriter for HTTP. Fragment
// events are sent as Server-Sent Events; WriteResponse sends JSON.
type sseResponseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu       sync.Mutex
	state    writerState
	streamed bool
}

var _ transport.ResponseWriter = (*sseResponseWriter)(nil)

func newSSEResponseWriter(w http.ResponseWriter) *sseResponseWriter {
	return &sseResponseWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// formatEvent renders one stream event in wire format. Fragments carry no
// event name; each line of the text becomes its own data line so that
// multi-line fragments survive SSE framing:
//
//	data: {line}\n
//	\n
//
// Terminal events are named:
//
//	event: done\ndata: end\n\n
//	event: error\ndata: {message}\n\n
func formatEvent(ev api.StreamEvent) string {
	var b strings.Builder
	if ev.Type != api.EventFragment {
		b.WriteString("event: ")
		b.WriteString(string(ev.Type))
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// WriteEvent sends a single SSE event and flushes it.
func (s *sseResponseWriter) WriteEvent(ctx context.Context, event api.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write event: writer is completed")
	}

	if s.state == writerIdle {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.Header().Set("X-Accel-Buffering", "no")
		s.state = writerStreaming
		s.streamed = true
	}

	if _, err := fmt.Fprint(s.w, formatEvent(event)); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	if event.IsTerminal() {
		s.state = writerCompleted
	}
	return nil
}

// WriteResponse sends a complete non-streaming JSON response.
// This is mutually exclusive with WriteEvent.
func (s *sseResponseWriter) WriteResponse(ctx context.Context, resp *api.ChatResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerStreaming {
		return errors.New("cannot write response: streaming has already started")
	}
	if s.state == writerCompleted {
		return errors.New("cannot write response: writer is completed")
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted

	if err := json.NewEncoder(s.w).Encode(resp); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

// Flush ensures buffered data is sent to the client.
func (s *sseResponseWriter) Flush() error {
	return s.rc.Flush()
}

// hasStartedStreaming returns true if at least one SSE event has been written.
func (s *sseResponseWriter) hasStartedStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamed
}

// isCompleted reports whether a terminal event or response was written.
func (s *sseResponseWriter) isCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == writerCompleted
}
