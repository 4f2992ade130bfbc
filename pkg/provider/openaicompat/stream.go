package openaicompat

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/rhuss/chatrelay/pkg/provider"
)

// maxLineSize bounds a single SSE line.
const maxLineSize = 1 << 20

type sseFrame struct {
	data []byte
	err  error
}

// sseStream reads Chat Completions SSE lines from an HTTP body:
//
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//
// Lines that don't start with "data:" (empty lines, comments, event names)
// are ignored. A reader goroutine feeds frames so Recv can honor its own
// context.
type sseStream struct {
	body      io.ReadCloser
	frames    chan sseFrame
	done      chan struct{}
	closeOnce sync.Once
}

func newSSEStream(body io.ReadCloser) *sseStream {
	s := &sseStream{
		body:   body,
		frames: make(chan sseFrame, 16),
		done:   make(chan struct{}),
	}
	go s.read()
	return s
}

func (s *sseStream) read() {
	defer close(s.frames)

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimPrefix(data, " ")
		if data == "[DONE]" {
			return
		}
		if data == "" {
			continue
		}
		if !s.emit(sseFrame{data: []byte(data)}) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.emit(sseFrame{err: err})
	}
}

func (s *sseStream) emit(f sseFrame) bool {
	select {
	case s.frames <- f:
		return true
	case <-s.done:
		return false
	}
}

// Recv returns the next data line as a Chunk event.
func (s *sseStream) Recv(ctx context.Context) (provider.RawEvent, error) {
	select {
	case <-ctx.Done():
		return provider.RawEvent{}, ctx.Err()
	case f, ok := <-s.frames:
		if !ok {
			return provider.RawEvent{}, io.EOF
		}
		if f.err != nil {
			return provider.RawEvent{}, &provider.UpstreamError{
				Provider: ProviderName,
				Op:       "stream",
				Message:  "SSE stream read error: " + f.err.Error(),
				Err:      f.err,
			}
		}
		return provider.ChunkEvent(f.data), nil
	}
}

// Close stops the reader and closes the body.
func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.body.Close()
	})
	return err
}
