package relay

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/debug"
	"github.com/rhuss/chatrelay/pkg/observability"
	"github.com/rhuss/chatrelay/pkg/provider"
)

// StreamState is the lifecycle position of a Stream.
type StreamState int

const (
	StateOpening     StreamState = iota // upstream not opened yet
	StateStreaming                      // relaying upstream frames
	StateFallingBack                    // replaying a synchronous result
	StateDone                           // exhausted normally
	StateErrored                        // ended by an error, see Err
)

func (s StreamState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateFallingBack:
		return "falling_back"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// ErrStreamClosed is reported by Err when Close ends a stream early.
var ErrStreamClosed = errors.New("relay: stream closed")

// Stream is a lazy, single-use sequence of sanitized text fragments.
//
// The upstream connection is opened on the first call to Next. When the
// open fails, the synchronous result is fetched instead and replayed in
// fixed-size fragments. Errors after a successful open end the sequence
// and are reported by Err; they are never retried.
//
// A Stream is not safe for concurrent use. Cancel the context passed to
// Client.Stream to interrupt a blocked Next.
type Stream struct {
	ctx       context.Context
	client    *Client
	conv      api.Conversation
	maxTokens int

	state       StreamState
	upstream    provider.EventStream
	pending     []string
	fragment    string
	source      string
	err         error
	fallbackErr error
	frames      int
}

// Stream returns a fragment stream for conv. No I/O happens until Next.
func (c *Client) Stream(ctx context.Context, conv api.Conversation, maxTokens int) *Stream {
	return &Stream{
		ctx:       ctx,
		client:    c,
		conv:      conv,
		maxTokens: maxTokens,
		state:     StateOpening,
	}
}

// Next advances to the next fragment. It returns false once the stream is
// exhausted, failed or was closed.
func (s *Stream) Next() bool {
	for {
		if len(s.pending) > 0 {
			s.fragment = s.pending[0]
			s.pending = s.pending[1:]
			observability.FragmentsTotal.WithLabelValues(s.client.invoker.Name(), s.source).Inc()
			return true
		}
		s.fragment = ""

		switch s.state {
		case StateOpening:
			s.open()
		case StateStreaming:
			s.readFrame()
		case StateFallingBack:
			s.state = StateDone
			return false
		default:
			return false
		}
	}
}

// Fragment returns the fragment produced by the last successful Next.
func (s *Stream) Fragment() string { return s.fragment }

// Err returns the error that ended the stream, or nil.
func (s *Stream) Err() error { return s.err }

// State returns the current lifecycle state.
func (s *Stream) State() StreamState { return s.state }

// FellBack reports whether the fragments come from a synchronous replay.
func (s *Stream) FellBack() bool { return s.source == "fallback" }

// FallbackErr returns the synchronous error whose "Error: ..." text was
// replayed by a fallback, or nil.
func (s *Stream) FallbackErr() error { return s.fallbackErr }

// Frames returns the number of upstream payload frames received.
func (s *Stream) Frames() int { return s.frames }

// Close releases the upstream connection. Closing a stream that has not
// finished marks it errored with ErrStreamClosed.
func (s *Stream) Close() error {
	s.pending = nil
	s.fragment = ""
	err := s.closeUpstream()
	if s.state != StateDone && s.state != StateErrored {
		s.state = StateErrored
		s.err = ErrStreamClosed
	}
	return err
}

// Fragments adapts the stream to a range-over-func iterator. Breaking out
// of the loop closes the stream.
func (s *Stream) Fragments() iter.Seq[string] {
	return func(yield func(string) bool) {
		for s.Next() {
			if !yield(s.Fragment()) {
				s.Close()
				return
			}
		}
	}
}

// Collect drains s and returns every fragment plus the terminal error.
func Collect(s *Stream) ([]string, error) {
	defer s.Close()
	var out []string
	for frag := range s.Fragments() {
		out = append(out, frag)
	}
	return out, s.Err()
}

func (s *Stream) open() {
	c := s.client
	req, err := c.buildRequest(s.conv, s.maxTokens, true)
	if err != nil {
		s.fail(err)
		return
	}

	start := time.Now()
	es, err := c.invoker.InvokeStream(s.ctx, req)
	c.observe("stream", start, err)
	if err == nil {
		s.upstream = es
		s.source = "stream"
		s.state = StateStreaming
		return
	}

	if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.fail(ctxErr)
		return
	}

	c.cfg.Logger.Warn("stream open failed, falling back to single-shot completion",
		"provider", c.invoker.Name(),
		"model", c.cfg.ModelID,
		"error", err,
	)
	observability.StreamFallbacksTotal.WithLabelValues(c.invoker.Name()).Inc()

	s.state = StateFallingBack
	s.source = "fallback"
	text, syncErr := c.TryComplete(s.ctx, s.conv, s.maxTokens)
	if syncErr != nil {
		s.fallbackErr = syncErr
		text = ErrorText(syncErr)
	}
	s.pending = segment(text, c.cfg.FallbackChunkSize)
}

// readFrame consumes one upstream event and queues its fragments.
func (s *Stream) readFrame() {
	ev, err := s.upstream.Recv(s.ctx)
	if err != nil {
		s.closeUpstream()
		if errors.Is(err, io.EOF) {
			s.state = StateDone
			return
		}
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		s.fail(err)
		return
	}

	payload, ok := ev.Payload()
	if !ok {
		debug.Log("relay", "event without payload skipped")
		return
	}
	s.frames++

	if debug.TraceIsEnabled("upstream") {
		debug.Trace("upstream", "stream frame", "n", s.frames, "body", string(payload))
	}

	fragments, err := ExtractBytes(payload)
	if err != nil {
		observability.SkippedFramesTotal.WithLabelValues(s.client.invoker.Name()).Inc()
		debug.Log("relay", "undecodable frame skipped",
			"n", s.frames,
			"error", err,
			"data", debug.Truncate(string(payload), 200),
		)
		return
	}
	for _, f := range fragments {
		if cleaned := s.client.cleanFragment(f); cleaned != "" {
			s.pending = append(s.pending, cleaned)
		}
	}
}

func (s *Stream) fail(err error) {
	s.state = StateErrored
	s.err = err
}

func (s *Stream) closeUpstream() error {
	if s.upstream == nil {
		return nil
	}
	err := s.upstream.Close()
	s.upstream = nil
	return err
}

func (c *Client) cleanFragment(f string) string {
	if c.cfg.KeepFragmentWhitespace {
		return StripReasoning(f)
	}
	return Clean(f)
}

// segment splits text into pieces of at most size runes.
func segment(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	out := make([]string, 0, (len(runes)+size-1)/size)
	for len(runes) > 0 {
		n := min(size, len(runes))
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}
