package provider

import (
	"context"
)

// DefaultModelID is the model identifier used when none is configured.
const DefaultModelID = "openai.gpt-oss-20b-1:0"

// Invoker abstracts a remote inference endpoint. Implementations must be
// safe for concurrent use by multiple goroutines.
type Invoker interface {
	// Name returns the invoker identifier (e.g., "bedrock", "sagemaker").
	Name() string

	// Invoke performs a blocking invocation and returns the raw bytes of
	// the single terminal payload.
	Invoke(ctx context.Context, req *Request) ([]byte, error)

	// InvokeStream opens a streaming invocation. An error means the stream
	// could not be opened; errors after that surface from EventStream.Recv.
	InvokeStream(ctx context.Context, req *Request) (EventStream, error)

	// Close releases invoker resources (HTTP clients, connections).
	Close() error
}

// EventStream is an open streaming invocation. The owner must call Close
// exactly once, whether or not the stream was drained.
type EventStream interface {
	// Recv blocks until the next event arrives. It returns io.EOF once the
	// stream is exhausted and ctx.Err() when ctx is cancelled first.
	Recv(ctx context.Context) (RawEvent, error)

	// Close releases the upstream connection.
	Close() error
}
