// Package transport defines the handler interfaces and middleware chain for
// the chatrelay HTTP/SSE transport layer.
//
// # Handler Interfaces
//
//   - ChatHandler relays one chat request, either as a complete JSON
//     response or as a stream of fragment events.
//   - SessionStore persists conversation history, available only when a
//     storage backend is configured.
//
// The ResponseWriter interface abstracts streaming and non-streaming output,
// allowing the handler to emit SSE events or a JSON body without knowing
// the underlying protocol.
//
// # Middleware
//
// The middleware chain wraps ChatHandler with panic recovery, request ID
// assignment (X-Request-ID) and structured logging via log/slog.
package transport
