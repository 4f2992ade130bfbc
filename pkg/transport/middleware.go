package transport

import "context"

// Middleware decorates a ChatHandler.
type Middleware func(ChatHandler) ChatHandler

// Chain composes middlewares so that the first one runs outermost:
// Chain(a, b, c)(h) is a(b(c(h))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next ChatHandler) ChatHandler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type requestIDKey struct{}

// RequestIDFromContext returns the request ID set by the RequestID
// middleware, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID returns a copy of ctx carrying id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
