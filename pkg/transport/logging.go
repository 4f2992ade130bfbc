package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/chatrelay/pkg/api"
)

// Logging returns middleware that emits one structured log entry per chat
// request with the request ID, session, message count, stream flag and
// duration. HTTP status codes are logged by the adapter.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
			start := time.Now()

			err := next.Chat(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("session_id", req.SessionID),
				slog.Int("messages", len(req.Messages)),
				slog.Bool("stream", req.Stream),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "chat failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "chat completed", attrs...)
			}

			return err
		})
	}
}
