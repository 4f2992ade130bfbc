// Command mock-upstream runs a deterministic OpenAI-compatible Chat
// Completions server for local development against the openai upstream
// provider. It echoes the last user message as "Echo: <text>".
//
// Configuration:
//
//	MOCK_PORT          - Listen port (default: 9090)
//	MOCK_REFUSE_STREAM - Reject streaming requests with HTTP 400 (default: false)
//	MOCK_CHUNK_SIZE    - Runes per streamed delta (default: 4)
//	MOCK_REASONING     - Reasoning text prepended as a <reasoning> block
//	MOCK_MALFORMED     - Insert one undecodable frame per stream (default: false)
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rhuss/chatrelay/pkg/provider/providertest"
)

func main() {
	port := envOrDefault("MOCK_PORT", "9090")
	opts := providertest.ServerOptions{
		RefuseStream:   envBool("MOCK_REFUSE_STREAM"),
		Reasoning:      os.Getenv("MOCK_REASONING"),
		MalformedFrame: envBool("MOCK_MALFORMED"),
	}
	if v := os.Getenv("MOCK_CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Error("invalid MOCK_CHUNK_SIZE", "value", v, "error", err)
			os.Exit(1)
		}
		opts.ChunkSize = n
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           providertest.NewServer(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock upstream starting",
			"port", port,
			"refuse_stream", opts.RefuseStream,
			"malformed", opts.MalformedFrame,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock upstream failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock upstream shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
