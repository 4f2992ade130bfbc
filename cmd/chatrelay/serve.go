package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/chatrelay/pkg/chat"
	"github.com/rhuss/chatrelay/pkg/config"
	"github.com/rhuss/chatrelay/pkg/mcpserver"
	"github.com/rhuss/chatrelay/pkg/observability"
	"github.com/rhuss/chatrelay/pkg/relay"
	"github.com/rhuss/chatrelay/pkg/transport"
	transporthttp "github.com/rhuss/chatrelay/pkg/transport/http"
	"github.com/rhuss/chatrelay/pkg/web"
)

// storeHealthInterval is how often the session store is probed while serving.
const storeHealthInterval = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay",
		Long: `Run the HTTP relay: the chat and sessions API under /api, health
probes, Prometheus metrics, the browser client and the optional MCP tool.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				opts.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts.cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}

// serve runs the relay until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	client := newRelayClient(ctx, cfg)
	if client != nil {
		defer client.Close()
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	srv := newServer(cfg, client, store)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if store != nil {
		g.Go(func() error {
			watchStore(gctx, store, storeHealthInterval)
			return nil
		})
	}
	return g.Wait()
}

// newServer assembles the HTTP server with every enabled surface. The web
// client is mounted last since it matches every remaining path.
func newServer(cfg *config.Config, client *relay.Client, store transport.SessionStore) *transporthttp.Server {
	svc := chat.New(client, store, chat.Config{
		Validation: cfg.Validation(),
		Logger:     slog.Default(),
	})

	httpMW := []mux.MiddlewareFunc{observability.MetricsMiddleware}
	if authMW := newAuthMiddleware(cfg); authMW != nil {
		httpMW = append(httpMW, authMW)
	}

	srv := transporthttp.NewServer(svc, store,
		transporthttp.WithAddr(net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(slog.Default()),
		transporthttp.WithHTTPMiddleware(httpMW...),
	)
	adapter := srv.Adapter()

	if m := cfg.Observability.Metrics; m.Enabled {
		adapter.Handle(m.Path, promhttp.Handler())
		slog.Info("metrics enabled", "path", m.Path)
	}

	if cfg.MCP.Enabled {
		var completer mcpserver.Completer
		if client != nil {
			completer = client
		}
		adapter.Mount(cfg.MCP.Path, mcpserver.Handler(mcpserver.New(completer, version, cfg.Validation())))
		slog.Info("mcp tool enabled", "path", cfg.MCP.Path)
	}

	if cfg.Server.WebUI {
		adapter.Mount("/", web.Handler())
	}

	return srv
}

// watchStore logs session store health changes until ctx is done.
func watchStore(ctx context.Context, store transport.SessionStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := store.HealthCheck(ctx)
		if ctx.Err() != nil {
			return
		}
		switch {
		case err != nil && healthy:
			slog.Warn("session store unhealthy", "error", err)
		case err == nil && !healthy:
			slog.Info("session store recovered")
		}
		healthy = err == nil
	}
}
