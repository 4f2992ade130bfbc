package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/chatrelay/pkg/auth"
	"github.com/rhuss/chatrelay/pkg/auth/apikey"
	authjwt "github.com/rhuss/chatrelay/pkg/auth/jwt"
	"github.com/rhuss/chatrelay/pkg/auth/noop"
	"github.com/rhuss/chatrelay/pkg/config"
	"github.com/rhuss/chatrelay/pkg/provider"
	"github.com/rhuss/chatrelay/pkg/provider/bedrock"
	"github.com/rhuss/chatrelay/pkg/provider/openaicompat"
	"github.com/rhuss/chatrelay/pkg/provider/sagemaker"
	"github.com/rhuss/chatrelay/pkg/relay"
	"github.com/rhuss/chatrelay/pkg/storage/memory"
	"github.com/rhuss/chatrelay/pkg/storage/postgres"
	"github.com/rhuss/chatrelay/pkg/transport"
)

// newInvoker creates the upstream invoker selected by upstream.provider.
func newInvoker(ctx context.Context, cfg *config.Config) (provider.Invoker, error) {
	up := cfg.Upstream
	switch up.Provider {
	case config.ProviderBedrock:
		bc := bedrock.Config{Endpoint: up.Endpoint}
		bc.Region, bc.Profile, bc.Timeout = up.Region, up.AWS.Profile, up.Timeout
		bc.AccessKeyID, bc.SecretAccessKey, bc.SessionToken = up.AWS.AccessKeyID, up.AWS.SecretAccessKey, up.AWS.SessionToken
		return bedrock.New(ctx, bc)
	case config.ProviderSageMaker:
		sc := sagemaker.Config{EndpointName: up.EndpointName, Endpoint: up.Endpoint}
		sc.Region, sc.Profile, sc.Timeout = up.Region, up.AWS.Profile, up.Timeout
		sc.AccessKeyID, sc.SecretAccessKey, sc.SessionToken = up.AWS.AccessKeyID, up.AWS.SecretAccessKey, up.AWS.SessionToken
		return sagemaker.New(ctx, sc)
	case config.ProviderOpenAI:
		return openaicompat.NewClient(up.BaseURL, up.APIKey, up.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown upstream provider %q", up.Provider)
	}
}

// newRelayClient connects to the configured upstream. A failed connection is
// logged and yields a nil client; the server keeps serving and reports
// "Error: client not initialized" for chat requests.
func newRelayClient(ctx context.Context, cfg *config.Config) *relay.Client {
	inv, err := newInvoker(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to upstream", "provider", cfg.Upstream.Provider, "error", err)
		return nil
	}

	rc := cfg.RelayClientConfig()
	rc.Logger = slog.Default()
	client, err := relay.New(inv, rc)
	if err != nil {
		_ = inv.Close()
		slog.Error("failed to create relay client", "error", err)
		return nil
	}
	slog.Info("upstream client ready", "provider", client.Provider(), "model", client.ModelID())
	return client
}

// newStore creates the session store. storage.type "none" returns nil,
// which disables the sessions API.
func newStore(ctx context.Context, cfg *config.Config) (transport.SessionStore, error) {
	switch cfg.Storage.Type {
	case "none":
		slog.Info("storage disabled")
		return nil, nil
	case "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return memory.New(cfg.Storage.MaxSize), nil
	case "postgres":
		pg := cfg.Storage.Postgres
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            pg.DSN,
			MaxConns:       int32(pg.MaxConns),
			MigrateOnStart: pg.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", pg.MaxConns)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// newAuthMiddleware builds the authentication and rate limiting middleware.
// It returns nil when neither is configured.
func newAuthMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	a := cfg.Auth

	chain := &auth.Chain{}
	switch a.Type {
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(a.APIKeys))
		for _, k := range a.APIKeys {
			tier := k.ServiceTier
			if tier == "" {
				tier = "default"
			}
			entries = append(entries, apikey.RawKeyEntry{
				Key:      k.Key,
				Identity: auth.Identity{Subject: k.Subject, ServiceTier: tier},
			})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(entries)}
	case "jwt":
		chain.Authenticators = []auth.Authenticator{authjwt.New(authjwt.Config{
			Issuer:      a.JWT.Issuer,
			Audience:    a.JWT.Audience,
			JWKSURL:     a.JWT.JWKSURL,
			UserClaim:   a.JWT.UserClaim,
			ScopesClaim: a.JWT.ScopesClaim,
			CacheTTL:    a.JWT.CacheTTL,
		})}
	default:
		if !a.RateLimit.Enabled {
			return nil
		}
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{}}
	}

	var limiter auth.RateLimiter
	if a.RateLimit.Enabled {
		limiter = auth.NewInProcessLimiter(a.RateLimit.Tiers, a.RateLimit.Default)
	}

	bypass := append([]string(nil), auth.DefaultBypassEndpoints...)
	if m := cfg.Observability.Metrics; m.Enabled && m.Path != "/metrics" {
		bypass = append(bypass, m.Path)
	}
	if cfg.Server.WebUI {
		bypass = append(bypass, auth.WebUIEndpoints...)
	}

	slog.Info("authentication enabled", "type", a.Type, "rate_limit", a.RateLimit.Enabled)
	return auth.Middleware(chain, limiter, bypass)
}
