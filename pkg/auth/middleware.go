package auth

import (
	"log/slog"
	"net/http"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/debug"
	"github.com/rhuss/chatrelay/pkg/observability"
	"github.com/rhuss/chatrelay/pkg/storage"
	"github.com/rhuss/chatrelay/pkg/transport"
)

// Middleware authenticates every request whose path is not in bypass.
// Rejected requests get a 401, requests over the limiter's budget a 429.
// Accepted requests carry the identity in their context and, unless it is
// anonymous, its subject as the session owner. limiter may be nil.
func Middleware(authn Authenticator, limiter RateLimiter, bypass []string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			id, apiErr := admit(authn, limiter, r)
			if apiErr != nil {
				transport.WriteAPIError(w, apiErr)
				return
			}

			ctx := WithIdentity(r.Context(), id)
			if owner := id.Owner(); owner != "" {
				ctx = storage.SetOwner(ctx, owner)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// admit authenticates r and charges the identity against the limiter.
func admit(authn Authenticator, limiter RateLimiter, r *http.Request) (*Identity, *api.APIError) {
	res := authn.Authenticate(r.Context(), r)
	switch {
	case res.Decision != Yes || res.Identity == nil:
		slog.Warn("authentication failed", "path", r.URL.Path, "remote_addr", r.RemoteAddr, "error", res.Err)
		return nil, api.NewUnauthorizedError("authentication required")
	case res.Identity.Subject == "":
		slog.Error("authenticator returned an identity without subject")
		return nil, api.NewServerError("internal authentication error")
	}

	id := res.Identity
	debug.Log("auth", "authenticated", "subject", id.Subject, "path", r.URL.Path)

	if limiter != nil {
		if err := limiter.Allow(r.Context(), id); err != nil {
			slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.ServiceTier)
			observability.RateLimitRejectedTotal.WithLabelValues(tierLabel(id)).Inc()
			return nil, api.NewTooManyRequestsError("rate limit exceeded")
		}
	}
	return id, nil
}

func tierLabel(id *Identity) string {
	if id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// WebUIEndpoints lists the static web client assets. They carry no data and
// are added to the bypass list when the web UI is served.
var WebUIEndpoints = []string{"/", "/index.html", "/app.js"}
