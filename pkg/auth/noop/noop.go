// Package noop provides an authenticator that accepts all requests.
// Used for single-user deployments and as a default voter in the auth chain.
package noop

import (
	"context"
	"net"
	"net/http"

	"github.com/rhuss/chatrelay/pkg/auth"
)

// Authenticator always returns Yes with an anonymous identity. The subject
// is derived from the client host so rate limits apply per client.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	return auth.Accept(&auth.Identity{
		Subject:     "anonymous:" + clientHost(r),
		ServiceTier: "default",
		Anonymous:   true,
	})
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
