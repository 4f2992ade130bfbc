package auth

import (
	"context"
	"errors"
	"net/http"
)

// Decision is an authenticator's vote on a request.
type Decision int

const (
	// Yes accepts the credentials and ends the chain.
	Yes Decision = iota
	// No rejects the credentials and ends the chain.
	No
	// Abstain leaves the request to the next authenticator.
	Abstain
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Abstain:
		return "abstain"
	}
	return "unknown"
}

// Result is the outcome of one authentication attempt. Identity is set for
// Yes, Err for No.
type Result struct {
	Decision Decision
	Identity *Identity
	Err      error
}

// Accept returns a Yes result for id.
func Accept(id *Identity) Result { return Result{Decision: Yes, Identity: id} }

// Reject returns a No result carrying err.
func Reject(err error) Result { return Result{Decision: No, Err: err} }

// Pass returns an Abstain result.
func Pass() Result { return Result{Decision: Abstain} }

// Identity is an authenticated caller.
type Identity struct {
	Subject     string
	ServiceTier string // rate limit tier
	Scopes      []string
	Metadata    map[string]string // provider specific, e.g. the JWT issuer

	// Anonymous marks identities that were not derived from credentials.
	Anonymous bool
}

// Owner returns the session owner for the identity. Anonymous and nil
// identities have no owner and therefore see every session.
func (id *Identity) Owner() string {
	if id == nil || id.Anonymous {
		return ""
	}
	return id.Subject
}

// anonymous is the identity handed out when a chain admits a request
// without credentials.
func anonymous() *Identity {
	return &Identity{Subject: "anonymous", ServiceTier: "default", Anonymous: true}
}

// Authenticator votes on the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain asks its authenticators in order and returns the first vote that
// is not Abstain. When every authenticator abstains, the request is either
// admitted as anonymous or rejected, depending on AllowAnonymous.
type Chain struct {
	Authenticators []Authenticator
	AllowAnonymous bool
}

// Authenticate implements Authenticator.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.AllowAnonymous {
		return Accept(anonymous())
	}
	return Reject(ErrUnauthenticated)
}
