// Package apikey provides an API key authenticator that validates
// bearer tokens against a static key store using SHA-256 hashing
// and constant-time comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/chatrelay/pkg/auth"
	"github.com/rhuss/chatrelay/pkg/debug"
)

// HeaderName is the alternative header for clients that cannot set
// Authorization (e.g. simple curl scripts behind a proxy).
const HeaderName = "X-API-Key"

type keyEntry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates API keys against a static key store.
type Authenticator struct {
	keys []keyEntry
}

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

// New creates an API key authenticator from a list of raw keys and identities.
// Keys are hashed immediately; plaintext keys are not stored. Entries with an
// empty key are skipped.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		a.keys = append(a.keys, keyEntry{
			hash:     sha256.Sum256([]byte(e.Key)),
			identity: e.Identity,
		})
	}
	return a
}

// Len returns the number of registered keys.
func (a *Authenticator) Len() int { return len(a.keys) }

// Authenticate extracts the key and validates it.
// Returns Yes if valid, No if a key is present but invalid,
// Abstain if the request carries no key.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	key, present := extractKey(r)
	if !present {
		return auth.Pass()
	}
	if key == "" {
		return auth.Reject(auth.ErrUnauthenticated)
	}

	h := sha256.Sum256([]byte(key))
	for _, entry := range a.keys {
		if subtle.ConstantTimeCompare(h[:], entry.hash[:]) == 1 {
			id := entry.identity
			debug.Log("auth", "api key accepted", "subject", id.Subject)
			return auth.Accept(&id)
		}
	}

	return auth.Reject(auth.ErrUnauthenticated)
}

// extractKey returns the bearer token or X-API-Key value. present is false
// when neither header carries a key-shaped credential. JWTs are left to the
// JWT authenticator.
func extractKey(r *http.Request) (key string, present bool) {
	if v, ok := r.Header[http.CanonicalHeaderKey(HeaderName)]; ok && len(v) > 0 {
		return strings.TrimSpace(v[0]), true
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") == 2 {
		return "", false
	}
	return token, true
}
