package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rhuss/chatrelay/pkg/debug"
)

// maxJWKSSize bounds the JWKS document read from the endpoint.
const maxJWKSSize = 1 << 20

// keySet holds the RSA verification keys of a JWKS endpoint. Lookups of an
// unknown kid or after the TTL refetch the document; concurrent refetches
// share one request.
type keySet struct {
	url    string
	ttl    time.Duration
	client *http.Client
	now    func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time

	group singleflight.Group
}

func newKeySet(url string, ttl time.Duration, client *http.Client) *keySet {
	return &keySet{url: url, ttl: ttl, client: client, now: time.Now}
}

// key returns the verification key for kid.
func (s *keySet) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := s.cached(kid); ok {
		return k, nil
	}

	// The shared fetch must not be cancelled by the caller that started it.
	_, err, _ := s.group.Do("refresh", func() (any, error) {
		return nil, s.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}

	if k, ok := s.cached(kid); ok {
		return k, nil
	}
	return nil, fmt.Errorf("key %q not found in JWKS", kid)
}

func (s *keySet) cached(kid string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keys == nil || s.now().Sub(s.fetchedAt) >= s.ttl {
		return nil, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

// refresh replaces the cached keys with the current JWKS document.
func (s *keySet) refresh(ctx context.Context) error {
	doc, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		pub, err := jwk.rsaPublicKey()
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", jwk.Kid, "error", err)
			continue
		}
		keys[jwk.Kid] = pub
	}

	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = s.now()
	s.mu.Unlock()

	debug.Log("auth", "JWKS refreshed", "keys", len(keys), "url", s.url)
	return nil
}

func (s *keySet) fetch(ctx context.Context) (*jwksDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSSize)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing JWKS: %w", err)
	}
	return &doc, nil
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

// jwk is one JSON Web Key. Only RSA signing keys are used.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := decodeBigInt(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	e, err := decodeBigInt(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	if !e.IsInt64() || e.Int64() > 1<<31-1 {
		return nil, errors.New("RSA exponent too large")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func decodeBigInt(s string) (*big.Int, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
