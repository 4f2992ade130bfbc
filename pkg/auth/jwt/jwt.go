// Package jwt provides a JWT/OIDC authenticator that validates
// bearer tokens against a JWKS (JSON Web Key Set) endpoint.
//
// It supports RSA-signed JWTs with configurable issuer, audience,
// and custom claim extraction for subject, service tier and scopes.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/chatrelay/pkg/auth"
	"github.com/rhuss/chatrelay/pkg/debug"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer is the expected JWT issuer (iss claim). If empty, issuer is not validated.
	Issuer string

	// Audience is the expected JWT audience (aud claim). If empty, audience is not validated.
	Audience string

	// JWKSURL is the URL to fetch the JSON Web Key Set for signature verification.
	JWKSURL string

	// UserClaim is the JWT claim used as the identity subject. Default: "sub".
	UserClaim string

	// TierClaim is the JWT claim used as the service tier for rate limiting.
	// Default: "tier". Tokens without it get the "default" tier.
	TierClaim string

	// ScopesClaim is the JWT claim used for authorization scopes. Default: "scope".
	// The value can be a space-separated string or a JSON array.
	ScopesClaim string

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// If nil, http.DefaultClient is used.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 1 * time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Authenticator validates JWT bearer tokens against a JWKS endpoint.
type Authenticator struct {
	config Config
	keys   *keySet
	parser *jwtlib.Parser
}

// New creates a JWT authenticator with the given configuration.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()

	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		config: cfg,
		keys:   newKeySet(cfg.JWKSURL, cfg.CacheTTL, cfg.HTTPClient),
		parser: jwtlib.NewParser(opts...),
	}
}

// Authenticate validates the bearer token of r.
//
// It abstains without a Bearer Authorization header, votes No for a token
// that fails validation and Yes with the identity taken from its claims.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return auth.Pass()
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return auth.Reject(errors.New("empty bearer token"))
	}

	claims := jwtlib.MapClaims{}
	token, err := a.parser.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return a.keys.key(ctx, kid)
	})
	if err != nil {
		debug.Log("auth", "JWT validation failed", "error", err)
		return auth.Reject(fmt.Errorf("invalid JWT: %w", err))
	}
	if !token.Valid {
		return auth.Reject(errors.New("invalid JWT"))
	}

	identity, err := a.identity(claims)
	if err != nil {
		return auth.Reject(err)
	}
	return auth.Accept(identity)
}

func (a *Authenticator) identity(claims jwtlib.MapClaims) (*auth.Identity, error) {
	subject := stringClaim(claims, a.config.UserClaim)
	if subject == "" {
		return nil, fmt.Errorf("JWT missing %q claim", a.config.UserClaim)
	}

	id := &auth.Identity{
		Subject:     subject,
		ServiceTier: stringClaim(claims, a.config.TierClaim),
		Scopes:      scopesClaim(claims, a.config.ScopesClaim),
		Metadata:    map[string]string{},
	}
	if iss := stringClaim(claims, "iss"); iss != "" {
		id.Metadata["issuer"] = iss
	}
	return id, nil
}

func stringClaim(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// scopesClaim reads a space-separated string or a JSON array of strings.
func scopesClaim(claims jwtlib.MapClaims, key string) []string {
	var scopes []string
	switch v := claims[key].(type) {
	case string:
		scopes = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				scopes = append(scopes, s)
			}
		}
	}
	if len(scopes) == 0 {
		return nil
	}
	return scopes
}
