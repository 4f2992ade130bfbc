package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rhuss/chatrelay/pkg/config"
	"github.com/rhuss/chatrelay/pkg/storage/memory"
)

func TestNewInvoker(t *testing.T) {
	cfg := config.Defaults()
	cfg.Upstream.Provider = config.ProviderOpenAI
	cfg.Upstream.BaseURL = "http://localhost:1"

	inv, err := newInvoker(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("newInvoker: %v", err)
	}
	defer inv.Close()
	if got := inv.Name(); got != "openai" {
		t.Errorf("Name() = %q, want openai", got)
	}

	cfg.Upstream.Provider = "carrier-pigeon"
	if _, err := newInvoker(context.Background(), &cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewInvokerAWS(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
	t.Setenv("AWS_PROFILE", "")

	for _, p := range []string{config.ProviderBedrock, config.ProviderSageMaker} {
		t.Run(p, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Upstream.Provider = p
			cfg.Upstream.Region = "us-east-1"
			cfg.Upstream.EndpointName = "gpt-oss"
			cfg.Upstream.AWS = config.AWSConfig{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"}

			inv, err := newInvoker(context.Background(), &cfg)
			if err != nil {
				t.Fatalf("newInvoker: %v", err)
			}
			defer inv.Close()
			if inv.Name() != p {
				t.Errorf("Name() = %q, want %q", inv.Name(), p)
			}

			// The profile reaches the SDK loader, which rejects unknown names.
			cfg.Upstream.AWS = config.AWSConfig{Profile: "missing"}
			if _, err := newInvoker(context.Background(), &cfg); err == nil {
				t.Error("expected error for unknown AWS profile")
			}
		})
	}
}

func TestNewRelayClientUnknownProvider(t *testing.T) {
	cfg := config.Defaults()
	cfg.Upstream.Provider = "carrier-pigeon"
	if c := newRelayClient(context.Background(), &cfg); c != nil {
		t.Errorf("newRelayClient = %v, want nil", c)
	}
}

func TestNewStore(t *testing.T) {
	cfg := config.Defaults()

	cfg.Storage.Type = "none"
	store, err := newStore(context.Background(), &cfg)
	if err != nil || store != nil {
		t.Fatalf("none: store = %v, err = %v", store, err)
	}

	cfg.Storage.Type = "memory"
	store, err = newStore(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Errorf("memory: got %T", store)
	}

	cfg.Storage.Type = "redis"
	if _, err := newStore(context.Background(), &cfg); err == nil {
		t.Error("expected error for unknown storage type")
	}
}

func TestNewAuthMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantNil bool
	}{
		{"none", nil, true},
		{"rate limited only", func(c *config.Config) { c.Auth.RateLimit.Enabled = true }, false},
		{"api keys", func(c *config.Config) {
			c.Auth.Type = "apikey"
			c.Auth.APIKeys = []config.APIKeyConfig{{Key: "k", Subject: "s"}}
		}, false},
		{"jwt", func(c *config.Config) {
			c.Auth.Type = "jwt"
			c.Auth.JWT.JWKSURL = "http://localhost:1/jwks"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			mw := newAuthMiddleware(&cfg)
			if (mw == nil) != tt.wantNil {
				t.Errorf("middleware nil = %v, want %v", mw == nil, tt.wantNil)
			}
		})
	}
}
