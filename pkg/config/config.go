// Package config provides unified configuration for the chatrelay server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CHATRELAY_ prefix, AWS region variables)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/provider"
	"github.com/rhuss/chatrelay/pkg/relay"
)

// Upstream provider names.
const (
	ProviderBedrock   = "bedrock"
	ProviderSageMaker = "sagemaker"
	ProviderOpenAI    = "openai"
)

// Config holds all configuration for the chatrelay server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Relay         RelayConfig         `yaml:"relay"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	MCP           MCPConfig           `yaml:"mcp"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	Host            string        `yaml:"host"`             // default: "" (all interfaces)
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MiB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	WebUI           bool          `yaml:"web_ui"`           // default: true
}

// UpstreamConfig selects and configures the model endpoint.
type UpstreamConfig struct {
	Provider     string        `yaml:"provider"`      // "bedrock", "sagemaker" or "openai", default: "bedrock"
	Region       string        `yaml:"region"`        // AWS providers; default from AWS_REGION / AWS_DEFAULT_REGION
	ModelID      string        `yaml:"model_id"`      // default: provider.DefaultModelID
	EndpointName string        `yaml:"endpoint_name"` // sagemaker only
	Endpoint     string        `yaml:"endpoint"`      // AWS service endpoint override
	BaseURL      string        `yaml:"base_url"`      // openai only
	APIKey       string        `yaml:"api_key"`       // openai only
	APIKeyFile   string        `yaml:"api_key_file"`  // _file variant for api_key
	Timeout      time.Duration `yaml:"timeout"`       // default: 120s, per request for every provider
	AWS          AWSConfig     `yaml:"aws"`           // bedrock and sagemaker
}

// AWSConfig selects credentials for the AWS providers. With everything empty
// the default AWS credential chain is used; static keys win over Profile.
type AWSConfig struct {
	Profile             string `yaml:"profile"`
	AccessKeyID         string `yaml:"access_key_id"`
	SecretAccessKey     string `yaml:"secret_access_key"`
	SecretAccessKeyFile string `yaml:"secret_access_key_file"` // _file variant for secret_access_key
	SessionToken        string `yaml:"session_token"`
	SessionTokenFile    string `yaml:"session_token_file"` // _file variant for session_token
}

// RelayConfig holds completion request and fragment handling settings.
type RelayConfig struct {
	MaxTokens              int     `yaml:"max_tokens"`               // default: 300
	MaxTokensLimit         int     `yaml:"max_tokens_limit"`         // default: 8192
	Temperature            float64 `yaml:"temperature"`              // default: 0.7
	FallbackChunkSize      int     `yaml:"fallback_chunk_size"`      // default: 40
	KeepFragmentWhitespace bool    `yaml:"keep_fragment_whitespace"` // default: false
}

// StorageConfig holds session storage settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds JWT validation settings.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`   // default: "sub"
	ScopesClaim string        `yaml:"scopes_claim"` // default: "scope"
	CacheTTL    time.Duration `yaml:"cache_ttl"`    // default: 1h
}

// RateLimitConfig holds per-subject request limits.
type RateLimitConfig struct {
	Enabled bool           `yaml:"enabled"`
	Tiers   map[string]int `yaml:"tiers"`   // requests per minute by service tier
	Default int            `yaml:"default"` // default: 60
}

// MCPConfig controls the MCP chat tool endpoint.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Path    string `yaml:"path"`    // default: "/mcp"
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // ERROR, WARN, INFO, DEBUG, TRACE; default: INFO
	Debug  string `yaml:"debug"`  // comma-separated debug categories
	Format string `yaml:"format"` // "text" or "json", default: "text"
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	validation := api.DefaultValidationConfig()
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MaxBodySize:     10 << 20,
			ShutdownTimeout: 30 * time.Second,
			WebUI:           true,
		},
		Upstream: UpstreamConfig{
			Provider: ProviderBedrock,
			ModelID:  provider.DefaultModelID,
			Timeout:  120 * time.Second,
		},
		Relay: RelayConfig{
			MaxTokens:         validation.DefaultMaxTokens,
			MaxTokensLimit:    validation.MaxTokensLimit,
			Temperature:       relay.DefaultTemperature,
			FallbackChunkSize: relay.DefaultFallbackChunkSize,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns:       10,
				MigrateOnStart: true,
			},
		},
		Auth: AuthConfig{
			Type: "none",
			JWT: JWTConfig{
				UserClaim:   "sub",
				ScopesClaim: "scope",
				CacheTTL:    time.Hour,
			},
			RateLimit: RateLimitConfig{
				Default: 60,
			},
		},
		MCP: MCPConfig{
			Path: "/mcp",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Validation returns the request validation limits derived from the relay
// section.
func (c *Config) Validation() api.ValidationConfig {
	v := api.DefaultValidationConfig()
	v.DefaultMaxTokens = c.Relay.MaxTokens
	v.MaxTokensLimit = c.Relay.MaxTokensLimit
	return v
}

// RelayClientConfig returns the relay.Config for the configured upstream.
func (c *Config) RelayClientConfig() relay.Config {
	return relay.Config{
		ModelID:                c.Upstream.ModelID,
		Temperature:            c.Relay.Temperature,
		FallbackChunkSize:      c.Relay.FallbackChunkSize,
		KeepFragmentWhitespace: c.Relay.KeepFragmentWhitespace,
	}
}
