package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rhuss/chatrelay/pkg/debug"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	switch c.Upstream.Provider {
	case ProviderBedrock:
	case ProviderSageMaker:
		if c.Upstream.EndpointName == "" && c.Upstream.ModelID == "" {
			errs = append(errs, fmt.Errorf("upstream.endpoint_name or upstream.model_id is required for provider %q", ProviderSageMaker))
		}
	case ProviderOpenAI:
		if c.Upstream.BaseURL == "" {
			errs = append(errs, fmt.Errorf("upstream.base_url is required for provider %q", ProviderOpenAI))
		}
	default:
		errs = append(errs, fmt.Errorf("upstream.provider must be %q, %q or %q, got %q",
			ProviderBedrock, ProviderSageMaker, ProviderOpenAI, c.Upstream.Provider))
	}
	if aws := c.Upstream.AWS; aws.AccessKeyID != "" && aws.SecretAccessKey == "" && aws.SecretAccessKeyFile == "" {
		errs = append(errs, fmt.Errorf("upstream.aws.secret_access_key or upstream.aws.secret_access_key_file is required with upstream.aws.access_key_id"))
	} else if aws.AccessKeyID == "" && (aws.SecretAccessKey != "" || aws.SecretAccessKeyFile != "") {
		errs = append(errs, fmt.Errorf("upstream.aws.access_key_id is required with upstream.aws.secret_access_key"))
	}
	if c.Upstream.Timeout < 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout must not be negative, got %s", c.Upstream.Timeout))
	}

	if c.Relay.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("relay.max_tokens must be > 0, got %d", c.Relay.MaxTokens))
	}
	if c.Relay.MaxTokensLimit < c.Relay.MaxTokens {
		errs = append(errs, fmt.Errorf("relay.max_tokens_limit (%d) must be >= relay.max_tokens (%d)", c.Relay.MaxTokensLimit, c.Relay.MaxTokens))
	}
	if c.Relay.Temperature < 0 || c.Relay.Temperature > 2 {
		errs = append(errs, fmt.Errorf("relay.temperature must be between 0 and 2, got %g", c.Relay.Temperature))
	}
	if c.Relay.FallbackChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("relay.fallback_chunk_size must be > 0, got %d", c.Relay.FallbackChunkSize))
	}

	switch c.Storage.Type {
	case "none":
	case "memory":
		if c.Storage.MaxSize < 0 {
			errs = append(errs, fmt.Errorf("storage.max_size must not be negative, got %d", c.Storage.MaxSize))
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\" or \"jwt\", got %q", c.Auth.Type))
	}

	if c.MCP.Enabled && !strings.HasPrefix(c.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path must start with \"/\", got %q", c.MCP.Path))
	}
	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	if lvl := strings.ToUpper(c.Logging.Level); lvl != "" && !debug.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.level must be one of ERROR, WARN, INFO, DEBUG, TRACE, got %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
