package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHATRELAY_"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CHATRELAY_CONFIG env, ./config.yaml, /etc/chatrelay/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if filePath := discoverConfigFile(configPath); filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg, os.Getenv); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CHATRELAY_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/chatrelay/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv(EnvPrefix + "CONFIG"); envPath != "" {
		return envPath
	}

	for _, path := range []string{"config.yaml", "/etc/chatrelay/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are rejected so that typos surface at startup.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// envSetter applies one environment variable to the config.
type envSetter func(cfg *Config, value string) error

func str(dst func(*Config) *string) envSetter {
	return func(cfg *Config, v string) error { *dst(cfg) = v; return nil }
}

func integer(dst func(*Config) *int) envSetter {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

func boolean(dst func(*Config) *bool) envSetter {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(cfg) = b
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) envSetter {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(cfg) = d
		return nil
	}
}

// envOverrides maps CHATRELAY_* variable suffixes to config fields.
var envOverrides = map[string]envSetter{
	"PORT":             integer(func(c *Config) *int { return &c.Server.Port }),
	"HOST":             str(func(c *Config) *string { return &c.Server.Host }),
	"SHUTDOWN_TIMEOUT": duration(func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout }),
	"WEB_UI":           boolean(func(c *Config) *bool { return &c.Server.WebUI }),

	"PROVIDER":      str(func(c *Config) *string { return &c.Upstream.Provider }),
	"REGION":        str(func(c *Config) *string { return &c.Upstream.Region }),
	"MODEL_ID":      str(func(c *Config) *string { return &c.Upstream.ModelID }),
	"ENDPOINT_NAME": str(func(c *Config) *string { return &c.Upstream.EndpointName }),
	"ENDPOINT":      str(func(c *Config) *string { return &c.Upstream.Endpoint }),
	"BASE_URL":      str(func(c *Config) *string { return &c.Upstream.BaseURL }),
	"API_KEY":       str(func(c *Config) *string { return &c.Upstream.APIKey }),
	"API_KEY_FILE":  str(func(c *Config) *string { return &c.Upstream.APIKeyFile }),
	"TIMEOUT":       duration(func(c *Config) *time.Duration { return &c.Upstream.Timeout }),

	"AWS_PROFILE":                str(func(c *Config) *string { return &c.Upstream.AWS.Profile }),
	"AWS_ACCESS_KEY_ID":          str(func(c *Config) *string { return &c.Upstream.AWS.AccessKeyID }),
	"AWS_SECRET_ACCESS_KEY_FILE": str(func(c *Config) *string { return &c.Upstream.AWS.SecretAccessKeyFile }),
	"AWS_SESSION_TOKEN_FILE":     str(func(c *Config) *string { return &c.Upstream.AWS.SessionTokenFile }),

	"MAX_TOKENS":               integer(func(c *Config) *int { return &c.Relay.MaxTokens }),
	"MAX_TOKENS_LIMIT":         integer(func(c *Config) *int { return &c.Relay.MaxTokensLimit }),
	"FALLBACK_CHUNK_SIZE":      integer(func(c *Config) *int { return &c.Relay.FallbackChunkSize }),
	"KEEP_FRAGMENT_WHITESPACE": boolean(func(c *Config) *bool { return &c.Relay.KeepFragmentWhitespace }),
	"TEMPERATURE": func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.Relay.Temperature = f
		return nil
	},

	"STORAGE":      str(func(c *Config) *string { return &c.Storage.Type }),
	"STORAGE_SIZE": integer(func(c *Config) *int { return &c.Storage.MaxSize }),
	"POSTGRES_DSN": str(func(c *Config) *string { return &c.Storage.Postgres.DSN }),

	"AUTH_TYPE":      str(func(c *Config) *string { return &c.Auth.Type }),
	"JWT_ISSUER":     str(func(c *Config) *string { return &c.Auth.JWT.Issuer }),
	"JWT_AUDIENCE":   str(func(c *Config) *string { return &c.Auth.JWT.Audience }),
	"JWT_JWKS_URL":   str(func(c *Config) *string { return &c.Auth.JWT.JWKSURL }),
	"RATE_LIMIT":     boolean(func(c *Config) *bool { return &c.Auth.RateLimit.Enabled }),
	"RATE_LIMIT_RPM": integer(func(c *Config) *int { return &c.Auth.RateLimit.Default }),
	"API_KEYS": func(c *Config, v string) error {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("parsing API keys JSON: %w", err)
		}
		c.Auth.APIKeys = keys
		return nil
	},

	"MCP":        boolean(func(c *Config) *bool { return &c.MCP.Enabled }),
	"METRICS":    boolean(func(c *Config) *bool { return &c.Observability.Metrics.Enabled }),
	"LOG_LEVEL":  str(func(c *Config) *string { return &c.Logging.Level }),
	"LOG_FORMAT": str(func(c *Config) *string { return &c.Logging.Format }),
	"DEBUG":      str(func(c *Config) *string { return &c.Logging.Debug }),
}

// applyEnvOverrides maps environment variables to config fields. The AWS
// region variables apply only when the config leaves the region empty, and
// CHATRELAY_REGION wins over both.
func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	if cfg.Upstream.Region == "" {
		for _, name := range []string{"AWS_REGION", "AWS_DEFAULT_REGION"} {
			if v := getenv(name); v != "" {
				cfg.Upstream.Region = v
				break
			}
		}
	}

	var errs []string
	for suffix, set := range envOverrides {
		v := getenv(EnvPrefix + suffix)
		if v == "" {
			continue
		}
		if err := set(cfg, v); err != nil {
			errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, suffix, err))
		}
	}
	if len(errs) > 0 {
		slices.Sort(errs)
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	if cfg.Upstream.APIKeyFile != "" && cfg.Upstream.APIKey == "" {
		val, err := readSecretFile(cfg.Upstream.APIKeyFile)
		if err != nil {
			return fmt.Errorf("upstream.api_key_file: %w", err)
		}
		cfg.Upstream.APIKey = val
	}

	aws := &cfg.Upstream.AWS
	if aws.SecretAccessKeyFile != "" && aws.SecretAccessKey == "" {
		val, err := readSecretFile(aws.SecretAccessKeyFile)
		if err != nil {
			return fmt.Errorf("upstream.aws.secret_access_key_file: %w", err)
		}
		aws.SecretAccessKey = val
	}
	if aws.SessionTokenFile != "" && aws.SessionToken == "" {
		val, err := readSecretFile(aws.SessionTokenFile)
		if err != nil {
			return fmt.Errorf("upstream.aws.session_token_file: %w", err)
		}
		aws.SessionToken = val
	}

	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
