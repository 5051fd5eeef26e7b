// Package config provides configuration loading from YAML files.
package config

import (
	"net"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Feed    FeedConfig    `yaml:"feed"`
	Signing SigningConfig `yaml:"signing"`
	Storage StorageConfig `yaml:"storage"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Addr            string `yaml:"addr" default:":8787"`
	APISecret       string `yaml:"api_secret" validate:"required"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec" default:"10" validate:"gte=1"`
}

// FeedConfig represents playlist feed behaviour.
type FeedConfig struct {
	// SelfHostedDomains are host[:port] values that resolve locally.
	SelfHostedDomains []string `yaml:"self_hosted_domains"`
	FetchTimeoutSec   int      `yaml:"fetch_timeout_sec" default:"10" validate:"gte=1,lte=120"`
	DefaultPageLimit  int      `yaml:"default_page_limit" default:"100" validate:"gte=1,lte=100"`
	DPVersion         string   `yaml:"dp_version" default:"1.0.0"`
}

// SigningConfig holds the server signing key material.
type SigningConfig struct {
	PrivateKey string `yaml:"private_key" validate:"required"`
}

// StorageConfig selects and configures the key-value backend.
type StorageConfig struct {
	Type     string         `yaml:"type" default:"memory" validate:"oneof=memory redis"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
// A missing file is allowed when the environment provides the required values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case errors.Is(err, os.ErrNotExist):
		// environment only
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SELF_HOSTED_DOMAINS"); v != "" {
		c.Feed.SelfHostedDomains = ParseDomainList(v)
	}
	if v := os.Getenv("ED25519_PRIVATE_KEY"); v != "" {
		c.Signing.PrivateKey = v
	}
	if v := os.Getenv("API_SECRET"); v != "" {
		c.Server.APISecret = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Storage.Type = "redis"
		if c.Storage.Settings == nil {
			c.Storage.Settings = make(map[string]any)
		}
		c.Storage.Settings["url"] = v
	}
}

// ParseDomainList splits a comma-separated host[:port] list, dropping blanks.
func ParseDomainList(s string) []string {
	var out []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// FetchTimeout returns the remote playlist fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Feed.FetchTimeoutSec) * time.Second
}

// ShutdownTimeout returns the graceful shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	for _, d := range c.Feed.SelfHostedDomains {
		if err := validateDomain(d); err != nil {
			return err
		}
	}

	return nil
}

// validateDomain checks a host or host:port entry.
func validateDomain(d string) error {
	if strings.ContainsAny(d, "/ ") {
		return errors.Newf("self_hosted_domains entry %q must be host[:port]", d)
	}
	if strings.Contains(d, ":") {
		if _, _, err := net.SplitHostPort(d); err != nil {
			return errors.Wrapf(err, "self_hosted_domains entry %q", d)
		}
	}
	return nil
}
