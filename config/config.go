// Package config loads the CTS browser configuration from the environment
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the configuration consumed by the client, the synchronization
// layer and the development servers
type Config struct {
	APIBase               string        `envconfig:"CTS_API_BASE" default:"https://ci.kbase.us/services/cts"`
	DefaultJobLimit       int           `envconfig:"CTS_DEFAULT_JOB_LIMIT" default:"100"`
	PollingIntervalActive time.Duration `envconfig:"CTS_POLLING_INTERVAL_ACTIVE" default:"5s"`
	PollingIntervalList   time.Duration `envconfig:"CTS_POLLING_INTERVAL_LIST" default:"30s"`
	PollJitter            time.Duration `envconfig:"CTS_POLL_JITTER" default:"500ms"`
	MockMode              bool          `envconfig:"CTS_MOCK_MODE" default:"false"`
	Token                 string        `envconfig:"KBASE_AUTH_TOKEN"`
	Timeout               time.Duration `envconfig:"CTS_TIMEOUT" default:"30s"`
	RateLimit             float64       `envconfig:"CTS_RATE_LIMIT" default:"0"`
	RetryDelay            time.Duration `envconfig:"CTS_RETRY_DELAY" default:"1s"`
	LogLevel              string        `envconfig:"LOG_LEVEL" default:"info"`
	ProxyPort             int           `envconfig:"PROXY_PORT" default:"8080"`
	MockServerPort        int           `envconfig:"MOCK_SERVER_PORT" default:"8081"`
}

// Load reads an optional .env file, then the process environment. Values
// already present in the environment win over the .env file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading env file: %w", err)
	}

	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the client cannot work with
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBase)
	if err != nil {
		return fmt.Errorf("invalid CTS_API_BASE: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid CTS_API_BASE %q: scheme must be http or https", c.APIBase)
	}
	if c.DefaultJobLimit <= 0 {
		return fmt.Errorf("CTS_DEFAULT_JOB_LIMIT must be positive, got %d", c.DefaultJobLimit)
	}
	if c.PollingIntervalActive <= 0 || c.PollingIntervalList <= 0 {
		return errors.New("polling intervals must be positive")
	}
	if c.PollJitter < 0 || c.RetryDelay < 0 || c.RateLimit < 0 {
		return errors.New("jitter, retry delay and rate limit must not be negative")
	}
	return nil
}
