package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/dashwatch/internal/dashboard"
	"github.com/vietddude/dashwatch/internal/resilience/retry"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables and
// applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 15 * time.Second
	}
	if c.API.PingPath == "" {
		c.API.PingPath = "/health"
	}

	def := retry.DefaultPolicy()
	if c.Retry.MaxAttempts == nil {
		c.Retry.MaxAttempts = &def.MaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = def.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = def.MaxDelay
	}
	if c.Retry.Timeout == 0 {
		c.Retry.Timeout = def.Timeout
	}

	if c.Coordinator.DegradeAfter == 0 {
		c.Coordinator.DegradeAfter = 1
	}
	if c.Coordinator.ProbeInterval == 0 {
		c.Coordinator.ProbeInterval = 15 * time.Second
	}

	if c.Cache.Retention == 0 {
		c.Cache.Retention = 24 * time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration invariants.
func (c *AppConfig) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be > 0, got %s", c.API.Timeout)
	}
	if c.Coordinator.DegradeAfter < 0 {
		return fmt.Errorf("coordinator.degrade_after must be >= 0, got %d", c.Coordinator.DegradeAfter)
	}
	if c.Coordinator.ProbeInterval < 0 {
		return fmt.Errorf("coordinator.probe_interval must be >= 0, got %s", c.Coordinator.ProbeInterval)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}

// RetryPolicy converts the retry section into a policy.
func (c *AppConfig) RetryPolicy() retry.Policy {
	p := retry.Policy{
		BaseDelay: c.Retry.BaseDelay,
		MaxDelay:  c.Retry.MaxDelay,
		Timeout:   c.Retry.Timeout,
		Jitter:    c.Retry.Jitter,
	}
	if c.Retry.MaxAttempts != nil {
		p.MaxAttempts = *c.Retry.MaxAttempts
	}
	return p
}

// DashboardConfig assembles the dashboard service settings.
func (c *AppConfig) DashboardConfig() dashboard.Config {
	return dashboard.Config{
		Endpoints: c.API.Endpoints,
		TTL:       c.Cache.TTL,
		Limits:    c.Dashboard,
		Policy:    c.RetryPolicy(),
	}
}
