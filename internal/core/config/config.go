package config

import (
	"time"

	"github.com/vietddude/dashwatch/internal/dashboard"
	redisclient "github.com/vietddude/dashwatch/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	API         APIConfig         `yaml:"api"`
	Retry       RetryConfig       `yaml:"retry"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Cache       CacheConfig       `yaml:"cache"`
	Dashboard   dashboard.Limits  `yaml:"dashboard"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// APIConfig describes the inventory backend.
type APIConfig struct {
	BaseURL   string              `yaml:"base_url"`
	Token     string              `yaml:"token"`
	Timeout   time.Duration       `yaml:"timeout"` // transport-level timeout, per request
	Endpoints dashboard.Endpoints `yaml:"endpoints"`
	PingPath  string              `yaml:"ping_path"`
}

// RetryConfig holds the retry policy applied to every metric fetch.
type RetryConfig struct {
	MaxAttempts *int          `yaml:"max_attempts"` // retries after the first attempt
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Timeout     time.Duration `yaml:"timeout"` // per attempt
	Jitter      float64       `yaml:"jitter"`
}

// CoordinatorConfig holds connection health settings.
type CoordinatorConfig struct {
	DegradeAfter  int           `yaml:"degrade_after"`
	ProbeInterval time.Duration `yaml:"probe_interval"` // 0 disables background probing
}

// CacheConfig holds metric cache settings.
type CacheConfig struct {
	TTL       dashboard.TTLs     `yaml:"ttl"`
	Redis     redisclient.Config `yaml:"redis"`
	Retention time.Duration      `yaml:"retention"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
