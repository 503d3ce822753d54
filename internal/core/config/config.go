package config

import (
	"time"

	redisclient "github.com/vietddude/callguard/internal/infra/redis"
	"github.com/vietddude/callguard/internal/resilience/breaker"
	"github.com/vietddude/callguard/internal/resilience/retry"
)

// Endpoint kinds.
const (
	KindHTTP = "http"
	KindGRPC = "grpc"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Redis     redisclient.Config `yaml:"redis"`
	Retry     RetryConfig        `yaml:"retry"`
	Breaker   BreakerConfig      `yaml:"breaker"`
	Endpoints []EndpointConfig   `yaml:"endpoints"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// RetryConfig holds the retry policy shared by all endpoints.
type RetryConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"` // retries after the first call; -1 disables
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	IgnoreRetryAfter bool          `yaml:"ignore_retry_after"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// EndpointConfig describes one guarded dependency.
type EndpointConfig struct {
	Name          string            `yaml:"name"`
	Kind          string            `yaml:"kind"` // http, grpc
	URL           string            `yaml:"url"`
	HealthPath    string            `yaml:"health_path"` // http only
	Service       string            `yaml:"service"`     // grpc health service name
	Timeout       time.Duration     `yaml:"timeout"`
	RateLimit     float64           `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst         int               `yaml:"burst"`
	ProbeInterval time.Duration     `yaml:"probe_interval"` // 0 disables probing
	Headers       map[string]string `yaml:"headers"`
	Breaker       *BreakerConfig    `yaml:"breaker"` // per-endpoint overrides
}

// Policy converts the section into a retry configuration.
func (r RetryConfig) Policy() retry.Config {
	return retry.Config{
		MaxAttempts:      r.MaxAttempts,
		BaseDelay:        r.BaseDelay,
		MaxDelay:         r.MaxDelay,
		IgnoreRetryAfter: r.IgnoreRetryAfter,
	}
}

// Thresholds converts the section into breaker thresholds.
func (b BreakerConfig) Thresholds() breaker.Config {
	return breaker.Config{
		FailureThreshold: b.FailureThreshold,
		SuccessThreshold: b.SuccessThreshold,
		Timeout:          b.Timeout,
	}
}

// Endpoint returns the endpoint named name.
func (c *AppConfig) Endpoint(name string) (EndpointConfig, bool) {
	for _, ep := range c.Endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return EndpointConfig{}, false
}
