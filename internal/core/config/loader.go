package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/callguard/internal/resilience/retry"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references and applying
// defaults.
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
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = retry.DefaultMaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = retry.DefaultBaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = retry.MaxDelay
	}

	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = 2
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = 60 * time.Second
	}

	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		if ep.Kind == "" {
			ep.Kind = KindHTTP
		}
		if ep.Timeout == 0 {
			ep.Timeout = 10 * time.Second
		}
		if ep.Kind == KindHTTP && ep.HealthPath == "" {
			ep.HealthPath = "/health"
		}
	}
}

// Validate reports every invalid setting at once.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level))
	}

	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}
	if c.Retry.MaxDelay > 0 && c.Retry.BaseDelay > c.Retry.MaxDelay {
		errs = append(errs, fmt.Errorf("retry.base_delay %s exceeds retry.max_delay %s", c.Retry.BaseDelay, c.Retry.MaxDelay))
	}

	errs = append(errs, c.Breaker.validate("breaker")...)

	seen := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		prefix := fmt.Sprintf("endpoints[%d]", i)
		if ep.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", prefix))
		} else if seen[ep.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate endpoint %q", prefix, ep.Name))
		}
		seen[ep.Name] = true

		if ep.URL == "" {
			errs = append(errs, fmt.Errorf("%s: url is required", prefix))
		}
		if ep.Kind != KindHTTP && ep.Kind != KindGRPC {
			errs = append(errs, fmt.Errorf("%s: kind %q must be http or grpc", prefix, ep.Kind))
		}
		if ep.RateLimit < 0 || ep.Burst < 0 {
			errs = append(errs, fmt.Errorf("%s: rate_limit and burst must not be negative", prefix))
		}
		if ep.ProbeInterval < 0 {
			errs = append(errs, fmt.Errorf("%s: probe_interval must not be negative", prefix))
		}
		if ep.Breaker != nil {
			errs = append(errs, ep.Breaker.validate(prefix+".breaker")...)
		}
	}

	return errors.Join(errs...)
}

func (b BreakerConfig) validate(prefix string) []error {
	var errs []error
	if b.FailureThreshold < 0 || b.SuccessThreshold < 0 {
		errs = append(errs, fmt.Errorf("%s: thresholds must not be negative", prefix))
	}
	if b.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s: timeout must not be negative", prefix))
	}
	return errs
}
