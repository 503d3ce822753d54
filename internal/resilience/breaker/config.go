package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config holds breaker thresholds and hooks.
type Config struct {
	FailureThreshold int           // Consecutive failures that open the circuit (default: 5)
	SuccessThreshold int           // Half-Open successes that close it (default: 2)
	Timeout          time.Duration // Open period before a trial is admitted (default: 60s)

	// OnStateChange runs synchronously on every transition. snap is the
	// breaker as it was right after the transition.
	OnStateChange func(from State, snap Snapshot)

	// IsFailure decides which errors count against the endpoint. The default
	// counts everything except context.Canceled.
	IsFailure func(error) bool

	Now    func() time.Time
	Logger *slog.Logger
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.IsFailure == nil {
		c.IsFailure = countsAsFailure
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// merge overlays the non-zero fields of o on c.
func (c Config) merge(o Config) Config {
	if o.FailureThreshold > 0 {
		c.FailureThreshold = o.FailureThreshold
	}
	if o.SuccessThreshold > 0 {
		c.SuccessThreshold = o.SuccessThreshold
	}
	if o.Timeout > 0 {
		c.Timeout = o.Timeout
	}
	if o.OnStateChange != nil {
		c.OnStateChange = o.OnStateChange
	}
	if o.IsFailure != nil {
		c.IsFailure = o.IsFailure
	}
	if o.Now != nil {
		c.Now = o.Now
	}
	if o.Logger != nil {
		c.Logger = o.Logger
	}
	return c
}
