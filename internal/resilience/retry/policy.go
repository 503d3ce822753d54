package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vietddude/callguard/internal/resilience/classify"
)

const (
	// DefaultMaxAttempts is the number of retries after the initial call.
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	// MaxDelay bounds the computed backoff, jitter included.
	MaxDelay = 30 * time.Second

	// MaxRetryAfter caps a server Retry-After hint.
	MaxRetryAfter = 24 * time.Hour

	jitterFactor = 0.3
)

// Config defines retry behavior.
type Config struct {
	// MaxAttempts is the retry ceiling. Zero means DefaultMaxAttempts; a
	// negative value disables retries.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// IgnoreRetryAfter makes rate-limit retries use plain backoff even when
	// the server supplied a Retry-After hint.
	IgnoreRetryAfter bool

	// OnRetry runs after a retry is scheduled and before the wait starts.
	OnRetry func(attempt int, f classify.Failure, delay time.Duration)

	// OnRetryFire runs when the wait is over, right before work is re-invoked.
	OnRetryFire func(attempt int)

	// OnAbandon runs when ctx ends a pending wait. The retry never fires.
	OnAbandon func(attempt int)

	Classify func(error) classify.Failure
	Logger   *slog.Logger

	// Rand returns jitter samples in [0, 1).
	Rand func() float64

	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the standard retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    MaxDelay,
	}
}

func (c Config) withDefaults() Config {
	switch {
	case c.MaxAttempts == 0:
		c.MaxAttempts = DefaultMaxAttempts
	case c.MaxAttempts < 0:
		c.MaxAttempts = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = MaxDelay
	}
	if c.Classify == nil {
		c.Classify = classify.Classify
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Rand == nil {
		c.Rand = rand.Float64
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	return c
}

// CalculateDelay returns base*2^attempt plus up to 30% jitter, capped at
// MaxDelay. attempt is zero-based.
func CalculateDelay(attempt int, base time.Duration) time.Duration {
	return calculateDelay(attempt, base, MaxDelay, rand.Float64)
}

func calculateDelay(attempt int, base, ceiling time.Duration, random func() float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(base) * math.Pow(2, float64(attempt))
	delay += random() * jitterFactor * delay
	if delay > float64(ceiling) {
		delay = float64(ceiling)
	}
	return time.Duration(delay)
}

// delayFor applies the backoff schedule, using a rate-limit hint as a floor.
func (c Config) delayFor(attempt int, f classify.Failure) time.Duration {
	delay := calculateDelay(attempt, c.BaseDelay, c.MaxDelay, c.Rand)
	if c.IgnoreRetryAfter {
		return delay
	}
	if secs, ok := f.RetryAfterSeconds(); ok {
		if hint := retryAfterDuration(secs); hint > delay {
			return hint
		}
	}
	return delay
}

func retryAfterDuration(secs int) time.Duration {
	if secs >= int(MaxRetryAfter/time.Second) {
		return MaxRetryAfter
	}
	return time.Duration(secs) * time.Second
}

// Policy exposes the jittered schedule as a backoff.BackOff so it can drive
// code built on cenkalti/backoff.
type Policy struct {
	cfg     Config
	attempt int
}

var _ backoff.BackOff = (*Policy)(nil)

// NewPolicy creates a schedule that stops after cfg.MaxAttempts delays.
func NewPolicy(cfg Config) *Policy {
	return &Policy{cfg: cfg.withDefaults()}
}

// NextBackOff returns the next delay or backoff.Stop once exhausted.
func (p *Policy) NextBackOff() time.Duration {
	if p.attempt >= p.cfg.MaxAttempts {
		return backoff.Stop
	}
	d := calculateDelay(p.attempt, p.cfg.BaseDelay, p.cfg.MaxDelay, p.cfg.Rand)
	p.attempt++
	return d
}

// Reset restarts the schedule.
func (p *Policy) Reset() {
	p.attempt = 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
