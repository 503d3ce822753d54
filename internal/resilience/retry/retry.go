// Package retry executes work under an exponential backoff policy with
// jitter, retrying only failures the classifier marks retryable.
package retry

import (
	"context"

	"github.com/google/uuid"

	"github.com/vietddude/callguard/internal/resilience/metrics"
)

// Do runs work and retries retryable failures up to cfg.MaxAttempts times.
// When it gives up, the error from the last attempt is returned unchanged.
// Cancelling ctx abandons a pending wait and returns that same error.
func Do[T any](ctx context.Context, cfg Config, work func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	sequence := uuid.NewString()
	attempt := 0

	for {
		res, err := work(ctx)
		if err == nil {
			if attempt > 0 {
				cfg.Logger.Info("Operation succeeded after retry",
					"sequence", sequence, "attempts", attempt)
			}
			return res, nil
		}

		f := cfg.Classify(err)
		metrics.FailuresClassified.WithLabelValues(string(f.Category), f.Severity.String()).Inc()

		if attempt >= cfg.MaxAttempts || !f.Retryable {
			cfg.Logger.Debug("Not retrying",
				"sequence", sequence,
				"attempts", attempt,
				"retryable", f.Retryable,
				"failure", f)
			return zero, err
		}

		attempt++
		delay := cfg.delayFor(attempt-1, f)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, f, delay)
		}
		metrics.RetryAttempts.WithLabelValues(string(f.Category)).Inc()
		metrics.RetryDelay.WithLabelValues(string(f.Category)).Observe(delay.Seconds())

		cfg.Logger.Warn("Retrying after failure",
			"sequence", sequence,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"delay", delay,
			"failure", f)

		if cerr := cfg.sleep(ctx, delay); cerr != nil {
			cfg.Logger.Info("Retry abandoned", "sequence", sequence, "attempt", attempt, "reason", cerr)
			if cfg.OnAbandon != nil {
				cfg.OnAbandon(attempt)
			}
			return zero, err
		}

		if cfg.OnRetryFire != nil {
			cfg.OnRetryFire(attempt)
		}
	}
}

// Run is Do for work that returns only an error.
func Run(ctx context.Context, cfg Config, work func(context.Context) error) error {
	_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, work(ctx)
	})
	return err
}
