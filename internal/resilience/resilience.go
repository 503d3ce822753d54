// Package resilience composes the breaker, retry and classification layers
// into a single call path for outbound requests.
//
// A guarded call goes through the endpoint's circuit breaker first. Only if
// the breaker admits it does the retry engine run the work, retrying
// retryable failures with backoff. An exhausted retry sequence counts as one
// failure against the breaker.
package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/callguard/internal/resilience/breaker"
	"github.com/vietddude/callguard/internal/resilience/classify"
	"github.com/vietddude/callguard/internal/resilience/message"
	"github.com/vietddude/callguard/internal/resilience/metrics"
	"github.com/vietddude/callguard/internal/resilience/retry"
)

// Outcome labels for the call latency histogram.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
)

// Guard runs calls against named endpoints.
type Guard struct {
	registry *breaker.Registry
	retry    retry.Config
	logger   *slog.Logger
}

// NewGuard creates a guard. A nil logger uses slog.Default.
func NewGuard(registry *breaker.Registry, retryCfg retry.Config, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if retryCfg.Logger == nil {
		retryCfg.Logger = logger
	}
	return &Guard{registry: registry, retry: retryCfg, logger: logger}
}

// Registry returns the breaker registry backing the guard.
func (g *Guard) Registry() *breaker.Registry {
	return g.registry
}

// CallOption adjusts a single guarded call.
type CallOption func(*callOptions)

type callOptions struct {
	state *retry.State
	retry *retry.Config
}

// WithRetryState reports retry progress of the call into s.
func WithRetryState(s *retry.State) CallOption {
	return func(o *callOptions) { o.state = s }
}

// WithRetryConfig replaces the guard's retry policy for one call.
func WithRetryConfig(cfg retry.Config) CallOption {
	return func(o *callOptions) { o.retry = &cfg }
}

// Call runs work against endpoint. The error is either the work's own
// error, unchanged, or a *breaker.OpenError when the circuit refused the call.
func Call[T any](ctx context.Context, g *Guard, endpoint string, work func(context.Context) (T, error), opts ...CallOption) (T, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := g.retry
	if o.retry != nil {
		cfg = *o.retry
		if cfg.Logger == nil {
			cfg.Logger = g.logger
		}
	}
	if o.state != nil {
		cfg = o.state.Bind(cfg)
	}

	start := time.Now()
	b := g.registry.Get(endpoint)

	res, err := breaker.Execute(ctx, b, func(ctx context.Context) (T, error) {
		return retry.Do(ctx, cfg, work)
	})

	metrics.CallLatency.WithLabelValues(endpoint, outcome(err)).Observe(time.Since(start).Seconds())

	if o.state != nil && err == nil {
		o.state.Reset()
	}
	if err != nil && !breaker.IsOpen(err) {
		g.logger.Debug("Guarded call failed",
			"endpoint", endpoint,
			"error", message.ForLogging(classify.Classify(err)))
	}
	return res, err
}

// Run is Call for work that returns only an error.
func (g *Guard) Run(ctx context.Context, endpoint string, work func(context.Context) error, opts ...CallOption) error {
	_, err := Call(ctx, g, endpoint, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, work(ctx)
	}, opts...)
	return err
}

// Describe returns the user-facing bundle for an error returned by Call.
func (g *Guard) Describe(err error) message.Bundle {
	return message.Describe(err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case breaker.IsOpen(err):
		return OutcomeRejected
	default:
		return string(classify.Classify(err).Category)
	}
}
