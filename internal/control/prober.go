package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/callguard/internal/health"
	"github.com/vietddude/callguard/internal/infra/transport"
	"github.com/vietddude/callguard/internal/resilience"
	"github.com/vietddude/callguard/internal/resilience/breaker"
	"github.com/vietddude/callguard/internal/resilience/classify"
	"github.com/vietddude/callguard/internal/resilience/message"
)

// Prober periodically health-checks one endpoint through the guard, so probe
// failures feed the same breaker as real traffic.
type Prober struct {
	endpoint transport.Endpoint
	guard    *resilience.Guard
	monitor  *health.Monitor
	interval time.Duration
	log      *slog.Logger
}

// NewProber creates a prober. monitor may be nil.
func NewProber(ep transport.Endpoint, guard *resilience.Guard, monitor *health.Monitor, interval time.Duration, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	return &Prober{
		endpoint: ep,
		guard:    guard,
		monitor:  monitor,
		interval: interval,
		log:      log,
	}
}

// Name returns the probed endpoint name.
func (p *Prober) Name() string {
	return p.endpoint.Name()
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	_ = p.ProbeOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce runs a single guarded check and records the result.
func (p *Prober) ProbeOnce(ctx context.Context) error {
	name := p.endpoint.Name()
	start := time.Now()

	err := p.guard.Run(ctx, name, p.endpoint.Check)
	latency := time.Since(start)

	if ctx.Err() != nil && err != nil {
		return err
	}
	if p.monitor != nil {
		p.monitor.RecordProbe(name, latency, err)
	}

	switch {
	case err == nil:
		p.log.Debug("Probe succeeded", "endpoint", name, "latency", latency)
	case breaker.IsOpen(err):
		p.log.Debug("Probe skipped, circuit open", "endpoint", name, "reason", err.Error())
	default:
		p.log.Warn("Probe failed", "endpoint", name, "error", message.ForLogging(classify.Classify(err)))
	}
	return err
}
