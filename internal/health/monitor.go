package health

import (
	"sync"
	"time"

	"github.com/vietddude/callguard/internal/resilience/breaker"
	"github.com/vietddude/callguard/internal/resilience/classify"
	"github.com/vietddude/callguard/internal/resilience/message"
)

// Monitor aggregates breaker state and probe results.
type Monitor struct {
	registry  *breaker.Registry
	endpoints []string
	now       func() time.Time

	mu     sync.RWMutex
	probes map[string]ProbeResult
}

// NewMonitor creates a monitor. endpoints are reported even before their
// breaker has seen any traffic.
func NewMonitor(registry *breaker.Registry, endpoints []string) *Monitor {
	return &Monitor{
		registry:  registry,
		endpoints: endpoints,
		now:       time.Now,
		probes:    make(map[string]ProbeResult),
	}
}

// Registry returns the monitored breaker registry.
func (m *Monitor) Registry() *breaker.Registry {
	return m.registry
}

// RecordProbe stores the outcome of a probe. err is the error returned by the
// guarded call, so it may be a circuit-open rejection.
func (m *Monitor) RecordProbe(endpoint string, latency time.Duration, err error) {
	res := ProbeResult{
		At:      m.now(),
		OK:      err == nil,
		Latency: latency.Round(time.Millisecond).String(),
	}
	if err != nil {
		bundle := message.Describe(err)
		res.Message = &bundle
		if breaker.IsOpen(err) {
			res.Diagnostic = err.Error()
		} else {
			res.Diagnostic = message.ForLogging(classify.Classify(err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[endpoint] = res
}

// CheckHealth builds a report for every known endpoint. An open breaker is
// critical; a half-open breaker or a failed last probe is degraded.
func (m *Monitor) CheckHealth() HealthReport {
	report := HealthReport{
		SystemStatus: StatusHealthy,
		Endpoints:    make(map[string]EndpointHealth),
	}

	for _, name := range m.endpoints {
		report.Endpoints[name] = EndpointHealth{Endpoint: name, Status: StatusHealthy, Breaker: breaker.StateClosed}
	}

	now := m.now()
	for _, snap := range m.registry.Snapshots() {
		h := EndpointHealth{
			Endpoint:     snap.Endpoint,
			Status:       StatusHealthy,
			Breaker:      snap.State,
			FailureCount: snap.FailureCount,
		}
		switch snap.State {
		case breaker.StateOpen:
			h.Status = StatusCritical
			h.RetryIn = message.CountdownDuration(snap.NextAttempt.Sub(now))
		case breaker.StateHalfOpen:
			h.Status = StatusDegraded
		}
		report.Endpoints[snap.Endpoint] = h
	}

	m.mu.RLock()
	for name, probe := range m.probes {
		h, ok := report.Endpoints[name]
		if !ok {
			h = EndpointHealth{Endpoint: name, Status: StatusHealthy, Breaker: breaker.StateClosed}
		}
		p := probe
		h.LastProbe = &p
		if !probe.OK && h.Status == StatusHealthy {
			h.Status = StatusDegraded
		}
		report.Endpoints[name] = h
	}
	m.mu.RUnlock()

	// Aggregate status (worst case wins)
	for _, h := range report.Endpoints {
		if h.Status == StatusCritical {
			report.SystemStatus = StatusCritical
			break
		}
		if h.Status == StatusDegraded {
			report.SystemStatus = StatusDegraded
		}
	}
	return report
}
