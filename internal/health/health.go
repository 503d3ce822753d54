// Package health reports endpoint health derived from circuit breaker state
// and the most recent probe results, and serves it over HTTP alongside the
// operator endpoints for resetting breakers.
package health

import (
	"time"

	"github.com/vietddude/callguard/internal/resilience/breaker"
	"github.com/vietddude/callguard/internal/resilience/message"
)

// SystemStatus represents the overall health state of the system or an endpoint.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ProbeResult is the outcome of the last health probe of an endpoint.
type ProbeResult struct {
	At      time.Time `json:"at"`
	OK      bool      `json:"ok"`
	Latency string    `json:"latency"`
	// Diagnostic is the single-line log form of the failure.
	Diagnostic string          `json:"diagnostic,omitempty"`
	Message    *message.Bundle `json:"message,omitempty"`
}

// EndpointHealth contains health details for one endpoint.
type EndpointHealth struct {
	Endpoint     string        `json:"endpoint"`
	Status       SystemStatus  `json:"status"`
	Breaker      breaker.State `json:"breaker"`
	FailureCount int           `json:"failure_count"`
	// RetryIn is the countdown until an open breaker admits a trial.
	RetryIn   string       `json:"retry_in,omitempty"`
	LastProbe *ProbeResult `json:"last_probe,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus              `json:"system_status"`
	Endpoints    map[string]EndpointHealth `json:"endpoints"`
}
