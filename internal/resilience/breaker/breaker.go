// Package breaker implements a per-endpoint circuit breaker.
//
// A Breaker starts Closed. Consecutive failures beyond FailureThreshold open
// it; while Open every call is refused with *OpenError without running the
// work. Once Timeout has elapsed the next call is admitted as the single
// Half-Open trial. SuccessThreshold trial successes close the breaker again;
// any trial failure reopens it for another Timeout.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/callguard/internal/resilience/metrics"
)

// State is the breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Rejecting calls
	StateHalfOpen              // One trial call in flight
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = StateClosed
	case "open":
		*s = StateOpen
	case "half-open":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("unknown breaker state %q", text)
	}
	return nil
}

// ErrOpen matches every *OpenError via errors.Is.
var ErrOpen = errors.New("circuit breaker is open")

// OpenError is returned when a call is refused without being attempted.
// It is not a classified failure: the dependency was never asked.
type OpenError struct {
	Endpoint string
	// RetryIn is how long until a trial call will be admitted. Zero while
	// another trial is already in flight.
	RetryIn time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry in %s", e.Endpoint, e.RetryIn.Round(time.Millisecond))
}

// Is reports whether target is ErrOpen.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// IsOpen reports whether err is a short-circuit rejection.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}

var errPanicked = errors.New("breaker: work panicked")

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Endpoint     string    `json:"endpoint"`
	State        State     `json:"state"`
	FailureCount int       `json:"failure_count"`
	SuccessCount int       `json:"success_count"`
	NextAttempt  time.Time `json:"next_attempt,omitzero"`
}

type transition struct {
	from, to State
	changed  bool
	// snap is taken under the lock together with the state change.
	snap Snapshot
}

// Breaker guards calls to one logical endpoint.
type Breaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	nextAttempt   time.Time
	trialInFlight bool
}

// New creates a Closed breaker for endpoint name.
func New(name string, cfg Config) *Breaker {
	b := &Breaker{
		name:  name,
		cfg:   cfg.withDefaults(),
		state: StateClosed,
	}
	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Name returns the endpoint key.
func (b *Breaker) Name() string {
	return b.name
}

// Do runs fn under the breaker.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Execute(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Execute runs fn under b and returns its result unchanged. When the circuit
// is open fn is not invoked and an *OpenError is returned.
func Execute[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	trial, err := b.allow()
	if err != nil {
		metrics.BreakerRejections.WithLabelValues(b.name).Inc()
		return zero, err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(errPanicked, trial)
			panic(r)
		}
	}()

	res, err := fn(ctx)
	b.record(err, trial)
	return res, err
}

// allow decides admission. trial is true for the Half-Open probe call.
func (b *Breaker) allow() (trial bool, err error) {
	b.mu.Lock()
	now := b.cfg.Now()

	var tr transition
	switch b.state {
	case StateOpen:
		if now.Before(b.nextAttempt) {
			wait := b.nextAttempt.Sub(now)
			b.mu.Unlock()
			return false, &OpenError{Endpoint: b.name, RetryIn: wait}
		}
		tr = b.setState(StateHalfOpen)
		b.successCount = 0
		b.trialInFlight = true
		trial = true
	case StateHalfOpen:
		if b.trialInFlight {
			b.mu.Unlock()
			return false, &OpenError{Endpoint: b.name}
		}
		b.trialInFlight = true
		trial = true
	}
	b.capture(&tr)
	b.mu.Unlock()

	b.notify(tr)
	return trial, nil
}

func (b *Breaker) record(err error, trial bool) {
	b.mu.Lock()
	now := b.cfg.Now()

	// Outcomes of calls admitted before the breaker went Half-Open say
	// nothing about recovery.
	if b.state == StateHalfOpen && !trial {
		b.mu.Unlock()
		return
	}

	var tr transition
	switch {
	case err == nil:
		tr = b.onSuccess()
	case b.cfg.IsFailure(err):
		tr = b.onFailure(now)
	default:
		if trial {
			b.trialInFlight = false
		}
	}
	b.capture(&tr)
	b.mu.Unlock()

	b.notify(tr)
}

func (b *Breaker) onSuccess() transition {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.trialInFlight = false
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			tr := b.setState(StateClosed)
			b.failureCount = 0
			b.successCount = 0
			return tr
		}
	}
	return transition{}
}

func (b *Breaker) onFailure(now time.Time) transition {
	b.failureCount++
	b.successCount = 0

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.nextAttempt = now.Add(b.cfg.Timeout)
			return b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.trialInFlight = false
		b.nextAttempt = now.Add(b.cfg.Timeout)
		return b.setState(StateOpen)
	}
	return transition{}
}

// setState must be called with mu held.
func (b *Breaker) setState(to State) transition {
	from := b.state
	b.state = to
	return transition{from: from, to: to, changed: from != to}
}

// capture must be called with mu held, after all counters are updated.
func (b *Breaker) capture(tr *transition) {
	if tr.changed {
		tr.snap = b.snapshotLocked()
	}
}

// notify runs outside the lock so callbacks may inspect the breaker.
func (b *Breaker) notify(tr transition) {
	if !tr.changed {
		return
	}

	metrics.BreakerState.WithLabelValues(b.name).Set(float64(tr.to))
	metrics.BreakerTransitions.WithLabelValues(b.name, tr.from.String(), tr.to.String()).Inc()

	if tr.to == StateOpen {
		b.cfg.Logger.Warn("Circuit breaker opened",
			"endpoint", b.name, "from", tr.from.String(), "retry_in", b.cfg.Timeout)
	} else {
		b.cfg.Logger.Info("Circuit breaker state changed",
			"endpoint", b.name, "from", tr.from.String(), "to", tr.to.String())
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(tr.from, tr.snap)
	}
}

// State returns the current state. An Open breaker whose timeout has passed
// still reports Open until the next call is admitted.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the current counters and state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Breaker) snapshotLocked() Snapshot {
	s := Snapshot{
		Endpoint:     b.name,
		State:        b.state,
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
	}
	if b.state == StateOpen {
		s.NextAttempt = b.nextAttempt
	}
	return s
}

// Reset forces the breaker Closed with zeroed counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	tr := b.setState(StateClosed)
	b.failureCount = 0
	b.successCount = 0
	b.nextAttempt = time.Time{}
	b.trialInFlight = false
	b.capture(&tr)
	b.mu.Unlock()

	b.notify(tr)
}
