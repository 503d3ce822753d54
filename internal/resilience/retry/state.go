package retry

import (
	"math"
	"sync"
	"time"

	"github.com/vietddude/callguard/internal/resilience/classify"
)

// Clock drives every active countdown from a single ticker. The ticker
// goroutine only runs while at least one State is counting down.
type Clock struct {
	interval time.Duration
	manual   bool

	mu     sync.Mutex
	states map[*State]struct{}
	stop   chan struct{}
}

// NewClock returns a clock ticking once per second.
func NewClock() *Clock {
	return &Clock{interval: time.Second, states: make(map[*State]struct{})}
}

// NewManualClock returns a clock that only advances when Tick is called.
func NewManualClock() *Clock {
	return &Clock{interval: time.Second, manual: true, states: make(map[*State]struct{})}
}

var defaultClock = NewClock()

// Tick advances every registered countdown by one step.
func (c *Clock) Tick() {
	c.mu.Lock()
	active := make([]*State, 0, len(c.states))
	for s := range c.states {
		active = append(active, s)
	}
	c.mu.Unlock()

	for _, s := range active {
		if done := s.tick(); done {
			c.remove(s)
		}
	}
}

// Active returns the number of countdowns in progress.
func (c *Clock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.states)
}

func (c *Clock) add(s *State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.states[s] = struct{}{}
	if !c.manual && c.stop == nil {
		c.stop = make(chan struct{})
		go c.run(c.stop)
	}
}

func (c *Clock) remove(s *State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.states, s)
	if len(c.states) == 0 && c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Clock) run(stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Snapshot is the observable retry state for a UI countdown.
type Snapshot struct {
	IsRetrying   bool `json:"is_retrying"`
	AttemptCount int  `json:"attempt_count"`
	MaxAttempts  int  `json:"max_attempts"`
	// NextRetryIn is the whole seconds left before the retry fires; nil when
	// no retry is scheduled.
	NextRetryIn *int `json:"next_retry_in,omitempty"`
}

// State tracks one in-flight retry sequence.
type State struct {
	clock *Clock

	mu           sync.Mutex
	isRetrying   bool
	attemptCount int
	maxAttempts  int
	nextRetryIn  int
	scheduled    bool
	onChange     func(Snapshot)
}

// NewState creates a tracker. A nil clock uses the shared process clock.
func NewState(maxAttempts int, clock *Clock) *State {
	if clock == nil {
		clock = defaultClock
	}
	return &State{clock: clock, maxAttempts: maxAttempts}
}

// OnChange registers an observer called after every state change.
func (s *State) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// StartRetry marks a retry as scheduled delay from now.
func (s *State) StartRetry(delay time.Duration) {
	s.mu.Lock()
	s.isRetrying = true
	s.attemptCount++
	s.nextRetryIn = int(math.Ceil(delay.Seconds()))
	if s.nextRetryIn < 0 {
		s.nextRetryIn = 0
	}
	s.scheduled = true
	counting := s.nextRetryIn > 0
	snap, fn := s.snapshotLocked(), s.onChange
	s.mu.Unlock()

	if counting {
		s.clock.add(s)
	} else {
		s.clock.remove(s)
	}
	notify(fn, snap)
}

// CompleteRetry clears the countdown once the retry fires.
func (s *State) CompleteRetry() {
	s.clock.remove(s)

	s.mu.Lock()
	s.isRetrying = false
	s.scheduled = false
	s.nextRetryIn = 0
	snap, fn := s.snapshotLocked(), s.onChange
	s.mu.Unlock()

	notify(fn, snap)
}

// Reset abandons the sequence.
func (s *State) Reset() {
	s.clock.remove(s)

	s.mu.Lock()
	s.isRetrying = false
	s.attemptCount = 0
	s.scheduled = false
	s.nextRetryIn = 0
	snap, fn := s.snapshotLocked(), s.onChange
	s.mu.Unlock()

	notify(fn, snap)
}

// CanRetry reports whether the sequence has retries left.
func (s *State) CanRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attemptCount < s.maxAttempts
}

// Snapshot returns the current observable state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Bind returns cfg with its retry hooks driving this state. Existing hooks
// still run.
func (s *State) Bind(cfg Config) Config {
	onRetry, onFire, onAbandon := cfg.OnRetry, cfg.OnRetryFire, cfg.OnAbandon

	cfg.OnRetry = func(attempt int, f classify.Failure, delay time.Duration) {
		s.StartRetry(delay)
		if onRetry != nil {
			onRetry(attempt, f, delay)
		}
	}
	cfg.OnRetryFire = func(attempt int) {
		s.CompleteRetry()
		if onFire != nil {
			onFire(attempt)
		}
	}
	cfg.OnAbandon = func(attempt int) {
		s.Reset()
		if onAbandon != nil {
			onAbandon(attempt)
		}
	}
	return cfg
}

// tick decrements the countdown and reports whether it reached zero.
func (s *State) tick() bool {
	s.mu.Lock()
	if !s.scheduled || s.nextRetryIn <= 0 {
		s.mu.Unlock()
		return true
	}
	s.nextRetryIn--
	done := s.nextRetryIn == 0
	snap, fn := s.snapshotLocked(), s.onChange
	s.mu.Unlock()

	notify(fn, snap)
	return done
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{
		IsRetrying:   s.isRetrying,
		AttemptCount: s.attemptCount,
		MaxAttempts:  s.maxAttempts,
	}
	if s.scheduled {
		n := s.nextRetryIn
		snap.NextRetryIn = &n
	}
	return snap
}

func notify(fn func(Snapshot), snap Snapshot) {
	if fn != nil {
		fn(snap)
	}
}
