package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBackend = errors.New("backend exploded")

func fail(context.Context) error    { return errBackend }
func succeed(context.Context) error { return nil }

type transitionLog struct {
	mu    sync.Mutex
	got   []string
	snaps []Snapshot
}

func (l *transitionLog) record(from State, snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, from.String()+"->"+snap.State.String())
	l.snaps = append(l.snaps, snap)
}

func (l *transitionLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.got...)
}

func newTestBreaker(clock *fakeClock, log *transitionLog) *Breaker {
	return New("billing", Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
		Now:              clock.Now,
		OnStateChange:    log.record,
	})
}

func TestBreaker_Scenario(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	log := &transitionLog{}
	b := newTestBreaker(clock, log)

	// Five consecutive failures open the circuit.
	for i := 0; i < 4; i++ {
		require.ErrorIs(t, b.Do(ctx, fail), errBackend)
		require.Equal(t, StateClosed, b.State())
	}
	require.ErrorIs(t, b.Do(ctx, fail), errBackend)
	require.Equal(t, StateOpen, b.State())

	// 30s later the call is refused without running the work.
	clock.Advance(30 * time.Second)
	called := false
	err := b.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.False(t, called)
	require.ErrorIs(t, err, ErrOpen)

	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "billing", openErr.Endpoint)
	assert.Equal(t, 30*time.Second, openErr.RetryIn)

	// After the timeout the next call is admitted as a trial.
	clock.Advance(30 * time.Second)
	require.NoError(t, b.Do(ctx, succeed))
	require.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Do(ctx, succeed))
	require.Equal(t, StateClosed, b.State())

	snap := b.Snapshot()
	assert.Zero(t, snap.FailureCount)
	assert.Zero(t, snap.SuccessCount)

	assert.Equal(t, []string{
		"closed->open",
		"open->half-open",
		"half-open->closed",
	}, log.list())
}

func TestBreaker_TransitionCarriesSnapshot(t *testing.T) {
	clock := newFakeClock()
	log := &transitionLog{}
	b := newTestBreaker(clock, log)
	ctx := context.Background()

	opened := clock.Now()
	for i := 0; i < 5; i++ {
		_ = b.Do(ctx, fail)
	}
	clock.Advance(60 * time.Second)
	require.NoError(t, b.Do(ctx, succeed))
	require.NoError(t, b.Do(ctx, succeed))

	require.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, log.list())
	snaps := log.snaps

	assert.Equal(t, Snapshot{
		Endpoint:     "billing",
		State:        StateOpen,
		FailureCount: 5,
		NextAttempt:  opened.Add(60 * time.Second),
	}, snaps[0])
	assert.Equal(t, StateHalfOpen, snaps[1].State)
	assert.Zero(t, snaps[1].SuccessCount)
	assert.True(t, snaps[1].NextAttempt.IsZero())
	assert.Equal(t, Snapshot{Endpoint: "billing", State: StateClosed}, snaps[2])
}

func TestSnapshot_ClosedOmitsNextAttempt(t *testing.T) {
	b := New("billing", Config{})

	data, err := json.Marshal(b.Snapshot())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "next_attempt")
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	log := &transitionLog{}
	b := newTestBreaker(clock, log)

	for i := 0; i < 5; i++ {
		_ = b.Do(ctx, fail)
	}
	clock.Advance(60 * time.Second)

	// One success is not enough; the next trial failure reopens at once.
	require.NoError(t, b.Do(ctx, succeed))
	require.Equal(t, StateHalfOpen, b.State())
	require.ErrorIs(t, b.Do(ctx, fail), errBackend)
	require.Equal(t, StateOpen, b.State())

	// The open period restarts from the trial failure.
	snap := b.Snapshot()
	assert.Equal(t, clock.Now().Add(60*time.Second), snap.NextAttempt)

	clock.Advance(59 * time.Second)
	require.ErrorIs(t, b.Do(ctx, succeed), ErrOpen)
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(newFakeClock(), &transitionLog{})

	for i := 0; i < 4; i++ {
		_ = b.Do(ctx, fail)
	}
	require.NoError(t, b.Do(ctx, succeed))
	assert.Zero(t, b.Snapshot().FailureCount)

	for i := 0; i < 4; i++ {
		_ = b.Do(ctx, fail)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := newTestBreaker(clock, &transitionLog{})

	for i := 0; i < 5; i++ {
		_ = b.Do(ctx, fail)
	}
	clock.Advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// While the trial is in flight everyone else is refused.
	err := b.Do(ctx, succeed)
	require.ErrorIs(t, err, ErrOpen)
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Zero(t, openErr.RetryIn)

	close(release)
	require.NoError(t, <-done)

	// The flag is released, so a second trial can run and close the circuit.
	require.NoError(t, b.Do(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_CanceledCallsDoNotCount(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(newFakeClock(), &transitionLog{})

	for i := 0; i < 10; i++ {
		_ = b.Do(ctx, func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Snapshot().FailureCount)
}

func TestBreaker_PanicCountsAsFailure(t *testing.T) {
	b := New("panicky", Config{FailureThreshold: 1, Now: newFakeClock().Now})

	assert.Panics(t, func() {
		_ = b.Do(context.Background(), func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	ctx := context.Background()
	log := &transitionLog{}
	b := newTestBreaker(newFakeClock(), log)

	for i := 0; i < 5; i++ {
		_ = b.Do(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Snapshot{Endpoint: "billing", State: StateClosed}, b.Snapshot())
	assert.Equal(t, []string{"closed->open", "open->closed"}, log.list())

	// Resetting a closed breaker is not a transition.
	b.Reset()
	assert.Len(t, log.list(), 2)
}

func TestExecute_ReturnsResult(t *testing.T) {
	b := New("search", Config{})
	got, err := Execute(context.Background(), b, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestStateText(t *testing.T) {
	for _, s := range []State{StateClosed, StateOpen, StateHalfOpen} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back State
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	var s State
	assert.Error(t, s.UnmarshalText([]byte("ajar")))
}
