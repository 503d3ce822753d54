package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/callguard/internal/resilience/classify"
)

func intPtr(v int) *int { return &v }

func TestState_Countdown(t *testing.T) {
	clock := NewManualClock()
	s := NewState(3, clock)

	var seen []Snapshot
	s.OnChange(func(snap Snapshot) { seen = append(seen, snap) })

	s.StartRetry(2500 * time.Millisecond)
	snap := s.Snapshot()
	assert.True(t, snap.IsRetrying)
	assert.Equal(t, 1, snap.AttemptCount)
	assert.Equal(t, intPtr(3), snap.NextRetryIn)
	assert.Equal(t, 1, clock.Active())

	clock.Tick()
	clock.Tick()
	assert.Equal(t, intPtr(1), s.Snapshot().NextRetryIn)

	clock.Tick()
	assert.Equal(t, intPtr(0), s.Snapshot().NextRetryIn)
	assert.Zero(t, clock.Active(), "countdown stops itself at zero")

	clock.Tick()
	assert.Equal(t, intPtr(0), s.Snapshot().NextRetryIn)

	require.Len(t, seen, 4)
	assert.Equal(t, intPtr(2), seen[1].NextRetryIn)
}

func TestState_CompleteRetry(t *testing.T) {
	clock := NewManualClock()
	s := NewState(3, clock)

	s.StartRetry(5 * time.Second)
	clock.Tick()
	s.CompleteRetry()

	snap := s.Snapshot()
	assert.False(t, snap.IsRetrying)
	assert.Nil(t, snap.NextRetryIn)
	assert.Equal(t, 1, snap.AttemptCount)
	assert.Zero(t, clock.Active())
}

func TestState_ResetAndCanRetry(t *testing.T) {
	clock := NewManualClock()
	s := NewState(2, clock)

	assert.True(t, s.CanRetry())
	s.StartRetry(time.Second)
	s.StartRetry(time.Second)
	assert.False(t, s.CanRetry())
	assert.Equal(t, 1, clock.Active(), "one registration per state")

	s.Reset()
	assert.True(t, s.CanRetry())
	assert.Equal(t, Snapshot{MaxAttempts: 2}, s.Snapshot())
	assert.Zero(t, clock.Active())
}

func TestState_ZeroDelayDoesNotCount(t *testing.T) {
	clock := NewManualClock()
	s := NewState(3, clock)

	s.StartRetry(0)
	assert.Equal(t, intPtr(0), s.Snapshot().NextRetryIn)
	assert.Zero(t, clock.Active())
}

func TestState_SharedClock(t *testing.T) {
	clock := NewManualClock()
	a := NewState(3, clock)
	b := NewState(3, clock)

	a.StartRetry(time.Second)
	b.StartRetry(3 * time.Second)
	assert.Equal(t, 2, clock.Active())

	clock.Tick()
	assert.Equal(t, 1, clock.Active())
	assert.Equal(t, intPtr(2), b.Snapshot().NextRetryIn)
}

func TestState_BindTracksDo(t *testing.T) {
	clock := NewManualClock()
	s := NewState(DefaultMaxAttempts, clock)

	var delays []time.Duration
	var fired []int
	cfg := recordingConfig(&delays)
	cfg.OnRetryFire = func(attempt int) { fired = append(fired, attempt) }

	var during []Snapshot
	cfg.sleep = func(_ context.Context, d time.Duration) error {
		during = append(during, s.Snapshot())
		delays = append(delays, d)
		return nil
	}

	calls := 0
	err := Run(context.Background(), s.Bind(cfg), func(context.Context) error {
		calls++
		if calls < 3 {
			return statusErr(503, nil)
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, during, 2)
	assert.True(t, during[0].IsRetrying)
	assert.Equal(t, intPtr(1), during[0].NextRetryIn)
	assert.Equal(t, 2, during[1].AttemptCount)
	assert.Equal(t, intPtr(2), during[1].NextRetryIn)
	assert.Equal(t, []int{1, 2}, fired)

	final := s.Snapshot()
	assert.False(t, final.IsRetrying)
	assert.Equal(t, 2, final.AttemptCount)
	assert.Zero(t, clock.Active())
}

func TestClock_RealTickerStopsWhenIdle(t *testing.T) {
	clock := NewClock()
	clock.interval = 5 * time.Millisecond
	s := NewState(3, clock)

	s.StartRetry(2 * time.Second)

	require.Eventually(t, func() bool {
		return clock.Active() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, intPtr(0), s.Snapshot().NextRetryIn)
}

func TestState_BindResetsOnAbandon(t *testing.T) {
	clock := NewManualClock()
	s := NewState(DefaultMaxAttempts, clock)

	var delays []time.Duration
	cfg := recordingConfig(&delays)
	cfg.sleep = func(context.Context, time.Duration) error {
		return context.Canceled
	}

	var during Snapshot
	cfg.OnRetry = func(int, classify.Failure, time.Duration) { during = s.Snapshot() }

	err := Run(context.Background(), s.Bind(cfg), func(context.Context) error {
		return statusErr(503, nil)
	})

	require.Error(t, err)
	assert.True(t, during.IsRetrying)
	assert.Equal(t, Snapshot{MaxAttempts: DefaultMaxAttempts}, s.Snapshot())
	assert.Zero(t, clock.Active())
}
