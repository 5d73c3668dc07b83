package concurrency

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transition struct{ from, to State }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *time.Time, *[]transition) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var seen []transition
	b := NewBreaker(cfg, func(from, to State) {
		seen = append(seen, transition{from, to})
	})
	b.now = func() time.Time { return now }
	return b, &now, &seen
}

func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{}, nil)
	assert.Equal(t, 10, b.failureThreshold)
	assert.Equal(t, 30*time.Second, b.resetTimeout)
	assert.Equal(t, 5, b.halfOpenSuccesses)
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3})
	boom := errors.New("store unavailable")

	b.Record(boom)
	b.Record(boom)
	b.Record(nil)
	b.Record(boom)
	b.Record(boom)
	assert.Equal(t, StateClosed, b.State(), "a success resets the count")
	assert.Equal(t, 2, b.ConsecutiveFailures())

	b.Record(boom)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestBreakerHalfOpenCycle(t *testing.T) {
	b, now, seen := newTestBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute, HalfOpenSuccesses: 2})
	boom := errors.New("blob download failed")

	b.Record(boom)
	require.ErrorIs(t, b.Allow(), ErrOpen)

	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	b.Record(boom)
	assert.Equal(t, StateOpen, b.State(), "a failure on probation reopens")
	assert.ErrorIs(t, b.Allow(), ErrOpen)

	*now = now.Add(2 * time.Minute)
	require.NoError(t, b.Allow())
	b.Record(nil)
	assert.Equal(t, StateHalfOpen, b.State())
	b.Record(nil)
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []transition{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, *seen)
}

func TestBreakerReset(t *testing.T) {
	b, _, _ := newTestBreaker(BreakerConfig{FailureThreshold: 1})
	b.Record(errors.New("boom"))
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.ConsecutiveFailures())
	assert.NoError(t, b.Allow())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
