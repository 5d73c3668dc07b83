// Package concurrency sizes the worker pool and protects the import
// pipeline from hammering a failing store or blob backend.
package concurrency

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker rejects work.
var ErrOpen = errors.New("circuit breaker is open")

// State is the state of a Breaker.
type State int32

const (
	// StateClosed lets all work through
	StateClosed State = iota

	// StateOpen rejects work until the reset timeout elapses
	StateOpen

	// StateHalfOpen lets work through on probation
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a Breaker. Zero values take the defaults.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Default 10.
	FailureThreshold int

	// ResetTimeout is how long the breaker stays open. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenSuccesses is the number of consecutive successes that closes a
	// half-open breaker. Default 5.
	HalfOpenSuccesses int
}

// Breaker counts consecutive failures of an operation and stops callers from
// starting new work once a threshold is crossed.
type Breaker struct {
	mu                sync.Mutex
	state             State
	failures          int
	successes         int
	openedAt          time.Time
	failureThreshold  int
	resetTimeout      time.Duration
	halfOpenSuccesses int
	onChange          func(from, to State)
	now               func() time.Time
}

// NewBreaker creates a closed breaker. onChange, when not nil, is called on
// every state transition while the breaker lock is held; it must not call
// back into the breaker.
func NewBreaker(cfg BreakerConfig, onChange func(from, to State)) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 10
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = 5
	}
	return &Breaker{
		failureThreshold:  cfg.FailureThreshold,
		resetTimeout:      cfg.ResetTimeout,
		halfOpenSuccesses: cfg.HalfOpenSuccesses,
		onChange:          onChange,
		now:               time.Now,
	}
}

// Allow returns ErrOpen while the breaker is open. An open breaker whose
// reset timeout has elapsed moves to half-open and allows work.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.resetTimeout {
		return ErrOpen
	}
	b.transition(StateHalfOpen)
	return nil
}

// Record counts the result of one operation; a nil err is a success.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.successes++
			if b.successes >= b.halfOpenSuccesses {
				b.transition(StateClosed)
			}
		}
		return
	}

	b.successes = 0
	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.failureThreshold {
			b.open()
		}
	case StateHalfOpen:
		b.open()
	}
}

// State returns the current state without advancing an expired open breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the failures recorded since the last success.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failures = 0
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.successes = 0
	if to == StateClosed {
		b.failures = 0
	}
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
