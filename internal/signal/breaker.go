package signal

import (
	"sync"
	"time"
)

// BreakerState is the state of a source circuit breaker.
type BreakerState int

// Circuit breaker states
const (
	BreakerClosed   BreakerState = iota // normal operation
	BreakerOpen                         // tripped, source not polled
	BreakerHalfOpen                     // one trial call allowed
)

// String returns the lower-case state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Default breaker settings.
const (
	DefaultBreakerThreshold = 3
	DefaultBreakerReset     = time.Minute
)

// Breaker trips a source open after consecutive failures.
// After the reset delay one trial call is allowed; success closes it, failure reopens it.
type Breaker struct {
	mu         sync.Mutex
	state      BreakerState
	failures   int
	threshold  int
	resetDelay time.Duration
	openedAt   time.Time
	now        func() time.Time
}

// NewBreaker creates a closed breaker. Non-positive arguments take defaults.
func NewBreaker(threshold int, resetDelay time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if resetDelay <= 0 {
		resetDelay = DefaultBreakerReset
	}
	return &Breaker{
		state:      BreakerClosed,
		threshold:  threshold,
		resetDelay: resetDelay,
		now:        time.Now,
	}
}

// Allow reports whether the source may be polled now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.resetDelay {
			return false
		}
		b.state = BreakerHalfOpen
		return true
	default:
		return true
	}
}

// Success records a successful poll.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}

// Failure records a failed poll and reports whether the breaker tripped.
func (b *Breaker) Failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		tripped := b.state != BreakerOpen
		b.state = BreakerOpen
		b.openedAt = b.now()
		return tripped
	}
	return false
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forcibly closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}
