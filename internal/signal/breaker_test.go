package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	assert.Equal(t, BreakerClosed, b.State())

	assert.False(t, b.Failure())
	assert.True(t, b.Allow())
	assert.True(t, b.Failure(), "second failure should trip")
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(2, time.Minute)

	b.Failure()
	b.Success()
	assert.False(t, b.Failure())
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenTrialCall(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	b.Failure()
	assert.False(t, b.Allow())

	now = now.Add(61 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())

	// failed trial call reopens immediately
	assert.True(t, b.Failure())
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	now = now.Add(61 * time.Second)
	assert.True(t, b.Allow())
	b.Success()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(1, time.Hour)
	b.Failure()
	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half_open", BreakerHalfOpen.String())
}
