package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_UnderLimit(t *testing.T) {
	l := New(Config{Max: 3, Window: time.Minute})
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	for i := range 2 {
		d := l.Fail("cart-1", now)
		assert.True(t, d.Allowed, "failure %d should not block", i+1)
		assert.Equal(t, 2-i, d.Remaining)
		assert.Zero(t, d.RetryAfter)
	}
	assert.True(t, l.Check("cart-1", now).Allowed)
}

func TestLimiter_CheckDoesNotRecord(t *testing.T) {
	l := New(Config{Max: 1, Window: time.Minute})
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	for range 10 {
		require.True(t, l.Check("cart-1", now).Allowed)
	}
	assert.Equal(t, 0, l.Len())
}

func TestLimiter_OverLimit(t *testing.T) {
	l := New(Config{Max: 2, Window: time.Minute})
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	l.Fail("cart-1", now)
	d := l.Fail("cart-1", now.Add(10*time.Second))
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, time.Minute, d.RetryAfter)

	d = l.Check("cart-1", now.Add(20*time.Second))
	assert.False(t, d.Allowed)
	assert.Equal(t, 40*time.Second, d.RetryAfter)

	// Other carts are independent.
	assert.True(t, l.Check("cart-2", now).Allowed)
}

func TestLimiter_OldestFailureExpires(t *testing.T) {
	l := New(Config{Max: 2, Window: time.Minute})
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	l.Fail("cart-1", start)
	l.Fail("cart-1", start.Add(30*time.Second))
	require.False(t, l.Check("cart-1", start.Add(59*time.Second)).Allowed)

	// The first failure ages out exactly one window after it happened.
	d := l.Check("cart-1", start.Add(time.Minute))
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d = l.Fail("cart-1", start.Add(time.Minute))
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Second, d.RetryAfter)
}

func TestLimiter_ResetAndCleanup(t *testing.T) {
	l := New(Config{Max: 1, Window: time.Minute})
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	l.Fail("a", now)
	l.Fail("b", now)
	require.Equal(t, 2, l.Len())
	require.False(t, l.Check("a", now).Allowed)

	l.Reset("a")
	assert.True(t, l.Check("a", now).Allowed)

	l.Cleanup(now.Add(time.Minute))
	assert.Equal(t, 0, l.Len())
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(Config{})
	for range 100 {
		require.True(t, l.Fail("s", time.Now()).Allowed)
	}
	assert.True(t, l.Check("s", time.Now()).Allowed)
	assert.Equal(t, 0, l.Len())
}
