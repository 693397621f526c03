package kernel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// =============================================================================
// SLIDING WINDOW TESTS
// =============================================================================

func TestSlidingWindow_CountAndExpiry(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow(time.Minute)

	assert.Equal(t, 1, w.Record(clock.Now()))
	clock.Advance(30 * time.Second)
	assert.Equal(t, 2, w.Record(clock.Now()))

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, w.Count(clock.Now()), "first event left the window")

	clock.Advance(30 * time.Second)
	assert.Equal(t, 0, w.Count(clock.Now()))
	assert.True(t, w.IsEmpty(clock.Now()))
}

func TestSlidingWindow_RetryAfter(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow(time.Minute)

	assert.Equal(t, time.Duration(0), w.RetryAfter(clock.Now(), 1))

	w.Record(clock.Now())
	assert.Equal(t, time.Minute, w.RetryAfter(clock.Now(), 1))

	clock.Advance(15 * time.Second)
	assert.Equal(t, 45*time.Second, w.RetryAfter(clock.Now(), 1))
}

// =============================================================================
// RATE LIMITER TESTS
// =============================================================================

func TestRateLimiter_MinuteLimit(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerMinute: 3, RequestsPerHour: 100}).WithClock(clock.Now)

	first := rl.Allow("client", "/v1/sessions")
	require.True(t, first.Allowed)
	assert.Equal(t, 2, first.Remaining)
	assert.Equal(t, "minute", first.LimitType)

	rl.Allow("client", "/v1/sessions")
	third := rl.Allow("client", "/v1/sessions")
	require.True(t, third.Allowed)
	assert.Equal(t, 0, third.Remaining)

	denied := rl.Allow("client", "/v1/sessions")
	assert.False(t, denied.Allowed)
	assert.Equal(t, "minute", denied.LimitType)
	assert.Equal(t, 3, denied.Current)
	assert.Equal(t, 3, denied.Limit)
	assert.Equal(t, time.Minute, denied.RetryAfter)

	// Other clients and endpoints have their own windows.
	assert.True(t, rl.Allow("other", "/v1/sessions").Allowed)
	assert.True(t, rl.Allow("client", "/v1/documents").Allowed)

	clock.Advance(time.Minute)
	assert.True(t, rl.Allow("client", "/v1/sessions").Allowed)
}

func TestRateLimiter_PeekDoesNotRecord(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerMinute: 1})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Peek("c", "e").Allowed)
	}
	assert.True(t, rl.Allow("c", "e").Allowed)
	assert.False(t, rl.Peek("c", "e").Allowed)
}

func TestRateLimiter_ConfigPrecedence(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerMinute: 1})
	rl.SetClientLimits("vip", &RateLimitConfig{RequestsPerMinute: 3})
	rl.SetEndpointLimits("/healthz", &RateLimitConfig{})

	tests := []struct {
		name     string
		client   string
		endpoint string
		allowed  int
	}{
		{"default limit", "anon", "/v1/sessions", 1},
		{"client override", "vip", "/v1/sessions", 3},
		{"endpoint override wins", "vip", "/healthz", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := 0
			for i := 0; i < 10; i++ {
				if rl.Allow(tt.client, tt.endpoint).Allowed {
					got++
				}
			}
			assert.Equal(t, tt.allowed, got)
		})
	}
}

func TestRateLimiter_ResetAndCleanup(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(nil).WithClock(clock.Now)

	rl.Allow("a", "e")
	rl.Allow("b", "e")
	assert.Equal(t, 6, rl.WindowCount())

	assert.Equal(t, 3, rl.ResetClient("a"))
	assert.Equal(t, 3, rl.WindowCount())

	assert.Equal(t, 0, rl.CleanupExpired())
	clock.Advance(25 * time.Hour)
	assert.Equal(t, 3, rl.CleanupExpired())
	assert.Equal(t, 0, rl.WindowCount())
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerMinute: 50})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if rl.Allow("c", "e").Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
