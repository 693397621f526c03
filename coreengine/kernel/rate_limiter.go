package kernel

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Rate Limit Config & Result
// =============================================================================

// RateLimitConfig defines rate limiting thresholds. A zero limit disables
// that window.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	RequestsPerHour   int `json:"requests_per_hour"`
	RequestsPerDay    int `json:"requests_per_day"`
}

// DefaultRateLimitConfig returns the limits applied to API clients.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
		RequestsPerDay:    10000,
	}
}

// RateLimitResult represents the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool          `json:"allowed"`
	LimitType  string        `json:"limit_type,omitempty"` // "minute", "hour", "day"
	Current    int           `json:"current"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// =============================================================================
// Sliding Window
// =============================================================================

const bucketsPerWindow = 10

// SlidingWindow counts events over a trailing window using fixed sub-buckets.
// It is not safe for concurrent use; RateLimiter and its callers serialize access.
type SlidingWindow struct {
	window  time.Duration
	buckets map[int64]int
}

// NewSlidingWindow creates a window of the given length.
func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{window: window, buckets: make(map[int64]int)}
}

func (w *SlidingWindow) bucketSize() time.Duration {
	size := w.window / bucketsPerWindow
	if size <= 0 {
		size = 1
	}
	return size
}

func (w *SlidingWindow) bucketOf(t time.Time) int64 {
	return t.UnixNano() / int64(w.bucketSize())
}

// Record counts one event at now and drops buckets that left the window.
func (w *SlidingWindow) Record(now time.Time) int {
	w.prune(now)
	w.buckets[w.bucketOf(now)]++
	return w.Count(now)
}

// Count returns the number of events inside the window ending at now.
func (w *SlidingWindow) Count(now time.Time) int {
	minBucket := w.bucketOf(now) - bucketsPerWindow
	count := 0
	for b, c := range w.buckets {
		if b > minBucket {
			count += c
		}
	}
	return count
}

// RetryAfter returns how long until the count at now drops below limit.
func (w *SlidingWindow) RetryAfter(now time.Time, limit int) time.Duration {
	current := w.Count(now)
	if current < limit {
		return 0
	}

	minBucket := w.bucketOf(now) - bucketsPerWindow
	live := make([]int64, 0, len(w.buckets))
	for b := range w.buckets {
		if b > minBucket {
			live = append(live, b)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })

	excess := current - limit + 1
	expired := 0
	size := w.bucketSize()
	for _, b := range live {
		expired += w.buckets[b]
		if expired >= excess {
			leaves := time.Unix(0, (b+bucketsPerWindow)*int64(size))
			if d := leaves.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	return w.window
}

func (w *SlidingWindow) prune(now time.Time) {
	minBucket := w.bucketOf(now) - bucketsPerWindow
	for b := range w.buckets {
		if b <= minBucket {
			delete(w.buckets, b)
		}
	}
}

// IsEmpty reports whether the window holds no events after pruning at now.
func (w *SlidingWindow) IsEmpty(now time.Time) bool {
	w.prune(now)
	return len(w.buckets) == 0
}

// =============================================================================
// Rate Limiter
// =============================================================================

type windowKey struct {
	clientID   string
	endpoint   string
	windowType string
}

type windowCheck struct {
	windowType string
	length     time.Duration
	limit      int
}

func checksFor(cfg *RateLimitConfig) []windowCheck {
	return []windowCheck{
		{"minute", time.Minute, cfg.RequestsPerMinute},
		{"hour", time.Hour, cfg.RequestsPerHour},
		{"day", 24 * time.Hour, cfg.RequestsPerDay},
	}
}

// RateLimiter enforces per-client, per-endpoint sliding window limits.
// Thread-safe.
type RateLimiter struct {
	defaultConfig   *RateLimitConfig
	clientConfigs   map[string]*RateLimitConfig
	endpointConfigs map[string]*RateLimitConfig
	windows         map[windowKey]*SlidingWindow
	now             func() time.Time
	mu              sync.Mutex
}

// NewRateLimiter creates a new rate limiter. A nil config uses the defaults.
func NewRateLimiter(defaultConfig *RateLimitConfig) *RateLimiter {
	if defaultConfig == nil {
		defaultConfig = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		defaultConfig:   defaultConfig,
		clientConfigs:   make(map[string]*RateLimitConfig),
		endpointConfigs: make(map[string]*RateLimitConfig),
		windows:         make(map[windowKey]*SlidingWindow),
		now:             time.Now,
	}
}

// WithClock replaces the time source.
func (r *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

// SetClientLimits sets rate limits for a specific client.
func (r *RateLimiter) SetClientLimits(clientID string, config *RateLimitConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clientConfigs[clientID] = config
}

// SetEndpointLimits sets rate limits for a specific endpoint.
// Endpoint limits override client limits for that endpoint.
func (r *RateLimiter) SetEndpointLimits(endpoint string, config *RateLimitConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpointConfigs[endpoint] = config
}

func (r *RateLimiter) configLocked(clientID, endpoint string) *RateLimitConfig {
	if cfg, ok := r.endpointConfigs[endpoint]; ok && endpoint != "" {
		return cfg
	}
	if cfg, ok := r.clientConfigs[clientID]; ok {
		return cfg
	}
	return r.defaultConfig
}

// Allow checks the limits for clientID on endpoint and, when allowed,
// records the request in every window.
func (r *RateLimiter) Allow(clientID, endpoint string) *RateLimitResult {
	return r.check(clientID, endpoint, true)
}

// Peek checks the limits without recording.
func (r *RateLimiter) Peek(clientID, endpoint string) *RateLimitResult {
	return r.check(clientID, endpoint, false)
}

func (r *RateLimiter) check(clientID, endpoint string, record bool) *RateLimitResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cfg := r.configLocked(clientID, endpoint)
	checks := checksFor(cfg)

	for _, c := range checks {
		if c.limit <= 0 {
			continue
		}
		w := r.windowLocked(windowKey{clientID, endpoint, c.windowType}, c.length)
		if current := w.Count(now); current >= c.limit {
			return &RateLimitResult{
				Allowed:    false,
				LimitType:  c.windowType,
				Current:    current,
				Limit:      c.limit,
				RetryAfter: w.RetryAfter(now, c.limit),
			}
		}
	}

	result := &RateLimitResult{Allowed: true, Remaining: -1}
	for _, c := range checks {
		if c.limit <= 0 {
			continue
		}
		w := r.windowLocked(windowKey{clientID, endpoint, c.windowType}, c.length)
		current := w.Count(now)
		if record {
			current = w.Record(now)
		}
		if remaining := c.limit - current; result.Remaining < 0 || remaining < result.Remaining {
			result.Remaining = remaining
			result.LimitType = c.windowType
			result.Current = current
			result.Limit = c.limit
		}
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	return result
}

func (r *RateLimiter) windowLocked(key windowKey, length time.Duration) *SlidingWindow {
	w, ok := r.windows[key]
	if !ok {
		w = NewSlidingWindow(length)
		r.windows[key] = w
	}
	return w
}

// ResetClient drops every window of clientID and returns how many were removed.
func (r *RateLimiter) ResetClient(clientID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for key := range r.windows {
		if key.clientID == clientID {
			delete(r.windows, key)
			count++
		}
	}
	return count
}

// CleanupExpired drops empty windows. Call periodically to bound memory.
func (r *RateLimiter) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cleaned := 0
	for key, w := range r.windows {
		if w.IsEmpty(now) {
			delete(r.windows, key)
			cleaned++
		}
	}
	return cleaned
}

// WindowCount returns the number of tracked windows.
func (r *RateLimiter) WindowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}
