package kernel

import (
	"time"
)

// CleanupConfig holds configurable cleanup parameters.
type CleanupConfig struct {
	// Interval is how often to run cleanup (default: 5 minutes).
	Interval time.Duration
	// SessionRetention is how long converged or closed sessions are kept
	// after their last activity (default: 1 hour).
	SessionRetention time.Duration
}

// DefaultCleanupConfig returns default cleanup configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Interval:         5 * time.Minute,
		SessionRetention: time.Hour,
	}
}

// StartCleanupLoop starts a background goroutine that periodically performs cleanup.
// Returns a stop function that should be called to stop the cleanup loop.
func (k *Kernel) StartCleanupLoop(cfg CleanupConfig) func() {
	if cfg.Interval == 0 {
		cfg = DefaultCleanupConfig()
	}

	ticker := time.NewTicker(cfg.Interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				k.Cleanup(cfg.SessionRetention)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}

// Cleanup deletes terminal sessions idle for longer than retention and drops
// empty rate limit windows. Returns the number of sessions removed.
func (k *Kernel) Cleanup(retention time.Duration) int {
	cutoff := k.now().Add(-retention)

	var stale []string
	k.mu.RLock()
	for id, s := range k.sessions {
		if s.State().IsTerminal() && s.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	k.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if err := k.DeleteSession(id); err == nil {
			removed++
		}
	}
	windows := k.rateLimiter.CleanupExpired()

	if removed > 0 || windows > 0 {
		k.logger.Debug("kernel_cleanup_completed", "sessions_removed", removed, "windows_removed", windows)
	}
	return removed
}
