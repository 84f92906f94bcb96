package models

import "time"

// RateLimitWindow is a fixed-window throttle counter for one client
// identity on one endpoint class. The window resets when now − WindowStart
// exceeds the configured window size.
type RateLimitWindow struct {
	Identity    string
	Endpoint    string
	WindowStart time.Time
	Count       int
}

// Stale reports whether the window has fully elapsed.
func (w *RateLimitWindow) Stale(now time.Time, windowSize time.Duration) bool {
	return now.Sub(w.WindowStart) > windowSize
}

// RetryAfter returns the whole seconds remaining in the window, at least 1
// so a denied caller always gets an actionable wait.
func (w *RateLimitWindow) RetryAfter(now time.Time, windowSize time.Duration) int {
	remaining := windowSize - now.Sub(w.WindowStart)
	secs := int(remaining.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// LockoutRecord tracks consecutive authentication failures for one
// identity. The lock triggers at the configured threshold and self-heals
// once LockedUntil passes or on a successful authentication.
type LockoutRecord struct {
	Identity     string
	FirstAttempt time.Time
	Count        int
	LockedUntil  time.Time
}

// Locked reports whether the record holds an active lock at now.
func (l *LockoutRecord) Locked(now time.Time) bool {
	return !l.LockedUntil.IsZero() && now.Before(l.LockedUntil)
}

// LockRemaining returns the time left on an active lock, zero otherwise.
func (l *LockoutRecord) LockRemaining(now time.Time) time.Duration {
	if !l.Locked(now) {
		return 0
	}
	return l.LockedUntil.Sub(now)
}
