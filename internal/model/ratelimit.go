package model

import "time"

// RateLimitEntry is the join attempt history of one client origin.
type RateLimitEntry struct {
	Attempts    int
	WindowStart time.Time
	LockedUntil time.Time
	LastSeen    time.Time
}

func (e *RateLimitEntry) IsLocked(now time.Time) bool {
	return now.Before(e.LockedUntil)
}

func (e *RateLimitEntry) RetryAfter(now time.Time) time.Duration {
	if !e.IsLocked(now) {
		return 0
	}
	return e.LockedUntil.Sub(now)
}

func (e *RateLimitEntry) WindowElapsed(now time.Time, window time.Duration) bool {
	return now.Sub(e.WindowStart) >= window
}

// IsStale reports whether the entry can be forgotten: idle beyond grace and
// not serving a lockout.
func (e *RateLimitEntry) IsStale(now time.Time, grace time.Duration) bool {
	return now.Sub(e.LastSeen) > grace && !e.IsLocked(now)
}
