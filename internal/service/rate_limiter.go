package service

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/openclaw/pairing-relay/internal/model"
)

// RateLimitDecision is the outcome of a join attempt check.
type RateLimitDecision struct {
	Allowed    bool
	RetryAfter time.Duration
	// Locked is set when this very check started a lockout.
	Locked bool
}

// JoinLimiter gates join attempts per client origin.
//
// Check counts an attempt whether or not the code turns out to be valid.
// RecordFailure is called after a refused code and locks the origin early
// once it has used up its allowance; it reports whether a lockout started.
type JoinLimiter interface {
	Check(ctx context.Context, origin string) RateLimitDecision
	RecordFailure(ctx context.Context, origin string) bool
	Prune(ctx context.Context) (int64, error)
}

type RateLimitPolicy struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
	Grace       time.Duration
}

// MemoryJoinLimiter keeps attempt history in process. A single mutex guards
// the map: checks come from connection goroutines and pruning from the
// sweeper.
type MemoryJoinLimiter struct {
	mu      sync.Mutex
	entries map[string]*model.RateLimitEntry
	policy  RateLimitPolicy
	clock   clock.Clock
}

func NewMemoryJoinLimiter(policy RateLimitPolicy, clk clock.Clock) *MemoryJoinLimiter {
	return &MemoryJoinLimiter{
		entries: make(map[string]*model.RateLimitEntry),
		policy:  policy,
		clock:   clk,
	}
}

func (l *MemoryJoinLimiter) Check(_ context.Context, origin string) RateLimitDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	e, ok := l.entries[origin]
	if !ok {
		e = &model.RateLimitEntry{WindowStart: now}
		l.entries[origin] = e
	}
	e.LastSeen = now

	if e.IsLocked(now) {
		return RateLimitDecision{RetryAfter: e.RetryAfter(now)}
	}
	if e.WindowElapsed(now, l.policy.Window) {
		e.Attempts = 0
		e.WindowStart = now
	}

	e.Attempts++
	if e.Attempts > l.policy.MaxAttempts {
		e.LockedUntil = now.Add(l.policy.Lockout)
		return RateLimitDecision{RetryAfter: l.policy.Lockout, Locked: true}
	}
	return RateLimitDecision{Allowed: true}
}

func (l *MemoryJoinLimiter) RecordFailure(_ context.Context, origin string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	e, ok := l.entries[origin]
	if !ok {
		return false
	}
	e.LastSeen = now

	if e.IsLocked(now) {
		e.LockedUntil = now.Add(l.policy.Lockout)
		return false
	}
	if e.WindowElapsed(now, l.policy.Window) || e.Attempts < l.policy.MaxAttempts {
		return false
	}
	e.LockedUntil = now.Add(l.policy.Lockout)
	return true
}

// Prune forgets origins idle beyond the grace period whose lockout is over.
func (l *MemoryJoinLimiter) Prune(_ context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	var removed int64
	for origin, e := range l.entries {
		if e.IsStale(now, l.policy.Grace) {
			delete(l.entries, origin)
			removed++
		}
	}
	return removed, nil
}

func (l *MemoryJoinLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
