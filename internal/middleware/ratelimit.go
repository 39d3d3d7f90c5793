package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/pairing-relay/internal/audit"
	apperrors "github.com/openclaw/pairing-relay/internal/errors"
	"github.com/openclaw/pairing-relay/internal/httputil"
	"github.com/openclaw/pairing-relay/internal/util"
)

const (
	maxEntries      = 10000
	cleanupInterval = time.Minute
	entryTTL        = 5 * time.Minute
	windowDuration  = time.Minute
)

type rateLimitEntry struct {
	timestamps []time.Time
	lastAccess time.Time
}

// RateLimiter is an in-memory sliding window limiter keyed by client origin.
type RateLimiter struct {
	mu          sync.Mutex
	store       map[string]*rateLimitEntry
	lastCleanup time.Time
	clock       clock.Clock
}

func NewRateLimiter(clk clock.Clock) *RateLimiter {
	return &RateLimiter{
		store:       make(map[string]*rateLimitEntry),
		lastCleanup: clk.Now(),
		clock:       clk,
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, entry := range rl.store {
		if now.Sub(entry.lastAccess) > entryTTL {
			delete(rl.store, key)
		}
	}

	if len(rl.store) > maxEntries {
		oldest := make([]string, 0, len(rl.store)/5)
		for key := range rl.store {
			oldest = append(oldest, key)
			if len(oldest) >= len(rl.store)/5 {
				break
			}
		}
		for _, key := range oldest {
			delete(rl.store, key)
		}
	}
}

// Check records a request for key and reports whether it fits in limit per
// minute, along with when the oldest request leaves the window.
func (rl *RateLimiter) Check(key string, limit int) (allowed bool, remaining int, resetAt time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	rl.cleanup(now)
	windowStart := now.Add(-windowDuration)

	entry, exists := rl.store[key]
	if !exists {
		entry = &rateLimitEntry{
			timestamps: make([]time.Time, 0),
		}
		rl.store[key] = entry
	}
	entry.lastAccess = now

	filtered := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			filtered = append(filtered, ts)
		}
	}
	entry.timestamps = filtered

	remaining = limit - len(entry.timestamps)
	if remaining < 0 {
		remaining = 0
	}

	if len(entry.timestamps) > 0 {
		resetAt = entry.timestamps[0].Add(windowDuration)
	} else {
		resetAt = now.Add(windowDuration)
	}

	if len(entry.timestamps) >= limit {
		return false, 0, resetAt
	}

	entry.timestamps = append(entry.timestamps, now)
	return true, remaining - 1, resetAt
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.store)
}

// ConnectRateLimitMiddleware caps WebSocket upgrade requests per client
// origin before any connection state is allocated.
type ConnectRateLimitMiddleware struct {
	limiter *RateLimiter
	limit   int
}

func NewConnectRateLimitMiddleware(limiter *RateLimiter, limitPerMin int) *ConnectRateLimitMiddleware {
	return &ConnectRateLimitMiddleware{
		limiter: limiter,
		limit:   limitPerMin,
	}
}

func (m *ConnectRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := util.OriginKey(util.ClientIP(r))
		allowed, remaining, resetAt := m.limiter.Check(key, m.limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			log.Warn().Str("origin", key).Msg("connect rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed, Origin: key})
			httputil.WriteError(w, apperrors.RateLimited(resetAt.Sub(m.limiter.clock.Now())))
			return
		}

		next.ServeHTTP(w, r)
	})
}
