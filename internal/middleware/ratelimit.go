package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// sweepFactor is how many windows pass between sweeps of expired entries.
const sweepFactor = 5

// RateLimiter is per-client fixed-window admission control. Each identity
// gets a window of length window admitting at most capacity requests; the
// window is replaced, not extended, once it has expired.
type RateLimiter struct {
	mu            sync.Mutex
	windows       map[string]*rateWindow
	capacity      int
	window        time.Duration
	trustedHeader string
	bypass        map[string]bool
	onReject      func(ctx context.Context)
	now           func() time.Time // for testing
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// Decision is the result of an admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// NewRateLimiter creates a limiter admitting capacity requests per window
// per identity. trustedHeader names the edge-proxy client IP header.
func NewRateLimiter(capacity int, window time.Duration, trustedHeader string) *RateLimiter {
	return &RateLimiter{
		windows:       make(map[string]*rateWindow),
		capacity:      capacity,
		window:        window,
		trustedHeader: trustedHeader,
		bypass:        map[string]bool{"/health": true},
		now:           time.Now,
	}
}

// OnReject registers a hook invoked for every rejected request.
func (rl *RateLimiter) OnReject(fn func(ctx context.Context)) {
	rl.onReject = fn
}

// Admit records a request from identity at now and decides whether it may
// proceed. The read-modify-write happens under a single lock acquisition.
func (rl *RateLimiter) Admit(identity string, now time.Time) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[identity]
	if !ok || now.After(w.resetAt) {
		rl.windows[identity] = &rateWindow{count: 1, resetAt: now.Add(rl.window)}
		return Decision{Allowed: true, Remaining: rl.capacity - 1}
	}

	if w.count >= rl.capacity {
		return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}
	}

	w.count++
	return Decision{Allowed: true, Remaining: rl.capacity - w.count}
}

// Handler returns HTTP middleware that enforces admission control before any
// session or simulation work. Health checks bypass it.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.bypass[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		id := ClientIP(r.Header, r.RemoteAddr, rl.trustedHeader)
		d := rl.Admit(id, rl.now())

		if !d.Allowed {
			retry := retryAfterSeconds(d.RetryAfter)
			if rl.onReject != nil {
				rl.onReject(r.Context())
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":       "rate_limited",
				"retry_after": retry,
			})
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		next.ServeHTTP(w, r)
	})
}

// StartSweeper spawns a goroutine that drops expired windows every
// sweepFactor windows, bounding memory to identities seen recently.
// Returns a cancel function that stops the goroutine.
func (rl *RateLimiter) StartSweeper() func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(sweepFactor * rl.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Sweep(rl.now())
			}
		}
	}()
	return cancel
}

// Sweep removes every window whose reset time has passed and returns how
// many were removed.
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for id, w := range rl.windows {
		if now.After(w.resetAt) {
			delete(rl.windows, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identities (for metrics and testing).
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// retryAfterSeconds rounds the remaining window to whole seconds, never
// advertising less than one.
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Round(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
