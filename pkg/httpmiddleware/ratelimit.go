package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures a RateLimiter.
type RateLimitConfig struct {
	// Window is the period a Budget's allowance refills over.
	Window time.Duration
	// Key identifies the client a request is charged to. Defaults to ClientIP.
	Key func(*http.Request) string
}

// Budget is a per-client request allowance. Routes limited by the same
// Budget draw from one allowance.
type Budget struct {
	Name string
	Max  int
}

type bucketKey struct {
	budget string
	client string
}

// RateLimiter throttles clients with the generic cell rate algorithm: each
// bucket stores only the time at which its allowance is fully restored, and
// requests are admitted at an even rate of Max per Window with bursts of up
// to Max.
type RateLimiter struct {
	window time.Duration
	key    func(*http.Request) string
	now    func() time.Time

	mu      sync.Mutex
	buckets map[bucketKey]time.Time
}

// NewRateLimiter returns a RateLimiter. Start Run to evict idle buckets.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Key == nil {
		cfg.Key = ClientIP
	}
	return &RateLimiter{
		window:  cfg.Window,
		key:     cfg.Key,
		now:     time.Now,
		buckets: make(map[bucketKey]time.Time),
	}
}

type verdict struct {
	allowed    bool
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

func (l *RateLimiter) take(b Budget, client string) verdict {
	interval := l.window / time.Duration(b.Max)
	now := l.now()
	k := bucketKey{budget: b.Name, client: client}

	l.mu.Lock()
	defer l.mu.Unlock()

	tat := l.buckets[k]
	if tat.Before(now) {
		tat = now
	}
	next := tat.Add(interval)
	if allowAt := next.Add(-l.window); now.Before(allowAt) {
		return verdict{reset: tat, retryAfter: allowAt.Sub(now)}
	}
	l.buckets[k] = next
	return verdict{
		allowed:   true,
		remaining: int((l.window - next.Sub(now)) / interval),
		reset:     next,
	}
}

// Limit returns a middleware charging each request to b. Budgets with a
// non-positive Max disable limiting.
func (l *RateLimiter) Limit(b Budget) Middleware {
	if b.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limit := strconv.Itoa(b.Max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := l.take(b, l.key(r))

			h := w.Header()
			h.Set("X-RateLimit-Budget", b.Name)
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(ceilUnix(v.reset), 10))

			if !v.allowed {
				h.Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(v.retryAfter.Seconds())))))
				writeError(w, http.StatusTooManyRequests, "Too many "+b.Name+" requests.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Run evicts buckets whose allowance is fully restored, once per window,
// until ctx is done.
func (l *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.evict()
		}
	}
}

func (l *RateLimiter) evict() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, tat := range l.buckets {
		if !tat.After(now) {
			delete(l.buckets, k)
		}
	}
}

func ceilUnix(t time.Time) int64 {
	if t.Nanosecond() > 0 {
		return t.Unix() + 1
	}
	return t.Unix()
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
