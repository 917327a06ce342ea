package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/munimike/contact-api/internal/metrics"
)

// SecurityHeaders adds security response headers. The API only serves JSON,
// so the CSP denies everything.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// Recover turns a panic into a 500 JSON response. Mount it inside CORS so the
// response still carries the CORS headers.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("panic while handling request", "panic", rec, "method", r.Method, "path", r.URL.Path)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msgInternalError})
		}()
		next.ServeHTTP(w, r)
	})
}

// Limiter decides whether the client identified by key may proceed.
// retryAfter is a hint for rejected calls.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// RateLimiter applies a Limiter per client IP to submissions. Preflight and
// GET requests pass through untouched.
type RateLimiter struct {
	limiter           Limiter
	name              string
	trustedProxyCount int
}

// NewRateLimiter wraps limiter; name labels metrics ("memory", "redis").
func NewRateLimiter(limiter Limiter, name string, trustedProxyCount int) *RateLimiter {
	return &RateLimiter{limiter: limiter, name: name, trustedProxyCount: trustedProxyCount}
}

// Middleware returns an http.Handler that enforces rate limits.
// A failing limiter backend lets the request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		ip := ClientIP(r, rl.trustedProxyCount)
		ok, retryAfter, err := rl.limiter.Allow(r.Context(), ip)
		if err != nil {
			metrics.RateLimitTotal.WithLabelValues(rl.name, "error").Inc()
			slog.Warn("rate limiter unavailable, allowing request", "limiter", rl.name, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			metrics.RateLimitTotal.WithLabelValues(rl.name, "rejected").Inc()
			w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}

		metrics.RateLimitTotal.WithLabelValues(rl.name, "allowed").Inc()
		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d.Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// ClientIP extracts the real client IP, reading from the rightmost trusted
// proxy position in X-Forwarded-For to prevent spoofing.
func ClientIP(r *http.Request, trustedProxyCount int) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" && trustedProxyCount > 0 {
		parts := strings.Split(xff, ",")
		// The rightmost entry added by our infrastructure is at
		// index len(parts) - trustedProxyCount.
		idx := len(parts) - trustedProxyCount
		if idx >= 0 && idx < len(parts) {
			if ip := strings.TrimSpace(parts[idx]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MemoryLimiter is a per-key token bucket kept in process memory.
type MemoryLimiter struct {
	limit rate.Limit
	burst int
	every time.Duration

	mu      sync.Mutex
	clients map[string]*clientBucket
	done    chan struct{}
	once    sync.Once
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows perMinute requests per key with the given burst.
// Call Close to stop the background cleanup.
func NewMemoryLimiter(perMinute, burst int) *MemoryLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	every := time.Minute / time.Duration(perMinute)
	ml := &MemoryLimiter{
		limit:   rate.Every(every),
		burst:   burst,
		every:   every,
		clients: make(map[string]*clientBucket),
		done:    make(chan struct{}),
	}
	go ml.cleanupLoop()
	return ml
}

// Allow implements Limiter.
func (ml *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := time.Now()
	ml.mu.Lock()
	b, ok := ml.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(ml.limit, ml.burst)}
		ml.clients[key] = b
	}
	b.lastSeen = now
	ml.mu.Unlock()

	if b.limiter.AllowN(now, 1) {
		return true, 0, nil
	}
	return false, ml.every, nil
}

// Close stops the cleanup goroutine.
func (ml *MemoryLimiter) Close() {
	ml.once.Do(func() { close(ml.done) })
}

// cleanupLoop periodically removes buckets idle for longer than it takes
// them to refill.
func (ml *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ml.done:
			return
		case now := <-ticker.C:
			ml.sweep(now)
		}
	}
}

func (ml *MemoryLimiter) sweep(now time.Time) {
	idle := ml.every*time.Duration(ml.burst) + time.Minute
	ml.mu.Lock()
	defer ml.mu.Unlock()
	for key, b := range ml.clients {
		if now.Sub(b.lastSeen) > idle {
			delete(ml.clients, key)
		}
	}
}
