package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- SecurityHeaders middleware tests ---

func TestSecurityHeaders_SetsAllHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/api/contact", nil)
	rec := httptest.NewRecorder()
	SecurityHeaders(inner).ServeHTTP(rec, req)

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for name, want := range headers {
		if got := rec.Header().Get(name); got != want {
			t.Errorf("%s: want %q, got %q", name, want, got)
		}
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "frame-ancestors 'none'") {
		t.Errorf("CSP missing frame-ancestors: %q", csp)
	}
	if hsts := rec.Header().Get("Strict-Transport-Security"); !strings.Contains(hsts, "max-age=") {
		t.Errorf("HSTS missing max-age: %q", hsts)
	}
}

func TestSecurityHeaders_PassesThrough(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	SecurityHeaders(inner).ServeHTTP(rec, req)

	if !called {
		t.Error("inner handler was not called")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected 418, got %d", rec.Code)
	}
}

// --- Recover middleware tests ---

func TestRecover_WritesJSON500(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest("POST", "/api/contact", nil)
	rec := httptest.NewRecorder()
	Recover(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("expected JSON content type, got %q", got)
	}
}

func TestRecover_RepanicsAbortHandler(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	Recover(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", nil))
}

// --- ClientIP tests ---

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		trusted    int
		want       string
	}{
		{"remote addr only", "192.0.2.1:1234", "", 0, "192.0.2.1"},
		{"xff ignored without trusted proxies", "192.0.2.1:1234", "203.0.113.5", 0, "192.0.2.1"},
		{"rightmost trusted", "10.0.0.1:1234", "203.0.113.5", 1, "203.0.113.5"},
		{"spoofed leftmost ignored", "10.0.0.1:1234", "1.2.3.4, 203.0.113.5", 1, "203.0.113.5"},
		{"two proxies", "10.0.0.1:1234", "1.2.3.4, 203.0.113.5, 10.0.0.9", 2, "203.0.113.5"},
		{"more proxies than entries", "10.0.0.1:1234", "203.0.113.5", 3, "10.0.0.1"},
		{"remote addr without port", "192.0.2.7", "", 0, "192.0.2.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(req, tt.trusted); got != tt.want {
				t.Errorf("want %q, got %q", tt.want, got)
			}
		})
	}
}

// --- RateLimiter middleware tests ---

type fakeLimiter struct {
	keys  []string
	allow bool
	retry time.Duration
	err   error
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.retry, f.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_Rejects(t *testing.T) {
	fl := &fakeLimiter{allow: false, retry: 30 * time.Second}
	h := NewRateLimiter(fl, "fake", 0).Middleware(okHandler())

	req := httptest.NewRequest("POST", "/api/contact", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "31", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
	assert.Equal(t, []string{"192.0.2.1"}, fl.keys)
}

func TestRateLimiter_Allows(t *testing.T) {
	fl := &fakeLimiter{allow: true}
	h := NewRateLimiter(fl, "fake", 0).Middleware(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/contact", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	fl := &fakeLimiter{err: errors.New("redis: connection refused")}
	h := NewRateLimiter(fl, "fake", 0).Middleware(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/contact", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_OnlyLimitsPost(t *testing.T) {
	fl := &fakeLimiter{allow: false}
	h := NewRateLimiter(fl, "fake", 0).Middleware(okHandler())

	for _, method := range []string{"GET", "OPTIONS"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/api/contact", nil))
		assert.Equal(t, http.StatusOK, rec.Code, method)
	}
	assert.Empty(t, fl.keys)
}

func TestRateLimiter_UsesTrustedProxyIP(t *testing.T) {
	fl := &fakeLimiter{allow: true}
	h := NewRateLimiter(fl, "fake", 1).Middleware(okHandler())

	req := httptest.NewRequest("POST", "/api/contact", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "6.6.6.6, 203.0.113.5")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"203.0.113.5"}, fl.keys)
}

// --- MemoryLimiter tests ---

func TestMemoryLimiter_BurstThenBlock(t *testing.T) {
	ml := NewMemoryLimiter(5, 3)
	defer ml.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := ml.Allow(ctx, "192.0.2.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}
	ok, retry, err := ml.Allow(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 12*time.Second, retry)

	ok, _, _ = ml.Allow(ctx, "192.0.2.2")
	assert.True(t, ok, "different keys are independent")
}

func TestMemoryLimiter_SweepRemovesIdle(t *testing.T) {
	ml := NewMemoryLimiter(60, 1)
	defer ml.Close()

	_, _, _ = ml.Allow(context.Background(), "192.0.2.1")
	ml.sweep(time.Now().Add(time.Hour))

	ml.mu.Lock()
	defer ml.mu.Unlock()
	assert.Empty(t, ml.clients)
}

// --- RedisLimiter tests ---

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	rl := NewRedisLimiter(newTestRedis(t), 2, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := rl.Allow(ctx, "192.0.2.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}
	ok, retry, err := rl.Allow(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, time.Minute)

	ok, _, err = rl.Allow(ctx, "192.0.2.2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_BackendDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	_, _, err := NewRedisLimiter(client, 2, 1).Allow(context.Background(), "192.0.2.1")
	assert.Error(t, err)
}

func TestParseRedisURL(t *testing.T) {
	client, err := ParseRedisURL("redis://localhost:6379/0")
	require.NoError(t, err)
	_ = client.Close()

	_, err = ParseRedisURL("http://nope")
	assert.Error(t, err)
}
