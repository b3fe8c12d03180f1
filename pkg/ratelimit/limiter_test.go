package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(burst int, perMinute float64, ttl time.Duration) (*RateLimiter, *testClock) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(burst, perMinute, 0)
	rl.ttl = ttl
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, clock := newTestLimiter(3, 60, 0)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("user-1"), "request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow("user-1"))
	assert.True(t, rl.Allow("user-2"), "keys are independent")

	assert.InDelta(t, time.Second.Seconds(), rl.RetryAfter("user-1").Seconds(), 0.01)

	clock.Advance(2 * time.Second)
	assert.True(t, rl.Allow("user-1"))
	assert.True(t, rl.Allow("user-1"))
	assert.False(t, rl.Allow("user-1"))
}

func TestRateLimiter_Remove(t *testing.T) {
	rl, _ := newTestLimiter(1, 1, 0)

	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))
	rl.Remove("k")
	assert.True(t, rl.Allow("k"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, clock := newTestLimiter(1, 1, time.Minute)

	rl.Allow("a")
	clock.Advance(30 * time.Second)
	rl.Allow("b")
	assert.Equal(t, 2, rl.GetStats().ActiveBuckets)

	clock.Advance(45 * time.Second)
	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, 1, rl.GetStats().ActiveBuckets)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Hour)
	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl, _ := newTestLimiter(50, 1, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestMiddleware(t *testing.T) {
	m := NewMiddleware(Config{PerMinute: 1, Burst: 2})
	m.limiter.now = (&testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}).Now

	r := chi.NewRouter()
	r.With(m.Handler).Post("/users/{user_id}/check", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	call := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		res := httptest.NewRecorder()
		r.ServeHTTP(res, req)
		return res
	}

	assert.Equal(t, http.StatusOK, call("/users/u1/check").Code)
	assert.Equal(t, http.StatusOK, call("/users/u1/check").Code)

	res := call("/users/u1/check")
	assert.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Equal(t, "60", res.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["error"])

	assert.Equal(t, http.StatusOK, call("/users/u2/check").Code)
}

func TestClientIPIgnoresForwardingHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", ClientIP(req))
	assert.Equal(t, "ip:10.0.0.1", UserOrIPKey(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.1", ClientIP(req))

	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", ClientIP(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(req))
}

func TestClientIPBehindRealIP(t *testing.T) {
	var got string
	h := middleware.RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Real-IP", "203.0.113.7")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.7", got)
}

func TestUserOrIPKeyPrefersSubject(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/devices/check", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "ip:10.0.0.1", UserOrIPKey(req))

	req = req.WithContext(WithSubject(req.Context(), "user-1"))
	assert.Equal(t, "user-1", SubjectFromContext(req.Context()))
	assert.Equal(t, "user:user-1", UserOrIPKey(req))
}

func TestMiddlewareKeysOnSubjectAcrossAddresses(t *testing.T) {
	m := NewMiddleware(Config{PerMinute: 1, Burst: 2})
	defer m.Limiter().Stop()
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/devices/check", nil)
		req.RemoteAddr = fmt.Sprintf("10.0.0.%d:1234", i+1)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		req = req.WithContext(WithSubject(req.Context(), "user-1"))
		res := httptest.NewRecorder()
		h.ServeHTTP(res, req)
		if res.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}
