package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	idmerrors "github.com/tendant/simple-idm-twofactor/pkg/errors"
)

// Config holds rate limiting configuration
type Config struct {
	// Sustained requests per minute per key
	PerMinute float64
	// Max burst per key
	Burst int
	// How long to keep inactive buckets in memory
	BucketTTL time.Duration
	// KeyFunc derives the bucket key; defaults to UserOrIPKey
	KeyFunc func(r *http.Request) string
}

// DefaultConfig allows 10 attempts per minute with a burst of 5.
func DefaultConfig() Config {
	return Config{
		PerMinute: 10,
		Burst:     5,
		BucketTTL: time.Hour,
	}
}

// Middleware rate limits requests per key
type Middleware struct {
	limiter *RateLimiter
	keyFunc func(r *http.Request) string
}

// NewMiddleware creates a new rate limiting middleware
func NewMiddleware(config Config) *Middleware {
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = UserOrIPKey
	}
	return &Middleware{
		limiter: NewRateLimiter(config.Burst, config.PerMinute, config.BucketTTL),
		keyFunc: keyFunc,
	}
}

// Limiter returns the underlying limiter.
func (m *Middleware) Limiter() *RateLimiter {
	return m.limiter
}

// Handler returns the rate limiting middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.keyFunc(r)
		if !m.limiter.Allow(key) {
			m.rateLimitExceeded(w, r, key)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, key string) {
	retryAfter := int(math.Ceil(m.limiter.RetryAfter(key).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	slog.Warn("Rate limit exceeded",
		"key", key,
		"path", r.URL.Path,
		"method", r.Method,
	)

	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	idmerrors.Render(w, r, idmerrors.RateLimitExceeded(fmt.Sprintf("%d", retryAfter)))
}

type subjectKey struct{}

// WithSubject records the user a request acts on, for routes that address the
// user outside the path. UserOrIPKey prefers it over every other key.
func WithSubject(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, subjectKey{}, userID)
}

// SubjectFromContext returns the user recorded by WithSubject.
func SubjectFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(subjectKey{}).(string)
	return userID
}

// UserOrIPKey keys by the target user when known, otherwise by client IP.
func UserOrIPKey(r *http.Request) string {
	if userID := SubjectFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	if userID := chi.URLParam(r, "user_id"); userID != "" {
		return "user:" + userID
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are ignored;
// mount chi's middleware.RealIP in front when running behind a trusted proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
