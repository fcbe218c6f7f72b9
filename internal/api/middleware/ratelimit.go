package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/caretalk/caretalk/internal/metrics"
	"github.com/caretalk/caretalk/internal/store"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiter enforces per-endpoint request limits backed by Redis
// counters. Room creation is throttled per identity; everything else falls
// back to the client IP.
type RateLimiter struct {
	redis  *store.RedisStore
	limits map[string]RateLimit
	logger zerolog.Logger
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(redis *store.RedisStore, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redis,
		logger: logger,
		limits: map[string]RateLimit{
			"POST /rooms":  {30, time.Hour, identityKey},
			"GET /rooms/":  {240, time.Minute, identityOrIPKey},
			"POST /rooms/": {120, time.Minute, identityKey},
			"GET /ws":      {30, time.Minute, ipKey},
			"GET /healthz": {120, time.Minute, ipKey},
		},
	}
}

// ipKey returns a rate limit key based on client IP.
func ipKey(r *http.Request) string {
	return "ip:" + RealIP(r)
}

// identityKey returns a rate limit key based on the authenticated identity.
func identityKey(r *http.Request) string {
	identity := GetIdentityFromContext(r.Context())
	if identity.ID == "" {
		return "ip:" + RealIP(r)
	}
	return "identity:" + identity.ID
}

// identityOrIPKey returns the identity key if authenticated, otherwise IP.
func identityOrIPKey(r *http.Request) string {
	return identityKey(r)
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, pattern := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		allowed, err := rl.redis.Allow(r.Context(), pattern, key, limit.Requests, limit.Window)
		if err != nil {
			// Redis trouble must not take requests down with it.
			rl.logger.Warn().Err(err).Str("endpoint", r.URL.Path).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))

		if !allowed {
			metrics.RateLimitHits.WithLabelValues(pattern).Inc()
			rl.logger.Warn().
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit finds the rate limit governing a request. The longest matching
// pattern wins, so "POST /rooms/{id}/uploads" is governed by "POST /rooms/"
// rather than the room-creation budget of "POST /rooms".
func (rl *RateLimiter) findLimit(r *http.Request) (*RateLimit, string) {
	key := r.Method + " " + r.URL.Path

	var best string
	for pattern := range rl.limits {
		if strings.HasPrefix(key, pattern) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best == "" {
		return nil, ""
	}
	l := rl.limits[best] // Copy to avoid pointer issues
	return &l, best
}
