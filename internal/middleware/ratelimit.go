package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/crucial707/hci-auth/internal/metrics"
	"github.com/crucial707/hci-auth/internal/ratelimit"
)

// RateLimiter decides whether a request for key may proceed. *auth.Service implements it.
type RateLimiter interface {
	RateLimit(ctx context.Context, key string) (ratelimit.Decision, error)
}

// clientIP returns the host part of RemoteAddr. Forwarding headers are only
// reflected here after TrustedRealIP has accepted them.
func clientIP(r *http.Request) string {
	// RemoteAddr is "host:port"; the port changes per connection
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// LimiterKey derives the limiter key: the authenticated user when JWTMiddleware
// ran before, otherwise the client IP.
func LimiterKey(r *http.Request) string {
	id, ok := GetUserID(r.Context())
	return ratelimit.Key(id, ok, clientIP(r))
}

// RateLimit returns a middleware that responds 429 with Retry-After when the
// caller's key is over quota. If the limiter backend is down the request is let
// through and the failure logged.
func RateLimit(l RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := LimiterKey(r)
			d, err := l.RateLimit(r.Context(), key)
			if err != nil {
				slog.Error("rate limiter unavailable, allowing request", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				kind, _, _ := strings.Cut(key, ":")
				metrics.IncRateLimited(kind)
				seconds := int(math.Ceil(d.RetryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeError(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
