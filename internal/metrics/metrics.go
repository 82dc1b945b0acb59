package metrics

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestDuration tracks HTTP request duration in seconds by method, path, status.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts HTTP requests by method, path, status.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LoginsTotal counts login attempts by result (success, invalid, error).
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of login attempts by result",
		},
		[]string{"result"},
	)

	// SweepsTotal counts revocation sweeps by result (ok, error, skipped).
	SweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_revocation_sweeps_total",
			Help: "Total number of token version sweeps by result",
		},
		[]string{"result"},
	)

	// RevokedUsersTotal counts user versions bumped by sweeps.
	RevokedUsersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_revoked_users_total",
			Help: "Total number of user token versions bumped by sweeps",
		},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter, by key kind (user, ip).
	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"kind"},
	)
)

var (
	numericPathSegment = regexp.MustCompile(`/[0-9]+(/|$)`)
	initOnce           sync.Once
)

func init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestDuration, RequestTotal, LoginsTotal, SweepsTotal, RevokedUsersTotal, RateLimitedTotal)
	})
}

// NormalizePath reduces cardinality by replacing numeric path segments with {id}.
// E.g. /users/123 -> /users/{id}.
func NormalizePath(path string) string {
	return numericPathSegment.ReplaceAllString(path, "/{id}$1")
}

// RecordRequest records duration and count for an HTTP request. Call from middleware with method, path, statusCode, duration.
func RecordRequest(method, path string, statusCode int, durationSeconds float64) {
	path = NormalizePath(path)
	status := strconv.Itoa(statusCode)
	RequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	RequestTotal.WithLabelValues(method, path, status).Inc()
}

// IncLogin increments the login counter for the given result.
func IncLogin(result string) {
	LoginsTotal.WithLabelValues(result).Inc()
}

// RecordSweep records one revocation sweep. users is the number of rows bumped.
func RecordSweep(result string, users int64) {
	SweepsTotal.WithLabelValues(result).Inc()
	if users > 0 {
		RevokedUsersTotal.Add(float64(users))
	}
}

// IncRateLimited increments the rejection counter for a key kind (user or ip).
func IncRateLimited(kind string) {
	RateLimitedTotal.WithLabelValues(kind).Inc()
}
