// Package ratelimit throttles requests per key: the authenticated user when
// known, otherwise the request origin.
//
// Two backends are provided. Memory keeps a token bucket per key in process
// (capacity = quota, refilled at quota per window). Redis keeps a fixed-window
// counter per key, with the window opening on the key's first request, so it
// can be shared across instances. Both admit at most 2× quota in any rolling
// window.
package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrRateLimited is returned at the boundary when a Decision rejects.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUnavailable means the backend could not be reached.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

const (
	DefaultQuota  = 100
	DefaultWindow = time.Hour
)

// Decision is the outcome of one Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is positive when Allowed is false.
	RetryAfter time.Duration
}

// Limiter records one request for key at now and decides whether to admit it.
type Limiter interface {
	Check(ctx context.Context, key string, now time.Time) (Decision, error)
}

// UserKey is the limiter key for an authenticated user.
func UserKey(userID int) string {
	return "user:" + strconv.Itoa(userID)
}

// OriginKey is the limiter key for an anonymous caller.
func OriginKey(origin string) string {
	return "ip:" + origin
}

// Key returns UserKey when the caller is authenticated, otherwise OriginKey.
func Key(userID int, authenticated bool, origin string) string {
	if authenticated {
		return UserKey(userID)
	}
	return OriginKey(origin)
}
