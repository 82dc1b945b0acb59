package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/crucial707/hci-auth/internal/auth"
	"github.com/crucial707/hci-auth/internal/models"
)

type key string

const (
	userKey   key = "user"
	holderKey key = "user_holder"
)

// userHolder lets RequestLog, which runs before authentication, see who the caller was.
type userHolder struct {
	id int
}

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, holderKey, h)
}

// Authenticator resolves a bearer token to its user. *auth.Service implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, value string) (*models.User, error)
}

// JWTMiddleware rejects requests without a valid, current bearer token and
// stores the authenticated user in the request context.
func JWTMiddleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenStr == "" {
				writeError(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			user, err := a.Authenticate(r.Context(), tokenStr)
			if err != nil {
				msg, status := tokenErrorResponse(err)
				if status == http.StatusInternalServerError {
					slog.Error("authenticate failed", "path", r.URL.Path, "error", err)
				}
				writeError(w, msg, status)
				return
			}

			if h, ok := r.Context().Value(holderKey).(*userHolder); ok {
				h.id = user.ID
			}
			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenErrorResponse(err error) (string, int) {
	switch {
	case errors.Is(err, auth.ErrTamperedToken):
		return "token tampered", http.StatusUnauthorized
	case errors.Is(err, auth.ErrExpiredToken):
		return "token expired", http.StatusUnauthorized
	case errors.Is(err, auth.ErrMalformedToken):
		return "token malformed", http.StatusUnauthorized
	case errors.Is(err, auth.ErrStaleToken):
		return "token stale", http.StatusUnauthorized
	default:
		return "internal server error", http.StatusInternalServerError
	}
}

// GetUser returns the user set by JWTMiddleware.
func GetUser(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey).(*models.User)
	return u, ok && u != nil
}

// GetUserID returns the authenticated user's id.
func GetUserID(ctx context.Context) (int, bool) {
	u, ok := GetUser(ctx)
	if !ok {
		return 0, false
	}
	return u.ID, true
}

// WithUser returns ctx carrying user, as JWTMiddleware would set it.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}
