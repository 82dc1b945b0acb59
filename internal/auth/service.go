// Package auth ties the credential lifecycle together: registration, login,
// token authentication with the live version check, explicit and periodic
// revocation, and rate limiting.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/crucial707/hci-auth/internal/metrics"
	"github.com/crucial707/hci-auth/internal/models"
	"github.com/crucial707/hci-auth/internal/password"
	"github.com/crucial707/hci-auth/internal/ratelimit"
	"github.com/crucial707/hci-auth/internal/repo"
	"github.com/crucial707/hci-auth/internal/token"
)

// MaxUsernameLength bounds usernames in bytes.
const MaxUsernameLength = 80

// UserStore is the persistence the service needs. *repo.UserRepo implements it.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id int) (*models.User, error)
	BumpVersion(ctx context.Context, id int) (int, error)
	BumpAllVersions(ctx context.Context) (int64, error)
}

type Service struct {
	store     UserStore
	hasher    *password.Hasher
	issuer    *token.Issuer
	validator *token.Validator
	limiter   ratelimit.Limiter
	ttl       time.Duration
	now       func() time.Time

	// dummyHash is verified against when the username is unknown so that a
	// missing user costs the same as a wrong password.
	dummyHash string
}

func NewService(
	store UserStore,
	hasher *password.Hasher,
	issuer *token.Issuer,
	validator *token.Validator,
	limiter ratelimit.Limiter,
	ttl time.Duration,
) (*Service, error) {
	dummy, err := hasher.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	if ttl <= 0 {
		ttl = token.DefaultTTL
	}
	return &Service{
		store:     store,
		hasher:    hasher,
		issuer:    issuer,
		validator: validator,
		limiter:   limiter,
		ttl:       ttl,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// SetClock replaces the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ==========================
// Register
// ==========================
func (s *Service) Register(ctx context.Context, username, pw string) (*models.User, error) {
	if username == "" || len(username) > MaxUsernameLength {
		return nil, ErrInvalidUsername
	}
	if !utf8.ValidString(username) {
		return nil, ErrEncoding
	}

	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return nil, err
	}

	user, err := s.store.Create(ctx, username, hash)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateUsername) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// ==========================
// Login
// ==========================
// Login returns ErrInvalidCredentials for both an unknown username and a wrong
// password. ErrCorruptHash is kept distinct: it means the stored row is bad.
func (s *Service) Login(ctx context.Context, username, pw string) (token.Token, error) {
	user, err := s.store.GetByUsername(ctx, username)
	if errors.Is(err, repo.ErrNotFound) {
		_, _ = s.hasher.Verify(pw, s.dummyHash)
		metrics.IncLogin("invalid")
		return token.Token{}, ErrInvalidCredentials
	}
	if err != nil {
		metrics.IncLogin("error")
		return token.Token{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(pw, user.PasswordHash)
	if err != nil {
		slog.Error("stored password hash is corrupt", "user_id", user.ID, "error", err)
		metrics.IncLogin("error")
		return token.Token{}, err
	}
	if !ok {
		metrics.IncLogin("invalid")
		return token.Token{}, ErrInvalidCredentials
	}

	tok, err := s.issuer.Issue(user, s.now(), s.ttl)
	if err != nil {
		metrics.IncLogin("error")
		return token.Token{}, err
	}
	metrics.IncLogin("success")
	return tok, nil
}

// ==========================
// Authenticate
// ==========================
// Authenticate validates the token and then compares its version with the
// stored one. A token minted before the latest bump is ErrStaleToken.
func (s *Service) Authenticate(ctx context.Context, value string) (*models.User, error) {
	id, err := s.validator.Validate(value, s.now())
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetByID(ctx, id.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrStaleToken
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if id.Version != user.TokenVersion {
		return nil, ErrStaleToken
	}
	return user, nil
}

// RateLimit records a request for key and returns the limiter's decision.
func (s *Service) RateLimit(ctx context.Context, key string) (ratelimit.Decision, error) {
	return s.limiter.Check(ctx, key, s.now())
}

// RevokeAll invalidates every token held by one user and returns the new version.
func (s *Service) RevokeAll(ctx context.Context, userID int) (int, error) {
	v, err := s.store.BumpVersion(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("bump version: %w", err)
	}
	return v, nil
}

// Sweep invalidates every outstanding token of every user.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.store.BumpAllVersions(ctx)
}
