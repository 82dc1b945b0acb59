package auth

import (
	"errors"

	"github.com/crucial707/hci-auth/internal/password"
	"github.com/crucial707/hci-auth/internal/ratelimit"
	"github.com/crucial707/hci-auth/internal/repo"
	"github.com/crucial707/hci-auth/internal/token"
)

// Errors returned by Service. Those produced by a lower layer are the same
// values, so errors.Is works whichever package the caller imports.
var (
	ErrDuplicateUsername  = repo.ErrDuplicateUsername
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrEncoding           = password.ErrEncoding
	ErrCorruptHash        = password.ErrCorruptHash
	ErrTamperedToken      = token.ErrTampered
	ErrExpiredToken       = token.ErrExpired
	ErrMalformedToken     = token.ErrMalformed
	ErrStaleToken         = errors.New("token stale")
	ErrRateLimitExceeded  = ratelimit.ErrRateLimited
)
