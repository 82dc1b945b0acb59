// Package token issues and validates HS256 access tokens that carry a
// snapshot of the user's token version.
//
// A token stays usable until it expires or until the stored version moves
// past the one it carries; the second check needs a store lookup and is left
// to the caller.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crucial707/hci-auth/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTampered  = errors.New("token tampered")
	ErrExpired   = errors.New("token expired")
	ErrMalformed = errors.New("token malformed")
)

// DefaultTTL is the access token lifetime when none is configured.
const DefaultTTL = 3 * time.Hour

// Claims is the JWT payload.
type Claims struct {
	UserID  int  `json:"uid"`
	Version *int `json:"ver"`
	jwt.RegisteredClaims
}

// Token is a signed access token and the values it was minted from.
type Token struct {
	Value     string
	UserID    int
	Version   int
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Identity is what a valid token asserts.
type Identity struct {
	UserID    int
	Version   int
	ExpiresAt time.Time
}

// ==========================
// Issuer
// ==========================
type Issuer struct {
	secret []byte
	issuer string
}

// NewIssuer returns an Issuer signing with secret. The secret is process-wide;
// changing it invalidates every outstanding token.
func NewIssuer(secret []byte, issuer string) *Issuer {
	return &Issuer{secret: secret, issuer: issuer}
}

// Issue mints a token for the user's current version, valid from now for ttl.
func (i *Issuer) Issue(user *models.User, now time.Time, ttl time.Duration) (Token, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	// JWT timestamps have second precision.
	now = now.Truncate(time.Second)
	exp := now.Add(ttl)
	version := user.TokenVersion

	claims := Claims{
		UserID:  user.ID,
		Version: &version,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}

	return Token{
		Value:     signed,
		UserID:    user.ID,
		Version:   version,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// ==========================
// Validator
// ==========================
type Validator struct {
	secret []byte
	issuer string
}

func NewValidator(secret []byte, issuer string) *Validator {
	return &Validator{secret: secret, issuer: issuer}
}

// Validate checks signature, then expiry, then structure, and returns the
// first failure as ErrTampered, ErrExpired or ErrMalformed. It does not look
// at the stored version.
func (v *Validator) Validate(value string, now time.Time) (Identity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		// jwt treats now == exp as expired; a token is valid through its expiry instant.
		jwt.WithTimeFunc(func() time.Time { return now.Add(-time.Nanosecond) }),
	)

	// The parser decodes claims before it checks the signature, so a forged
	// payload of the wrong shape would surface as malformed. Verify first.
	if err := v.verifySignature(parser, value); err != nil {
		return Identity{}, err
	}

	claims := &Claims{}
	_, err := parser.ParseWithClaims(value, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return Identity{}, ErrTampered
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, ErrExpired
	default:
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if claims.UserID <= 0 || claims.Version == nil || *claims.Version < 0 {
		return Identity{}, ErrMalformed
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return Identity{}, ErrMalformed
	}

	return Identity{
		UserID:    claims.UserID,
		Version:   *claims.Version,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// verifySignature checks the HS256 signature over header.payload whatever
// the header or payload contain.
func (v *Validator) verifySignature(parser *jwt.Parser, value string) error {
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: token has %d segments", ErrMalformed, len(parts))
	}
	sig, err := parser.DecodeSegment(parts[2])
	if err != nil {
		return ErrTampered
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, v.secret); err != nil {
		return ErrTampered
	}
	return nil
}
