// Package password hashes and verifies user passwords with bcrypt.
package password

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEncoding is returned for a password that is not valid UTF-8.
	ErrEncoding = errors.New("password encoding error")
	// ErrCorruptHash means a stored hash is not a valid bcrypt string.
	ErrCorruptHash = errors.New("corrupt password hash")
)

// maxBytes is the bcrypt input limit.
const maxBytes = 72

// Hasher hashes passwords with a fixed bcrypt cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher. cost 0 selects bcrypt.DefaultCost.
func NewHasher(cost int) (*Hasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Hasher{cost: cost}, nil
}

// Hash returns a salted bcrypt hash; two calls with the same password differ.
func (h *Hasher) Hash(password string) (string, error) {
	if !utf8.ValidString(password) {
		return "", ErrEncoding
	}
	b, err := bcrypt.GenerateFromPassword(bcryptInput(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

// Verify reports whether password matches hash. A wrong password is (false, nil);
// only a structurally invalid hash returns an error.
func (h *Hasher) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrCorruptHash, err)
	}
}

// bcryptInput returns the bytes fed to bcrypt. bcrypt rejects input over 72
// bytes, so longer passwords are replaced by the base64 SHA-256 digest (44 bytes).
func bcryptInput(password string) []byte {
	if len(password) <= maxBytes {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// Cost returns the work factor used by Hash.
func (h *Hasher) Cost() int {
	return h.cost
}
