// Package security holds the credential hashing used for brand API keys.
package security

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrSecretMismatch is returned when a secret does not match its hash.
var ErrSecretMismatch = errors.New("secret does not match")

// BcryptHasher hashes brand API keys with bcrypt. Lookups that miss before a
// hash is found still pay one comparison against a dummy hash of the same
// cost, so unknown keys and wrong keys take the same time.
type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewBcryptHasher falls back to bcrypt.DefaultCost for out-of-range costs.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare returns ErrSecretMismatch for a wrong secret and any other error
// for a malformed hash.
func (h *BcryptHasher) Compare(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrSecretMismatch
	}
	return err
}

// CompareDummy burns one comparison at the configured cost and always fails.
func (h *BcryptHasher) CompareDummy(secret string) error {
	h.dummyOnce.Do(func() {
		// Cannot fail: the constructor keeps cost in range.
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("dummy-secret-never-issued"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(secret))
	return ErrSecretMismatch
}
