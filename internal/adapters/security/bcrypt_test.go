package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	t.Parallel()

	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("lsk_0123456789ab_secret")
	require.NoError(t, err)
	assert.NotEqual(t, "lsk_0123456789ab_secret", hash)
	assert.NoError(t, h.Compare(hash, "lsk_0123456789ab_secret"))
	assert.ErrorIs(t, h.Compare(hash, "lsk_0123456789ab_other"), ErrSecretMismatch)

	err = h.Compare("not-a-bcrypt-hash", "lsk_0123456789ab_secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSecretMismatch)
}

func TestNewBcryptHasherFallsBackToDefaultCost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).cost)
	assert.Equal(t, 10, NewBcryptHasher(10).cost)
}

func TestCompareDummyAlwaysFailsAtConfiguredCost(t *testing.T) {
	t.Parallel()

	h := NewBcryptHasher(8)
	assert.ErrorIs(t, h.CompareDummy("lsk_0123456789ab_secret"), ErrSecretMismatch)
	assert.ErrorIs(t, h.CompareDummy("dummy-secret-never-issued"), ErrSecretMismatch)

	cost, err := bcrypt.Cost(h.dummy)
	require.NoError(t, err)
	assert.Equal(t, 8, cost)
}

func TestCompareDummyCostsAsMuchAsARealMismatch(t *testing.T) {
	h := NewBcryptHasher(10)
	hash, err := h.Hash("lsk_0123456789ab_secret")
	require.NoError(t, err)
	_ = h.CompareDummy("warm-up")

	measure := func(fn func()) time.Duration {
		start := time.Now()
		for i := 0; i < 3; i++ {
			fn()
		}
		return time.Since(start)
	}
	mismatch := measure(func() { _ = h.Compare(hash, "lsk_0123456789ab_other") })
	dummy := measure(func() { _ = h.CompareDummy("lsk_0123456789ab_other") })

	assert.Greater(t, dummy, mismatch/4, "dummy compare must not short-circuit")
}
