package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHashAndVerify(t *testing.T) {
	t.Parallel()

	h := NewBcrypt(bcrypt.MinCost)
	digest, err := h.Hash("Secret123")
	require.NoError(t, err)

	assert.NotEqual(t, "Secret123", digest)
	assert.True(t, strings.HasPrefix(digest, "$2a$04$"))
	assert.True(t, h.Verify("Secret123", digest))
	assert.False(t, h.Verify("secret123", digest))
}

func TestBcryptSaltsEachDigest(t *testing.T) {
	t.Parallel()

	h := NewBcrypt(bcrypt.MinCost)
	a, err := h.Hash("Secret123")
	require.NoError(t, err)
	b, err := h.Hash("Secret123")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestBcryptVerifyMalformedDigest(t *testing.T) {
	t.Parallel()

	h := NewBcrypt(bcrypt.MinCost)
	for _, digest := range []string{"", "plain", "$2a$04$short"} {
		assert.False(t, h.Verify("Secret123", digest), digest)
	}
}

func TestBcryptRejectsLongPassword(t *testing.T) {
	t.Parallel()

	_, err := NewBcrypt(bcrypt.MinCost).Hash(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestNewBcryptClampsCost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, bcrypt.DefaultCost, NewBcrypt(1).Cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcrypt(99).Cost)
	assert.Equal(t, 12, NewBcrypt(12).Cost)
}
