package hasher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func fastArgon2() *Argon2Hasher {
	return NewArgon2HasherWithParams(Argon2Params{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
}

func TestArgon2Hasher(t *testing.T) {
	h := fastArgon2()

	hashed, err := h.Hash("blue")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hashed, "$argon2id$v=19$m=1024,t=1,p=1$"))

	again, err := h.Hash("blue")
	require.NoError(t, err)
	assert.NotEqual(t, hashed, again, "salt must be random")

	ok, err := h.Verify("blue", hashed)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("Blue", hashed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2HasherRejectsBadInput(t *testing.T) {
	h := fastArgon2()

	_, err := h.Hash("")
	assert.Error(t, err)

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"too few parts", "$argon2id$v=19$abc"},
		{"wrong algorithm", "$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA"},
		{"wrong version", "$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$aGFzaA"},
		{"bad salt", "$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := h.Verify("blue", tt.hash)
			assert.Error(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBcryptHasher(t *testing.T) {
	h := &BcryptHasher{Cost: bcrypt.MinCost}

	hashed, err := h.Hash("blue")
	require.NoError(t, err)

	ok, err := h.Verify("blue", hashed)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("red", hashed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMultiHasherVerifiesLegacyFormats(t *testing.T) {
	m := NewMultiHasher(fastArgon2())

	legacy, err := (&BcryptHasher{Cost: bcrypt.MinCost}).Hash("blue")
	require.NoError(t, err)
	ok, err := m.Verify("blue", legacy)
	require.NoError(t, err)
	assert.True(t, ok)

	current, err := m.Hash("blue")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(current, "$argon2id$"))
	ok, err = m.Verify("blue", current)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.Verify("blue", "plaintext")
	assert.Error(t, err)
}
