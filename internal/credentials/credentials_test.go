package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestStore(t *testing.T) {
	s, err := New(bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("verifies correct password", func(t *testing.T) {
		hash, err := s.Hash("Abcdefg1!")
		require.NoError(t, err)
		assert.True(t, s.Verify("Abcdefg1!", hash))
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		hash, err := s.Hash("Abcdefg1!")
		require.NoError(t, err)
		assert.False(t, s.Verify("abcdefg1!", hash))
	})

	t.Run("salts every hash", func(t *testing.T) {
		a, err := s.Hash("Abcdefg1!")
		require.NoError(t, err)
		b, err := s.Hash("Abcdefg1!")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
		assert.NotContains(t, a, "Abcdefg1!")
	})

	t.Run("rejects malformed hash", func(t *testing.T) {
		assert.False(t, s.Verify("Abcdefg1!", "not-a-hash"))
	})

	t.Run("absent user never verifies", func(t *testing.T) {
		assert.False(t, s.VerifyAbsent("carecrypt-dummy-password"))
	})
}

func TestNewRejectsBadCost(t *testing.T) {
	_, err := New(2)
	assert.Error(t, err)

	_, err = New(40)
	assert.Error(t, err)
}
