package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("pw1")
	require.NoError(t, err)
	require.NotEqual(t, "pw1", hash)

	require.True(t, VerifyPassword(hash, "pw1"))
	require.False(t, VerifyPassword(hash, "pw2"))
}

func TestRandomHexLength(t *testing.T) {
	token, err := RandomHex(8)
	require.NoError(t, err)
	require.Len(t, token, 16)

	other, err := RandomHex(8)
	require.NoError(t, err)
	require.NotEqual(t, token, other)
}

func TestRandomDigits(t *testing.T) {
	code, err := RandomDigits(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		require.GreaterOrEqual(t, r, '0')
		require.LessOrEqual(t, r, '9')
	}
}
