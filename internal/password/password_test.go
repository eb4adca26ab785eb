package password

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("correct horse battery staple")
	require.NoError(t, err)
	require.Contains(t, hash, "$argon2id$")

	ok, err := Verify("correct horse battery staple", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify("wrong password", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashUnique(t *testing.T) {
	a, err := Hash("same input")
	require.NoError(t, err)
	b, err := Hash("same input")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

// Accounts created through the IdP flow carry no password hash. They
// must never be reachable with a password, even an empty one.
func TestVerifyEmptyStoredHash(t *testing.T) {
	ok, err := Verify("", "")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = Verify("anything", "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyMalformedHash(t *testing.T) {
	ok, _ := Verify("password", "not-a-valid-hash")
	require.False(t, ok)
}
