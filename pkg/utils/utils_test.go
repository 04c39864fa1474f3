package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cheap = Argon2Hasher{Params: Argon2Params{Memory: 64, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}}

func TestArgon2RoundTrip(t *testing.T) {
	encoded, err := cheap.Hash("hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=64,t=1,p=1$"))

	ok, err := cheap.Verify("hunter2", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cheap.Verify("hunter3", encoded)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := cheap.Hash("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, again, "salt is random")
}

func TestArgon2VerifyUsesStoredParams(t *testing.T) {
	encoded, err := cheap.Hash("pw")
	require.NoError(t, err)

	other := Argon2Hasher{Params: Argon2Params{Memory: 128, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32}}
	ok, err := other.Verify("pw", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArgon2VerifyRejectsMalformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=64,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=1$m=64,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$bogus$c2FsdA$a2V5",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$a2V5",
	} {
		_, err := cheap.Verify("pw", encoded)
		assert.ErrorIs(t, err, ErrInvalidHash, encoded)
	}
}

func TestValidateUsername(t *testing.T) {
	valid := []string{"bob", "ab", "_bob", "Alice 01", "zoë", strings.Repeat("é", MaxUsernameLength)}
	for _, u := range valid {
		assert.NoError(t, ValidateUsername(u), u)
	}
	invalid := []string{"", "   ", " bob", "bob\t", strings.Repeat("a", MaxUsernameLength+1)}
	for _, u := range invalid {
		var verr *ValidationError
		assert.ErrorAs(t, ValidateUsername(u), &verr, u)
	}
}

func TestValidatePasswordAndBio(t *testing.T) {
	assert.Error(t, ValidatePassword("abc"))
	assert.NoError(t, ValidatePassword("abcd"))
	assert.NoError(t, ValidatePassword("ßßßß"))

	assert.NoError(t, ValidateBio(strings.Repeat("é", MaxBioLength)))
	assert.Error(t, ValidateBio(strings.Repeat("é", MaxBioLength+1)))
}
