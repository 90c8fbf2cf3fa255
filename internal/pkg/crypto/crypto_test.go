package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EncryptDecrypt(t *testing.T) {
	u, err := NewUtil("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	ciphertext, err := u.Encrypt([]byte(`{"refresh_token":"abc"}`))
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "refresh_token")

	plaintext, err := u.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, `{"refresh_token":"abc"}`, string(plaintext))
}

func Test_DecryptErrors(t *testing.T) {
	u, err := NewUtil("0123456789abcdef")
	require.NoError(t, err)

	_, err = u.Decrypt([]byte("short"))
	assert.EqualError(t, err, "ciphertext too short")

	other, err := NewUtil("fedcba9876543210")
	require.NoError(t, err)
	ciphertext, err := other.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = u.Decrypt(ciphertext)
	assert.Error(t, err)
}

func Test_InvalidKey(t *testing.T) {
	_, err := NewUtil("too-short")
	assert.ErrorContains(t, err, "creating new aes cipher")
}
