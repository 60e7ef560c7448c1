package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := NewCipher("correct horse battery staple")
	require.True(t, c.Enabled())

	stored, err := c.Encrypt("my-api-secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, "enc:v1:"))
	assert.NotContains(t, stored, "my-api-secret")

	plain, err := c.Decrypt(stored)
	require.NoError(t, err)
	assert.Equal(t, "my-api-secret", plain)
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	c := NewCipher("passphrase")

	first, err := c.Encrypt("secret")
	require.NoError(t, err)
	second, err := c.Encrypt("secret")
	require.NoError(t, err)

	// Fresh salt and nonce each time.
	assert.NotEqual(t, first, second)
}

func TestEmptyPassphrasePassesThrough(t *testing.T) {
	c := NewCipher("")
	require.False(t, c.Enabled())

	stored, err := c.Encrypt("plain-secret")
	require.NoError(t, err)
	assert.Equal(t, "plain-secret", stored)

	plain, err := c.Decrypt("plain-secret")
	require.NoError(t, err)
	assert.Equal(t, "plain-secret", plain)
}

func TestDecryptPlaintextRowIsReturnedAsIs(t *testing.T) {
	c := NewCipher("passphrase")

	plain, err := c.Decrypt("legacy-plaintext-key")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plaintext-key", plain)
}

func TestDecryptWithWrongPassphraseFails(t *testing.T) {
	stored, err := NewCipher("right").Encrypt("secret")
	require.NoError(t, err)

	_, err = NewCipher("wrong").Decrypt(stored)
	require.Error(t, err)
}

func TestDecryptEncryptedValueWithoutKeyFails(t *testing.T) {
	stored, err := NewCipher("key").Encrypt("secret")
	require.NoError(t, err)

	_, err = NewCipher("").Decrypt(stored)
	require.Error(t, err)
}
