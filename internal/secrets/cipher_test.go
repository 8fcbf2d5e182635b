package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	t.Parallel()

	c, err := NewCipher("process-secret")
	require.NoError(t, err)

	ct, err := c.Encrypt("AIzaSyExampleKey")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ct, "v1:"))
	assert.NotContains(t, ct, "AIzaSyExampleKey")

	pt, err := c.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "AIzaSyExampleKey", pt)
}

func TestCipher_NonceIsRandom(t *testing.T) {
	t.Parallel()

	c, err := NewCipher("process-secret")
	require.NoError(t, err)

	a, _ := c.Encrypt("same")
	b, _ := c.Encrypt("same")
	assert.NotEqual(t, a, b)
}

func TestCipher_WrongSecret(t *testing.T) {
	t.Parallel()

	c1, _ := NewCipher("secret-one")
	c2, _ := NewCipher("secret-two")

	ct, err := c1.Encrypt("key")
	require.NoError(t, err)

	_, err = c2.Decrypt(ct)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestCipher_Malformed(t *testing.T) {
	t.Parallel()

	c, _ := NewCipher("secret")
	for _, in := range []string{"", "plain", "v2:abcd", "v1:!!!", "v1:YWJj"} {
		_, err := c.Decrypt(in)
		assert.ErrorIs(t, err, ErrMalformed, in)
	}
}

func TestCipher_TamperedCiphertext(t *testing.T) {
	t.Parallel()

	c, _ := NewCipher("secret")
	ct, _ := c.Encrypt("key")

	b := []byte(ct)
	i := len("v1:") + 30
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	tampered := string(b)

	_, err := c.Decrypt(tampered)
	assert.Error(t, err)
}

func TestNewCipher_EmptySecret(t *testing.T) {
	t.Parallel()

	_, err := NewCipher("  ")
	assert.ErrorIs(t, err, ErrEmptySecret)
}
