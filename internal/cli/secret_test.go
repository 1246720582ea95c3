package cli_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdscolour/clawfactory/internal/cli"
)

func TestEncryptDecryptSecret_RoundTrip(t *testing.T) {
	plaintext := []byte("API_KEY=abc123\nDB_PASSWORD=hunter2\n")

	armored, err := cli.EncryptSecret(plaintext, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(armored, "-----BEGIN AGE ENCRYPTED FILE-----"), "output should be ASCII armored")
	assert.NotContains(t, armored, "hunter2", "ciphertext must not leak the plaintext")

	decrypted, err := cli.DecryptSecret(armored, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptSecret_WrongPassphrase(t *testing.T) {
	armored, err := cli.EncryptSecret([]byte("TOKEN=secret"), "right-key")
	require.NoError(t, err)

	_, err = cli.DecryptSecret(armored, "wrong-key")
	assert.Error(t, err)
}

func TestDecryptSecret_GarbageInput(t *testing.T) {
	_, err := cli.DecryptSecret("not an age file at all", "any-key")
	assert.Error(t, err)
}
