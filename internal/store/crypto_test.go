package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	plaintext := []byte(`{"hello":"world"}`)
	ciphertext, err := encrypt(key, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decoded, err := decrypt(key, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decoded)
}

func TestEncryptRejectsWrongKeyLength(t *testing.T) {
	_, err := encrypt([]byte("too-short"), []byte("data"))
	require.Error(t, err)
}

func TestEncryptUsesDistinctNoncesPerCall(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	a, err := encrypt(key, []byte("same plaintext"))
	require.NoError(t, err)
	b, err := encrypt(key, []byte("same plaintext"))
	require.NoError(t, err)

	require.NotEqual(t, a[:nonceSize], b[:nonceSize], "each row must get a fresh random nonce")
	require.NotEqual(t, a, b)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	ciphertext, err := encrypt(key, []byte("authentic"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = decrypt(key, ciphertext)
	require.Error(t, err)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)

	ciphertext, err := encrypt(key, []byte("secret"))
	require.NoError(t, err)

	_, err = decrypt(other, ciphertext)
	require.Error(t, err)
}
