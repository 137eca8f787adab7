package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/netsentinel/agent/internal/errs"
)

// aad is fixed per spec.md §4.8.
const aad = "nets-local-monitor"

const nonceSize = 12

// keyLen is the required AES-256 key length; put_flow rejects any other.
const keyLen = 32

// encrypt seals plaintext with AES-256-GCM under a freshly generated
// random nonce and returns nonce||ciphertext||tag. A random nonce per row
// is a required fix over reusing a fixed nonce: GCM's confidentiality
// guarantee collapses the moment the same (key, nonce) pair encrypts two
// different messages.
func encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != keyLen {
		return nil, errs.New(errs.KindEncryption, "store: encrypt", fmt.Errorf("key must be %d bytes, got %d", keyLen, len(key)))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.New(errs.KindEncryption, "store: building AES cipher", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, errs.New(errs.KindEncryption, "store: building GCM", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errs.New(errs.KindEncryption, "store: generating nonce", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, []byte(aad))
	return append(nonce, sealed...), nil
}

// randomBytes returns n cryptographically random bytes.
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, errs.New(errs.KindEncryption, "store: generating random bytes", err)
	}
	return b, nil
}

// decrypt splits the stored nonce||ciphertext||tag blob and opens it.
func decrypt(key, blob []byte) ([]byte, error) {
	if len(key) != keyLen {
		return nil, errs.New(errs.KindEncryption, "store: decrypt", fmt.Errorf("key must be %d bytes, got %d", keyLen, len(key)))
	}
	if len(blob) < nonceSize {
		return nil, errs.New(errs.KindEncryption, "store: decrypt", fmt.Errorf("blob too short to contain a nonce"))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.New(errs.KindEncryption, "store: building AES cipher", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, errs.New(errs.KindEncryption, "store: building GCM", err)
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(aad))
	if err != nil {
		return nil, errs.New(errs.KindEncryption, "store: opening sealed row", err)
	}
	return plaintext, nil
}
