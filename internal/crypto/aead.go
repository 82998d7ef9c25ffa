package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// AeadKeySize is the size of AES-256-GCM keys in bytes.
const AeadKeySize = 32

// AeadNonceSize is the size of the AES-GCM nonce in bytes.
const AeadNonceSize = 12

// ErrAeadAuthFailure is returned when an AEAD open fails its tag check.
var ErrAeadAuthFailure = errors.New("crypto: aead authentication failure")

// AeadSeal encrypts pt with a fresh random 96-bit nonce under key and
// returns nonce || ciphertext || tag concatenated, matching the wire
// representation used for message payloads and wrapped secrets.
func AeadSeal(key, pt []byte) ([]byte, error) {
	if len(key) != AeadKeySize {
		return nil, fmt.Errorf("crypto: invalid aead key size: expected %d, got %d", AeadKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	nonce := make([]byte, AeadNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, pt, nil)
	return sealed, nil
}

// AeadOpen decrypts a nonce || ciphertext || tag blob produced by AeadSeal.
func AeadOpen(key, blob []byte) ([]byte, error) {
	if len(key) != AeadKeySize {
		return nil, fmt.Errorf("crypto: invalid aead key size: expected %d, got %d", AeadKeySize, len(key))
	}
	if len(blob) < AeadNonceSize {
		return nil, ErrAeadAuthFailure
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	nonce, ct := blob[:AeadNonceSize], blob[AeadNonceSize:]
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrAeadAuthFailure
	}

	return pt, nil
}
