package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// Key and ciphertext sizes for ML-KEM-768 (FIPS 203).
const (
	KemPublicKeySize  = mlkem768.PublicKeySize
	KemPrivateKeySize = mlkem768.PrivateKeySize
	KemCiphertextSize = mlkem768.CiphertextSize
	KemSharedKeySize  = mlkem768.SharedKeySize
)

// KemKeyPair is an ephemeral ML-KEM-768 keypair. It is never persisted.
type KemKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// KemGenerateKeyPair generates a fresh ML-KEM-768 keypair.
func KemGenerateKeyPair() (*KemKeyPair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("kem: failed to generate keypair: %w", err)
	}

	pubBytes := make([]byte, KemPublicKeySize)
	privBytes := make([]byte, KemPrivateKeySize)
	pub.Pack(pubBytes)
	priv.Pack(privBytes)

	return &KemKeyPair{PublicKey: pubBytes, PrivateKey: privBytes}, nil
}

// KemEncapsulate encapsulates a fresh shared secret to peerPublicKey.
// Returns the ciphertext (send to recipient) and the shared secret (keep local).
func KemEncapsulate(peerPublicKey []byte) (ciphertext, sharedSecret []byte, err error) {
	if len(peerPublicKey) != KemPublicKeySize {
		return nil, nil, fmt.Errorf("kem: invalid public key size: expected %d, got %d", KemPublicKeySize, len(peerPublicKey))
	}

	var pub mlkem768.PublicKey
	pub.Unpack(peerPublicKey)

	ciphertext = make([]byte, KemCiphertextSize)
	sharedSecret = make([]byte, KemSharedKeySize)
	pub.EncapsulateTo(ciphertext, sharedSecret, nil)

	return ciphertext, sharedSecret, nil
}

// KemDecapsulate recovers the shared secret from ciphertext using privateKey.
//
// Per FIPS 203 implicit-rejection semantics, malformed ciphertexts yield a
// pseudorandom shared secret rather than an explicit error; callers MUST NOT
// rely on an error return to detect tampering.
func KemDecapsulate(privateKey, ciphertext []byte) ([]byte, error) {
	if len(privateKey) != KemPrivateKeySize {
		return nil, fmt.Errorf("kem: invalid private key size: expected %d, got %d", KemPrivateKeySize, len(privateKey))
	}
	if len(ciphertext) != KemCiphertextSize {
		return nil, fmt.Errorf("kem: invalid ciphertext size: expected %d, got %d", KemCiphertextSize, len(ciphertext))
	}

	var priv mlkem768.PrivateKey
	priv.Unpack(privateKey)

	sharedSecret := make([]byte, KemSharedKeySize)
	priv.DecapsulateTo(sharedSecret, ciphertext)

	return sharedSecret, nil
}
