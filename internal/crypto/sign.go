package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// Key and signature sizes for ML-DSA-65 (FIPS 204).
const (
	SigningPublicKeySize  = mldsa65.PublicKeySize
	SigningPrivateKeySize = mldsa65.PrivateKeySize
	SignatureSize         = mldsa65.SignatureSize
)

// SigningKeyPair is the long-lived ML-DSA-65 identity keypair.
type SigningKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// SigningGenerateKeyPair generates a fresh ML-DSA-65 keypair.
func SigningGenerateKeyPair() (*SigningKeyPair, error) {
	pub, priv, err := mldsa65.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("sign: failed to generate keypair: %w", err)
	}

	pubBytes := make([]byte, SigningPublicKeySize)
	privBytes := make([]byte, SigningPrivateKeySize)
	pub.Pack((*[mldsa65.PublicKeySize]byte)(pubBytes))
	priv.Pack((*[mldsa65.PrivateKeySize]byte)(privBytes))

	return &SigningKeyPair{PublicKey: pubBytes, PrivateKey: privBytes}, nil
}

// Sign produces an ML-DSA-65 signature over msg using privateKey.
func Sign(privateKey, msg []byte) ([]byte, error) {
	if len(privateKey) != SigningPrivateKeySize {
		return nil, fmt.Errorf("sign: invalid private key size: expected %d, got %d", SigningPrivateKeySize, len(privateKey))
	}

	var priv mldsa65.PrivateKey
	var arr [mldsa65.PrivateKeySize]byte
	copy(arr[:], privateKey)
	priv.Unpack(&arr)

	sig := make([]byte, SignatureSize)
	mldsa65.SignTo(&priv, msg, nil, false, sig)

	return sig, nil
}

// Verify reports whether sig is a valid ML-DSA-65 signature over msg under publicKey.
func Verify(publicKey, msg, sig []byte) bool {
	if len(publicKey) != SigningPublicKeySize || len(sig) != SignatureSize {
		return false
	}

	var pub mldsa65.PublicKey
	var arr [mldsa65.PublicKeySize]byte
	copy(arr[:], publicKey)
	pub.Unpack(&arr)

	return mldsa65.Verify(&pub, msg, nil, sig)
}
