package identity

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"

	pcrypto "github.com/kindlyrobotics/parrhesia-core/internal/crypto"
)

const saltSize = 16

// storedKeypair is the on-disk JSON shape for §6.2: either raw or
// password-wrapped, distinguished by which fields are populated.
type storedKeypair struct {
	PublicKey    string `json:"publicKey"`
	SecretKey    string `json:"secretKey,omitempty"`    // raw mode
	EncryptedKey string `json:"encryptedKey,omitempty"` // wrapped mode
	Salt         string `json:"salt,omitempty"`
	IV           string `json:"iv,omitempty"`
}

// SaveRaw persists kp unencrypted: secret and public key, both base64.
func SaveRaw(path string, kp *pcrypto.SigningKeyPair) error {
	stored := storedKeypair{
		PublicKey: pcrypto.B64Encode(kp.PublicKey),
		SecretKey: pcrypto.B64Encode(kp.PrivateKey),
	}
	return writeJSON(path, stored)
}

// SaveWrapped persists kp with its secret key wrapped under a key derived
// from password via PBKDF2-SHA256 (600,000 iterations) and a fresh 16-byte
// salt, sealed with AES-256-GCM.
func SaveWrapped(path string, kp *pcrypto.SigningKeyPair, password string) error {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("identity: failed to generate salt: %w", err)
	}

	wrapKey := pcrypto.DerivePasswordKey(password, salt, "")
	blob, err := pcrypto.AeadSeal(wrapKey, kp.PrivateKey)
	if err != nil {
		return fmt.Errorf("identity: failed to wrap signing key: %w", err)
	}
	iv, ct := blob[:pcrypto.AeadNonceSize], blob[pcrypto.AeadNonceSize:]

	stored := storedKeypair{
		PublicKey:    pcrypto.B64Encode(kp.PublicKey),
		EncryptedKey: pcrypto.B64Encode(ct),
		Salt:         pcrypto.B64Encode(salt),
		IV:           pcrypto.B64Encode(iv),
	}
	return writeJSON(path, stored)
}

// Load reads the signing keypair at path. password is required when the
// stored record is wrapped and ignored otherwise.
func Load(path string, password string) (*pcrypto.SigningKeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: failed to read keystore: %w", err)
	}

	var stored storedKeypair
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("identity: failed to parse keystore: %w", err)
	}

	pub, err := pcrypto.B64Decode(stored.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid public key encoding: %w", err)
	}

	if stored.SecretKey != "" {
		secret, err := pcrypto.B64Decode(stored.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("identity: invalid secret key encoding: %w", err)
		}
		return &pcrypto.SigningKeyPair{PublicKey: pub, PrivateKey: secret}, nil
	}

	if password == "" {
		return nil, ErrPasswordRequired
	}

	salt, err := pcrypto.B64Decode(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid salt encoding: %w", err)
	}
	iv, err := pcrypto.B64Decode(stored.IV)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid iv encoding: %w", err)
	}
	ct, err := pcrypto.B64Decode(stored.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid encrypted key encoding: %w", err)
	}

	wrapKey := pcrypto.DerivePasswordKey(password, salt, "")
	secret, err := pcrypto.AeadOpen(wrapKey, append(iv, ct...))
	if err != nil {
		return nil, ErrInvalidPassword
	}

	return &pcrypto.SigningKeyPair{PublicKey: pub, PrivateKey: secret}, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: failed to encode keystore: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("identity: failed to write keystore: %w", err)
	}
	return nil
}
