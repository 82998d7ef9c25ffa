package identity

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	pcrypto "github.com/kindlyrobotics/parrhesia-core/internal/crypto"
)

// MessageRecord is one entry in the local message history log.
type MessageRecord struct {
	ID        string    `json:"id"`
	PeerID    string    `json:"peerId"`
	Plaintext string    `json:"plaintext"`
	Epoch     uint64    `json:"epoch"`
	Counter   uint64    `json:"counter"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessageRecord stamps a record with a fresh correlation ID.
func NewMessageRecord(peerID, plaintext string, epoch, counter uint64) MessageRecord {
	return MessageRecord{
		ID:        uuid.New().String(),
		PeerID:    peerID,
		Plaintext: plaintext,
		Epoch:     epoch,
		Counter:   counter,
		Timestamp: time.Now(),
	}
}

type storedHistory struct {
	Salt string          `json:"salt,omitempty"`
	IV   string          `json:"iv,omitempty"`
	Blob string          `json:"blob,omitempty"`
	Raw  []MessageRecord `json:"raw,omitempty"`
}

// SaveHistory persists records to path. When password is non-empty the log
// is AEAD-sealed under a key derived via PBKDF2 with the "-messages" info
// suffix and an independent salt from the signing-keypair wrap; otherwise
// it is stored as plain JSON.
func SaveHistory(path string, records []MessageRecord, password string) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("identity: failed to encode history: %w", err)
	}

	if password == "" {
		return writeJSON(path, storedHistory{Raw: records})
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("identity: failed to generate history salt: %w", err)
	}
	key := pcrypto.DerivePasswordKey(password, salt, "-messages")

	blob, err := pcrypto.AeadSeal(key, data)
	if err != nil {
		return fmt.Errorf("identity: failed to seal history: %w", err)
	}
	iv, ct := blob[:pcrypto.AeadNonceSize], blob[pcrypto.AeadNonceSize:]

	return writeJSON(path, storedHistory{
		Salt: pcrypto.B64Encode(salt),
		IV:   pcrypto.B64Encode(iv),
		Blob: pcrypto.B64Encode(ct),
	})
}

// LoadHistory reads message history from path, unsealing it with password
// when the stored log is sealed.
func LoadHistory(path string, password string) ([]MessageRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: failed to read history: %w", err)
	}

	var stored storedHistory
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("identity: failed to parse history: %w", err)
	}

	if stored.Blob == "" {
		return stored.Raw, nil
	}

	if password == "" {
		return nil, ErrPasswordRequired
	}

	salt, err := pcrypto.B64Decode(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid history salt encoding: %w", err)
	}
	iv, err := pcrypto.B64Decode(stored.IV)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid history iv encoding: %w", err)
	}
	ct, err := pcrypto.B64Decode(stored.Blob)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid history blob encoding: %w", err)
	}

	key := pcrypto.DerivePasswordKey(password, salt, "-messages")
	plain, err := pcrypto.AeadOpen(key, append(iv, ct...))
	if err != nil {
		return nil, ErrInvalidPassword
	}

	var records []MessageRecord
	if err := json.Unmarshal(plain, &records); err != nil {
		return nil, fmt.Errorf("identity: failed to parse sealed history: %w", err)
	}
	return records, nil
}
