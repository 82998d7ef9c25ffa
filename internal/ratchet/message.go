package ratchet

import (
	"fmt"

	pcrypto "github.com/kindlyrobotics/parrhesia-core/internal/crypto"
)

// Envelope is the payload produced by Encrypt and consumed by Decrypt,
// matching the `message` wire frame's `payload`/`epoch`/`counter` fields.
type Envelope struct {
	Payload []byte // iv || ciphertext || tag
	Epoch   uint64
	Counter uint64
}

// Encrypt ratchets chain forward and seals plaintext under the resulting
// message key, fresh random IV prepended.
func Encrypt(chain *Chain, epoch uint64, plaintext []byte) (*Envelope, error) {
	msgKey, counter, err := chain.NextSendKey()
	if err != nil {
		return nil, fmt.Errorf("ratchet: encrypt: %w", err)
	}

	payload, err := pcrypto.AeadSeal(msgKey, plaintext)
	if err != nil {
		return nil, fmt.Errorf("ratchet: encrypt: %w", err)
	}

	return &Envelope{Payload: payload, Epoch: epoch, Counter: counter}, nil
}

// Decrypt derives the message key for counter n on chain and opens payload.
// The chain/cache mutation is staged, not applied, until AeadOpen succeeds:
// on AEAD authentication failure chain state is left exactly as it was
// found, per §4.3's "no chain state is mutated on failure" and §7's
// identical AeadAuthFailure policy.
func Decrypt(chain *Chain, n uint64, payload []byte) ([]byte, error) {
	pending, err := chain.stageKeyForCounter(n)
	if err != nil {
		return nil, err
	}

	pt, err := pcrypto.AeadOpen(pending.Key(), payload)
	if err != nil {
		return nil, pcrypto.ErrAeadAuthFailure
	}
	pending.Commit()
	return pt, nil
}
