package identity

import pcrypto "github.com/kindlyrobotics/parrhesia-core/internal/crypto"

// Fingerprint is base64(signing public key): the TOFU lookup key and the
// tie-breaker for rekey-initiator election.
type Fingerprint string

// ComputeFingerprint derives the fingerprint of a signing public key.
func ComputeFingerprint(signingPublicKey []byte) Fingerprint {
	return Fingerprint(pcrypto.B64Encode(signingPublicKey))
}
