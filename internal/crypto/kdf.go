package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// Domain-separation info strings used throughout the protocol. Keeping them
// here, rather than scattered at call sites, is what makes every HKDF call
// site in treekem/ratchet/groupkey auditable against §4.1 at a glance.
const (
	InfoTreeNode  = "parrhesia-tree-node"
	InfoTreeRoot  = "parrhesia-tree-root"
	InfoKemWrapV2 = "parrhesia-kem-v2"
	ChainInfoPrefix = "parrhesia-chain-"
)

// PbkdfIterations is the PBKDF2-SHA256 iteration count used to wrap the
// local signing keypair and, with a distinct salt, the message history log.
const PbkdfIterations = 600_000

// zeroSalt32 is the all-zero 32-byte salt HKDF calls use unless the caller
// has a real salt (the password-wrapping KDF does).
var zeroSalt32 = make([]byte, 32)

// HkdfExtractExpand runs HMAC-SHA256 HKDF-Extract-then-Expand over ikm with
// the given info label and returns L bytes of output keying material. salt
// defaults to 32 zero bytes when nil.
func HkdfExtractExpand(salt, ikm []byte, info string, length int) ([]byte, error) {
	if salt == nil {
		salt = zeroSalt32
	}

	reader := hkdf.New(sha256.New, ikm, salt, []byte(info))
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("crypto: hkdf expand failed: %w", err)
	}
	return out, nil
}

// DeriveTreeNodeSecret derives the next tree node secret from its child
// secret: HKDF-SHA256(salt=0^32, info="parrhesia-tree-node", childSecret).
func DeriveTreeNodeSecret(childSecret []byte) ([]byte, error) {
	return HkdfExtractExpand(nil, childSecret, InfoTreeNode, 32)
}

// DeriveGroupKey derives the 256-bit AES group key from the current tree
// root secret: HKDF(salt=0^32, info="parrhesia-tree-root", rootSecret).
func DeriveGroupKey(rootSecret []byte) ([]byte, error) {
	return HkdfExtractExpand(nil, rootSecret, InfoTreeRoot, AeadKeySize)
}

// DeriveChainKey seeds chain_key_0 for peerID from the group key.
func DeriveChainKey(groupKey []byte, peerID string) ([]byte, error) {
	return HkdfExtractExpand(nil, groupKey, ChainInfoPrefix+peerID, 32)
}

// DeriveKemWrapKey turns a KEM shared secret into the AES-256-GCM key used
// to seal a path-node or path-secret payload alongside its ciphertext.
func DeriveKemWrapKey(sharedSecret []byte) ([]byte, error) {
	return HkdfExtractExpand(nil, sharedSecret, InfoKemWrapV2, AeadKeySize)
}

// RatchetStep derives (msgKey, nextChainKey) from chainKey per §4.3.
func RatchetStep(chainKey []byte) (msgKey, nextChainKey []byte, err error) {
	msgKey, err = HkdfExtractExpand(nil, chainKey, "msg", 32)
	if err != nil {
		return nil, nil, err
	}
	nextChainKey, err = HkdfExtractExpand(nil, chainKey, "chain", 32)
	if err != nil {
		return nil, nil, err
	}
	return msgKey, nextChainKey, nil
}

// DerivePasswordKey wraps PBKDF2-SHA256 with the iteration count and salt
// size the local keystore and message history log both use, with an info
// suffix ("", "-messages") providing domain separation between the two.
func DerivePasswordKey(password string, salt []byte, infoSuffix string) []byte {
	ikm := []byte(password + infoSuffix)
	return pbkdf2.Key(ikm, salt, PbkdfIterations, AeadKeySize, sha256.New)
}
