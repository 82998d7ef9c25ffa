package groupkey

import "errors"

// ErrInvalidKey is returned when a peer announcement carries a signing or
// KEM public key of the wrong length.
var ErrInvalidKey = errors.New("groupkey: invalid key length")

// ErrInvalidSignature is returned when a peer's KEM public key does not
// verify under its claimed signing public key.
var ErrInvalidSignature = errors.New("groupkey: signature does not verify")

// ErrUnknownPeer is returned when an operation references a peer_id not in
// the registry.
var ErrUnknownPeer = errors.New("groupkey: unknown peer")

// ErrEpochOutOfWindow is returned by Decrypt when the message's epoch is
// neither the current epoch nor the previous one within its grace window.
var ErrEpochOutOfWindow = errors.New("groupkey: epoch outside the decryptable window")
