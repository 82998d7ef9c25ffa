// Package transport defines the server-relayed wire frame schema from §6.1:
// a single bidirectional JSON stream carrying a `type`-discriminated union
// of control and data frames. A tagged struct with omitempty fields stands
// in for the dynamic dispatch the source's JSON frames would otherwise
// need, matching the arena-of-structs style the rest of this repo uses for
// TreeKEM's node array instead of a pointer graph.
package transport

import (
	"encoding/json"
	"fmt"

	pcrypto "github.com/kindlyrobotics/parrhesia-core/internal/crypto"
	"github.com/kindlyrobotics/parrhesia-core/internal/treekem"
)

// Frame type discriminators, exactly as named on the wire in §6.1.
const (
	TypeWelcome     = "welcome"
	TypeKeyAnnounce = "key_announce"
	TypePeerKey     = "peer_key"
	TypePeerJoined  = "peer_joined"
	TypePeerLeft    = "peer_left"
	TypeTreeCommit  = "tree_commit"
	TypeTreeWelcome = "tree_welcome"
	TypeMessage     = "message"
	TypeRoomExpired = "room_expired"
	TypeRoomFull    = "room_full"
)

// Frame is the envelope relayed verbatim by the server. Every field beyond
// Type is optional; which ones are populated depends on Type, per the table
// in §6.1. Binary fields are base64 strings on the wire, matching the
// server's opaque-relay contract: the server never parses these bytes.
type Frame struct {
	Type string `json:"type"`

	// welcome
	PeerID    string `json:"peer_id,omitempty"`
	IsCreator bool   `json:"is_creator,omitempty"`
	CreatorID string `json:"creator_id,omitempty"`

	// key_announce / peer_key / peer_joined
	PublicKey   string `json:"public_key,omitempty"`
	PqPublicKey string `json:"pq_public_key,omitempty"`
	Sig         string `json:"sig,omitempty"`

	// tree_commit
	TreeCommit string `json:"tree_commit,omitempty"`

	// tree_welcome
	TargetPeerID string `json:"target_peer_id,omitempty"`
	TreeWelcome  string `json:"tree_welcome,omitempty"`

	// message
	Payload   string `json:"payload,omitempty"`
	Epoch     uint64 `json:"epoch,omitempty"`
	Counter   uint64 `json:"counter,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Encode marshals f as the JSON line sent over the transport stream.
func Encode(f *Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// Decode parses one JSON line into a Frame.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("transport: failed to decode frame: %w", err)
	}
	return &f, nil
}

// KeyAnnounceFrame builds the client's key_announce frame from an
// announcement (§6.1).
func KeyAnnounceFrame(signingPk, kemPk, sig []byte) *Frame {
	return &Frame{
		Type:        TypeKeyAnnounce,
		PublicKey:   pcrypto.B64Encode(signingPk),
		PqPublicKey: pcrypto.B64Encode(kemPk),
		Sig:         pcrypto.B64Encode(sig),
	}
}

// DecodeIdentity decodes the three base64 identity fields carried by
// key_announce, peer_key, and peer_joined frames.
func DecodeIdentity(f *Frame) (signingPk, kemPk, sig []byte, err error) {
	signingPk, err = pcrypto.B64Decode(f.PublicKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transport: invalid public_key encoding: %w", err)
	}
	kemPk, err = pcrypto.B64Decode(f.PqPublicKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transport: invalid pq_public_key encoding: %w", err)
	}
	sig, err = pcrypto.B64Decode(f.Sig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transport: invalid sig encoding: %w", err)
	}
	return signingPk, kemPk, sig, nil
}

// TreeCommitFrame wraps a Commit as a tree_commit frame; Commit/Welcome are
// JSON-encoded into a string field rather than flattened into the frame, as
// specified in §6.1's schema table.
func TreeCommitFrame(c *treekem.Commit) (*Frame, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to encode commit: %w", err)
	}
	return &Frame{Type: TypeTreeCommit, TreeCommit: string(data)}, nil
}

// DecodeCommit parses the tree_commit field of f.
func DecodeCommit(f *Frame) (*treekem.Commit, error) {
	var c treekem.Commit
	if err := json.Unmarshal([]byte(f.TreeCommit), &c); err != nil {
		return nil, fmt.Errorf("transport: failed to decode commit: %w", err)
	}
	return &c, nil
}

// TreeWelcomeFrame wraps a Welcome targeted at targetPeerID.
func TreeWelcomeFrame(targetPeerID string, w *treekem.Welcome) (*Frame, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to encode welcome: %w", err)
	}
	return &Frame{Type: TypeTreeWelcome, TargetPeerID: targetPeerID, TreeWelcome: string(data)}, nil
}

// DecodeWelcome parses the tree_welcome field of f.
func DecodeWelcome(f *Frame) (*treekem.Welcome, error) {
	var w treekem.Welcome
	if err := json.Unmarshal([]byte(f.TreeWelcome), &w); err != nil {
		return nil, fmt.Errorf("transport: failed to decode welcome: %w", err)
	}
	return &w, nil
}

// MessageFrame wraps a ratchet envelope as a message frame.
func MessageFrame(payload []byte, epoch, counter uint64, messageID string) *Frame {
	return &Frame{
		Type:      TypeMessage,
		Payload:   pcrypto.B64Encode(payload),
		Epoch:     epoch,
		Counter:   counter,
		MessageID: messageID,
	}
}

// DecodePayload decodes the base64 `payload` field of a message frame.
func DecodePayload(f *Frame) ([]byte, error) {
	payload, err := pcrypto.B64Decode(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid payload encoding: %w", err)
	}
	return payload, nil
}
