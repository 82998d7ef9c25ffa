// Package session implements the cooperative event dispatcher (C5): it
// ingests server frames one at a time, drives the identity/signature checks
// and TreeKEM/ratchet mutations in internal/groupkey, elects a single rekey
// initiator, and fires the automatic interval rekey every RekeyInterval
// messages. Mirrors the teacher's websocket read-loop-calls-handler shape
// (cmd/room-service/internal/handlers/Websocket.go), generalized from a
// single dispatch function into an explicit Machine so it can be driven by
// any transport, not just gorilla/websocket.
package session

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/kindlyrobotics/parrhesia-core/internal/groupkey"
	"github.com/kindlyrobotics/parrhesia-core/internal/identity"
	"github.com/kindlyrobotics/parrhesia-core/internal/transport"
	"github.com/kindlyrobotics/parrhesia-core/internal/treekem"
)

// RekeyInterval is N from §4.5: after this many locally-sent messages, the
// elected initiator fires a fresh commit.
const RekeyInterval = 50

// Transport is the outbound half of the server collaborator: Send delivers
// one frame. Implementations (e.g. a gorilla/websocket connection) own
// framing; the Machine only needs a place to hand frames off and does not
// retry a Send that fails.
type Transport interface {
	Send(ctx context.Context, f *transport.Frame) error
}

// Plaintext is delivered to the shell collaborator on every successfully
// decrypted message.
type Plaintext struct {
	PeerID  string
	Body    []byte
	Epoch   uint64
	Counter uint64
}

// Machine is one session's C5 state: the server-event dispatcher sitting on
// top of a groupkey.Manager.
type Machine struct {
	mgr       *groupkey.Manager
	transport Transport
	tofu      *identity.Store
	roomID    string

	OnPlaintext func(Plaintext)
	OnStatus    func(status string) // "room_expired" | "room_full"
	OnSent      func(Plaintext)
}

// NewMachine wires a dispatcher around an already-constructed Manager.
func NewMachine(mgr *groupkey.Manager, t Transport, tofu *identity.Store, roomID string) *Machine {
	return &Machine{mgr: mgr, transport: t, tofu: tofu, roomID: roomID}
}

// Handle dispatches one inbound frame per §4.5's event table. Non-fatal
// errors (InvalidKey, InvalidSignature, TofuConflict, StaleCommit,
// EpochOutOfWindow, OutOfOrder, AeadAuthFailure) are logged and swallowed —
// the frame is dropped and the loop continues. A local TreeKEM
// inconsistency (ErrRekeyFailed) propagates, since §7 requires that class
// of failure to terminate the session; so does a failure to build or send
// an outbound frame (announcement, commit, welcome).
func (m *Machine) Handle(ctx context.Context, f *transport.Frame) error {
	switch f.Type {
	case transport.TypeWelcome:
		return m.handleWelcome(ctx, f)
	case transport.TypePeerKey, transport.TypePeerJoined:
		return m.handlePeerAnnounced(ctx, f)
	case transport.TypePeerLeft:
		return m.handlePeerLeft(ctx, f)
	case transport.TypeTreeCommit:
		return m.handleTreeCommit(f)
	case transport.TypeTreeWelcome:
		return m.handleTreeWelcome(f)
	case transport.TypeMessage:
		m.handleMessage(f)
		return nil
	case transport.TypeRoomExpired, transport.TypeRoomFull:
		if m.OnStatus != nil {
			m.OnStatus(f.Type)
		}
		return nil
	default:
		log.Printf("[session] dropping frame of unknown type %q", f.Type)
		return nil
	}
}

func (m *Machine) handleWelcome(ctx context.Context, f *transport.Frame) error {
	m.mgr.SetSelfPeerID(f.PeerID)
	log.Printf("[session] assigned peer_id %s in room %s (creator=%v)", f.PeerID, m.roomID, f.IsCreator)

	if f.IsCreator {
		if err := m.mgr.CreateTree(); err != nil {
			return fmt.Errorf("session: %w", ErrRekeyFailed)
		}
	}

	ann, err := m.mgr.Announce()
	if err != nil {
		return fmt.Errorf("session: failed to build announcement: %w", err)
	}
	return m.send(ctx, transport.KeyAnnounceFrame(ann.SigningPublicKey, ann.KemPublicKey, ann.Signature))
}

// handlePeerAnnounced covers both peer_key (delivered to a joiner for each
// already-present peer) and peer_joined (broadcast of a new arrival): both
// admit the announced peer and, if this participant already has tree state
// and wins the election, emit a commit followed by a targeted welcome.
func (m *Machine) handlePeerAnnounced(ctx context.Context, f *transport.Frame) error {
	signingPk, kemPk, sig, err := transport.DecodeIdentity(f)
	if err != nil {
		log.Printf("[session] dropping %s frame for %s: %v", f.Type, f.PeerID, err)
		return nil
	}

	if err := m.mgr.AddPeer(f.PeerID, signingPk, kemPk, sig); err != nil {
		log.Printf("[session] rejected peer %s: %v", f.PeerID, err)
		return nil
	}
	log.Printf("[session] admitted peer %s (%d peers known)", f.PeerID, m.mgr.PeerCount())

	if !m.mgr.HasTree() || !m.mgr.ShouldInitiateRekey("add", f.PeerID) {
		return nil
	}

	log.Printf("[session] elected to rekey for add of %s", f.PeerID)
	commit, err := m.mgr.InitiateRekey()
	if err != nil {
		return fmt.Errorf("session: %w", ErrRekeyFailed)
	}
	if err := m.broadcastCommit(ctx, commit); err != nil {
		return err
	}

	welcome, err := m.mgr.GenerateWelcomeFor(f.PeerID)
	if err != nil {
		return fmt.Errorf("session: failed to build welcome for %s: %w", f.PeerID, err)
	}
	wf, err := transport.TreeWelcomeFrame(f.PeerID, welcome)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return m.send(ctx, wf)
}

func (m *Machine) handlePeerLeft(ctx context.Context, f *transport.Frame) error {
	if err := m.mgr.RemovePeer(f.PeerID); err != nil {
		log.Printf("[session] peer_left for unknown peer %s: %v", f.PeerID, err)
		return nil
	}
	log.Printf("[session] peer %s left (%d peers remain)", f.PeerID, m.mgr.PeerCount())

	if m.mgr.PeerCount() == 0 || !m.mgr.ShouldInitiateRekey("remove", "") {
		return nil
	}

	log.Printf("[session] elected to rekey for removal of %s", f.PeerID)
	commit, err := m.mgr.InitiateRekey()
	if err != nil {
		return fmt.Errorf("session: %w", ErrRekeyFailed)
	}
	return m.broadcastCommit(ctx, commit)
}

func (m *Machine) handleTreeCommit(f *transport.Frame) error {
	commit, err := transport.DecodeCommit(f)
	if err != nil {
		log.Printf("[session] dropping malformed tree_commit: %v", err)
		return nil
	}
	if err := m.mgr.ReceiveCommit(commit); err != nil {
		switch err {
		case treekem.ErrStaleCommit:
			log.Printf("[session] dropping stale commit at epoch %d", commit.Epoch)
			return nil
		default:
			return fmt.Errorf("session: %w", ErrRekeyFailed)
		}
	}
	log.Printf("[session] processed commit, now at epoch %d", m.mgr.Epoch())
	return nil
}

func (m *Machine) handleTreeWelcome(f *transport.Frame) error {
	if f.TargetPeerID != m.mgr.SelfPeerID() {
		return nil
	}
	welcome, err := transport.DecodeWelcome(f)
	if err != nil {
		log.Printf("[session] dropping malformed tree_welcome: %v", err)
		return nil
	}
	if err := m.mgr.ReceiveWelcome(welcome); err != nil {
		return fmt.Errorf("session: %w", ErrRekeyFailed)
	}
	log.Printf("[session] installed welcome, now at epoch %d", m.mgr.Epoch())
	return nil
}

func (m *Machine) handleMessage(f *transport.Frame) {
	payload, err := transport.DecodePayload(f)
	if err != nil {
		log.Printf("[session] dropping message from %s: %v", f.PeerID, err)
		return
	}
	plaintext, err := m.mgr.Decrypt(f.PeerID, payload, f.Epoch, f.Counter)
	if err != nil {
		log.Printf("[session] dropping message from %s at epoch %d counter %d: %v", f.PeerID, f.Epoch, f.Counter, err)
		return
	}
	if m.OnPlaintext != nil {
		m.OnPlaintext(Plaintext{PeerID: f.PeerID, Body: plaintext, Epoch: f.Epoch, Counter: f.Counter})
	}
}

// SendMessage encrypts body under the current self chain, sends it, and
// fires the automatic interval rekey once every RekeyInterval messages if
// this participant is the elected initiator.
func (m *Machine) SendMessage(ctx context.Context, body []byte) error {
	env, err := m.mgr.Encrypt(body)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := m.send(ctx, transport.MessageFrame(env.Payload, env.Epoch, env.Counter, uuid.New().String())); err != nil {
		return err
	}
	if m.OnSent != nil {
		m.OnSent(Plaintext{PeerID: m.mgr.SelfPeerID(), Body: body, Epoch: env.Epoch, Counter: env.Counter})
	}

	if m.mgr.MessagesSinceRekey() >= RekeyInterval && m.mgr.PeerCount() > 0 && m.mgr.ShouldInitiateRekey("interval", "") {
		log.Printf("[session] interval rekey threshold reached at epoch %d", m.mgr.Epoch())
		commit, err := m.mgr.InitiateRekey()
		if err != nil {
			return fmt.Errorf("session: %w", ErrRekeyFailed)
		}
		return m.broadcastCommit(ctx, commit)
	}
	return nil
}

func (m *Machine) broadcastCommit(ctx context.Context, c *treekem.Commit) error {
	cf, err := transport.TreeCommitFrame(c)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return m.send(ctx, cf)
}

func (m *Machine) send(ctx context.Context, f *transport.Frame) error {
	if err := m.transport.Send(ctx, f); err != nil {
		return fmt.Errorf("session: failed to send %s frame: %w", f.Type, err)
	}
	return nil
}
