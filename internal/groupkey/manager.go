// Package groupkey owns the signing keypair, ephemeral KEM keypair, peer
// registry, TreeKEM state, and the set of per-sender chains for one session.
// It is the orchestrator C4 describes: every TreeKEM and ratchet mutation in
// the system flows through a Manager method.
package groupkey

import (
	"fmt"
	"time"

	pcrypto "github.com/kindlyrobotics/parrhesia-core/internal/crypto"
	"github.com/kindlyrobotics/parrhesia-core/internal/identity"
	"github.com/kindlyrobotics/parrhesia-core/internal/ratchet"
	"github.com/kindlyrobotics/parrhesia-core/internal/treekem"
)

// GraceWindow is how long the previous epoch's chains remain decryptable
// after a rekey (§4.3 / B3).
const GraceWindow = 30 * time.Second

// Announcement is the payload `announce()` returns: the caller wraps it
// into a `key_announce` wire frame.
type Announcement struct {
	SigningPublicKey []byte
	KemPublicKey     []byte
	Signature        []byte
}

// Manager is one participant's full C4 state.
type Manager struct {
	signing *pcrypto.SigningKeyPair
	kem     *pcrypto.KemKeyPair

	roomID          string
	selfPeerID      string
	selfFingerprint identity.Fingerprint

	registry *Registry
	tree     *treekem.Tree
	tofu     *identity.Store

	epoch    uint64
	groupKey []byte
	chains   map[string]*ratchet.Chain

	previousChains map[string]*ratchet.Chain
	previousEpoch  uint64
	graceDeadline  time.Time

	messagesSinceRekey int

	now func() time.Time
}

// NewManager generates a fresh ephemeral KEM keypair and returns a Manager
// ready to announce itself once a peer_id is assigned.
func NewManager(signing *pcrypto.SigningKeyPair, roomID string, tofu *identity.Store) (*Manager, error) {
	kem, err := pcrypto.KemGenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("groupkey: failed to generate kem keypair: %w", err)
	}

	return &Manager{
		signing:         signing,
		kem:             kem,
		roomID:          roomID,
		tofu:            tofu,
		registry:        NewRegistry(),
		chains:          map[string]*ratchet.Chain{},
		selfFingerprint: identity.ComputeFingerprint(signing.PublicKey),
		now:             time.Now,
	}, nil
}

// SetSelfPeerID records the server-assigned identifier for this session,
// delivered in the `welcome` frame.
func (m *Manager) SetSelfPeerID(peerID string) { m.selfPeerID = peerID }

// SelfPeerID returns the server-assigned identifier for this session.
func (m *Manager) SelfPeerID() string { return m.selfPeerID }

// SelfFingerprint returns this participant's fingerprint.
func (m *Manager) SelfFingerprint() identity.Fingerprint { return m.selfFingerprint }

// Epoch returns the current epoch.
func (m *Manager) Epoch() uint64 { return m.epoch }

// MessagesSinceRekey reports the interval-rekey counter (§4.5).
func (m *Manager) MessagesSinceRekey() int { return m.messagesSinceRekey }

// HasTree reports whether this participant has a TreeKEM state yet (it
// does not until it creates a room or processes a Welcome).
func (m *Manager) HasTree() bool { return m.tree != nil }

// PeerCount returns the number of registered remote peers.
func (m *Manager) PeerCount() int { return m.registry.Len() }

// Announce returns the signed identity-binding announcement for this
// session's KEM public key.
func (m *Manager) Announce() (*Announcement, error) {
	sig, err := pcrypto.Sign(m.signing.PrivateKey, m.kem.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("groupkey: failed to sign announcement: %w", err)
	}
	return &Announcement{
		SigningPublicKey: m.signing.PublicKey,
		KemPublicKey:     m.kem.PublicKey,
		Signature:        sig,
	}, nil
}

// CreateTree makes this participant the creator of a single-leaf tree and
// seeds the self chain from its root secret, per §4.2's create_for_creator.
func (m *Manager) CreateTree() error {
	tree, rootSecret, err := treekem.NewCreator(m.kem.PublicKey, m.kem.PrivateKey)
	if err != nil {
		return fmt.Errorf("groupkey: failed to create tree: %w", err)
	}
	m.tree = tree
	return m.onNewRoot(0, rootSecret)
}

// AddPeer runs the four REQUIRED checks from §4.4 in order, then installs
// the peer in the registry and (if this participant already has a tree)
// allocates it the next TreeKEM leaf.
func (m *Manager) AddPeer(peerID string, signingPk, kemPk, sig []byte) error {
	if len(signingPk) != pcrypto.SigningPublicKeySize {
		return ErrInvalidKey
	}
	if len(kemPk) != pcrypto.KemPublicKeySize {
		return ErrInvalidKey
	}
	if !pcrypto.Verify(signingPk, kemPk, sig) {
		return ErrInvalidSignature
	}

	fp := identity.ComputeFingerprint(signingPk)
	if m.tofu != nil {
		if err := m.tofu.CheckAndBind(m.roomID, string(fp), peerID); err != nil {
			return err
		}
	}

	peer := &Peer{
		PeerID:           peerID,
		SigningPublicKey: signingPk,
		KemPublicKey:     kemPk,
		Signature:        sig,
		Fingerprint:      fp,
	}

	if m.tree != nil {
		pos, err := m.tree.AddLeaf(kemPk)
		if err != nil {
			return fmt.Errorf("groupkey: failed to add leaf for %s: %w", peerID, err)
		}
		peer.LeafPos = pos
	}

	m.registry.Put(peer)

	if m.groupKey != nil {
		chain, err := ratchet.NewChain(m.groupKey, peerID)
		if err != nil {
			return fmt.Errorf("groupkey: failed to seed chain for %s: %w", peerID, err)
		}
		m.chains[peerID] = chain
	}

	return nil
}

// RemovePeer drops peerID from the registry, its chain, and (if present)
// its TreeKEM leaf.
func (m *Manager) RemovePeer(peerID string) error {
	peer, ok := m.registry.Get(peerID)
	if !ok {
		return ErrUnknownPeer
	}

	if m.tree != nil {
		if err := m.tree.RemoveLeaf(peer.LeafPos); err != nil {
			return fmt.Errorf("groupkey: failed to remove leaf for %s: %w", peerID, err)
		}
	}

	m.registry.Remove(peerID)
	delete(m.chains, peerID)
	delete(m.previousChains, peerID)
	return nil
}

// ShouldInitiateRekey implements the deterministic election rule: the
// lexicographically smallest fingerprint among currently connected
// participants (including self) initiates. For an "add" event, newPeerID
// is excluded from the candidate set since it has not yet joined, and a
// participant without tree state (itself still joining) is never elected.
func (m *Manager) ShouldInitiateRekey(context string, newPeerID string) bool {
	if context == "add" && m.tree == nil {
		return false
	}
	candidates := []identity.Fingerprint{m.selfFingerprint}
	for _, id := range m.registry.PeerIDs() {
		if context == "add" && id == newPeerID {
			continue
		}
		if p, ok := m.registry.Get(id); ok {
			candidates = append(candidates, p.Fingerprint)
		}
	}

	smallest := candidates[0]
	for _, fp := range candidates[1:] {
		if fp < smallest {
			smallest = fp
		}
	}
	return smallest == m.selfFingerprint
}

// InitiateRekey generates a commit over this participant's own direct path
// and applies its resulting epoch transition locally, since a committer
// does not run ProcessCommit over its own commit.
func (m *Manager) InitiateRekey() (*treekem.Commit, error) {
	commit, rootSecret, err := m.tree.GenerateCommit()
	if err != nil {
		return nil, fmt.Errorf("groupkey: failed to generate commit: %w", err)
	}

	m.tree.Epoch = commit.Epoch
	if err := m.onNewRoot(commit.Epoch, rootSecret); err != nil {
		return nil, err
	}
	m.messagesSinceRekey = 0
	return commit, nil
}

// GenerateWelcomeFor produces the targeted Welcome for peerID, called
// immediately after InitiateRekey when the triggering event was an add.
func (m *Manager) GenerateWelcomeFor(peerID string) (*treekem.Welcome, error) {
	peer, ok := m.registry.Get(peerID)
	if !ok {
		return nil, ErrUnknownPeer
	}
	w, err := m.tree.GenerateWelcome(peer.LeafPos, peer.KemPublicKey)
	if err != nil {
		return nil, fmt.Errorf("groupkey: failed to generate welcome for %s: %w", peerID, err)
	}
	return w, nil
}

// ReceiveCommit applies a commit broadcast by the rekey initiator.
func (m *Manager) ReceiveCommit(c *treekem.Commit) error {
	rootSecret, err := m.tree.ProcessCommit(c)
	if err != nil {
		return err
	}
	if err := m.onNewRoot(c.Epoch, rootSecret); err != nil {
		return err
	}
	m.messagesSinceRekey = 0
	return nil
}

// ReceiveWelcome installs this participant's TreeKEM view from a targeted
// Welcome and derives its first group key.
func (m *Manager) ReceiveWelcome(w *treekem.Welcome) error {
	tree, rootSecret, err := treekem.FromWelcome(w, m.kem.PublicKey, m.kem.PrivateKey)
	if err != nil {
		return fmt.Errorf("groupkey: failed to process welcome: %w", err)
	}
	m.tree = tree
	return m.onNewRoot(w.Epoch, rootSecret)
}

// Encrypt ratchets the self chain forward and seals plaintext.
func (m *Manager) Encrypt(plaintext []byte) (*ratchet.Envelope, error) {
	chain, ok := m.chains[m.selfPeerID]
	if !ok {
		return nil, fmt.Errorf("groupkey: no self chain seeded yet")
	}
	env, err := ratchet.Encrypt(chain, m.epoch, plaintext)
	if err != nil {
		return nil, err
	}
	m.messagesSinceRekey++
	return env, nil
}

// Decrypt implements §4.3's epoch-window decrypt logic.
func (m *Manager) Decrypt(peerID string, payload []byte, epoch, counter uint64) ([]byte, error) {
	switch {
	case epoch == m.epoch && peerID == m.selfPeerID:
		// The self entry in m.chains is the sending chain, already advanced
		// past every sent counter; this session's own messages are opened
		// with a fresh copy of the chain seeded from the current group key.
		chain, err := ratchet.NewChain(m.groupKey, peerID)
		if err != nil {
			return nil, err
		}
		return ratchet.Decrypt(chain, counter, payload)

	case epoch == m.epoch:
		chain, ok := m.chains[peerID]
		if !ok {
			return nil, ErrUnknownPeer
		}
		return ratchet.Decrypt(chain, counter, payload)

	case m.epoch > 0 && epoch == m.epoch-1 && m.previousChains != nil && m.now().Before(m.graceDeadline):
		chain, ok := m.previousChains[peerID]
		if !ok {
			return nil, ErrUnknownPeer
		}
		return ratchet.Decrypt(chain, counter, payload)

	default:
		return nil, ErrEpochOutOfWindow
	}
}

// onNewRoot derives the group key for a freshly agreed root secret, retires
// the current chains under the 30s grace window, and reseeds one chain per
// known participant (self + every registered peer).
func (m *Manager) onNewRoot(epoch uint64, rootSecret []byte) error {
	groupKey, err := pcrypto.DeriveGroupKey(rootSecret)
	if err != nil {
		return fmt.Errorf("groupkey: failed to derive group key: %w", err)
	}

	if m.groupKey != nil {
		m.previousChains = m.chains
		m.previousEpoch = m.epoch
		m.graceDeadline = m.now().Add(GraceWindow)
	}

	m.groupKey = groupKey
	m.epoch = epoch
	m.chains = map[string]*ratchet.Chain{}

	selfChain, err := ratchet.NewChain(groupKey, m.selfPeerID)
	if err != nil {
		return fmt.Errorf("groupkey: failed to seed self chain: %w", err)
	}
	m.chains[m.selfPeerID] = selfChain

	for _, id := range m.registry.PeerIDs() {
		chain, err := ratchet.NewChain(groupKey, id)
		if err != nil {
			return fmt.Errorf("groupkey: failed to seed chain for %s: %w", id, err)
		}
		m.chains[id] = chain
	}

	return nil
}
