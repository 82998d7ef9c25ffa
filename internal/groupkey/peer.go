package groupkey

import (
	"crypto/sha256"
	"sort"

	"github.com/kindlyrobotics/parrhesia-core/internal/identity"
	"github.com/kindlyrobotics/parrhesia-core/internal/treekem"
)

// colorPalette is the fixed set of display colors peers are assigned from.
// It mirrors the kind of small, fixed enum a UI shell hands the core for
// peer-color derivation; the core only does the deterministic assignment.
var colorPalette = []string{
	"red", "orange", "amber", "green", "teal", "blue",
	"indigo", "violet", "pink", "slate", "cyan", "lime",
	"rose", "sky", "fuchsia", "emerald",
}

// Peer is one remote participant's record in the registry.
type Peer struct {
	PeerID           string
	SigningPublicKey []byte
	KemPublicKey     []byte
	Signature        []byte
	LeafPos          treekem.LeafIndex
	Fingerprint      identity.Fingerprint
	Color            string
}

// colorIndexFn computes the palette slot a fingerprint naturally hashes to.
// A package variable, not a plain function, so tests can substitute a
// deterministic stub to exercise collision handling directly rather than
// hunting for a real sha256 collision — the same seam the codebase already
// uses for Manager's clock (internal/groupkey/manager.go's `now` field).
var colorIndexFn = func(fp identity.Fingerprint) int {
	h := sha256.Sum256([]byte(fp))
	n := uint32(h[0])<<24 | uint32(h[1])<<16 | uint32(h[2])<<8 | uint32(h[3])
	return int(n % uint32(len(colorPalette)))
}

// assignColor picks colorPalette[colorIndexFn(fp)], or the next free slot
// found by probing forward through the palette in a fixed order if that
// slot is already in taken. Called only from recomputeColors, which walks
// every currently-registered fingerprint in lexicographic order — so the
// lexicographically smaller fingerprint in any collision always probes
// first and wins the contested natural slot, per §3's "conflicts resolved
// by lexicographic order of fingerprints using a deterministic preference
// list".
func assignColor(fp identity.Fingerprint, taken map[string]bool) string {
	start := colorIndexFn(fp)
	for offset := 0; offset < len(colorPalette); offset++ {
		idx := (start + offset) % len(colorPalette)
		color := colorPalette[idx]
		if !taken[color] {
			return color
		}
	}
	// Unreachable while len(peers) <= len(colorPalette), which MaxLeaves
	// (16 participants, 16 colors) guarantees; kept as a deterministic,
	// still fingerprint-derived fallback rather than a panic.
	return colorPalette[start]
}

// Registry tracks every known remote peer, keyed by peer_id. This
// participant itself is never registered.
type Registry struct {
	peers map[string]*Peer
}

// NewRegistry creates an empty peer registry.
func NewRegistry() *Registry {
	return &Registry{peers: map[string]*Peer{}}
}

// Put installs or replaces a peer record and recomputes every registered
// peer's color from scratch, so a newly-inserted peer that wins a natural
// palette slot never leaves the displaced incumbent stranded on the same
// color (§3: colors must be a deterministic function of the full,
// currently-registered fingerprint set, not of insertion order).
func (r *Registry) Put(p *Peer) {
	r.peers[p.PeerID] = p
	r.recomputeColors()
}

// recomputeColors reassigns every registered peer's Color field from
// scratch: fingerprints are visited in lexicographic order so that, for any
// contested palette slot, the lexicographically smaller fingerprint always
// probes it first and wins — matching assignColor's documented preference
// rule exactly, for every peer at once rather than only the one just
// inserted.
func (r *Registry) recomputeColors() {
	peers := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		return string(peers[i].Fingerprint) < string(peers[j].Fingerprint)
	})

	taken := map[string]bool{}
	for _, p := range peers {
		p.Color = assignColor(p.Fingerprint, taken)
		taken[p.Color] = true
	}
}

// Remove drops a peer from the registry.
func (r *Registry) Remove(peerID string) {
	delete(r.peers, peerID)
}

// Get returns the peer record for peerID, if any.
func (r *Registry) Get(peerID string) (*Peer, bool) {
	p, ok := r.peers[peerID]
	return p, ok
}

// PeerIDs returns every known peer_id, in no particular order.
func (r *Registry) PeerIDs() []string {
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of registered peers.
func (r *Registry) Len() int { return len(r.peers) }
