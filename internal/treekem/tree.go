// Package treekem implements the left-balanced binary tree of ephemeral
// ML-KEM-768 keypairs whose root secret is the group's shared secret. Tree
// math operates purely on integer indices into a flat node array — no
// parent pointers, no recursive ownership, matching the arena-of-indices
// design called for by a tree whose shape changes on every membership event.
package treekem

import (
	"crypto/rand"
	"fmt"
	"io"

	pcrypto "github.com/kindlyrobotics/parrhesia-core/internal/crypto"
)

// Node holds the key material at one slot of the flat node array. Any field
// may be blank ("zero value nil"); at most one secret per node is ever
// authoritative at a time.
type Node struct {
	PublicKey []byte // KEM public key, nil if blank
	SecretKey []byte // KEM secret key, known only if this participant owns it
	Secret    []byte // node secret, known only if derived or decapsulated locally
}

func (n *Node) blank() bool { return n == nil || n.PublicKey == nil }

// PathEntry is one rotated node emitted by GenerateCommit.
type PathEntry struct {
	NodeIndex      NodeIndex `json:"node_index"`
	NewPublicKey   []byte    `json:"new_pk"`
	KemCiphertext  []byte    `json:"kem_ct,omitempty"`
	AeadCiphertext []byte    `json:"aead_ct,omitempty"`
}

// Commit rotates every node on the committer's direct path.
type Commit struct {
	CommitterLeafPos LeafIndex   `json:"committer_leaf_pos"`
	NewLeafPublicKey []byte      `json:"new_leaf_pk"`
	Path             []PathEntry `json:"path"`
	Epoch            uint64      `json:"epoch"`
}

// PathSecretEntry is a single targeted encapsulation in a Welcome.
type PathSecretEntry struct {
	NodeIndex      NodeIndex `json:"node_index"`
	KemCiphertext  []byte    `json:"kem_ct"`
	AeadCiphertext []byte    `json:"aead_ct"`
}

// Welcome initialises a joiner's view of the tree at a specific epoch.
type Welcome struct {
	TreePublicKeys [][]byte          `json:"tree_public_keys"`
	NumLeaves      uint32            `json:"num_leaves"`
	MyLeafPos      LeafIndex         `json:"my_leaf_pos"`
	PathSecrets    []PathSecretEntry `json:"path_secrets"`
	Epoch          uint64            `json:"epoch"`
}

// Tree is one participant's local view of the TreeKEM state.
type Tree struct {
	NumLeaves uint32
	Nodes     []Node
	MyLeaf    LeafIndex
	Epoch     uint64
}

// NewCreator yields a one-leaf tree at position 0 whose leaf secret is a
// fresh 32 random bytes; the root secret equals the leaf secret since a
// single-node tree has no internal nodes.
func NewCreator(kemPub, kemPriv []byte) (*Tree, []byte, error) {
	secret := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, nil, fmt.Errorf("treekem: failed to draw creator secret: %w", err)
	}

	t := &Tree{
		NumLeaves: 1,
		Nodes:     make([]Node, nodeWidth(1)),
		MyLeaf:    0,
	}
	t.Nodes[0] = Node{PublicKey: kemPub, SecretKey: kemPriv, Secret: secret}

	return t, secret, nil
}

func (t *Tree) resize(n uint32) {
	w := nodeWidth(n)
	if uint32(len(t.Nodes)) >= w {
		t.NumLeaves = n
		return
	}
	grown := make([]Node, w)
	copy(grown, t.Nodes)
	t.Nodes = grown
	t.NumLeaves = n
}

// AddLeaf appends a leaf at leaf_pos = num_leaves holding peerKemPub;
// increments num_leaves; blanks every node on the new leaf's direct path.
func (t *Tree) AddLeaf(peerKemPub []byte) (LeafIndex, error) {
	if t.NumLeaves >= MaxLeaves {
		return 0, ErrRoomFull
	}

	pos := LeafIndex(t.NumLeaves)
	t.resize(t.NumLeaves + 1)

	t.Nodes[toNodeIndex(pos)] = Node{PublicKey: peerKemPub}

	for _, idx := range directPath(pos, t.NumLeaves) {
		t.Nodes[idx] = Node{}
	}

	return pos, nil
}

// RemoveLeaf blanks leafPos and every node on its direct path. num_leaves is
// never decremented; the slot becomes a permanently blank leaf.
func (t *Tree) RemoveLeaf(leafPos LeafIndex) error {
	if uint32(leafPos) >= t.NumLeaves {
		return fmt.Errorf("treekem: leaf %d out of range", leafPos)
	}

	t.Nodes[toNodeIndex(leafPos)] = Node{}
	for _, idx := range directPath(leafPos, t.NumLeaves) {
		t.Nodes[idx] = Node{}
	}
	return nil
}

// resolve returns the leftmost non-blank descendant of i (or i itself if
// non-blank), per the MLS resolution rule in §4.2. ok is false when no
// non-blank descendant exists.
func (t *Tree) resolve(i NodeIndex) (NodeIndex, bool) {
	if uint32(i) >= uint32(len(t.Nodes)) {
		return 0, false
	}
	if !t.Nodes[i].blank() {
		return i, true
	}
	if isLeaf(i) {
		return 0, false
	}
	if idx, ok := t.resolve(leftChild(i)); ok {
		return idx, true
	}
	return t.resolve(rightChild(i, t.NumLeaves))
}

// GenerateCommit rotates the committer's own leaf secret/keypair and every
// node on its direct path, KEM-encapsulating each new node secret to the
// effective public key of the corresponding copath sibling.
func (t *Tree) GenerateCommit() (*Commit, []byte, error) {
	newLeafSecret := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, newLeafSecret); err != nil {
		return nil, nil, fmt.Errorf("treekem: failed to draw leaf secret: %w", err)
	}
	newLeafKp, err := pcrypto.KemGenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("treekem: failed to generate leaf keypair: %w", err)
	}

	leafIdx := toNodeIndex(t.MyLeaf)
	t.Nodes[leafIdx] = Node{PublicKey: newLeafKp.PublicKey, SecretKey: newLeafKp.PrivateKey, Secret: newLeafSecret}

	dp := directPath(t.MyLeaf, t.NumLeaves)
	cp := copath(t.MyLeaf, t.NumLeaves)

	commit := &Commit{
		CommitterLeafPos: t.MyLeaf,
		NewLeafPublicKey: newLeafKp.PublicKey,
		Epoch:            t.Epoch + 1,
	}

	prevSecret := newLeafSecret
	for i, nodeIdx := range dp {
		secret, err := pcrypto.DeriveTreeNodeSecret(prevSecret)
		if err != nil {
			return nil, nil, fmt.Errorf("treekem: failed to derive path secret: %w", err)
		}
		kp, err := pcrypto.KemGenerateKeyPair()
		if err != nil {
			return nil, nil, fmt.Errorf("treekem: failed to generate path keypair: %w", err)
		}
		t.Nodes[nodeIdx] = Node{PublicKey: kp.PublicKey, SecretKey: kp.PrivateKey, Secret: secret}

		entry := PathEntry{NodeIndex: nodeIdx, NewPublicKey: kp.PublicKey}

		copathIdx := cp[i]
		if target, ok := t.resolve(copathIdx); ok {
			targetPk := t.Nodes[target].PublicKey
			kemCt, sharedSecret, err := pcrypto.KemEncapsulate(targetPk)
			if err != nil {
				return nil, nil, fmt.Errorf("treekem: failed to encapsulate to copath sibling: %w", err)
			}
			wrapKey, err := pcrypto.DeriveKemWrapKey(sharedSecret)
			if err != nil {
				return nil, nil, fmt.Errorf("treekem: failed to derive wrap key: %w", err)
			}
			aeadCt, err := pcrypto.AeadSeal(wrapKey, secret)
			if err != nil {
				return nil, nil, fmt.Errorf("treekem: failed to seal path secret: %w", err)
			}
			entry.KemCiphertext = kemCt
			entry.AeadCiphertext = aeadCt
		}

		commit.Path = append(commit.Path, entry)
		prevSecret = secret
	}

	return commit, prevSecret, nil
}

// ProcessCommit applies a commit produced by another participant: installs
// new public keys along the committer's path, finds the lowest entry this
// receiver can decapsulate via tree resolution, and derives every secret
// above it up to the root.
func (t *Tree) ProcessCommit(c *Commit) ([]byte, error) {
	if c.Epoch != t.Epoch+1 {
		return nil, ErrStaleCommit
	}

	t.Nodes[toNodeIndex(c.CommitterLeafPos)] = Node{PublicKey: c.NewLeafPublicKey}

	for _, entry := range c.Path {
		t.Nodes[entry.NodeIndex] = Node{PublicKey: entry.NewPublicKey}
	}

	// Entry i was encapsulated to the committer's copath node i, the sibling
	// of the path node below it.
	cp := copath(c.CommitterLeafPos, t.NumLeaves)

	foundAt := -1
	var foundSecret []byte
	for i, entry := range c.Path {
		if len(entry.KemCiphertext) == 0 || i >= len(cp) {
			continue
		}
		target, ok := t.resolve(cp[i])
		if !ok {
			continue
		}
		if t.Nodes[target].SecretKey == nil {
			continue
		}

		sharedSecret, err := pcrypto.KemDecapsulate(t.Nodes[target].SecretKey, entry.KemCiphertext)
		if err != nil {
			continue
		}
		wrapKey, err := pcrypto.DeriveKemWrapKey(sharedSecret)
		if err != nil {
			continue
		}
		secret, err := pcrypto.AeadOpen(wrapKey, entry.AeadCiphertext)
		if err != nil {
			continue
		}

		foundAt = i
		foundSecret = secret
		break
	}

	if foundAt < 0 {
		return nil, ErrRekeyFailed
	}

	t.Nodes[c.Path[foundAt].NodeIndex].Secret = foundSecret
	prevSecret := foundSecret
	for i := foundAt + 1; i < len(c.Path); i++ {
		secret, err := pcrypto.DeriveTreeNodeSecret(prevSecret)
		if err != nil {
			return nil, fmt.Errorf("treekem: failed to derive path secret: %w", err)
		}
		t.Nodes[c.Path[i].NodeIndex].Secret = secret
		prevSecret = secret
	}

	t.Epoch = c.Epoch
	return prevSecret, nil
}

// GenerateWelcome is produced by the committer immediately after its commit
// when admitting joinerPos. It snapshots every public key in the tree and
// encapsulates the lowest known joiner-path secret directly to the joiner.
func (t *Tree) GenerateWelcome(joinerPos LeafIndex, joinerKemPub []byte) (*Welcome, error) {
	pubKeys := make([][]byte, len(t.Nodes))
	for i := range t.Nodes {
		pubKeys[i] = t.Nodes[i].PublicKey
	}
	pubKeys[toNodeIndex(joinerPos)] = joinerKemPub

	w := &Welcome{
		TreePublicKeys: pubKeys,
		NumLeaves:      t.NumLeaves,
		MyLeafPos:      joinerPos,
		Epoch:          t.Epoch,
	}

	for _, nodeIdx := range directPath(joinerPos, t.NumLeaves) {
		secret := t.Nodes[nodeIdx].Secret
		if secret == nil {
			continue
		}

		kemCt, sharedSecret, err := pcrypto.KemEncapsulate(joinerKemPub)
		if err != nil {
			return nil, fmt.Errorf("treekem: failed to encapsulate welcome secret: %w", err)
		}
		wrapKey, err := pcrypto.DeriveKemWrapKey(sharedSecret)
		if err != nil {
			return nil, fmt.Errorf("treekem: failed to derive wrap key: %w", err)
		}
		aeadCt, err := pcrypto.AeadSeal(wrapKey, secret)
		if err != nil {
			return nil, fmt.Errorf("treekem: failed to seal welcome secret: %w", err)
		}

		w.PathSecrets = append(w.PathSecrets, PathSecretEntry{
			NodeIndex:      nodeIdx,
			KemCiphertext:  kemCt,
			AeadCiphertext: aeadCt,
		})
		break // the lowest known entry is sufficient; see §9 open question.
	}

	return w, nil
}

// FromWelcome installs the joiner's view of the tree: every advertised
// public key, its own keypair at its leaf, and the root secret derived by
// decapsulating the first path secret and walking the rest of the direct
// path via HKDF.
func FromWelcome(w *Welcome, joinerKemPub, joinerKemPriv []byte) (*Tree, []byte, error) {
	t := &Tree{
		NumLeaves: w.NumLeaves,
		Nodes:     make([]Node, nodeWidth(w.NumLeaves)),
		MyLeaf:    w.MyLeafPos,
		Epoch:     w.Epoch,
	}
	for i, pk := range w.TreePublicKeys {
		if uint32(i) < uint32(len(t.Nodes)) {
			t.Nodes[i].PublicKey = pk
		}
	}
	t.Nodes[toNodeIndex(w.MyLeafPos)] = Node{PublicKey: joinerKemPub, SecretKey: joinerKemPriv}

	if len(w.PathSecrets) == 0 {
		return nil, nil, fmt.Errorf("treekem: welcome carries no path secret")
	}

	first := w.PathSecrets[0]
	sharedSecret, err := pcrypto.KemDecapsulate(joinerKemPriv, first.KemCiphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("treekem: failed to decapsulate welcome secret: %w", err)
	}
	wrapKey, err := pcrypto.DeriveKemWrapKey(sharedSecret)
	if err != nil {
		return nil, nil, err
	}
	secret, err := pcrypto.AeadOpen(wrapKey, first.AeadCiphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("treekem: failed to open welcome secret: %w", err)
	}
	t.Nodes[first.NodeIndex].Secret = secret

	dp := directPath(w.MyLeafPos, w.NumLeaves)
	startIdx := -1
	for i, idx := range dp {
		if idx == first.NodeIndex {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil, nil, fmt.Errorf("treekem: welcome path secret not on joiner's direct path")
	}

	prevSecret := secret
	for i := startIdx + 1; i < len(dp); i++ {
		derived, err := pcrypto.DeriveTreeNodeSecret(prevSecret)
		if err != nil {
			return nil, nil, fmt.Errorf("treekem: failed to derive path secret: %w", err)
		}
		t.Nodes[dp[i]].Secret = derived
		prevSecret = derived
	}

	return t, prevSecret, nil
}
