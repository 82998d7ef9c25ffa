package groupkey

import (
	"time"

	pcrypto "github.com/kindlyrobotics/parrhesia-core/internal/crypto"
	"github.com/kindlyrobotics/parrhesia-core/internal/identity"

	"testing"
)

// newTestParticipant builds a Manager with its own signing identity, ready
// to be wired into a room. It uses an in-memory TOFU store (empty path, so
// nothing is written to disk); AddPeer runs its TOFU check against it.
func newTestParticipant(t *testing.T, roomID, peerID string) *Manager {
	t.Helper()
	signing, err := pcrypto.SigningGenerateKeyPair()
	if err != nil {
		t.Fatalf("SigningGenerateKeyPair: %v", err)
	}
	m, err := NewManager(signing, roomID, identity.NewStore(""))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.SetSelfPeerID(peerID)
	return m
}

func introduce(t *testing.T, a, b *Manager) {
	t.Helper()
	annA, err := a.Announce()
	if err != nil {
		t.Fatalf("Announce A: %v", err)
	}
	annB, err := b.Announce()
	if err != nil {
		t.Fatalf("Announce B: %v", err)
	}
	if err := a.AddPeer(b.SelfPeerID(), annB.SigningPublicKey, annB.KemPublicKey, annB.Signature); err != nil {
		t.Fatalf("A.AddPeer(B): %v", err)
	}
	if err := b.AddPeer(a.SelfPeerID(), annA.SigningPublicKey, annA.KemPublicKey, annA.Signature); err != nil {
		t.Fatalf("B.AddPeer(A): %v", err)
	}
}

// TestCreatorOnlyEncryptDecryptLoop exercises scenario 1: a single-leaf
// tree, self-encrypt, self-decrypt.
func TestCreatorOnlyEncryptDecryptLoop(t *testing.T) {
	a := newTestParticipant(t, "room-1", "peer-a")
	if err := a.CreateTree(); err != nil {
		t.Fatalf("CreateTree: %v", err)
	}

	env, err := a.Encrypt([]byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if env.Counter != 0 {
		t.Fatalf("first counter = %d, want 0", env.Counter)
	}

	pt, err := a.Decrypt("peer-a", env.Payload, env.Epoch, env.Counter)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt) != "hello" {
		t.Fatalf("Decrypt = %q, want %q", pt, "hello")
	}

	env2, err := a.Encrypt([]byte("again"))
	if err != nil {
		t.Fatalf("Encrypt 2: %v", err)
	}
	if env2.Counter != 1 {
		t.Fatalf("second counter = %d, want 1", env2.Counter)
	}
}

// TestTwoPeerJoinElectsSmallerFingerprintAndSharesRoot exercises scenario 2.
func TestTwoPeerJoinElectsSmallerFingerprintAndSharesRoot(t *testing.T) {
	a := newTestParticipant(t, "room-2", "peer-a")
	b := newTestParticipant(t, "room-2", "peer-b")
	if err := a.CreateTree(); err != nil {
		t.Fatalf("CreateTree: %v", err)
	}

	introduce(t, a, b)

	aInitiates := a.ShouldInitiateRekey("add", "peer-b")
	bInitiates := b.ShouldInitiateRekey("add", "peer-a")
	if aInitiates == bInitiates {
		t.Fatalf("exactly one of A/B must be elected, got a=%v b=%v", aInitiates, bInitiates)
	}

	initiator, joiner := a, b
	if bInitiates {
		initiator, joiner = b, a
	}

	commit, err := initiator.InitiateRekey()
	if err != nil {
		t.Fatalf("InitiateRekey: %v", err)
	}
	welcome, err := initiator.GenerateWelcomeFor(joiner.SelfPeerID())
	if err != nil {
		t.Fatalf("GenerateWelcomeFor: %v", err)
	}

	if err := joiner.ReceiveWelcome(welcome); err != nil {
		t.Fatalf("ReceiveWelcome: %v", err)
	}
	_ = commit // the joiner installs state from the welcome, not the commit

	if initiator.Epoch() != joiner.Epoch() {
		t.Fatalf("epoch mismatch: initiator=%d joiner=%d", initiator.Epoch(), joiner.Epoch())
	}

	env, err := initiator.Encrypt([]byte("hi B"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := joiner.Decrypt(initiator.SelfPeerID(), env.Payload, env.Epoch, env.Counter)
	if err != nil {
		t.Fatalf("Decrypt at joiner: %v", err)
	}
	if string(pt) != "hi B" {
		t.Fatalf("Decrypt = %q, want %q", pt, "hi B")
	}

	reply, err := joiner.Encrypt([]byte("hi A"))
	if err != nil {
		t.Fatalf("Encrypt reply: %v", err)
	}
	pt2, err := initiator.Decrypt(joiner.SelfPeerID(), reply.Payload, reply.Epoch, reply.Counter)
	if err != nil {
		t.Fatalf("Decrypt reply: %v", err)
	}
	if string(pt2) != "hi A" {
		t.Fatalf("Decrypt reply = %q, want %q", pt2, "hi A")
	}
}

// TestRemovalBreaksForwardSecrecy exercises scenario 3 and I4: after a peer
// is removed and a commit processed, the removed peer's pre-removal epoch
// key cannot decrypt messages sent under the post-removal epoch's key.
func TestRemovalBreaksForwardSecrecy(t *testing.T) {
	a := newTestParticipant(t, "room-3", "peer-a")
	b := newTestParticipant(t, "room-3", "peer-b")
	if err := a.CreateTree(); err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	introduce(t, a, b)

	commit, err := a.InitiateRekey()
	if err != nil {
		t.Fatalf("InitiateRekey (add B): %v", err)
	}
	welcome, err := a.GenerateWelcomeFor("peer-b")
	if err != nil {
		t.Fatalf("GenerateWelcomeFor: %v", err)
	}
	_ = commit
	if err := b.ReceiveWelcome(welcome); err != nil {
		t.Fatalf("ReceiveWelcome: %v", err)
	}

	epochBeforeRemoval := a.Epoch()

	if err := a.RemovePeer("peer-b"); err != nil {
		t.Fatalf("RemovePeer: %v", err)
	}
	commit2, err := a.InitiateRekey()
	if err != nil {
		t.Fatalf("InitiateRekey (remove B): %v", err)
	}
	if commit2.Epoch != epochBeforeRemoval+1 {
		t.Fatalf("epoch after remove commit = %d, want %d", commit2.Epoch, epochBeforeRemoval+1)
	}

	// A encrypts under the new, post-removal epoch.
	env, err := a.Encrypt([]byte("secret after removal"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// B's stale view (still at the pre-removal epoch, no grace window active
	// for an epoch it never advanced past) cannot decrypt it.
	if _, err := b.Decrypt("peer-a", env.Payload, env.Epoch, env.Counter); err == nil {
		t.Fatal("expected B's stale epoch view to fail decrypting a post-removal message")
	}
}

// TestGraceWindowExpiry exercises B3: a message tagged with the previous
// epoch decrypts within the 30s grace window and fails once it elapses.
func TestGraceWindowExpiry(t *testing.T) {
	a := newTestParticipant(t, "room-4", "peer-a")
	b := newTestParticipant(t, "room-4", "peer-b")
	if err := a.CreateTree(); err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	introduce(t, a, b)

	commit, err := a.InitiateRekey()
	if err != nil {
		t.Fatalf("InitiateRekey: %v", err)
	}
	welcome, err := a.GenerateWelcomeFor("peer-b")
	if err != nil {
		t.Fatalf("GenerateWelcomeFor: %v", err)
	}
	_ = commit
	if err := b.ReceiveWelcome(welcome); err != nil {
		t.Fatalf("ReceiveWelcome: %v", err)
	}

	// B sends two messages just before a second rekey; both stay tagged
	// with the epoch that the rekey retires.
	lateEnv, err := b.Encrypt([]byte("in flight"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	lateEnv2, err := b.Encrypt([]byte("too late"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	clock := time.Now()
	a.now = func() time.Time { return clock }
	b.now = func() time.Time { return clock }

	commit2, err := a.InitiateRekey()
	if err != nil {
		t.Fatalf("InitiateRekey 2: %v", err)
	}
	if err := b.ReceiveCommit(commit2); err != nil {
		t.Fatalf("ReceiveCommit: %v", err)
	}

	pt, err := a.Decrypt("peer-b", lateEnv.Payload, lateEnv.Epoch, lateEnv.Counter)
	if err != nil {
		t.Fatalf("Decrypt within grace window: %v", err)
	}
	if string(pt) != "in flight" {
		t.Fatalf("Decrypt = %q, want %q", pt, "in flight")
	}

	clock = clock.Add(GraceWindow + time.Second)

	if _, err := a.Decrypt("peer-b", lateEnv2.Payload, lateEnv2.Epoch, lateEnv2.Counter); err == nil {
		t.Fatal("expected EpochOutOfWindow once the grace window has elapsed")
	}
}

// TestAddPeerFailureLeavesStateUnchanged exercises I5: every AddPeer
// failure path leaves the registry (and tree leaf count) untouched.
func TestAddPeerFailureLeavesStateUnchanged(t *testing.T) {
	a := newTestParticipant(t, "room-5", "peer-a")
	if err := a.CreateTree(); err != nil {
		t.Fatalf("CreateTree: %v", err)
	}

	before := a.PeerCount()

	if err := a.AddPeer("peer-x", make([]byte, 10), make([]byte, pcrypto.KemPublicKeySize), make([]byte, pcrypto.SignatureSize)); err != ErrInvalidKey {
		t.Fatalf("AddPeer with bad signing key: err = %v, want ErrInvalidKey", err)
	}
	if a.PeerCount() != before {
		t.Fatalf("PeerCount changed after rejected AddPeer: got %d, want %d", a.PeerCount(), before)
	}

	forged := newTestParticipant(t, "room-5", "peer-forger")
	ann, err := forged.Announce()
	if err != nil {
		t.Fatalf("Announce: %v", err)
	}
	badSig, err := pcrypto.Sign(forged.signing.PrivateKey, ann.SigningPublicKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := a.AddPeer("peer-x", ann.SigningPublicKey, ann.KemPublicKey, badSig); err != ErrInvalidSignature {
		t.Fatalf("AddPeer with signature over the wrong payload: err = %v, want ErrInvalidSignature", err)
	}
	if a.PeerCount() != before {
		t.Fatalf("PeerCount changed after rejected AddPeer: got %d, want %d", a.PeerCount(), before)
	}
}
