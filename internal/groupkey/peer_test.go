package groupkey

import (
	"testing"

	"github.com/kindlyrobotics/parrhesia-core/internal/identity"
)

// withFixedColorIndex stubs colorIndexFn for the duration of a test so
// collision handling can be exercised deterministically instead of hunting
// for a real sha256 collision.
func withFixedColorIndex(t *testing.T, indexOf map[identity.Fingerprint]int) {
	t.Helper()
	prev := colorIndexFn
	colorIndexFn = func(fp identity.Fingerprint) int {
		if idx, ok := indexOf[fp]; ok {
			return idx
		}
		return prev(fp)
	}
	t.Cleanup(func() { colorIndexFn = prev })
}

// TestAssignColorProbesForwardPastTaken exercises the probe-forward
// collision resolution in isolation: a fingerprint whose natural slot is
// already in taken must resolve to the next free slot, not to a color
// already held by someone else.
func TestAssignColorProbesForwardPastTaken(t *testing.T) {
	fp := identity.Fingerprint("peer-under-test")
	withFixedColorIndex(t, map[identity.Fingerprint]int{fp: 0})

	taken := map[string]bool{colorPalette[0]: true}
	got := assignColor(fp, taken)

	if taken[got] {
		t.Fatalf("assignColor returned already-taken color %q", got)
	}
	if got != colorPalette[1] {
		t.Fatalf("assignColor = %q, want next free slot %q", got, colorPalette[1])
	}
}

// TestRegistryPutResolvesColorCollisionWithoutDuplicates exercises the bug
// reported against the previous implementation: on a natural-slot collision
// where the newly-inserted peer's fingerprint lexicographically precedes
// the incumbent's, the incumbent must be reassigned to a different color
// rather than left holding the winner's former color. Per §3, two distinct
// peers must never end up with the identical Color value.
func TestRegistryPutResolvesColorCollisionWithoutDuplicates(t *testing.T) {
	incumbentFP := identity.Fingerprint("bbbb-incumbent")
	challengerFP := identity.Fingerprint("aaaa-challenger") // lexicographically smaller

	withFixedColorIndex(t, map[identity.Fingerprint]int{
		incumbentFP:  3,
		challengerFP: 3, // same natural slot as the incumbent
	})

	r := NewRegistry()
	r.Put(&Peer{PeerID: "incumbent", Fingerprint: incumbentFP})
	if got := r.peers["incumbent"].Color; got != colorPalette[3] {
		t.Fatalf("incumbent color = %q, want natural slot %q", got, colorPalette[3])
	}

	// The challenger's fingerprint sorts first, so it wins slot 3 on the
	// full recompute; the incumbent must be bumped elsewhere, not left on
	// the color the challenger now holds.
	r.Put(&Peer{PeerID: "challenger", Fingerprint: challengerFP})

	incumbentColor := r.peers["incumbent"].Color
	challengerColor := r.peers["challenger"].Color

	if challengerColor != colorPalette[3] {
		t.Fatalf("challenger color = %q, want won natural slot %q", challengerColor, colorPalette[3])
	}
	if incumbentColor == challengerColor {
		t.Fatalf("incumbent and challenger share color %q after collision", incumbentColor)
	}
	if incumbentColor != colorPalette[4] {
		t.Fatalf("incumbent color = %q, want bumped to next free slot %q", incumbentColor, colorPalette[4])
	}
}

// TestRegistryPutManyCollisionsAllDistinct forces every fingerprint onto
// the same natural slot and checks that recomputeColors still assigns
// len(colorPalette) peers len(colorPalette) distinct colors.
func TestRegistryPutManyCollisionsAllDistinct(t *testing.T) {
	indexOf := map[identity.Fingerprint]int{}
	fps := make([]identity.Fingerprint, len(colorPalette))
	for i := range fps {
		fp := identity.Fingerprint(string(rune('a' + i)))
		fps[i] = fp
		indexOf[fp] = 0 // every peer collides on the same natural slot
	}
	withFixedColorIndex(t, indexOf)

	r := NewRegistry()
	for i, fp := range fps {
		r.Put(&Peer{PeerID: string(rune('A' + i)), Fingerprint: fp})
	}

	seen := map[string]string{}
	for _, p := range r.peers {
		if other, exists := seen[p.Color]; exists {
			t.Fatalf("peers %s and %s share color %q", other, p.PeerID, p.Color)
		}
		seen[p.Color] = p.PeerID
	}
	if len(seen) != len(colorPalette) {
		t.Fatalf("got %d distinct colors, want %d", len(seen), len(colorPalette))
	}
}
