package treekem

import "testing"

func contains(list []NodeIndex, x NodeIndex) bool {
	for _, v := range list {
		if v == x {
			return true
		}
	}
	return false
}

// TestNodeMathRoundTrips exercises I7: parent/sibling/path agreement across
// a handful of tree sizes in the spec's supported range [1, 16].
func TestNodeMathRoundTrips(t *testing.T) {
	for n := uint32(1); n <= 16; n++ {
		n := n
		t.Run("", func(t *testing.T) {
			for p := LeafIndex(0); uint32(p) < n; p++ {
				leaf := toNodeIndex(p)
				r := root(n)

				dp := directPath(p, n)
				if leaf != r {
					if len(dp) == 0 {
						t.Fatalf("n=%d p=%d: empty direct path for non-root leaf", n, p)
					}
					if dp[len(dp)-1] != r {
						t.Fatalf("n=%d p=%d: direct path does not terminate at root", n, p)
					}
					par := parent(leaf, n)
					if !contains(dp, par) {
						t.Fatalf("n=%d p=%d: parent(2p,n)=%d not on direct path %v", n, p, par, dp)
					}
				} else if len(dp) != 0 {
					t.Fatalf("n=%d p=%d: root leaf must have an empty direct path", n, p)
				}

				cp := copath(p, n)
				if len(dp) > 0 && len(cp) != len(dp) {
					t.Fatalf("n=%d p=%d: len(copath)=%d, want len(directPath)=%d", n, p, len(cp), len(dp))
				}

				for _, x := range dp {
					if x == r {
						continue
					}
					sib := sibling(x, n)
					if !contains(cp, sib) {
						t.Fatalf("n=%d p=%d: sibling(%d)=%d not in copath %v", n, p, x, sib, cp)
					}
					par := parent(x, n)
					kids := map[NodeIndex]bool{leftChild(par): true, rightChild(par, n): true}
					if !kids[x] || !kids[sib] {
						t.Fatalf("n=%d p=%d: {leftChild,rightChild}(parent(%d)) does not equal {%d,%d}", n, p, x, x, sib)
					}
				}
			}
		})
	}
}

func TestRootSingleLeaf(t *testing.T) {
	if r := root(1); r != 0 {
		t.Fatalf("root(1) = %d, want 0", r)
	}
}

func TestLevelOfLeavesIsZero(t *testing.T) {
	for p := LeafIndex(0); p < 8; p++ {
		if lv := level(toNodeIndex(p)); lv != 0 {
			t.Fatalf("level(leaf %d) = %d, want 0", p, lv)
		}
	}
}
