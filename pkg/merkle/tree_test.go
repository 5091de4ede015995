// Copyright 2025 Certen Protocol
//
// Merkle Tree Tests

package merkle

import (
	"testing"

	"github.com/certen/stm-core/pkg/crypto/digest"
)

func leafBytes(s string) []byte { return []byte(s) }

func TestBuildSingleLeaf(t *testing.T) {
	tree, err := Build([][]byte{leafBytes("only leaf")})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.LeafCount() != 1 {
		t.Fatalf("leaf count: got %d, want 1", tree.LeafCount())
	}
	want := digest.Sum(digest.TagLeaf, leafBytes("only leaf"))
	if tree.Root() != want {
		t.Error("single-leaf tree root must equal the leaf digest")
	}
}

func TestBuildDeterministic(t *testing.T) {
	leaves := [][]byte{leafBytes("a"), leafBytes("b"), leafBytes("c")}
	t1, err := Build(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t2, err := Build(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if t1.Root() != t2.Root() {
		t.Error("same insertion sequence produced different roots")
	}
}

func TestBuildPadsWithEmptyLeaf(t *testing.T) {
	// 3 real leaves pad to size 4; the 4th slot must be the canonical
	// empty-leaf digest, not a duplicate of leaf index 2.
	leaves := [][]byte{leafBytes("a"), leafBytes("b"), leafBytes("c")}
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.Height() != 2 {
		t.Fatalf("height: got %d, want 2", tree.Height())
	}
	if tree.levels[0][3] != digest.EmptyLeaf {
		t.Error("padding slot is not the canonical empty-leaf digest")
	}
}

func TestPathRoundTrip(t *testing.T) {
	leaves := [][]byte{leafBytes("a"), leafBytes("b"), leafBytes("c"), leafBytes("d"), leafBytes("e")}
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for i, lb := range leaves {
		path, err := tree.Path(i)
		if err != nil {
			t.Fatalf("path(%d): %v", i, err)
		}
		if !VerifyPath(lb, uint64(i), path, tree.Root()) {
			t.Errorf("genuine path for leaf %d failed to verify", i)
		}
	}
}

func TestPathRejectsTamperedSibling(t *testing.T) {
	leaves := [][]byte{leafBytes("a"), leafBytes("b"), leafBytes("c"), leafBytes("d")}
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	path, err := tree.Path(0)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	path.Siblings[0][0] ^= 0xFF

	if VerifyPath(leaves[0], 0, path, tree.Root()) {
		t.Error("tampered sibling must not verify")
	}
}

func TestPathRejectsTamperedLeaf(t *testing.T) {
	leaves := [][]byte{leafBytes("a"), leafBytes("b"), leafBytes("c"), leafBytes("d")}
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	path, err := tree.Path(1)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	tampered := append([]byte{}, leaves[1]...)
	tampered[0] ^= 0xFF

	if VerifyPath(tampered, 1, path, tree.Root()) {
		t.Error("tampered leaf must not verify")
	}
}

func TestBatchPathEquivalentToIndividualPaths(t *testing.T) {
	leaves := make([][]byte, 11)
	for i := range leaves {
		leaves[i] = []byte{byte(i), byte(i * 7)}
	}
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	indices := []int{1, 3, 4, 9}
	bp, err := tree.BatchPath(indices)
	if err != nil {
		t.Fatalf("batch path: %v", err)
	}

	subset := map[uint64][]byte{}
	for _, i := range indices {
		subset[uint64(i)] = leaves[i]
	}

	if !VerifyBatchPath(subset, bp, tree.Root()) {
		t.Error("genuine batch path failed to verify")
	}

	// Each individual path, verified on its own, must also succeed -
	// batch and per-leaf authentication are semantically equivalent.
	for _, i := range indices {
		path, err := tree.Path(i)
		if err != nil {
			t.Fatalf("path(%d): %v", i, err)
		}
		if !VerifyPath(leaves[i], uint64(i), path, tree.Root()) {
			t.Errorf("individual path for leaf %d failed to verify", i)
		}
	}
}

func TestBatchPathRejectsTamperedSibling(t *testing.T) {
	leaves := make([][]byte, 6)
	for i := range leaves {
		leaves[i] = []byte{byte(i)}
	}
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	bp, err := tree.BatchPath([]int{0, 5})
	if err != nil {
		t.Fatalf("batch path: %v", err)
	}
	if len(bp.Siblings) == 0 {
		t.Fatal("expected at least one sibling digest")
	}
	bp.Siblings[0][0] ^= 0xFF

	subset := map[uint64][]byte{0: leaves[0], 5: leaves[5]}
	if VerifyBatchPath(subset, bp, tree.Root()) {
		t.Error("tampered batch path sibling must not verify")
	}
}

func TestBuildRejectsEmptyLeaves(t *testing.T) {
	if _, err := Build(nil); err == nil {
		t.Error("expected error building a tree from zero leaves")
	}
}
