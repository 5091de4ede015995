// Copyright 2025 Certen Protocol
//
// Authentication paths for individual leaves and compact batch paths for a
// set of leaves sharing sibling digests. A batch path decodes to exactly the
// same information as the union of the individual paths it replaces; it is
// smaller because a sibling that is itself among the proven leaves does not
// need to be carried on the wire.

package merkle

import (
	"errors"
	"fmt"
	"sort"

	"github.com/certen/stm-core/pkg/crypto/digest"
)

// Path is the authentication path for a single leaf: its index and the
// sibling digests from leaf level up to the root.
type Path struct {
	LeafIndex uint64
	Siblings  [][digest.Size]byte
}

// BatchPath is a compact authentication for a set of leaves under one tree.
type BatchPath struct {
	LeafCount   uint64
	TreeHeight  uint64
	LeafIndexes []uint64
	Siblings    [][digest.Size]byte
}

// VerifyPath recomputes the root from leafBytes, i and path and compares it
// to root.
func VerifyPath(leafBytes []byte, i uint64, path *Path, root [digest.Size]byte) bool {
	if path == nil || path.LeafIndex != i {
		return false
	}

	current := digest.Sum(digest.TagLeaf, leafBytes)
	idx := i
	for _, sib := range path.Siblings {
		if idx%2 == 0 {
			current = digest.Sum(digest.TagNode, current[:], sib[:])
		} else {
			current = digest.Sum(digest.TagNode, sib[:], current[:])
		}
		idx /= 2
	}
	return current == root
}

// VerifyBatchPath reconstructs the root from a set of (leaf index -> leaf
// bytes) and bp, consuming sibling digests in the same level-by-level,
// left-to-right order BatchPath used to produce them. It returns false if
// the reconstructed root does not match root, or if bp is malformed (wrong
// number of siblings consumed, index out of range).
func VerifyBatchPath(leaves map[uint64][]byte, bp *BatchPath, root [digest.Size]byte) bool {
	if bp == nil || len(leaves) == 0 {
		return false
	}

	cur := make(map[uint64][digest.Size]byte, len(leaves))
	for idx, lb := range leaves {
		if idx >= bp.LeafCount {
			return false
		}
		cur[idx] = digest.Sum(digest.TagLeaf, lb)
	}

	sibIdx := 0
	for level := uint64(0); level < bp.TreeHeight; level++ {
		sorted := sortedKeys(cur)
		next := make(map[uint64][digest.Size]byte, (len(sorted)+1)/2)

		i := 0
		for i < len(sorted) {
			idx := sorted[i]
			sibling := idx ^ 1
			parent := idx / 2

			var left, right [digest.Size]byte
			if i+1 < len(sorted) && sorted[i+1] == sibling {
				if idx%2 == 0 {
					left, right = cur[idx], cur[sibling]
				} else {
					left, right = cur[sibling], cur[idx]
				}
				i += 2
			} else {
				if sibIdx >= len(bp.Siblings) {
					return false
				}
				sib := bp.Siblings[sibIdx]
				sibIdx++
				if idx%2 == 0 {
					left, right = cur[idx], sib
				} else {
					left, right = sib, cur[idx]
				}
				i++
			}
			next[parent] = digest.Sum(digest.TagNode, left[:], right[:])
		}
		cur = next
	}

	if sibIdx != len(bp.Siblings) || len(cur) != 1 {
		return false
	}
	for _, v := range cur {
		return v == root
	}
	return false
}

func sortedKeys(m map[uint64][digest.Size]byte) []uint64 {
	out := make([]uint64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateBatchPath runs the structural sanity checks a decoder should apply
// before trusting a batch path read off the wire.
func ValidateBatchPath(bp *BatchPath) error {
	if bp == nil {
		return errors.New("merkle: nil batch path")
	}
	if len(bp.LeafIndexes) == 0 {
		return errors.New("merkle: batch path references no leaves")
	}
	for _, idx := range bp.LeafIndexes {
		if idx >= bp.LeafCount {
			return fmt.Errorf("merkle: leaf index %d out of range [0, %d)", idx, bp.LeafCount)
		}
	}
	return nil
}
