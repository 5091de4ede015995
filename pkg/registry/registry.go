// Copyright 2025 Certen Protocol
//
// Key registry: accumulates (party id, stake, public key) triples, rejects
// duplicates and invalid proofs of possession, and on closure commits the
// registry to a Merkle tree — the aggregate verification key (AVK).
//
// The open registry is not safe for concurrent mutation; callers must
// serialize Register calls up to Close. The closed registry that Close
// returns is immutable and may be shared freely across goroutines.
package registry

import (
	"fmt"

	"github.com/certen/stm-core/pkg/crypto/bls"
	"github.com/certen/stm-core/pkg/crypto/digest"
	"github.com/certen/stm-core/pkg/merkle"
	"github.com/certen/stm-core/pkg/stm"
)

type entry struct {
	id    stm.PartyID
	stake stm.Stake
	pk    *bls.PublicKey
}

// Open is a mutable, single-writer key registry.
type Open struct {
	order []entry
	seen  map[string]struct{}
}

// New returns an empty open registry.
func New() *Open {
	return &Open{seen: make(map[string]struct{})}
}

// Register validates pk and appends (id, stake, pk) in insertion order,
// returning the assigned leaf index. It fails with stm.ErrDuplicateParty if
// id was already registered, stm.ErrInvalidKey if pk is not a valid,
// in-subgroup G2 point, or stm.ErrInvalidPoP if its proof of possession does
// not verify.
func (o *Open) Register(id stm.PartyID, stake stm.Stake, pk *bls.PublicKey) (int, error) {
	key := string(id)
	if _, dup := o.seen[key]; dup {
		return 0, stm.ErrDuplicateParty
	}
	if !pk.IsValid() {
		return 0, stm.ErrInvalidKey
	}

	ok, err := pk.VerifyPoP()
	if err != nil {
		return 0, fmt.Errorf("verify PoP: %w", err)
	}
	if !ok {
		return 0, stm.ErrInvalidPoP
	}

	idCopy := append(stm.PartyID{}, id...)
	o.order = append(o.order, entry{id: idCopy, stake: stake, pk: pk})
	o.seen[key] = struct{}{}
	return len(o.order) - 1, nil
}

// Close consumes the open registry, builds its Merkle commitment, and
// returns the closed, immutable registry. Fails with stm.ErrEmptyRegistry if
// no parties were registered.
func (o *Open) Close() (*Closed, error) {
	if len(o.order) == 0 {
		return nil, stm.ErrEmptyRegistry
	}

	leaves := make([][]byte, len(o.order))
	var totalStake stm.Stake
	for i, e := range o.order {
		mvk := e.pk.Bytes()
		leaves[i] = merkle.EncodeLeaf(mvk[:], uint64(e.stake))
		totalStake += e.stake
	}

	tree, err := merkle.Build(leaves)
	if err != nil {
		return nil, fmt.Errorf("build commitment: %w", err)
	}

	parties := make([]entry, len(o.order))
	copy(parties, o.order)

	return &Closed{tree: tree, parties: parties, totalStake: totalStake}, nil
}

// Closed is an immutable registry together with its Merkle commitment.
type Closed struct {
	tree       *merkle.Tree
	parties    []entry
	totalStake stm.Stake
}

// LeafCount returns the number of registered parties.
func (c *Closed) LeafCount() uint64 { return uint64(len(c.parties)) }

// TotalStake returns the sum of all registered stakes.
func (c *Closed) TotalStake() stm.Stake { return c.totalStake }

// MerkleRoot returns the commitment root.
func (c *Closed) MerkleRoot() [digest.Size]byte { return c.tree.Root() }

// PartyAt returns the (stake, public key) registered at leaf index i.
func (c *Closed) PartyAt(i int) (stm.Stake, *bls.PublicKey, error) {
	if i < 0 || i >= len(c.parties) {
		return 0, nil, fmt.Errorf("registry: leaf index %d out of range [0, %d)", i, len(c.parties))
	}
	e := c.parties[i]
	return e.stake, e.pk, nil
}

// LeafBytes returns the canonical leaf preimage for leaf index i, the value
// whose H("leaf"‖·) digest sits at that tree position.
func (c *Closed) LeafBytes(i int) ([]byte, error) {
	stake, pk, err := c.PartyAt(i)
	if err != nil {
		return nil, err
	}
	mvk := pk.Bytes()
	return merkle.EncodeLeaf(mvk[:], uint64(stake)), nil
}

// Path returns the authentication path for leaf index i.
func (c *Closed) Path(i int) (*merkle.Path, error) {
	return c.tree.Path(i)
}

// BatchPath returns a compact authentication covering every index in
// indices.
func (c *Closed) BatchPath(indices []int) (*merkle.BatchPath, error) {
	return c.tree.BatchPath(indices)
}

// VerifyPath checks leaf i's authentication path against this registry's
// root.
func (c *Closed) VerifyPath(leafBytes []byte, i uint64, path *merkle.Path) bool {
	return merkle.VerifyPath(leafBytes, i, path, c.MerkleRoot())
}

// VerifyBatchPath checks a batch path against this registry's root.
func (c *Closed) VerifyBatchPath(leaves map[uint64][]byte, bp *merkle.BatchPath) bool {
	return merkle.VerifyBatchPath(leaves, bp, c.MerkleRoot())
}
