// Copyright 2025 Certen Protocol
//
// Lottery signer: given a closed registry and a party's own keypair and
// stake, attempts a per-index signature for each of the protocol's M
// lottery indices. Eligibility is decided by a verifiable hash of the
// candidate signature itself, so the outcome cannot be predicted before
// computing it, and is deterministic given (sk, params, merkle_root, msg).
//
// Signers hold no mutable state across Sign calls and never suspend or
// share state with each other: two signers (or the same signer called
// twice) over the same inputs always agree on the winning set.
package signer

import (
	"encoding/binary"
	"fmt"
	"math"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"

	"github.com/certen/stm-core/pkg/crypto/bls"
	"github.com/certen/stm-core/pkg/crypto/digest"
	"github.com/certen/stm-core/pkg/merkle"
	"github.com/certen/stm-core/pkg/registry"
	"github.com/certen/stm-core/pkg/stm"
)

// Token is a single winning lottery draw: the signature, its index, and
// enough context (stake, public key, authentication path) for a clerk to
// verify it without consulting the registry again.
type Token struct {
	Sigma     *bls.Signature
	Index     uint64
	LeafIndex uint64
	Stake     stm.Stake
	PK        *bls.PublicKey
	Path      *merkle.Path
}

// Signer holds one party's state needed to sign against a closed registry:
// its own keypair, stake, assigned leaf index, and the frozen parameters.
type Signer struct {
	sk        *bls.PrivateKey
	pk        *bls.PublicKey
	stake     stm.Stake
	leafIndex uint64
	registry  *registry.Closed
	params    stm.Params
}

// New constructs a signer. leafIndex must be the index this party was
// assigned when it registered with reg.
func New(sk *bls.PrivateKey, pk *bls.PublicKey, stake stm.Stake, leafIndex uint64, reg *registry.Closed, params stm.Params) *Signer {
	return &Signer{sk: sk, pk: pk, stake: stake, leafIndex: leafIndex, registry: reg, params: params}
}

// IndexMessage builds the per-index hash preimage
// "msg"‖params‖merkle_root‖i‖msg, shared verbatim between signer and
// verifier so both hash-to-G1 the identical bytes.
func IndexMessage(params stm.Params, root [digest.Size]byte, i uint64, msg []byte) []byte {
	buf := make([]byte, 0, len(digest.TagMsg)+24+digest.Size+8+len(msg))
	buf = append(buf, []byte(digest.TagMsg)...)
	buf = append(buf, params.Encode()...)
	buf = append(buf, root[:]...)
	var ib [8]byte
	binary.BigEndian.PutUint64(ib[:], i)
	buf = append(buf, ib[:]...)
	buf = append(buf, msg...)
	return buf
}

// LotteryValue interprets the first 8 bytes of H("ev"‖sigma) as a uniform
// value in [0, 1) by dividing by 2^64. Exported so the clerk can evaluate
// the identical predicate over a signature read off the wire, without
// reimplementing the digest-to-float conversion.
func LotteryValue(sigma bls12381.G1Affine) float64 {
	sigBytes := sigma.Bytes()
	d := digest.Sum(digest.TagEv, sigBytes[:])
	u := binary.BigEndian.Uint64(d[:8])
	return math.Ldexp(float64(u), -64)
}

// Wins evaluates the lottery predicate e < 1 - (1-phi)^(stake/total) using
// the closed-form log1p/exp identity 1 - exp(stake/total * ln(1-phi)) to
// retain precision near the boundary.
func Wins(e float64, stake, totalStake stm.Stake, phiF float64) bool {
	if totalStake == 0 {
		return false
	}
	ratio := float64(stake) / float64(totalStake)
	threshold := 1 - math.Exp(ratio*math.Log(1-phiF))
	return e < threshold
}

// Sign attempts every lottery index in [0, m) and returns a token for each
// winning index.
func (s *Signer) Sign(msg []byte) ([]*Token, error) {
	root := s.registry.MerkleRoot()
	totalStake := s.registry.TotalStake()

	var tokens []*Token
	for i := uint64(0); i < s.params.M; i++ {
		preimage := IndexMessage(s.params, root, i, msg)
		h, err := bls.HashToG1(preimage)
		if err != nil {
			return nil, fmt.Errorf("hash index %d: %w", i, err)
		}
		sigma := s.sk.SignHash(h)

		e := LotteryValue(sigma.Point())
		if !Wins(e, s.stake, totalStake, s.params.PhiF) {
			continue
		}

		path, err := s.registry.Path(int(s.leafIndex))
		if err != nil {
			return nil, fmt.Errorf("path for leaf %d: %w", s.leafIndex, err)
		}

		tokens = append(tokens, &Token{
			Sigma:     sigma,
			Index:     i,
			LeafIndex: s.leafIndex,
			Stake:     s.stake,
			PK:        s.pk,
			Path:      path,
		})
	}
	return tokens, nil
}
