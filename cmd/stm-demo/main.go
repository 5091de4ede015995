// Copyright 2025 Certen Protocol
//
// Demo binary: registers a handful of stake-weighted parties, runs the
// lottery signing protocol over one message, aggregates the winning
// tokens both ways (classic and batch-compact), round-trips the
// batch-compact wire encoding, and verifies the result. Mirrors the shape
// of a registration-and-aggregation walkthrough, not a long-running
// service.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/certen/stm-core/pkg/clerk"
	"github.com/certen/stm-core/pkg/crypto/bls"
	"github.com/certen/stm-core/pkg/registry"
	"github.com/certen/stm-core/pkg/signer"
	"github.com/certen/stm-core/pkg/stm"
	"github.com/certen/stm-core/pkg/wire"
)

func main() {
	nParties := flag.Int("parties", 5, "number of parties to register")
	m := flag.Uint64("m", 200, "lottery indices per signer")
	k := flag.Uint64("k", 5, "quorum threshold")
	phiF := flag.Float64("phi-f", 0.5, "lottery difficulty in (0,1]")
	flag.Parse()

	runID := uuid.NewString()
	log.Printf("run %s: registering %d parties", runID, *nParties)

	open := registry.New()
	type partyMaterial struct {
		id    stm.PartyID
		sk    *bls.PrivateKey
		pk    *bls.PublicKey
		stake stm.Stake
	}
	parties := make([]partyMaterial, *nParties)

	for i := 0; i < *nParties; i++ {
		sk, pk, err := bls.GenerateKeyPair()
		if err != nil {
			log.Fatalf("generate key pair %d: %v", i, err)
		}
		stake := stm.Stake(100 * (i + 1))
		id := stm.PartyID(fmt.Sprintf("party-%d", i))

		leafIndex, err := open.Register(id, stake, pk)
		if err != nil {
			log.Fatalf("register party %d: %v", i, err)
		}
		parties[i] = partyMaterial{id: id, sk: sk, pk: pk, stake: stake}
		log.Printf("run %s: registered %s at leaf %d with stake %d", runID, id, leafIndex, stake)
	}

	closed, err := open.Close()
	if err != nil {
		log.Fatalf("close registry: %v", err)
	}
	log.Printf("run %s: closed registry, root=%x total_stake=%d", runID, closed.MerkleRoot(), closed.TotalStake())

	params := stm.Params{M: *m, K: *k, PhiF: *phiF}
	msg := []byte("certen stm-core demo message")

	var allTokens []*signer.Token
	for i, p := range parties {
		s := signer.New(p.sk, p.pk, p.stake, uint64(i), closed, params)
		tokens, err := s.Sign(msg)
		if err != nil {
			log.Fatalf("sign as party %d: %v", i, err)
		}
		log.Printf("run %s: party %d won %d lottery indices", runID, i, len(tokens))
		allTokens = append(allTokens, tokens...)
	}

	c := clerk.New(params, closed)
	avk := clerk.FromRegistry(closed)

	if ms, err := c.AggregateClassic(allTokens, msg); err != nil {
		log.Printf("run %s: classic aggregation failed: %v", runID, err)
	} else if err := clerk.VerifyClassic(params, avk, ms, msg); err != nil {
		log.Fatalf("classic multi-signature did not verify: %v", err)
	} else {
		log.Printf("run %s: classic multi-signature verified with %d tokens", runID, len(ms.Tokens))
	}

	ms, err := c.AggregateBatchCompact(allTokens, msg)
	if err != nil {
		log.Fatalf("batch-compact aggregation failed: %v", err)
	}

	encoded, err := wire.EncodeBatchCompact(ms)
	if err != nil {
		log.Fatalf("encode batch-compact: %v", err)
	}
	log.Printf("run %s: batch-compact encoding is %d bytes", runID, len(encoded))

	decoded, err := wire.DecodeBatchCompact(encoded)
	if err != nil {
		log.Fatalf("decode batch-compact: %v", err)
	}
	if err := clerk.VerifyBatchCompact(params, avk, decoded, msg); err != nil {
		log.Fatalf("decoded batch-compact multi-signature did not verify: %v", err)
	}
	log.Printf("run %s: batch-compact multi-signature round-tripped and verified with %d items", runID, len(decoded.Items))

	// Deliberately demonstrate the not-enough-signatures failure: a quorum
	// request far above anything this registry's stake distribution can win.
	starved := stm.Params{M: params.M, K: params.M * uint64(*nParties) + 1, PhiF: params.PhiF}
	if _, err := c.AggregateClassic(allTokens, msg); err == nil {
		_, starvedErr := (&clerk.Clerk{Params: starved, Registry: closed}).AggregateClassic(allTokens, msg)
		if starvedErr == nil {
			log.Fatalf("expected not-enough-signatures failure, got none")
		}
		log.Printf("run %s: oversized quorum request failed as expected: %v", runID, starvedErr)
	}
}
