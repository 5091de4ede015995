// Copyright 2025 Certen Protocol

package clerk

import (
	"testing"

	"github.com/certen/stm-core/pkg/crypto/bls"
	"github.com/certen/stm-core/pkg/registry"
	"github.com/certen/stm-core/pkg/signer"
	"github.com/certen/stm-core/pkg/stm"
)

type party struct {
	id    stm.PartyID
	sk    *bls.PrivateKey
	pk    *bls.PublicKey
	stake stm.Stake
}

func setup(t *testing.T, stakes []stm.Stake, params stm.Params) (*registry.Closed, []party, []*signer.Token) {
	t.Helper()
	open := registry.New()
	parties := make([]party, len(stakes))
	for i, stake := range stakes {
		sk, pk, err := bls.GenerateKeyPair()
		if err != nil {
			t.Fatalf("generate key pair %d: %v", i, err)
		}
		id := stm.PartyID{byte(i)}
		if _, err := open.Register(id, stake, pk); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		parties[i] = party{id: id, sk: sk, pk: pk, stake: stake}
	}
	closed, err := open.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	msg := []byte("clerk test message")
	var tokens []*signer.Token
	for i, p := range parties {
		s := signer.New(p.sk, p.pk, p.stake, uint64(i), closed, params)
		ts, err := s.Sign(msg)
		if err != nil {
			t.Fatalf("sign %d: %v", i, err)
		}
		tokens = append(tokens, ts...)
	}
	return closed, parties, tokens
}

func TestAggregateAndVerifyClassic(t *testing.T) {
	params := stm.Params{M: 400, K: 3, PhiF: 0.9}
	closed, _, tokens := setup(t, []stm.Stake{1000, 1000, 1000, 1000}, params)

	c := New(params, closed)
	avk := FromRegistry(closed)
	msg := []byte("clerk test message")

	ms, err := c.AggregateClassic(tokens, msg)
	if err != nil {
		t.Fatalf("aggregate classic: %v", err)
	}
	if err := VerifyClassic(params, avk, ms, msg); err != nil {
		t.Fatalf("verify classic: %v", err)
	}
}

func TestAggregateAndVerifyBatchCompactRoundTrip(t *testing.T) {
	params := stm.Params{M: 400, K: 3, PhiF: 0.9}
	closed, _, tokens := setup(t, []stm.Stake{1000, 1000, 1000, 1000}, params)

	c := New(params, closed)
	avk := FromRegistry(closed)
	msg := []byte("clerk test message")

	ms, err := c.AggregateBatchCompact(tokens, msg)
	if err != nil {
		t.Fatalf("aggregate batch-compact: %v", err)
	}
	if err := VerifyBatchCompact(params, avk, ms, msg); err != nil {
		t.Fatalf("verify batch-compact: %v", err)
	}
}

func TestNotEnoughSignatures(t *testing.T) {
	params := stm.Params{M: 50, K: 10_000, PhiF: 0.5}
	closed, _, tokens := setup(t, []stm.Stake{1000}, params)

	c := New(params, closed)
	msg := []byte("clerk test message")
	if _, err := c.AggregateClassic(tokens, msg); err != stm.ErrNotEnoughSignatures {
		t.Fatalf("expected ErrNotEnoughSignatures, got %v", err)
	}
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	params := stm.Params{M: 400, K: 3, PhiF: 0.9}
	closed, _, tokens := setup(t, []stm.Stake{1000, 1000, 1000, 1000}, params)

	c := New(params, closed)
	avk := FromRegistry(closed)
	msg := []byte("clerk test message")

	ms, err := c.AggregateClassic(tokens, msg)
	if err != nil {
		t.Fatalf("aggregate classic: %v", err)
	}
	err = VerifyClassic(params, avk, ms, []byte("a different message entirely"))
	if err == nil {
		t.Fatal("expected verification to fail against a mutated message")
	}
	invalid, ok := err.(*stm.InvalidMultiSignatureError)
	if !ok {
		t.Fatalf("expected *stm.InvalidMultiSignatureError, got %T: %v", err, err)
	}
	if invalid.Kind != stm.FaultSignature {
		t.Errorf("expected FaultSignature, got %s", invalid.Kind)
	}
}

func TestVerifyRejectsTamperedStake(t *testing.T) {
	params := stm.Params{M: 400, K: 3, PhiF: 0.9}
	closed, _, tokens := setup(t, []stm.Stake{1000, 1000, 1000, 1000}, params)

	c := New(params, closed)
	avk := FromRegistry(closed)
	msg := []byte("clerk test message")

	ms, err := c.AggregateClassic(tokens, msg)
	if err != nil {
		t.Fatalf("aggregate classic: %v", err)
	}
	ms.Tokens[0].Stake += 1

	err = VerifyClassic(params, avk, ms, msg)
	if err == nil {
		t.Fatal("expected verification to fail after tampering with a token's stake")
	}
	invalid, ok := err.(*stm.InvalidMultiSignatureError)
	if !ok {
		t.Fatalf("expected *stm.InvalidMultiSignatureError, got %T: %v", err, err)
	}
	if invalid.Kind != stm.FaultMembership {
		t.Errorf("expected FaultMembership, got %s", invalid.Kind)
	}
}

func TestVerifyBatchCompactRejectsTamperedSibling(t *testing.T) {
	params := stm.Params{M: 400, K: 3, PhiF: 0.9}
	closed, _, tokens := setup(t, []stm.Stake{1000, 1000, 1000, 1000}, params)

	c := New(params, closed)
	avk := FromRegistry(closed)
	msg := []byte("clerk test message")

	ms, err := c.AggregateBatchCompact(tokens, msg)
	if err != nil {
		t.Fatalf("aggregate batch-compact: %v", err)
	}
	if len(ms.BatchPath.Siblings) == 0 {
		t.Fatal("expected at least one sibling digest in this configuration")
	}
	ms.BatchPath.Siblings[0][0] ^= 0xFF

	err = VerifyBatchCompact(params, avk, ms, msg)
	if err == nil {
		t.Fatal("expected verification to fail after tampering with a sibling digest")
	}
	invalid, ok := err.(*stm.InvalidMultiSignatureError)
	if !ok {
		t.Fatalf("expected *stm.InvalidMultiSignatureError, got %T: %v", err, err)
	}
	if invalid.Kind != stm.FaultMembership {
		t.Errorf("expected FaultMembership, got %s", invalid.Kind)
	}
}

func TestAggregateDiscardsInvalidToken(t *testing.T) {
	params := stm.Params{M: 400, K: 3, PhiF: 0.9}
	closed, parties, tokens := setup(t, []stm.Stake{1000, 1000, 1000, 1000}, params)

	c := New(params, closed)
	avk := FromRegistry(closed)
	msg := []byte("clerk test message")

	forged := *tokens[0]
	s := signer.New(parties[0].sk, parties[0].pk, parties[0].stake, 0, closed, params)
	wrongSigs, err := s.Sign([]byte("a different message entirely"))
	if err != nil || len(wrongSigs) == 0 {
		t.Fatalf("sign wrong message: %v", err)
	}
	forged.Sigma = wrongSigs[0].Sigma
	tainted := append(append([]*signer.Token{}, tokens...), &forged)

	ms, err := c.AggregateClassic(tainted, msg)
	if err != nil {
		t.Fatalf("aggregate classic with tainted pool: %v", err)
	}
	if err := VerifyClassic(params, avk, ms, msg); err != nil {
		t.Fatalf("verify classic: %v", err)
	}
	for _, tok := range ms.Tokens {
		if tok == &forged {
			t.Fatal("forged token survived aggregation")
		}
	}
}

func TestVerifyRejectsIndexOutOfRange(t *testing.T) {
	params := stm.Params{M: 400, K: 3, PhiF: 0.9}
	closed, _, tokens := setup(t, []stm.Stake{1000, 1000, 1000, 1000}, params)

	c := New(params, closed)
	avk := FromRegistry(closed)
	msg := []byte("clerk test message")

	ms, err := c.AggregateClassic(tokens, msg)
	if err != nil {
		t.Fatalf("aggregate classic: %v", err)
	}
	ms.Tokens[0].Index = params.M

	err = VerifyClassic(params, avk, ms, msg)
	if err == nil {
		t.Fatal("expected verification to fail on an out-of-range lottery index")
	}
	invalid, ok := err.(*stm.InvalidMultiSignatureError)
	if !ok {
		t.Fatalf("expected *stm.InvalidMultiSignatureError, got %T: %v", err, err)
	}
	if invalid.Kind != stm.FaultSize {
		t.Errorf("expected FaultSize, got %s", invalid.Kind)
	}
}

func TestVerifyRejectsDuplicateIndex(t *testing.T) {
	params := stm.Params{M: 400, K: 3, PhiF: 0.9}
	closed, _, tokens := setup(t, []stm.Stake{1000, 1000, 1000, 1000}, params)

	c := New(params, closed)
	avk := FromRegistry(closed)
	msg := []byte("clerk test message")

	ms, err := c.AggregateClassic(tokens, msg)
	if err != nil {
		t.Fatalf("aggregate classic: %v", err)
	}
	ms.Tokens = append(ms.Tokens, ms.Tokens[0])

	err = VerifyClassic(params, avk, ms, msg)
	if err == nil {
		t.Fatal("expected verification to fail on a duplicated index")
	}
	invalid, ok := err.(*stm.InvalidMultiSignatureError)
	if !ok {
		t.Fatalf("expected *stm.InvalidMultiSignatureError, got %T: %v", err, err)
	}
	if invalid.Kind != stm.FaultSize {
		t.Errorf("expected FaultSize, got %s", invalid.Kind)
	}
}
