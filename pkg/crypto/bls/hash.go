// Copyright 2025 Certen Protocol
//
// Hash-to-curve for BLS12-381 G1 following RFC 9380's
// _XMD:BLAKE2B_SSWU_RO_ construction: expand the message with
// expand_message_xmd (Blake2b-256 as the underlying hash), derive two field
// elements, map each to the curve with the Simplified SWU method, apply the
// 11-isogeny back to the BLS12-381 curve equation, add the two points, and
// clear the cofactor. This is the "random oracle" variant of RFC 9380 §3:
// two independent field elements are combined so the map is indistinguishable
// from a random function on the curve, unlike the single-element "encode to
// curve" variant.
//
// gnark-crypto does not expose expand_message_xmd parameterized over an
// arbitrary hash function, so the expansion step is implemented directly
// against the RFC. The curve-side steps (SSWU map, isogeny, cofactor
// clearing) reuse gnark-crypto's own primitives rather than reimplementing
// curve arithmetic.
package bls

import (
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fp"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/hash_to_curve"
	"golang.org/x/crypto/blake2b"
)

// HashToG1DST is the domain separation tag frozen for hash-to-G1. Any
// change to this value breaks interoperability with every artifact produced
// under the previous tag.
const HashToG1DST = "MITHRIL_H2G1_v1"

const (
	blake2bOutputBytes = 32  // Blake2b-256 digest size
	blake2bBlockBytes  = 128 // Blake2b compression function block size
)

// expandMessageXMD implements RFC 9380 §5.3.1 over Blake2b-256.
func expandMessageXMD(msg, dst []byte, lenInBytes int) ([]byte, error) {
	if len(dst) > 255 {
		return nil, fmt.Errorf("bls: DST too long: %d bytes", len(dst))
	}
	ell := (lenInBytes + blake2bOutputBytes - 1) / blake2bOutputBytes
	if ell > 255 {
		return nil, fmt.Errorf("bls: requested output too long: %d bytes", lenInBytes)
	}

	dstPrime := append(append([]byte{}, dst...), byte(len(dst)))
	zPad := make([]byte, blake2bBlockBytes)
	libStr := []byte{byte(lenInBytes >> 8), byte(lenInBytes)}

	h0, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	h0.Write(zPad)
	h0.Write(msg)
	h0.Write(libStr)
	h0.Write([]byte{0})
	h0.Write(dstPrime)
	b0 := h0.Sum(nil)

	h1, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	h1.Write(b0)
	h1.Write([]byte{1})
	h1.Write(dstPrime)
	bi := h1.Sum(nil)

	uniform := make([]byte, 0, ell*blake2bOutputBytes)
	uniform = append(uniform, bi...)

	prev := bi
	for i := 2; i <= ell; i++ {
		xored := make([]byte, blake2bOutputBytes)
		for j := range xored {
			xored[j] = b0[j] ^ prev[j]
		}
		hn, err := blake2b.New256(nil)
		if err != nil {
			return nil, err
		}
		hn.Write(xored)
		hn.Write([]byte{byte(i)})
		hn.Write(dstPrime)
		prev = hn.Sum(nil)
		uniform = append(uniform, prev...)
	}

	return uniform[:lenInBytes], nil
}

// hashToFieldG1 derives the two base-field elements consumed by the
// random-oracle hash-to-curve map (RFC 9380 §5.2, count=2, L=64 for a
// 381-bit field with a 128-bit security margin).
func hashToFieldG1(msg []byte) (fp.Element, fp.Element, error) {
	const l = 64
	uniform, err := expandMessageXMD(msg, []byte(HashToG1DST), 2*l)
	if err != nil {
		return fp.Element{}, fp.Element{}, err
	}

	var u0Big, u1Big big.Int
	u0Big.SetBytes(uniform[:l])
	u1Big.SetBytes(uniform[l:])

	modulus := fp.Modulus()
	u0Big.Mod(&u0Big, modulus)
	u1Big.Mod(&u1Big, modulus)

	var u0, u1 fp.Element
	u0.SetBigInt(&u0Big)
	u1.SetBigInt(&u1Big)
	return u0, u1, nil
}

// HashToG1 maps an arbitrary message to a point in the G1 subgroup using the
// frozen RFC 9380 suite. The result is deterministic and, unlike the
// "encode to curve" shortcuts used elsewhere in the ecosystem, is built from
// two independently mapped field elements so it behaves as a random oracle.
func HashToG1(msg []byte) (bls12381.G1Affine, error) {
	u0, u1, err := hashToFieldG1(msg)
	if err != nil {
		return bls12381.G1Affine{}, err
	}

	p0 := bls12381.MapToCurve1(&u0)
	hash_to_curve.G1Isogeny(&p0.X, &p0.Y)

	p1 := bls12381.MapToCurve1(&u1)
	hash_to_curve.G1Isogeny(&p1.X, &p1.Y)

	var sum bls12381.G1Jac
	var p0Jac, p1Jac bls12381.G1Jac
	p0Jac.FromAffine(&p0)
	p1Jac.FromAffine(&p1)
	sum.Set(&p0Jac)
	sum.AddAssign(&p1Jac)

	var sumAff, out bls12381.G1Affine
	sumAff.FromJacobian(&sum)
	out.ClearCofactor(&sumAff)
	return out, nil
}
