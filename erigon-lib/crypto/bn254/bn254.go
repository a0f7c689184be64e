// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package bn254 implements the alt_bn128 (BN254) pairing-friendly curve
// operations backing the EVM's 0x06/0x07/0x08 precompiles (EIP-196,
// EIP-197): G1 addition, G1 scalar multiplication, and the multi-pairing
// check used to verify zk-SNARK proofs on-chain.
package bn254

import (
	"errors"
	"math/big"
)

var (
	ErrInvalidPoint  = errors.New("bn254: point not on curve")
	ErrInvalidG2     = errors.New("bn254: g2 field element out of range")
	ErrInvalidLength = errors.New("bn254: input length not a multiple of 192")
)

// Add implements precompile 0x06: point addition on G1.
// Input is 4 big-endian 32-byte field elements (x1, y1, x2, y2), short
// input right-padded with zeros; output is the 64-byte sum point.
func Add(input []byte) ([]byte, error) {
	input = padRight(input, 128)

	x1 := new(big.Int).SetBytes(input[0:32])
	y1 := new(big.Int).SetBytes(input[32:64])
	x2 := new(big.Int).SetBytes(input[64:96])
	y2 := new(big.Int).SetBytes(input[96:128])

	if !g1IsOnCurve(x1, y1) || !g1IsOnCurve(x2, y2) {
		return nil, ErrInvalidPoint
	}

	sum := g1Add(g1FromAffine(x1, y1), g1FromAffine(x2, y2))
	rx, ry := sum.g1ToAffine()
	return encodeG1(rx, ry), nil
}

// ScalarMul implements precompile 0x07: G1 scalar multiplication.
// Input is (x, y, scalar) as 3 big-endian 32-byte words; output is the
// 64-byte product point.
func ScalarMul(input []byte) ([]byte, error) {
	input = padRight(input, 96)

	x := new(big.Int).SetBytes(input[0:32])
	y := new(big.Int).SetBytes(input[32:64])
	s := new(big.Int).SetBytes(input[64:96])

	if !g1IsOnCurve(x, y) {
		return nil, ErrInvalidPoint
	}

	product := G1ScalarMul(g1FromAffine(x, y), s)
	rx, ry := product.g1ToAffine()
	return encodeG1(rx, ry), nil
}

// PairingCheck implements precompile 0x08: verifies that the product of
// k (G1, G2) pairings equals the identity element in GT. Each pairing
// is a 192-byte chunk: G1 (64 bytes) then G2 as
// x_imag|x_real|y_imag|y_real (32 bytes each). An empty input is
// trivially true (the empty product is the identity).
func PairingCheck(input []byte) ([]byte, error) {
	if len(input)%192 != 0 {
		return nil, ErrInvalidLength
	}
	k := len(input) / 192
	if k == 0 {
		return encodeBool(true), nil
	}

	g1Points := make([]*G1Point, k)
	g2Points := make([]*G2Point, k)
	for i := 0; i < k; i++ {
		off := i * 192

		g1x := new(big.Int).SetBytes(input[off : off+32])
		g1y := new(big.Int).SetBytes(input[off+32 : off+64])
		if !g1IsOnCurve(g1x, g1y) {
			return nil, ErrInvalidPoint
		}
		g1Points[i] = g1FromAffine(g1x, g1y)

		g2xImag := new(big.Int).SetBytes(input[off+64 : off+96])
		g2xReal := new(big.Int).SetBytes(input[off+96 : off+128])
		g2yImag := new(big.Int).SetBytes(input[off+128 : off+160])
		g2yReal := new(big.Int).SetBytes(input[off+160 : off+192])
		if g2xImag.Cmp(bn254P) >= 0 || g2xReal.Cmp(bn254P) >= 0 ||
			g2yImag.Cmp(bn254P) >= 0 || g2yReal.Cmp(bn254P) >= 0 {
			return nil, ErrInvalidG2
		}

		g2x := &fp2{a0: g2xReal, a1: g2xImag}
		g2y := &fp2{a0: g2yReal, a1: g2yImag}
		if g2x.isZero() && g2y.isZero() {
			g2Points[i] = G2Infinity()
			continue
		}
		if !g2IsOnCurve(g2x, g2y) {
			return nil, ErrInvalidG2
		}
		g2Points[i] = g2FromAffine(g2x, g2y)
	}

	return encodeBool(bn254MultiPairing(g1Points, g2Points)), nil
}

func encodeG1(x, y *big.Int) []byte {
	out := make([]byte, 64)
	xb, yb := x.Bytes(), y.Bytes()
	copy(out[32-len(xb):32], xb)
	copy(out[64-len(yb):64], yb)
	return out
}

func encodeBool(ok bool) []byte {
	out := make([]byte, 32)
	if ok {
		out[31] = 1
	}
	return out
}

func padRight(data []byte, minLen int) []byte {
	if len(data) >= minLen {
		return data[:minLen]
	}
	padded := make([]byte, minLen)
	copy(padded, data)
	return padded
}
