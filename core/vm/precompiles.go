// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/big"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // EVM precompile 0x03 requires this exact hash

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto/bn254"
)

// precompiledContract is the native contract interface behind addresses
// 0x01-0x0a: a gas schedule function plus the actual computation, run
// directly by the EVM's call dispatch rather than through the interpreter.
type precompiledContract interface {
	requiredGas(input []byte) uint64
	run(input []byte) ([]byte, error)
}

var precompiles = map[common.Address]precompiledContract{
	common.BytesToAddress([]byte{1}):  ecrecoverPrecompile{},
	common.BytesToAddress([]byte{2}):  sha256Precompile{},
	common.BytesToAddress([]byte{3}):  ripemd160Precompile{},
	common.BytesToAddress([]byte{4}):  identityPrecompile{},
	common.BytesToAddress([]byte{5}):  modexpPrecompile{},
	common.BytesToAddress([]byte{6}):  bn254AddPrecompile{},
	common.BytesToAddress([]byte{7}):  bn254MulPrecompile{},
	common.BytesToAddress([]byte{8}):  bn254PairingPrecompile{},
	common.BytesToAddress([]byte{9}):  blake2FPrecompile{},
	common.BytesToAddress([]byte{10}): pointEvaluationPrecompile{},
}

func isPrecompile(addr common.Address) bool {
	_, ok := precompiles[addr]
	return ok
}

// ActivePrecompiles returns the precompile addresses 0x01-0x0a, which the
// transaction executor pre-warms into every access list (spec §4.C
// "Access lists").
func ActivePrecompiles() []common.Address {
	addrs := make([]common.Address, 0, len(precompiles))
	for addr := range precompiles {
		addrs = append(addrs, addr)
	}
	return addrs
}

func getPrecompile(addr common.Address) (precompiledContract, bool) {
	p, ok := precompiles[addr]
	return p, ok
}

// runPrecompile charges the contract's gas schedule against the budget
// the caller forwarded and runs it; a precompile never touches the
// interpreter's stack/memory machinery at all.
func runPrecompile(p precompiledContract, input []byte, gas uint64) ([]byte, uint64, error) {
	cost := p.requiredGas(input)
	if gas < cost {
		return nil, 0, ErrOutOfGas
	}
	out, err := p.run(input)
	return out, gas - cost, err
}

func wordCount(n int) uint64 {
	if n == 0 {
		return 0
	}
	return uint64((n + 31) / 32)
}

func padRight(data []byte, minLen int) []byte {
	if len(data) >= minLen {
		return data
	}
	out := make([]byte, minLen)
	copy(out, data)
	return out
}

// --- 0x01 ecrecover ---

type ecrecoverPrecompile struct{}

func (ecrecoverPrecompile) requiredGas([]byte) uint64 { return 3000 }

func (ecrecoverPrecompile) run(input []byte) ([]byte, error) {
	input = padRight(input, 128)

	hash := input[0:32]
	v := new(big.Int).SetBytes(input[32:64])
	r := new(big.Int).SetBytes(input[64:96])
	s := new(big.Int).SetBytes(input[96:128])

	if v.BitLen() > 8 {
		return nil, nil
	}
	vByte := byte(v.Uint64())
	if vByte != 27 && vByte != 28 {
		return nil, nil
	}
	if !crypto.ValidateSignatureValues(vByte-27, r, s, true) {
		return nil, nil
	}

	sig := make([]byte, 65)
	rBytes, sBytes := r.Bytes(), s.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	sig[64] = vByte - 27

	pub, err := crypto.Ecrecover(hash, sig)
	if err != nil {
		return nil, nil
	}

	out := make([]byte, 32)
	copy(out[12:], crypto.Keccak256(pub[1:])[12:])
	return out, nil
}

// --- 0x02 sha256 ---

type sha256Precompile struct{}

func (sha256Precompile) requiredGas(input []byte) uint64 { return 60 + 12*wordCount(len(input)) }

func (sha256Precompile) run(input []byte) ([]byte, error) {
	h := sha256.Sum256(input)
	return h[:], nil
}

// --- 0x03 ripemd160 ---

type ripemd160Precompile struct{}

func (ripemd160Precompile) requiredGas(input []byte) uint64 { return 600 + 120*wordCount(len(input)) }

func (ripemd160Precompile) run(input []byte) ([]byte, error) {
	h := ripemd160.New()
	h.Write(input)
	out := make([]byte, 32)
	copy(out[12:], h.Sum(nil))
	return out, nil
}

// --- 0x04 identity ---

type identityPrecompile struct{}

func (identityPrecompile) requiredGas(input []byte) uint64 { return 15 + 3*wordCount(len(input)) }

func (identityPrecompile) run(input []byte) ([]byte, error) {
	out := make([]byte, len(input))
	copy(out, input)
	return out, nil
}

// --- 0x05 modexp (EIP-2565 gas schedule) ---

type modexpPrecompile struct{}

func modexpLengths(input []byte) (baseLen, expLen, modLen uint64, rest []byte) {
	input = padRight(input, 96)
	baseLen = new(big.Int).SetBytes(input[0:32]).Uint64()
	expLen = new(big.Int).SetBytes(input[32:64]).Uint64()
	modLen = new(big.Int).SetBytes(input[64:96]).Uint64()
	return baseLen, expLen, modLen, input[96:]
}

func dataSlice(data []byte, offset, length uint64) []byte {
	if length == 0 {
		return nil
	}
	out := make([]byte, length)
	if offset >= uint64(len(data)) {
		return out
	}
	end := offset + length
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	copy(out, data[offset:end])
	return out
}

// adjustedExpLen mirrors EIP-2565's "length of exponent for gas purposes":
// the index of the highest set bit of the exponent's leading 32 bytes (or
// the whole thing if shorter; 0 when they are all zero), plus 8*(expLen-32)
// when the exponent overflows 32 bytes.
func adjustedExpLen(expLen, baseLen uint64, rest []byte) uint64 {
	if expLen == 0 {
		return 0
	}
	head := dataSlice(rest, baseLen, minUint64(expLen, 32))
	headVal := new(big.Int).SetBytes(head)
	bitLen := uint64(0)
	if headVal.Sign() != 0 {
		bitLen = uint64(headVal.BitLen() - 1)
	}
	if expLen <= 32 {
		return bitLen
	}
	return bitLen + 8*(expLen-32)
}

func (modexpPrecompile) requiredGas(input []byte) uint64 {
	baseLen, expLen, modLen, rest := modexpLengths(input)
	maxLen := baseLen
	if modLen > maxLen {
		maxLen = modLen
	}
	words := (maxLen + 7) / 8
	gas := words * words * maxUint64(adjustedExpLen(expLen, baseLen, rest), 1) / 3
	if gas < 200 {
		gas = 200
	}
	return gas
}

func (modexpPrecompile) run(input []byte) ([]byte, error) {
	baseLen, expLen, modLen, rest := modexpLengths(input)
	if modLen == 0 {
		return nil, nil
	}

	base := new(big.Int).SetBytes(dataSlice(rest, 0, baseLen))
	exp := new(big.Int).SetBytes(dataSlice(rest, baseLen, expLen))
	mod := new(big.Int).SetBytes(dataSlice(rest, baseLen+expLen, modLen))

	if mod.Sign() == 0 {
		return make([]byte, modLen), nil
	}

	result := new(big.Int).Exp(base, exp, mod)
	out := result.Bytes()
	padded := make([]byte, modLen)
	copy(padded[modLen-uint64(len(out)):], out)
	return padded, nil
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// --- 0x06/0x07/0x08: alt_bn128 (BN254) curve operations, EIP-196/197/1108 ---

type bn254AddPrecompile struct{}

func (bn254AddPrecompile) requiredGas([]byte) uint64      { return 150 }
func (bn254AddPrecompile) run(input []byte) ([]byte, error) { return bn254.Add(input) }

type bn254MulPrecompile struct{}

func (bn254MulPrecompile) requiredGas([]byte) uint64        { return 6000 }
func (bn254MulPrecompile) run(input []byte) ([]byte, error) { return bn254.ScalarMul(input) }

type bn254PairingPrecompile struct{}

func (bn254PairingPrecompile) requiredGas(input []byte) uint64 {
	k := uint64(len(input)) / 192
	return 45000 + 34000*k
}
func (bn254PairingPrecompile) run(input []byte) ([]byte, error) { return bn254.PairingCheck(input) }

// --- 0x09 blake2F (EIP-152) ---

type blake2FPrecompile struct{}

func (blake2FPrecompile) requiredGas(input []byte) uint64 {
	if len(input) < 4 {
		return 0
	}
	return uint64(binary.BigEndian.Uint32(input[:4]))
}

func (blake2FPrecompile) run(input []byte) ([]byte, error) {
	if len(input) != 213 {
		return nil, errors.New("blake2f: invalid input length, want 213")
	}
	final := input[212]
	if final != 0 && final != 1 {
		return nil, errors.New("blake2f: invalid final block flag")
	}

	rounds := binary.BigEndian.Uint32(input[:4])
	var h [8]uint64
	for i := range h {
		h[i] = binary.LittleEndian.Uint64(input[4+i*8 : 12+i*8])
	}
	var m [16]uint64
	for i := range m {
		m[i] = binary.LittleEndian.Uint64(input[68+i*8 : 76+i*8])
	}
	t0 := binary.LittleEndian.Uint64(input[196:204])
	t1 := binary.LittleEndian.Uint64(input[204:212])

	blake2bCompress(&h, m, [2]uint64{t0, t1}, final == 1, rounds)

	out := make([]byte, 64)
	for i := range h {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], h[i])
	}
	return out, nil
}

var blake2bIV = [8]uint64{
	0x6a09e667f3bcc908, 0xbb67ae8584caa73b,
	0x3c6ef372fe94f82b, 0xa54ff53a5f1d36f1,
	0x510e527fade682d1, 0x9b05688c2b3e6c1f,
	0x1f83d9abfb41bd6b, 0x5be0cd19137e2179,
}

var blake2bSigma = [10][16]byte{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
	{14, 10, 4, 8, 9, 15, 13, 6, 1, 12, 0, 2, 11, 7, 5, 3},
	{11, 8, 12, 0, 5, 2, 15, 13, 10, 14, 3, 6, 7, 1, 9, 4},
	{7, 9, 3, 1, 13, 12, 11, 14, 2, 6, 5, 10, 4, 0, 15, 8},
	{9, 0, 5, 7, 2, 4, 10, 15, 14, 1, 11, 12, 6, 8, 3, 13},
	{2, 12, 6, 10, 0, 11, 8, 3, 4, 13, 7, 5, 15, 14, 1, 9},
	{12, 5, 1, 15, 14, 13, 4, 10, 0, 7, 6, 3, 9, 2, 8, 11},
	{13, 11, 7, 14, 12, 1, 3, 9, 5, 0, 15, 4, 8, 6, 2, 10},
	{6, 15, 14, 9, 11, 3, 0, 8, 12, 2, 13, 7, 1, 4, 10, 5},
	{10, 2, 8, 4, 7, 6, 1, 5, 15, 11, 9, 14, 3, 12, 13, 0},
}

// blake2bCompress is BLAKE2b's F compression function, the EVM's blake2F
// precompile applies directly against caller-supplied state and message
// words rather than hashing a stream.
func blake2bCompress(h *[8]uint64, m [16]uint64, t [2]uint64, final bool, rounds uint32) {
	var v [16]uint64
	copy(v[:8], h[:])
	copy(v[8:], blake2bIV[:])
	v[12] ^= t[0]
	v[13] ^= t[1]
	if final {
		v[14] = ^v[14]
	}

	g := func(a, b, c, d int, x, y uint64) {
		v[a] = v[a] + v[b] + x
		v[d] = rotr64(v[d]^v[a], 32)
		v[c] = v[c] + v[d]
		v[b] = rotr64(v[b]^v[c], 24)
		v[a] = v[a] + v[b] + y
		v[d] = rotr64(v[d]^v[a], 16)
		v[c] = v[c] + v[d]
		v[b] = rotr64(v[b]^v[c], 63)
	}

	for i := uint32(0); i < rounds; i++ {
		s := blake2bSigma[i%10]
		g(0, 4, 8, 12, m[s[0]], m[s[1]])
		g(1, 5, 9, 13, m[s[2]], m[s[3]])
		g(2, 6, 10, 14, m[s[4]], m[s[5]])
		g(3, 7, 11, 15, m[s[6]], m[s[7]])
		g(0, 5, 10, 15, m[s[8]], m[s[9]])
		g(1, 6, 11, 12, m[s[10]], m[s[11]])
		g(2, 7, 8, 13, m[s[12]], m[s[13]])
		g(3, 4, 9, 14, m[s[14]], m[s[15]])
	}
	for i := 0; i < 8; i++ {
		h[i] ^= v[i] ^ v[i+8]
	}
}

func rotr64(x uint64, k uint) uint64 { return (x >> k) | (x << (64 - k)) }

// --- 0x0a KZG point evaluation (EIP-4844) ---

const (
	pointEvaluationGas   = 50000
	versionedHashVersion = 0x01
)

var blsModulus, _ = new(big.Int).SetString(
	"52435875175126190479447740508185965837690552500527637822603658699938581184513", 10)

// pointEvaluationPrecompile validates the EIP-4844 point-evaluation call's
// wire format and the versioned-hash/commitment binding, but does not
// perform the actual KZG pairing check: no pure-Go KZG library with the
// trusted setup ships in this module's dependency set, and fabricating one
// behind a fake import would defeat the point of grounding on real
// third-party code. This matches the corpus's own simplification for the
// same precompile.
type pointEvaluationPrecompile struct{}

func (pointEvaluationPrecompile) requiredGas([]byte) uint64 { return pointEvaluationGas }

func (pointEvaluationPrecompile) run(input []byte) ([]byte, error) {
	if len(input) != 192 {
		return nil, errors.New("kzg: invalid input length, want 192")
	}
	versionedHash := input[:32]
	z := new(big.Int).SetBytes(input[32:64])
	y := new(big.Int).SetBytes(input[64:96])
	commitment := input[96:144]

	if versionedHash[0] != versionedHashVersion {
		return nil, errors.New("kzg: invalid versioned hash version")
	}
	if z.Cmp(blsModulus) >= 0 || y.Cmp(blsModulus) >= 0 {
		return nil, errors.New("kzg: field element out of range")
	}
	commitHash := sha256.Sum256(commitment)
	commitHash[0] = versionedHashVersion
	if !bytesEqual(versionedHash, commitHash[:]) {
		return nil, errors.New("kzg: commitment does not match versioned hash")
	}

	out := make([]byte, 64)
	fieldElementsPerBlob := big.NewInt(4096)
	fb := fieldElementsPerBlob.Bytes()
	copy(out[32-len(fb):32], fb)
	mb := blsModulus.Bytes()
	copy(out[64-len(mb):64], mb)
	return out, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
