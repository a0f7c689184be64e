// Copyright 2014 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package crypto wraps Keccak-256 hashing and secp256k1 signing/recovery,
// the two primitives the trie, the block/tx hashers and the transaction
// executor's sender-recovery step (spec §4.D step 1) all depend on.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"math/big"

	"github.com/erigontech/secp256k1"
	"golang.org/x/crypto/sha3"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
)

const (
	// SignatureLength is r || s || v, v in {0,1}.
	SignatureLength = 64 + 1
	// RecoveryIDOffset is the byte index of the recovery id within a signature.
	RecoveryIDOffset = 64
)

var secp256k1N = secp256k1.S256().Params().N

// Keccak256 returns the Keccak-256 digest of the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// Keccak256Hash returns the Keccak-256 digest as a common.Hash.
func Keccak256Hash(data ...[]byte) (h common.Hash) {
	hasher := sha3.NewLegacyKeccak256()
	for _, b := range data {
		hasher.Write(b)
	}
	hasher.Sum(h[:0])
	return h
}

// CreateAddress computes the address of a contract created via CREATE:
// the low 20 bytes of keccak256(rlp([sender, nonce])).
func CreateAddress(sender common.Address, nonce uint64) common.Address {
	data := rlpEncodeCreate(sender, nonce)
	return common.BytesToAddress(Keccak256(data)[12:])
}

// CreateAddress2 computes the CREATE2 address:
// keccak256(0xff || sender || salt || keccak256(initcode))[12:].
func CreateAddress2(sender common.Address, salt [32]byte, initCodeHash []byte) common.Address {
	data := Keccak256([]byte{0xff}, sender.Bytes(), salt[:], initCodeHash)
	return common.BytesToAddress(data[12:])
}

// rlpEncodeCreate encodes [sender, nonce] minimally for address derivation,
// avoiding a dependency on the rlp package's reflection path for this one
// well-known shape (list of an address and a uint64).
func rlpEncodeCreate(sender common.Address, nonce uint64) []byte {
	nb := big.NewInt(0).SetUint64(nonce).Bytes()
	var nonceEnc []byte
	if nonce == 0 {
		nonceEnc = []byte{0x80}
	} else if len(nb) == 1 && nb[0] < 0x80 {
		nonceEnc = nb
	} else {
		nonceEnc = append([]byte{0x80 + byte(len(nb))}, nb...)
	}
	addrEnc := append([]byte{0x80 + 20}, sender.Bytes()...)
	payload := append(append([]byte{}, addrEnc...), nonceEnc...)
	var prefix []byte
	if len(payload) <= 55 {
		prefix = []byte{0xc0 + byte(len(payload))}
	} else {
		lb := big.NewInt(0).SetUint64(uint64(len(payload))).Bytes()
		prefix = append([]byte{0xf7 + byte(len(lb))}, lb...)
	}
	return append(prefix, payload...)
}

// ToECDSA converts a binary-encoded private key to an *ecdsa.PrivateKey.
func ToECDSA(d []byte) (*ecdsa.PrivateKey, error) {
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = secp256k1.S256()
	if 8*len(d) != priv.Params().BitSize {
		return nil, fmt.Errorf("invalid length, need %d bits", priv.Params().BitSize)
	}
	priv.D = new(big.Int).SetBytes(d)
	if priv.D.Cmp(secp256k1N) >= 0 || priv.D.Sign() <= 0 {
		return nil, errors.New("invalid private key, >=N or zero")
	}
	priv.PublicKey.X, priv.PublicKey.Y = priv.PublicKey.Curve.ScalarBaseMult(d)
	if priv.PublicKey.X == nil {
		return nil, errors.New("invalid private key")
	}
	return priv, nil
}

// PubkeyToAddress derives the 20-byte address from an uncompressed public key.
func PubkeyToAddress(p ecdsa.PublicKey) common.Address {
	pubBytes := elliptic.Marshal(secp256k1.S256(), p.X, p.Y)
	return common.BytesToAddress(Keccak256(pubBytes[1:])[12:])
}

// Sign produces a 65-byte (r || s || v) signature of a 32-byte digest.
func Sign(digestHash []byte, prv *ecdsa.PrivateKey) ([]byte, error) {
	if len(digestHash) != 32 {
		return nil, fmt.Errorf("hash is required to be exactly 32 bytes (%d)", len(digestHash))
	}
	seckey := math256Bytes(prv.D)
	defer zeroBytes(seckey)
	return secp256k1.Sign(digestHash, seckey)
}

// Ecrecover recovers the uncompressed public key (65 bytes, 0x04 prefix)
// that produced sig over digestHash.
func Ecrecover(digestHash, sig []byte) ([]byte, error) {
	return secp256k1.RecoverPubkey(digestHash, sig)
}

// SigToPub recovers an *ecdsa.PublicKey from the signature.
func SigToPub(digestHash, sig []byte) (*ecdsa.PublicKey, error) {
	s, err := Ecrecover(digestHash, sig)
	if err != nil {
		return nil, err
	}
	x, y := elliptic.Unmarshal(secp256k1.S256(), s)
	if x == nil {
		return nil, errors.New("invalid public key")
	}
	return &ecdsa.PublicKey{Curve: secp256k1.S256(), X: x, Y: y}, nil
}

// ValidateSignatureValues reports whether (v,r,s) could plausibly be an
// Ethereum secp256k1 signature: 0 < r,s < N, r,s != 0, and (post-EIP-2)
// s is in the lower half of the curve order.
func ValidateSignatureValues(v byte, r, s *big.Int, homestead bool) bool {
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return false
	}
	if r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return false
	}
	if homestead && s.Cmp(secp256k1halfN) > 0 {
		return false
	}
	return v == 0 || v == 1
}

var secp256k1halfN = new(big.Int).Rsh(secp256k1N, 1)

func math256Bytes(b *big.Int) []byte {
	out := make([]byte, 32)
	bb := b.Bytes()
	copy(out[32-len(bb):], bb)
	return out
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
