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

package types

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
	"github.com/fenwicklabs/execution-core/erigon-lib/rlp"
)

// Signer computes a transaction's signing hash and recovers its sender,
// per step 1 of the transaction executor (spec §4.D).
type Signer struct {
	chainID *big.Int
}

func LatestSigner(chainID *big.Int) Signer { return Signer{chainID: chainID} }

// Sender recovers the address that signed tx, validating signature-value
// ranges and, for post-155 transactions, the chain-id binding.
func (s Signer) Sender(tx *Transaction) (common.Address, error) {
	v, r, s2 := tx.RawSignatureValues()
	if v == nil || r == nil || s2 == nil {
		return common.Address{}, ErrInvalidSig
	}
	var recid byte
	switch tx.Type() {
	case LegacyTxType:
		if tx.ChainId() != nil {
			if tx.ChainId().Cmp(s.chainID) != 0 {
				return common.Address{}, ErrInvalidChainID
			}
			recid = byte(new(big.Int).Sub(v, deriveV0(s.chainID)).Uint64())
		} else {
			recid = byte(v.Uint64() - 27)
		}
	default:
		if tx.ChainId().Cmp(s.chainID) != 0 {
			return common.Address{}, ErrInvalidChainID
		}
		recid = byte(v.Uint64())
	}
	if !crypto.ValidateSignatureValues(recid, r, s2, true) {
		return common.Address{}, ErrInvalidSig
	}
	sighash, err := s.Hash(tx)
	if err != nil {
		return common.Address{}, err
	}
	sig := make([]byte, 65)
	rBytes, sBytes := r.Bytes(), s2.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	sig[64] = recid
	pub, err := crypto.Ecrecover(sighash.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("types: %w: %v", ErrInvalidSig, err)
	}
	if len(pub) == 0 || pub[0] != 4 {
		return common.Address{}, ErrInvalidSig
	}
	var addr common.Address
	copy(addr[:], crypto.Keccak256(pub[1:])[12:])
	return addr, nil
}

func deriveV0(chainID *big.Int) *big.Int {
	return new(big.Int).Add(new(big.Int).Mul(chainID, big.NewInt(2)), big.NewInt(35))
}

// Hash returns the signing hash: for legacy pre-155 transactions the RLP
// of (nonce,gasPrice,gas,to,value,data); for post-155 legacy, the same
// plus (chainID,0,0); for typed transactions, type || RLP of the payload
// fields up to but excluding the signature.
func (s Signer) Hash(tx *Transaction) (common.Hash, error) {
	switch inner := tx.inner.(type) {
	case *LegacyTx:
		var fields []interface{}
		if tx.ChainId() != nil {
			fields = []interface{}{inner.Nonce, inner.GasPrice, inner.Gas, inner.To, inner.Value, inner.Data, s.chainID, uint64(0), uint64(0)}
		} else {
			fields = []interface{}{inner.Nonce, inner.GasPrice, inner.Gas, inner.To, inner.Value, inner.Data}
		}
		enc, err := rlp.EncodeToBytes(fields)
		if err != nil {
			return common.Hash{}, err
		}
		return crypto.Keccak256Hash(enc), nil
	case *AccessListTx:
		enc, err := rlp.EncodeToBytes([]interface{}{
			s.chainID, inner.Nonce, inner.GasPrice, inner.Gas, inner.To, inner.Value, inner.Data, accessListRLP(inner.AccessList),
		})
		if err != nil {
			return common.Hash{}, err
		}
		return crypto.Keccak256Hash(append([]byte{AccessListTxType}, enc...)), nil
	case *DynamicFeeTx:
		enc, err := rlp.EncodeToBytes([]interface{}{
			s.chainID, inner.Nonce, inner.GasTipCap, inner.GasFeeCap, inner.Gas, inner.To, inner.Value, inner.Data, accessListRLP(inner.AccessList),
		})
		if err != nil {
			return common.Hash{}, err
		}
		return crypto.Keccak256Hash(append([]byte{DynamicFeeTxType}, enc...)), nil
	case *BlobTx:
		enc, err := rlp.EncodeToBytes([]interface{}{
			s.chainID, inner.Nonce, inner.GasTipCap, inner.GasFeeCap, inner.Gas, inner.To, inner.Value, inner.Data,
			accessListRLP(inner.AccessList), inner.BlobFeeCap, inner.BlobHashes,
		})
		if err != nil {
			return common.Hash{}, err
		}
		return crypto.Keccak256Hash(append([]byte{BlobTxType}, enc...)), nil
	default:
		return common.Hash{}, ErrTxTypeNotSupported
	}
}

// SignTx signs tx with prv under s and returns a new, signed Transaction.
func SignTx(tx *Transaction, s Signer, prv *ecdsa.PrivateKey) (*Transaction, error) {
	h, err := s.Hash(tx)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(h.Bytes(), prv)
	if err != nil {
		return nil, err
	}
	cp := tx.inner.copy()
	r := new(big.Int).SetBytes(sig[:32])
	sVal := new(big.Int).SetBytes(sig[32:64])
	var v *big.Int
	switch tx.Type() {
	case LegacyTxType:
		if s.chainID != nil && s.chainID.Sign() != 0 {
			v = new(big.Int).Add(deriveV0(s.chainID), big.NewInt(int64(sig[64])))
		} else {
			v = big.NewInt(int64(sig[64]) + 27)
		}
	default:
		v = big.NewInt(int64(sig[64]))
	}
	cp.setSignatureValues(s.chainID, v, r, sVal)
	return &Transaction{inner: cp}, nil
}
