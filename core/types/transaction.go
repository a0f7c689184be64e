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
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
	"github.com/fenwicklabs/execution-core/erigon-lib/rlp"
)

// Transaction type tags (EIP-2718). Legacy transactions carry no tag byte.
const (
	LegacyTxType     = 0x00
	AccessListTxType = 0x01
	DynamicFeeTxType = 0x02
	BlobTxType       = 0x03
)

var (
	ErrInvalidSig       = errors.New("types: invalid transaction v, r, s values")
	ErrTxTypeNotSupported = errors.New("types: transaction type not supported")
	ErrInvalidChainID   = errors.New("types: invalid chain id for signer")
)

// AccessTuple is one entry of an EIP-2930 access list: an address plus the
// storage keys to pre-warm for it.
type AccessTuple struct {
	Address     common.Address
	StorageKeys []common.Hash
}

type AccessList []AccessTuple

// Transaction wraps exactly one of the payload kinds below behind a common
// envelope (spec §3 "Transaction"). Signature fields live on the inner
// payload so each type controls its own signing hash.
type Transaction struct {
	inner TxData
	hash  atomic.Value
}

// TxData is implemented by each concrete transaction payload.
type TxData interface {
	txType() byte
	chainID() *big.Int
	accessList() AccessList
	gas() uint64
	gasPrice() *big.Int     // legacy only
	gasTipCap() *big.Int    // priority fee (post-London)
	gasFeeCap() *big.Int    // max fee (post-London); == gasPrice for legacy
	value() *uint256.Int
	nonce() uint64
	to() *common.Address
	data() []byte
	blobHashes() []common.Hash
	blobFeeCap() *big.Int
	rawSignatureValues() (v, r, s *big.Int)
	setSignatureValues(chainID, v, r, s *big.Int)
	copy() TxData
	encodePayload() ([]byte, error)
}

func NewTx(inner TxData) *Transaction { return &Transaction{inner: inner.copy()} }

func (tx *Transaction) Type() byte            { return tx.inner.txType() }
func (tx *Transaction) ChainId() *big.Int     { return tx.inner.chainID() }
func (tx *Transaction) AccessList() AccessList { return tx.inner.accessList() }
func (tx *Transaction) Gas() uint64           { return tx.inner.gas() }
func (tx *Transaction) GasPrice() *big.Int    { return tx.inner.gasPrice() }
func (tx *Transaction) GasTipCap() *big.Int   { return tx.inner.gasTipCap() }
func (tx *Transaction) GasFeeCap() *big.Int   { return tx.inner.gasFeeCap() }
func (tx *Transaction) Value() *uint256.Int   { return tx.inner.value() }
func (tx *Transaction) Nonce() uint64         { return tx.inner.nonce() }
func (tx *Transaction) To() *common.Address   { return tx.inner.to() }
func (tx *Transaction) Data() []byte          { return tx.inner.data() }
func (tx *Transaction) BlobHashes() []common.Hash { return tx.inner.blobHashes() }
func (tx *Transaction) BlobGasFeeCap() *big.Int   { return tx.inner.blobFeeCap() }
func (tx *Transaction) RawSignatureValues() (v, r, s *big.Int) { return tx.inner.rawSignatureValues() }

// IsContractCreation reports whether this transaction has no recipient.
func (tx *Transaction) IsContractCreation() bool { return tx.inner.to() == nil }

// EffectiveGasTip returns the per-gas tip above baseFee, the smaller of
// GasTipCap and GasFeeCap-baseFee; for legacy/AL transactions both caps
// equal GasPrice(). A nil baseFee returns GasFeeCap.
func (tx *Transaction) EffectiveGasTip(baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return tx.GasFeeCap()
	}
	gasFeeCap := tx.GasFeeCap()
	tip := tx.GasTipCap()
	if tip == nil {
		tip = gasFeeCap
	}
	possibleTip := new(big.Int).Sub(gasFeeCap, baseFee)
	if possibleTip.Cmp(tip) > 0 {
		return tip
	}
	return possibleTip
}

// EffectiveGasPrice is baseFee + EffectiveGasTip, capped at GasFeeCap.
func (tx *Transaction) EffectiveGasPrice(baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return tx.GasPrice()
	}
	return new(big.Int).Add(baseFee, tx.EffectiveGasTip(baseFee))
}

// Hash returns the transaction hash: for typed transactions, the
// Keccak-256 of (type-byte || RLP(payload)); for legacy, of RLP(payload).
func (tx *Transaction) Hash() common.Hash {
	if v := tx.hash.Load(); v != nil {
		return v.(common.Hash)
	}
	enc, err := tx.MarshalBinary()
	if err != nil {
		panic(err)
	}
	h := crypto.Keccak256Hash(enc)
	tx.hash.Store(h)
	return h
}

// MarshalBinary returns the canonical wire encoding (EIP-2718): a legacy
// transaction's plain RLP list, or a type byte prefixed to the payload's
// RLP list for typed transactions.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	payload, err := tx.inner.encodePayload()
	if err != nil {
		return nil, err
	}
	if tx.Type() == LegacyTxType {
		return payload, nil
	}
	return append([]byte{tx.Type()}, payload...), nil
}

// UnmarshalBinary decodes a transaction from its EIP-2718 envelope.
func (tx *Transaction) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		return errors.New("types: empty transaction encoding")
	}
	if b[0] >= 0xc0 {
		var inner LegacyTx
		if err := inner.decodePayload(b); err != nil {
			return err
		}
		tx.inner = &inner
		return nil
	}
	typ := b[0]
	payload := b[1:]
	var inner TxData
	switch typ {
	case AccessListTxType:
		inner = &AccessListTx{}
	case DynamicFeeTxType:
		inner = &DynamicFeeTx{}
	case BlobTxType:
		inner = &BlobTx{}
	default:
		return ErrTxTypeNotSupported
	}
	if err := inner.(interface{ decodePayload([]byte) error }).decodePayload(payload); err != nil {
		return err
	}
	tx.inner = inner
	return nil
}

func (tx *Transaction) EncodeRLP(w io.Writer) error {
	enc, err := tx.MarshalBinary()
	if err != nil {
		return err
	}
	if tx.Type() == LegacyTxType {
		_, err = w.Write(enc)
		return err
	}
	// Typed transactions are wrapped as an RLP string when they appear
	// inside another list (block body, receipts trie), per EIP-2718.
	str, err := rlp.EncodeToBytes(enc)
	if err != nil {
		return err
	}
	_, err = w.Write(str)
	return err
}

func (tx *Transaction) DecodeRLP(raw []byte) error {
	isList, content, _, err := rlp.Split(raw)
	if err != nil {
		return err
	}
	if isList {
		var inner LegacyTx
		if err := inner.decodePayload(raw); err != nil {
			return err
		}
		tx.inner = &inner
		return nil
	}
	return tx.UnmarshalBinary(content)
}

// LegacyTx is type-0: no access list, no fee-market fields.
type LegacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address
	Value    *uint256.Int
	Data     []byte
	V, R, S  *big.Int
}

func (tx *LegacyTx) txType() byte            { return LegacyTxType }
func (tx *LegacyTx) chainID() *big.Int       { return deriveChainID(tx.V) }
func (tx *LegacyTx) accessList() AccessList  { return nil }
func (tx *LegacyTx) gas() uint64             { return tx.Gas }
func (tx *LegacyTx) gasPrice() *big.Int      { return tx.GasPrice }
func (tx *LegacyTx) gasTipCap() *big.Int     { return tx.GasPrice }
func (tx *LegacyTx) gasFeeCap() *big.Int     { return tx.GasPrice }
func (tx *LegacyTx) value() *uint256.Int     { return tx.Value }
func (tx *LegacyTx) nonce() uint64           { return tx.Nonce }
func (tx *LegacyTx) to() *common.Address     { return tx.To }
func (tx *LegacyTx) data() []byte            { return tx.Data }
func (tx *LegacyTx) blobHashes() []common.Hash { return nil }
func (tx *LegacyTx) blobFeeCap() *big.Int    { return nil }
func (tx *LegacyTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *LegacyTx) setSignatureValues(chainID, v, r, s *big.Int) { tx.V, tx.R, tx.S = v, r, s }
func (tx *LegacyTx) copy() TxData {
	cp := *tx
	return &cp
}

func (tx *LegacyTx) encodePayload() ([]byte, error) {
	return rlp.EncodeToBytes([]interface{}{
		tx.Nonce, tx.GasPrice, tx.Gas, tx.To, tx.Value, tx.Data, tx.V, tx.R, tx.S,
	})
}

func (tx *LegacyTx) decodePayload(raw []byte) error {
	isList, content, _, err := rlp.Split(raw)
	if err != nil {
		return err
	}
	if !isList {
		return rlp.ErrExpectedList
	}
	items, err := rlp.SplitList(content)
	if err != nil {
		return err
	}
	if len(items) != 9 {
		return fmt.Errorf("types: legacy tx has %d fields, want 9", len(items))
	}
	tx.GasPrice, tx.Value, tx.V, tx.R, tx.S = new(big.Int), new(uint256.Int), new(big.Int), new(big.Int), new(big.Int)
	dests := []interface{}{&tx.Nonce, tx.GasPrice, &tx.Gas, &tx.To, tx.Value, &tx.Data, tx.V, tx.R, tx.S}
	for i, d := range dests {
		if err := rlp.DecodeBytes(items[i], d); err != nil {
			return fmt.Errorf("types: legacy tx field %d: %w", i, err)
		}
	}
	return nil
}

func deriveChainID(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	if v.BitLen() <= 8 {
		vv := v.Uint64()
		if vv == 27 || vv == 28 {
			return nil
		}
	}
	// EIP-155: v = chainID*2 + 35 + yParity
	x := new(big.Int).Sub(v, big.NewInt(35))
	chainID := x.Rsh(x, 1)
	return chainID
}

// AccessListTx is type-1 (EIP-2930): adds an access list, still a single
// gas price (no fee market split).
type AccessListTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasPrice   *big.Int
	Gas        uint64
	To         *common.Address
	Value      *uint256.Int
	Data       []byte
	AccessList AccessList
	V, R, S    *big.Int
}

func (tx *AccessListTx) txType() byte           { return AccessListTxType }
func (tx *AccessListTx) chainID() *big.Int      { return tx.ChainID }
func (tx *AccessListTx) accessList() AccessList { return tx.AccessList }
func (tx *AccessListTx) gas() uint64            { return tx.Gas }
func (tx *AccessListTx) gasPrice() *big.Int     { return tx.GasPrice }
func (tx *AccessListTx) gasTipCap() *big.Int    { return tx.GasPrice }
func (tx *AccessListTx) gasFeeCap() *big.Int    { return tx.GasPrice }
func (tx *AccessListTx) value() *uint256.Int    { return tx.Value }
func (tx *AccessListTx) nonce() uint64          { return tx.Nonce }
func (tx *AccessListTx) to() *common.Address    { return tx.To }
func (tx *AccessListTx) data() []byte           { return tx.Data }
func (tx *AccessListTx) blobHashes() []common.Hash { return nil }
func (tx *AccessListTx) blobFeeCap() *big.Int   { return nil }
func (tx *AccessListTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *AccessListTx) setSignatureValues(chainID, v, r, s *big.Int) {
	tx.ChainID, tx.V, tx.R, tx.S = chainID, v, r, s
}
func (tx *AccessListTx) copy() TxData { cp := *tx; return &cp }

func (tx *AccessListTx) encodePayload() ([]byte, error) {
	return rlp.EncodeToBytes([]interface{}{
		tx.ChainID, tx.Nonce, tx.GasPrice, tx.Gas, tx.To, tx.Value, tx.Data,
		accessListRLP(tx.AccessList), tx.V, tx.R, tx.S,
	})
}

func (tx *AccessListTx) decodePayload(raw []byte) error {
	items, err := splitTxList(raw, 11)
	if err != nil {
		return err
	}
	tx.ChainID, tx.GasPrice, tx.Value = new(big.Int), new(big.Int), new(uint256.Int)
	tx.V, tx.R, tx.S = new(big.Int), new(big.Int), new(big.Int)
	if err := rlp.DecodeBytes(items[0], tx.ChainID); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[1], &tx.Nonce); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[2], tx.GasPrice); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[3], &tx.Gas); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[4], &tx.To); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[5], tx.Value); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[6], &tx.Data); err != nil {
		return err
	}
	al, err := decodeAccessList(items[7])
	if err != nil {
		return err
	}
	tx.AccessList = al
	if err := rlp.DecodeBytes(items[8], tx.V); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[9], tx.R); err != nil {
		return err
	}
	return rlp.DecodeBytes(items[10], tx.S)
}

// DynamicFeeTx is type-2 (EIP-1559): splits price into tip cap + fee cap.
type DynamicFeeTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         *common.Address
	Value      *uint256.Int
	Data       []byte
	AccessList AccessList
	V, R, S    *big.Int
}

func (tx *DynamicFeeTx) txType() byte           { return DynamicFeeTxType }
func (tx *DynamicFeeTx) chainID() *big.Int      { return tx.ChainID }
func (tx *DynamicFeeTx) accessList() AccessList { return tx.AccessList }
func (tx *DynamicFeeTx) gas() uint64            { return tx.Gas }
func (tx *DynamicFeeTx) gasPrice() *big.Int     { return tx.GasFeeCap }
func (tx *DynamicFeeTx) gasTipCap() *big.Int    { return tx.GasTipCap }
func (tx *DynamicFeeTx) gasFeeCap() *big.Int    { return tx.GasFeeCap }
func (tx *DynamicFeeTx) value() *uint256.Int    { return tx.Value }
func (tx *DynamicFeeTx) nonce() uint64          { return tx.Nonce }
func (tx *DynamicFeeTx) to() *common.Address    { return tx.To }
func (tx *DynamicFeeTx) data() []byte           { return tx.Data }
func (tx *DynamicFeeTx) blobHashes() []common.Hash { return nil }
func (tx *DynamicFeeTx) blobFeeCap() *big.Int   { return nil }
func (tx *DynamicFeeTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *DynamicFeeTx) setSignatureValues(chainID, v, r, s *big.Int) {
	tx.ChainID, tx.V, tx.R, tx.S = chainID, v, r, s
}
func (tx *DynamicFeeTx) copy() TxData { cp := *tx; return &cp }

func (tx *DynamicFeeTx) encodePayload() ([]byte, error) {
	return rlp.EncodeToBytes([]interface{}{
		tx.ChainID, tx.Nonce, tx.GasTipCap, tx.GasFeeCap, tx.Gas, tx.To, tx.Value,
		tx.Data, accessListRLP(tx.AccessList), tx.V, tx.R, tx.S,
	})
}

func (tx *DynamicFeeTx) decodePayload(raw []byte) error {
	items, err := splitTxList(raw, 12)
	if err != nil {
		return err
	}
	tx.ChainID, tx.GasTipCap, tx.GasFeeCap, tx.Value = new(big.Int), new(big.Int), new(big.Int), new(uint256.Int)
	tx.V, tx.R, tx.S = new(big.Int), new(big.Int), new(big.Int)
	fields := []struct {
		idx int
		dst interface{}
	}{
		{0, tx.ChainID}, {1, &tx.Nonce}, {2, tx.GasTipCap}, {3, tx.GasFeeCap},
		{4, &tx.Gas}, {5, &tx.To}, {6, tx.Value}, {7, &tx.Data},
	}
	for _, f := range fields {
		if err := rlp.DecodeBytes(items[f.idx], f.dst); err != nil {
			return err
		}
	}
	al, err := decodeAccessList(items[8])
	if err != nil {
		return err
	}
	tx.AccessList = al
	if err := rlp.DecodeBytes(items[9], tx.V); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[10], tx.R); err != nil {
		return err
	}
	return rlp.DecodeBytes(items[11], tx.S)
}

// BlobTx is type-3 (EIP-4844): adds the blob fee cap and versioned blob
// hashes; blobs/commitments/proofs travel in a side wrapper at the P2P
// layer, out of scope here (spec §1 excludes the wire protocol).
type BlobTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         common.Address // blob transactions cannot create contracts
	Value      *uint256.Int
	Data       []byte
	AccessList AccessList
	BlobFeeCap *big.Int
	BlobHashes []common.Hash
	V, R, S    *big.Int
}

func (tx *BlobTx) txType() byte           { return BlobTxType }
func (tx *BlobTx) chainID() *big.Int      { return tx.ChainID }
func (tx *BlobTx) accessList() AccessList { return tx.AccessList }
func (tx *BlobTx) gas() uint64            { return tx.Gas }
func (tx *BlobTx) gasPrice() *big.Int     { return tx.GasFeeCap }
func (tx *BlobTx) gasTipCap() *big.Int    { return tx.GasTipCap }
func (tx *BlobTx) gasFeeCap() *big.Int    { return tx.GasFeeCap }
func (tx *BlobTx) value() *uint256.Int    { return tx.Value }
func (tx *BlobTx) nonce() uint64          { return tx.Nonce }
func (tx *BlobTx) to() *common.Address    { to := tx.To; return &to }
func (tx *BlobTx) data() []byte           { return tx.Data }
func (tx *BlobTx) blobHashes() []common.Hash { return tx.BlobHashes }
func (tx *BlobTx) blobFeeCap() *big.Int   { return tx.BlobFeeCap }
func (tx *BlobTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *BlobTx) setSignatureValues(chainID, v, r, s *big.Int) {
	tx.ChainID, tx.V, tx.R, tx.S = chainID, v, r, s
}
func (tx *BlobTx) copy() TxData { cp := *tx; return &cp }

func (tx *BlobTx) encodePayload() ([]byte, error) {
	return rlp.EncodeToBytes([]interface{}{
		tx.ChainID, tx.Nonce, tx.GasTipCap, tx.GasFeeCap, tx.Gas, tx.To, tx.Value,
		tx.Data, accessListRLP(tx.AccessList), tx.BlobFeeCap, tx.BlobHashes,
		tx.V, tx.R, tx.S,
	})
}

func (tx *BlobTx) decodePayload(raw []byte) error {
	items, err := splitTxList(raw, 14)
	if err != nil {
		return err
	}
	tx.ChainID, tx.GasTipCap, tx.GasFeeCap, tx.Value, tx.BlobFeeCap = new(big.Int), new(big.Int), new(big.Int), new(uint256.Int), new(big.Int)
	tx.V, tx.R, tx.S = new(big.Int), new(big.Int), new(big.Int)
	fields := []struct {
		idx int
		dst interface{}
	}{
		{0, tx.ChainID}, {1, &tx.Nonce}, {2, tx.GasTipCap}, {3, tx.GasFeeCap},
		{4, &tx.Gas}, {5, &tx.To}, {6, tx.Value}, {7, &tx.Data},
	}
	for _, f := range fields {
		if err := rlp.DecodeBytes(items[f.idx], f.dst); err != nil {
			return err
		}
	}
	al, err := decodeAccessList(items[8])
	if err != nil {
		return err
	}
	tx.AccessList = al
	if err := rlp.DecodeBytes(items[9], tx.BlobFeeCap); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[10], &tx.BlobHashes); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[11], tx.V); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[12], tx.R); err != nil {
		return err
	}
	return rlp.DecodeBytes(items[13], tx.S)
}

func splitTxList(raw []byte, want int) ([][]byte, error) {
	isList, content, _, err := rlp.Split(raw)
	if err != nil {
		return nil, err
	}
	if !isList {
		return nil, rlp.ErrExpectedList
	}
	items, err := rlp.SplitList(content)
	if err != nil {
		return nil, err
	}
	if len(items) != want {
		return nil, fmt.Errorf("types: typed tx has %d fields, want %d", len(items), want)
	}
	return items, nil
}

func accessListRLP(al AccessList) [][]interface{} {
	out := make([][]interface{}, len(al))
	for i, t := range al {
		out[i] = []interface{}{t.Address, t.StorageKeys}
	}
	return out
}

func decodeAccessList(raw []byte) (AccessList, error) {
	isList, content, _, err := rlp.Split(raw)
	if err != nil {
		return nil, err
	}
	if !isList {
		return nil, rlp.ErrExpectedList
	}
	tuples, err := rlp.SplitList(content)
	if err != nil {
		return nil, err
	}
	al := make(AccessList, len(tuples))
	for i, t := range tuples {
		tIsList, tContent, _, err := rlp.Split(t)
		if err != nil {
			return nil, err
		}
		if !tIsList {
			return nil, rlp.ErrExpectedList
		}
		fields, err := rlp.SplitList(tContent)
		if err != nil {
			return nil, err
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("types: access tuple has %d fields, want 2", len(fields))
		}
		if err := rlp.DecodeBytes(fields[0], &al[i].Address); err != nil {
			return nil, err
		}
		if err := rlp.DecodeBytes(fields[1], &al[i].StorageKeys); err != nil {
			return nil, err
		}
	}
	return al, nil
}
