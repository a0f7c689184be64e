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
	"fmt"
	"io"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/rlp"
)

// Receipt status codes, replacing the pre-Byzantium intermediate state
// root (this codebase targets post-Byzantium forks only).
const (
	ReceiptStatusFailed     = uint64(0)
	ReceiptStatusSuccessful = uint64(1)
)

// Receipt is produced by the transaction executor (spec §3 "Receipt").
type Receipt struct {
	Type              byte
	Status            uint64
	CumulativeGasUsed uint64
	Bloom             [256]byte
	Logs              []*Log

	// Derived, not part of the consensus encoding.
	TxHash           [32]byte       `rlp:"-"`
	GasUsed          uint64         `rlp:"-"`
	ContractAddress  common.Address `rlp:"-"`
	BlockHash        [32]byte       `rlp:"-"`
	BlockNumber      uint64         `rlp:"-"`
	TransactionIndex uint           `rlp:"-"`
}

func (r *Receipt) payloadFields() []interface{} {
	return []interface{}{r.Status, r.CumulativeGasUsed, r.Bloom, r.Logs}
}

// EncodeRLP writes the receipt's canonical encoding: a plain RLP list for
// legacy receipts, or type-byte || RLP(list) for typed-transaction
// receipts, mirroring the transaction envelope scheme (EIP-2718).
func (r *Receipt) EncodeRLP(w io.Writer) error {
	if r.Type == LegacyTxType {
		return rlp.Encode(w, r.payloadFields())
	}
	enc, err := rlp.EncodeToBytes(r.payloadFields())
	if err != nil {
		return err
	}
	_, err = w.Write(append([]byte{r.Type}, enc...))
	return err
}

// DecodeRLP decodes a receipt from its canonical wire form. See the
// design note on legacy receipt decoding tolerance (open question: some
// corpora wrap legacy receipts in a byte string too; this decoder accepts
// only the strict EIP-2718 form, matching the spec's mandate).
func (r *Receipt) DecodeRLP(raw []byte) error {
	isList, content, _, err := rlp.Split(raw)
	if err != nil {
		return err
	}
	if isList {
		r.Type = LegacyTxType
		return r.decodeFields(content)
	}
	if len(content) == 0 {
		return fmt.Errorf("types: empty typed receipt encoding")
	}
	r.Type = content[0]
	isList2, inner, _, err := rlp.Split(content[1:])
	if err != nil {
		return err
	}
	if !isList2 {
		return rlp.ErrExpectedList
	}
	return r.decodeFields(inner)
}

func (r *Receipt) decodeFields(content []byte) error {
	items, err := rlp.SplitList(content)
	if err != nil {
		return err
	}
	if len(items) != 4 {
		return fmt.Errorf("types: receipt has %d fields, want 4", len(items))
	}
	if err := rlp.DecodeBytes(items[0], &r.Status); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[1], &r.CumulativeGasUsed); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[2], &r.Bloom); err != nil {
		return err
	}
	return rlp.DecodeBytes(items[3], &r.Logs)
}

type Receipts []*Receipt

// DeriveReceiptsRoot builds the Merkle-Patricia trie keyed by RLP(index)
// over the receipt encodings and returns its root, per spec §3 "Receipt".
func DeriveReceiptsRoot(receipts Receipts, newTrie func() ReceiptTrie) (common.Hash, error) {
	t := newTrie()
	for i, r := range receipts {
		key, err := rlp.EncodeToBytes(uint64(i))
		if err != nil {
			return common.Hash{}, err
		}
		enc, err := rlp.EncodeToBytes(r)
		if err != nil {
			return common.Hash{}, err
		}
		if err := t.Put(key, enc); err != nil {
			return common.Hash{}, err
		}
	}
	return t.Hash(), nil
}

// ReceiptTrie is the minimal trie surface DeriveReceiptsRoot needs,
// satisfied by *trie.Trie; kept as an interface here to avoid core/types
// importing the trie package.
type ReceiptTrie interface {
	Put(key, value []byte) error
	Hash() common.Hash
}
