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
	"math/big"
	"sync/atomic"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
	"github.com/fenwicklabs/execution-core/erigon-lib/rlp"
)

// Header is a block header (spec §3). Post-merge fields (difficulty,
// nonce) are carried as constants rather than removed, since they remain
// part of the canonical RLP encoding and hash.
type Header struct {
	ParentHash  common.Hash
	UncleHash   common.Hash
	Coinbase    common.Address
	Root        common.Hash // state root
	TxHash      common.Hash // transactions root
	ReceiptHash common.Hash // receipts root
	Bloom       [256]byte
	Difficulty  *big.Int
	Number      *big.Int
	GasLimit    uint64
	GasUsed     uint64
	Time        uint64
	Extra       []byte
	MixDigest   common.Hash // prev-randao post-merge
	Nonce       [8]byte

	BaseFee *big.Int

	WithdrawalsHash *common.Hash
	BlobGasUsed     *uint64
	ExcessBlobGas   *uint64

	ParentBeaconBlockRoot *common.Hash

	hash atomic.Value
}

// fieldList returns the header's fields in canonical order, each extension
// field appended only when present: an older header's encoding is a
// strict prefix of a newer one's field list.
func (h *Header) fieldList() []interface{} {
	fields := []interface{}{
		h.ParentHash, h.UncleHash, h.Coinbase, h.Root, h.TxHash, h.ReceiptHash,
		h.Bloom, h.Difficulty, h.Number, h.GasLimit, h.GasUsed, h.Time,
		h.Extra, h.MixDigest, h.Nonce,
	}
	if h.BaseFee != nil {
		fields = append(fields, h.BaseFee)
	}
	if h.WithdrawalsHash != nil {
		fields = append(fields, *h.WithdrawalsHash)
	}
	if h.BlobGasUsed != nil {
		fields = append(fields, *h.BlobGasUsed)
	}
	if h.ExcessBlobGas != nil {
		fields = append(fields, *h.ExcessBlobGas)
	}
	if h.ParentBeaconBlockRoot != nil {
		fields = append(fields, *h.ParentBeaconBlockRoot)
	}
	return fields
}

// EncodeRLP writes the header's canonical RLP encoding to w.
func (h *Header) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, h.fieldList())
}

// DecodeRLP decodes a header from its canonical encoding. Post-London
// fields are recovered positionally by matching the remaining item count
// against the known optional-field combinations (base fee; + withdrawals
// root; + blob gas fields; + parent beacon root), since the wire form
// carries no field tags.
func (h *Header) DecodeRLP(raw []byte) error {
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
	if len(items) < 15 {
		return fmt.Errorf("types: header has %d fields, want at least 15", len(items))
	}
	decoders := []interface{}{
		&h.ParentHash, &h.UncleHash, &h.Coinbase, &h.Root, &h.TxHash, &h.ReceiptHash,
		&h.Bloom, &h.Difficulty, &h.Number, &h.GasLimit, &h.GasUsed, &h.Time,
		&h.Extra, &h.MixDigest, &h.Nonce,
	}
	for i, d := range decoders {
		if err := rlp.DecodeBytes(items[i], d); err != nil {
			return fmt.Errorf("types: header field %d: %w", i, err)
		}
	}
	rest := items[15:]
	switch len(rest) {
	case 0:
	case 1:
		h.BaseFee = new(big.Int)
		if err := rlp.DecodeBytes(rest[0], h.BaseFee); err != nil {
			return err
		}
	case 2:
		h.BaseFee = new(big.Int)
		if err := rlp.DecodeBytes(rest[0], h.BaseFee); err != nil {
			return err
		}
		var wh common.Hash
		if err := rlp.DecodeBytes(rest[1], &wh); err != nil {
			return err
		}
		h.WithdrawalsHash = &wh
	case 4:
		h.BaseFee = new(big.Int)
		if err := rlp.DecodeBytes(rest[0], h.BaseFee); err != nil {
			return err
		}
		var wh common.Hash
		if err := rlp.DecodeBytes(rest[1], &wh); err != nil {
			return err
		}
		h.WithdrawalsHash = &wh
		var bgu, ebg uint64
		if err := rlp.DecodeBytes(rest[2], &bgu); err != nil {
			return err
		}
		if err := rlp.DecodeBytes(rest[3], &ebg); err != nil {
			return err
		}
		h.BlobGasUsed, h.ExcessBlobGas = &bgu, &ebg
	case 5:
		h.BaseFee = new(big.Int)
		if err := rlp.DecodeBytes(rest[0], h.BaseFee); err != nil {
			return err
		}
		var wh common.Hash
		if err := rlp.DecodeBytes(rest[1], &wh); err != nil {
			return err
		}
		h.WithdrawalsHash = &wh
		var bgu, ebg uint64
		if err := rlp.DecodeBytes(rest[2], &bgu); err != nil {
			return err
		}
		if err := rlp.DecodeBytes(rest[3], &ebg); err != nil {
			return err
		}
		h.BlobGasUsed, h.ExcessBlobGas = &bgu, &ebg
		var pbr common.Hash
		if err := rlp.DecodeBytes(rest[4], &pbr); err != nil {
			return err
		}
		h.ParentBeaconBlockRoot = &pbr
	default:
		return fmt.Errorf("types: header has unrecognized trailing field count %d", len(rest))
	}
	return nil
}

// Hash returns the Keccak-256 of the header's canonical RLP encoding,
// caching the result since a committed header is never mutated.
func (h *Header) Hash() common.Hash {
	if v := h.hash.Load(); v != nil {
		return v.(common.Hash)
	}
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		panic(err)
	}
	hh := crypto.Keccak256Hash(enc)
	h.hash.Store(hh)
	return hh
}

// Copy returns a copy for mutation during header construction (payload
// building). Difficulty, Number, BaseFee and Extra are copied; the other
// pointer fields still point at the same values as h.
func (h *Header) Copy() *Header {
	cp := *h
	cp.hash = atomic.Value{}
	if h.Difficulty != nil {
		cp.Difficulty = new(big.Int).Set(h.Difficulty)
	}
	if h.Number != nil {
		cp.Number = new(big.Int).Set(h.Number)
	}
	if h.BaseFee != nil {
		cp.BaseFee = new(big.Int).Set(h.BaseFee)
	}
	if h.Extra != nil {
		cp.Extra = append([]byte{}, h.Extra...)
	}
	return &cp
}
