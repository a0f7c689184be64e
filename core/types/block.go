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
	"io"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/rlp"
)

// Body is a block's content beyond the header (spec §3 "Block body").
// UncleHeaders is always empty post-merge but kept for wire-format
// compatibility with the header's constant UncleHash.
type Body struct {
	Transactions []*Transaction
	UncleHeaders []*Header
	Withdrawals  Withdrawals
}

func (b *Body) EncodeRLP(w io.Writer) error {
	fields := []interface{}{b.Transactions, b.UncleHeaders}
	if b.Withdrawals != nil {
		fields = append(fields, b.Withdrawals)
	}
	return rlp.Encode(w, fields)
}

func (b *Body) DecodeRLP(raw []byte) error {
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
	if len(items) < 2 {
		return rlp.ErrExpectedList
	}
	if err := rlp.DecodeBytes(items[0], &b.Transactions); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[1], &b.UncleHeaders); err != nil {
		return err
	}
	if len(items) >= 3 {
		if err := rlp.DecodeBytes(items[2], &b.Withdrawals); err != nil {
			return err
		}
	}
	return nil
}

// Block bundles a header and its body. Like Header, a Block is immutable
// once constructed; the payload builder builds a fresh one per candidate.
type Block struct {
	header       *Header
	transactions []*Transaction
	uncles       []*Header
	withdrawals  Withdrawals
}

func NewBlock(header *Header, txs []*Transaction, uncles []*Header, withdrawals Withdrawals) *Block {
	b := &Block{header: header.Copy()}
	if len(txs) > 0 {
		b.transactions = make([]*Transaction, len(txs))
		copy(b.transactions, txs)
	}
	if len(uncles) > 0 {
		b.uncles = make([]*Header, len(uncles))
		for i, u := range uncles {
			b.uncles[i] = u.Copy()
		}
	}
	if withdrawals != nil {
		b.withdrawals = withdrawals
	}
	return b
}

func (b *Block) Header() *Header               { return b.header }
func (b *Block) Transactions() []*Transaction  { return b.transactions }
func (b *Block) Uncles() []*Header             { return b.uncles }
func (b *Block) Withdrawals() Withdrawals      { return b.withdrawals }
func (b *Block) Number() uint64                { return b.header.Number.Uint64() }
func (b *Block) Hash() common.Hash             { return b.header.Hash() }
func (b *Block) ParentHash() common.Hash       { return b.header.ParentHash }
func (b *Block) Body() *Body {
	return &Body{Transactions: b.transactions, UncleHeaders: b.uncles, Withdrawals: b.withdrawals}
}

func (b *Block) EncodeRLP(w io.Writer) error {
	fields := []interface{}{b.header, b.transactions, b.uncles}
	if b.withdrawals != nil {
		fields = append(fields, b.withdrawals)
	}
	return rlp.Encode(w, fields)
}

func (b *Block) DecodeRLP(raw []byte) error {
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
	if len(items) < 3 {
		return rlp.ErrExpectedList
	}
	b.header = &Header{}
	if err := rlp.DecodeBytes(items[0], b.header); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[1], &b.transactions); err != nil {
		return err
	}
	if err := rlp.DecodeBytes(items[2], &b.uncles); err != nil {
		return err
	}
	if len(items) >= 4 {
		if err := rlp.DecodeBytes(items[3], &b.withdrawals); err != nil {
			return err
		}
	}
	return nil
}
