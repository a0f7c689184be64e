// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package state

import (
	"github.com/holiman/uint256"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/kv"
	"github.com/fenwicklabs/execution-core/erigon-lib/rlp"
	"github.com/fenwicklabs/execution-core/core/types"
)

// AccountUpdate is one entry of the delta stream IntraBlockState.Finalise
// produces: either an upsert of an account's fields (and, for new code, the
// code itself) or a deletion, the EIP-161 "empty account is pruned" case.
type AccountUpdate struct {
	Address common.Address
	Deleted bool
	Account *types.Account              // nil when Deleted
	Code    []byte                      // non-nil only the first time a code hash is seen
	Storage map[common.Hash]uint256.Int // slots written this Finalise call, for storage-trie commit
}

// StateWriter is the write side of the persistent store the block
// processor flushes an IntraBlockState's AccountUpdate stream through.
type StateWriter interface {
	UpdateAccountData(address common.Address, account *types.Account) error
	UpdateAccountCode(codeHash common.Hash, code []byte) error
	DeleteAccount(address common.Address) error
	WriteAccountStorage(address common.Address, key common.Hash, value uint256.Int) error
}

// PlainStateWriter applies AccountUpdates to a kv.RwTx's PlainState/Code
// tables. It does not touch the trie directly: trie roots are recomputed
// by the caller (core.ProcessBlock) from the same RwTx after every
// account in the block has been written, per spec §4.E step 6.
type PlainStateWriter struct {
	tx kv.RwTx
}

func NewPlainStateWriter(tx kv.RwTx) *PlainStateWriter {
	return &PlainStateWriter{tx: tx}
}

func (w *PlainStateWriter) UpdateAccountData(address common.Address, account *types.Account) error {
	enc, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	return w.tx.Put(kv.PlainState, address[:], enc)
}

func (w *PlainStateWriter) UpdateAccountCode(codeHash common.Hash, code []byte) error {
	if codeHash == common.EmptyCodeHash || len(code) == 0 {
		return nil
	}
	return w.tx.Put(kv.Code, codeHash[:], code)
}

func (w *PlainStateWriter) DeleteAccount(address common.Address) error {
	if err := w.tx.Delete(kv.PlainState, address[:]); err != nil {
		return err
	}
	return w.tx.ForPrefix(kv.PlainState, address[:], func(k, v []byte) error {
		return w.tx.Delete(kv.PlainState, k)
	})
}

func (w *PlainStateWriter) WriteAccountStorage(address common.Address, key common.Hash, value uint256.Int) error {
	k := storageKey(address, key)
	if value.IsZero() {
		return w.tx.Delete(kv.PlainState, k)
	}
	return w.tx.Put(kv.PlainState, k, value.Bytes())
}

// NoopWriter discards every write. The payload builder (spec §4.H) uses it
// to run Finalise against a candidate block without touching PlainState:
// only the AccountUpdate stream itself (and the trie roots derived from
// it) matter until the candidate is actually imported.
type NoopWriter struct{}

func (NoopWriter) UpdateAccountData(common.Address, *types.Account) error { return nil }
func (NoopWriter) UpdateAccountCode(common.Hash, []byte) error            { return nil }
func (NoopWriter) DeleteAccount(common.Address) error                    { return nil }
func (NoopWriter) WriteAccountStorage(common.Address, common.Hash, uint256.Int) error {
	return nil
}

// ApplyAccountUpdates writes a stream of AccountUpdates in order, the
// state-store operation named in spec §4.B. Each update is applied
// independently so a partial stream (e.g. from a single transaction's
// Finalise) composes with later updates in the same block.
func ApplyAccountUpdates(w StateWriter, updates []AccountUpdate) error {
	for _, u := range updates {
		if u.Deleted {
			if err := w.DeleteAccount(u.Address); err != nil {
				return err
			}
			continue
		}
		if u.Code != nil {
			if err := w.UpdateAccountCode(u.Account.CodeHash, u.Code); err != nil {
				return err
			}
		}
		if err := w.UpdateAccountData(u.Address, u.Account); err != nil {
			return err
		}
	}
	return nil
}
