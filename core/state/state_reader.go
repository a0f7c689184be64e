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
	"github.com/fenwicklabs/execution-core/trie"
)

// StateReader is the read side IntraBlockState falls back to on a cache
// miss: the committed state as of the block this IntraBlockState was
// opened against.
type StateReader interface {
	ReadAccountData(address common.Address) (*types.Account, error)
	ReadAccountStorage(address common.Address, key common.Hash) (uint256.Int, bool, error)
	ReadAccountCode(address common.Address, codeHash common.Hash) ([]byte, error)
	ReadAccountCodeSize(address common.Address, codeHash common.Hash) (int, error)
}

// storageKey is a storage slot's PlainState key: the address plus the
// 32-byte slot hash. Accounts share the same table, keyed by the bare
// 20-byte address.
func storageKey(address common.Address, key common.Hash) []byte {
	k := make([]byte, common.AddressLength+common.HashLength)
	copy(k, address[:])
	copy(k[common.AddressLength:], key[:])
	return k
}

// PlainStateReader reads accounts, storage and code out of a kv.Tx's
// PlainState/Code tables, the durable counterpart to IntraBlockState's
// in-memory cache.
type PlainStateReader struct {
	tx kv.Tx
}

func NewPlainStateReader(tx kv.Tx) *PlainStateReader {
	return &PlainStateReader{tx: tx}
}

func (r *PlainStateReader) ReadAccountData(address common.Address) (*types.Account, error) {
	enc, err := r.tx.GetOne(kv.PlainState, address[:])
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, nil
	}
	var acc types.Account
	if err := rlp.DecodeBytes(enc, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *PlainStateReader) ReadAccountStorage(address common.Address, key common.Hash) (uint256.Int, bool, error) {
	enc, err := r.tx.GetOne(kv.PlainState, storageKey(address, key))
	if err != nil {
		return uint256.Int{}, false, err
	}
	if enc == nil {
		return uint256.Int{}, false, nil
	}
	var v uint256.Int
	v.SetBytes(enc)
	return v, true, nil
}

func (r *PlainStateReader) ReadAccountCode(address common.Address, codeHash common.Hash) ([]byte, error) {
	if codeHash == common.EmptyCodeHash {
		return nil, nil
	}
	return r.tx.GetOne(kv.Code, codeHash[:])
}

func (r *PlainStateReader) ReadAccountCodeSize(address common.Address, codeHash common.Hash) (int, error) {
	code, err := r.ReadAccountCode(address, codeHash)
	if err != nil {
		return 0, err
	}
	return len(code), nil
}

// kvNodeStore adapts a kv.Tx's TrieNodes table to trie.NodeStore, so the
// account and storage tries can be resolved node-by-node against the
// persistent store without loading the whole trie into memory.
type kvNodeStore struct {
	tx kv.Getter
}

func newKVNodeStore(tx kv.Getter) *kvNodeStore { return &kvNodeStore{tx: tx} }

func (s *kvNodeStore) GetNode(hash common.Hash) ([]byte, bool) {
	enc, err := s.tx.GetOne(kv.TrieNodes, hash[:])
	if err != nil || enc == nil {
		return nil, false
	}
	return enc, true
}

// PutNode is a no-op on the read-only adapter; writes go through
// kvNodeStoreRW, built over an kv.RwTx during Commit.
func (s *kvNodeStore) PutNode(hash common.Hash, enc []byte) {}

type kvNodeStoreRW struct {
	tx kv.RwTx
}

func newKVNodeStoreRW(tx kv.RwTx) *kvNodeStoreRW { return &kvNodeStoreRW{tx: tx} }

// NewKVNodeStoreRW adapts tx's TrieNodes table to trie.NodeStore for
// callers outside this package (core.ImportBlock), so the account and
// storage tries read/write the same persistent node table the rest of
// core/state uses.
func NewKVNodeStoreRW(tx kv.RwTx) trie.NodeStore { return newKVNodeStoreRW(tx) }

// NewKVNodeStore is the read-only counterpart of NewKVNodeStoreRW, for
// callers (proof verification, historical reads) that only need Get.
func NewKVNodeStore(tx kv.Getter) trie.NodeStore { return newKVNodeStore(tx) }

func (s *kvNodeStoreRW) GetNode(hash common.Hash) ([]byte, bool) {
	enc, err := s.tx.GetOne(kv.TrieNodes, hash[:])
	if err != nil || enc == nil {
		return nil, false
	}
	return enc, true
}

func (s *kvNodeStoreRW) PutNode(hash common.Hash, enc []byte) {
	_ = s.tx.Put(kv.TrieNodes, hash[:], enc)
}
