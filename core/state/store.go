// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package state

import (
	"context"
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"

	"github.com/fenwicklabs/execution-core/core/types"
	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
	"github.com/fenwicklabs/execution-core/erigon-lib/kv"
	"github.com/fenwicklabs/execution-core/erigon-lib/rlp"
	"github.com/fenwicklabs/execution-core/trie"
)

const (
	headerCacheSize = 2048
	codeCacheSize   = 1024
)

// Store is the trie-backed facade spec §4.B calls "B": it sits above the
// flat PlainState/Code tables PlainStateReader/PlainStateWriter already
// know how to read and write, and owns everything that needs the account
// and storage tries - state-root commitment, Merkle proofs, and the
// canonical-chain pointers (head/safe/finalized) a fork-choice update
// rewrites. Store also fronts the header and code tables with bounded
// LRU caches (SPEC_FULL §B: "account-code cache and header-by-hash
// cache"), since both are read on every block import and fork-choice
// walk and neither needs to stay exact the way an access-list warm set
// does.
type Store struct {
	db          kv.RwDB
	headerCache *lru.Cache[common.Hash, *types.Header]
	codeCache   *lru.Cache[common.Hash, []byte]
}

func NewStore(db kv.RwDB) *Store {
	headerCache, _ := lru.New[common.Hash, *types.Header](headerCacheSize)
	codeCache, _ := lru.New[common.Hash, []byte](codeCacheSize)
	return &Store{db: db, headerCache: headerCache, codeCache: codeCache}
}

func (s *Store) DB() kv.RwDB { return s.db }

// HeaderByHash resolves a header by hash through HeaderNumber, serving
// from headerCache when possible.
func (s *Store) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	if h, ok := s.headerCache.Get(hash); ok {
		return h, nil
	}
	var h *types.Header
	err := s.db.View(ctx, func(tx kv.Tx) error {
		number, ok, err := ReadHeaderNumber(tx, hash)
		if err != nil || !ok {
			return err
		}
		h, err = ReadHeader(tx, number, hash)
		return err
	})
	if err == nil && h != nil {
		s.headerCache.Add(hash, h)
	}
	return h, err
}

// CodeByHash returns the contract code for codeHash, serving from
// codeCache when possible.
func (s *Store) CodeByHash(ctx context.Context, codeHash common.Hash) ([]byte, error) {
	if codeHash == common.EmptyCodeHash {
		return nil, nil
	}
	if c, ok := s.codeCache.Get(codeHash); ok {
		return c, nil
	}
	var code []byte
	err := s.db.View(ctx, func(tx kv.Tx) error {
		enc, err := tx.GetOne(kv.Code, codeHash[:])
		code = enc
		return err
	})
	if err == nil && code != nil {
		s.codeCache.Add(codeHash, code)
	}
	return code, err
}

// CommitAccountUpdates applies updates (Finalise's AccountUpdate stream)
// to both the flat state (via ApplyAccountUpdates) and the account/storage
// tries rooted at parentRoot, returning the new state root. This is
// spec §4.B's apply_account_updates plus the trie commit half of §4.E
// step 6/7: the two are kept in the same transaction so a crash between
// them can never leave flat state and trie state disagreeing about a
// block.
func (s *Store) CommitAccountUpdates(ctx context.Context, parentRoot common.Hash, updates []AccountUpdate) (common.Hash, error) {
	var root common.Hash
	err := s.db.Update(ctx, func(tx kv.RwTx) error {
		w := NewPlainStateWriter(tx)
		if err := ApplyAccountUpdates(w, updates); err != nil {
			return err
		}
		r, err := CommitStateRoot(newKVNodeStoreRW(tx), parentRoot, updates)
		if err != nil {
			return err
		}
		root = r
		return nil
	})
	return root, err
}

// CommitStateRoot opens the account trie at parentRoot, applies updates,
// and returns the new root. Unlike the flat-state writer this also
// rebuilds each dirtied account's storage trie from AccountUpdate.Storage,
// so an account's Root field in the returned trie is the account's real
// storage-trie root rather than a placeholder (spec §4.A "keccak(address)
// -> RLP(account_state)"; §3's "recomputing state_root from the state
// store yields the stored header field").
//
// nodeStore should be the same persistent NodeStore across blocks (the
// kv-backed adapter this package builds over TrieNodes) so previously
// committed nodes stay resolvable; a one-off computation over a detached
// block may pass a fresh trie.NewMemoryNodeStore() instead.
func CommitStateRoot(nodeStore trie.NodeStore, parentRoot common.Hash, updates []AccountUpdate) (common.Hash, error) {
	t, err := trie.New(parentRoot, nodeStore)
	if err != nil {
		return common.Hash{}, err
	}
	for _, u := range updates {
		key := crypto.Keccak256(u.Address.Bytes())
		if u.Deleted {
			if err := t.Delete(key); err != nil {
				return common.Hash{}, err
			}
			continue
		}

		acc := u.Account
		if len(u.Storage) > 0 {
			storageRoot, err := commitStorageTrie(nodeStore, acc.Root, u.Storage)
			if err != nil {
				return common.Hash{}, fmt.Errorf("account %x: storage trie: %w", u.Address, err)
			}
			cp := acc.Copy()
			cp.Root = storageRoot
			acc = cp
		}

		enc, err := rlp.EncodeToBytes(acc)
		if err != nil {
			return common.Hash{}, err
		}
		if err := t.Put(key, enc); err != nil {
			return common.Hash{}, err
		}
	}
	return t.Hash(), nil
}

// commitStorageTrie opens an account's storage trie at its prior root
// (carried forward unmutated by every IntraBlockState setter - see
// stateObject's setState/setBalance/setNonce/setCode, none of which touch
// data.Root) and applies this block's dirty-slot diffs, deleting a slot
// outright when its value is zero rather than storing an empty leaf, the
// same "absent means zero" convention go-ethereum/erigon use for the
// storage trie.
func commitStorageTrie(nodeStore trie.NodeStore, priorRoot common.Hash, dirty map[common.Hash]uint256.Int) (common.Hash, error) {
	t, err := trie.New(priorRoot, nodeStore)
	if err != nil {
		return common.Hash{}, err
	}
	for slot, value := range dirty {
		key := crypto.Keccak256(slot.Bytes())
		if value.IsZero() {
			if err := t.Delete(key); err != nil {
				return common.Hash{}, err
			}
			continue
		}
		enc, err := rlp.EncodeToBytes(value.Bytes())
		if err != nil {
			return common.Hash{}, err
		}
		if err := t.Put(key, enc); err != nil {
			return common.Hash{}, err
		}
	}
	return t.Hash(), nil
}

// GetAccountProof returns a Merkle proof for address against the account
// trie rooted at stateRoot, spec §4.B get_account_proof.
func (s *Store) GetAccountProof(ctx context.Context, stateRoot common.Hash, address common.Address) ([][]byte, error) {
	var proof [][]byte
	err := s.db.View(ctx, func(tx kv.Tx) error {
		t, err := trie.New(stateRoot, newKVNodeStore(tx))
		if err != nil {
			return err
		}
		proof, err = t.Prove(crypto.Keccak256(address.Bytes()))
		return err
	})
	return proof, err
}

// GetStorageProof returns a Merkle proof for slot against the storage
// trie rooted at storageRoot (an account's Root field), spec §4.B
// get_storage_proof.
func (s *Store) GetStorageProof(ctx context.Context, storageRoot common.Hash, slot common.Hash) ([][]byte, error) {
	var proof [][]byte
	err := s.db.View(ctx, func(tx kv.Tx) error {
		t, err := trie.New(storageRoot, newKVNodeStore(tx))
		if err != nil {
			return err
		}
		proof, err = t.Prove(crypto.Keccak256(slot.Bytes()))
		return err
	})
	return proof, err
}

// --- block persistence: header/body/receipts/tx lookup (spec §4.E step 7) ---

func blockKey(number uint64, hash common.Hash) []byte {
	k := make([]byte, 8+common.HashLength)
	binary.BigEndian.PutUint64(k, number)
	copy(k[8:], hash[:])
	return k
}

// WriteBlock persists a validated block's header, body and receipts, and
// indexes every transaction hash to this block number, all within tx. The
// caller (core.ImportBlock) wraps this in the same kv.RwTx as the trie and
// flat-state writes for the block, so the whole step-7 commit is atomic:
// kv.RwDB.Update either applies every write or none of them.
func WriteBlock(tx kv.RwTx, block *types.Block, receipts types.Receipts) error {
	number, hash := block.Number(), block.Hash()
	key := blockKey(number, hash)

	headerEnc, err := rlp.EncodeToBytes(block.Header())
	if err != nil {
		return err
	}
	if err := tx.Put(kv.Headers, key, headerEnc); err != nil {
		return err
	}

	bodyEnc, err := rlp.EncodeToBytes(block.Body())
	if err != nil {
		return err
	}
	if err := tx.Put(kv.BlockBody, key, bodyEnc); err != nil {
		return err
	}

	receiptsEnc, err := rlp.EncodeToBytes(receipts)
	if err != nil {
		return err
	}
	if err := tx.Put(kv.Receipts, key, receiptsEnc); err != nil {
		return err
	}

	if err := tx.Put(kv.HeaderNumber, hash[:], encodeNumber(number)); err != nil {
		return err
	}

	for _, txn := range block.Transactions() {
		if err := tx.Put(kv.TxLookup, txn.Hash().Bytes(), encodeNumber(number)); err != nil {
			return err
		}
	}
	return nil
}

// ReadHeader looks up a block's header by number and hash.
func ReadHeader(tx kv.Tx, number uint64, hash common.Hash) (*types.Header, error) {
	enc, err := tx.GetOne(kv.Headers, blockKey(number, hash))
	if err != nil || enc == nil {
		return nil, err
	}
	var h types.Header
	if err := rlp.DecodeBytes(enc, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ReadReceipts looks up a block's receipts by number and hash.
func ReadReceipts(tx kv.Tx, number uint64, hash common.Hash) (types.Receipts, error) {
	enc, err := tx.GetOne(kv.Receipts, blockKey(number, hash))
	if err != nil || enc == nil {
		return nil, err
	}
	var r types.Receipts
	if err := rlp.DecodeBytes(enc, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// ReadTxLookup resolves a transaction hash to the number of the block that
// most recently indexed it via WriteBlock. The lookup is not restricted to
// the canonical chain: a transaction in a non-canonical block resolves too.
func ReadTxLookup(tx kv.Tx, txHash common.Hash) (uint64, bool, error) {
	enc, err := tx.GetOne(kv.TxLookup, txHash.Bytes())
	if err != nil || enc == nil {
		return 0, false, err
	}
	return decodeNumber(enc), true, nil
}

// ReadHeaderNumber resolves a header hash to its block number.
func ReadHeaderNumber(tx kv.Tx, hash common.Hash) (uint64, bool, error) {
	enc, err := tx.GetOne(kv.HeaderNumber, hash[:])
	if err != nil || enc == nil {
		return 0, false, err
	}
	return decodeNumber(enc), true, nil
}

func encodeNumber(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func decodeNumber(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// --- canonical chain: HeaderCanonical index + head/safe/finalized pointers ---

// SetCanonical marks hash as the canonical header at number, spec §4.F
// set_canonical. It is the caller's responsibility to have already
// written the header itself via WriteBlock.
func SetCanonical(tx kv.RwTx, number uint64, hash common.Hash) error {
	return tx.Put(kv.HeaderCanonical, encodeNumber(number), hash[:])
}

// UnsetCanonical removes number's canonical marker, spec §4.F
// unset_canonical, used when a reorg walks back off the old chain.
func UnsetCanonical(tx kv.RwTx, number uint64) error {
	return tx.Delete(kv.HeaderCanonical, encodeNumber(number))
}

// CanonicalHash returns the canonical header hash at number, if any.
func CanonicalHash(tx kv.Tx, number uint64) (common.Hash, bool, error) {
	enc, err := tx.GetOne(kv.HeaderCanonical, encodeNumber(number))
	if err != nil || enc == nil {
		return common.Hash{}, false, err
	}
	return common.BytesToHash(enc), true, nil
}

func readPointer(tx kv.Tx, table string) (common.Hash, bool, error) {
	enc, err := tx.GetOne(table, pointerKey)
	if err != nil || enc == nil {
		return common.Hash{}, false, err
	}
	return common.BytesToHash(enc), true, nil
}

func writePointer(tx kv.RwTx, table string, hash common.Hash) error {
	return tx.Put(table, pointerKey, hash[:])
}

// pointerKey is the fixed key the three single-value chain-pointer
// tables (ChainHead/ChainSafe/ChainFinalized) are stored under.
var pointerKey = []byte("v")

func (s *Store) HeadHash(ctx context.Context) (common.Hash, bool, error) {
	var h common.Hash
	var ok bool
	err := s.db.View(ctx, func(tx kv.Tx) error {
		var err error
		h, ok, err = readPointer(tx, kv.ChainHead)
		return err
	})
	return h, ok, err
}

func (s *Store) SafeHash(ctx context.Context) (common.Hash, bool, error) {
	var h common.Hash
	var ok bool
	err := s.db.View(ctx, func(tx kv.Tx) error {
		var err error
		h, ok, err = readPointer(tx, kv.ChainSafe)
		return err
	})
	return h, ok, err
}

func (s *Store) FinalizedHash(ctx context.Context) (common.Hash, bool, error) {
	var h common.Hash
	var ok bool
	err := s.db.View(ctx, func(tx kv.Tx) error {
		var err error
		h, ok, err = readPointer(tx, kv.ChainFinalized)
		return err
	})
	return h, ok, err
}

// UpdateLatest, UpdateSafe and UpdateFinalized are spec §4.F's
// update_latest/update_safe/update_finalized: they move one of the three
// fork-choice pointers and nothing else. Callers hold the kv.RwTx that
// also rewrote HeaderCanonical for this same fork-choice update.
func UpdateLatest(tx kv.RwTx, hash common.Hash) error    { return writePointer(tx, kv.ChainHead, hash) }
func UpdateSafe(tx kv.RwTx, hash common.Hash) error      { return writePointer(tx, kv.ChainSafe, hash) }
func UpdateFinalized(tx kv.RwTx, hash common.Hash) error { return writePointer(tx, kv.ChainFinalized, hash) }
