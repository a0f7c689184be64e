// Copyright 2021 The Erigon Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package kv

import "sort"

// DBSchemaVersion is bumped whenever a table's key/value encoding changes
// in a way that is not backward compatible.
var DBSchemaVersion = struct{ Major, Minor, Patch uint32 }{Major: 1, Minor: 0, Patch: 0}

// Table names. Naming follows the teacher's convention: PascalCase logical
// name, with the key/value layout documented in a comment above each
// group, since the KV layer itself (kv.Tx/kv.RwTx) knows nothing about the
// shape of what it stores.
const (
	// DatabaseInfo holds process-wide metadata: schema version, genesis hash.
	DatabaseInfo = "DbInfo"

	// HeaderNumber: header_hash -> block_num_u64.
	HeaderNumber = "HeaderNumber"
	// HeaderCanonical: block_num_u64 -> canonical header hash.
	HeaderCanonical = "CanonicalHeader"
	// Headers: block_num_u64 + hash -> RLP(header).
	Headers = "Header"
	// HeaderTD: block_num_u64 + hash -> RLP(total difficulty), pre-merge only.
	HeaderTD = "HeadersTotalDifficulty"

	// BlockBody: block_num_u64 + hash -> RLP(body) (transactions, ommers,
	// withdrawals).
	BlockBody = "BlockBody"

	// EthTx: tx_id (auto-increment, dense per block) -> RLP(transaction).
	EthTx = "BlockTransaction"
	// TxLookup: tx_hash -> block_num_u64, for the canonical chain only.
	TxLookup = "BlockTransactionLookup"

	// Receipts: block_num_u64 + hash -> RLP([]Receipt) for the block.
	Receipts = "Receipt"
	// Log: block_num_u64 + hash + log_index_u32 -> RLP(Log), a secondary
	// index kept for log filter queries; not required by the Engine API
	// surface but carried for completeness of the storage layer.
	Log = "TransactionLog"

	// PlainState: address (20) -> RLP(account), and
	// address (20) + storage_key_hash (32) -> storage value (32), sharing
	// one table distinguished by key length, mirroring the teacher's
	// single PlainState table.
	PlainState = "PlainState"
	// Code: code_hash (32) -> contract bytecode.
	Code = "Code"
	// IncarnationMap: address (20) -> incarnation_u64, bumped on SELFDESTRUCT
	// so a later re-created account at the same address gets fresh storage.
	IncarnationMap = "IncarnationMap"

	// TrieNodes: node_hash (32) -> RLP-encoded trie node, shared by every
	// state and storage trie (content-addressed, so no per-account prefix
	// is needed).
	TrieNodes = "TrieNode"

	// ChainHead/ChainFinalized/ChainSafe each hold a single RLP(hash)
	// value at a fixed key, the three fork-choice pointers of spec §3.
	ChainHead      = "LastHeader"
	ChainFinalized = "LastFinalized"
	ChainSafe      = "LastSafe"

	// PendingPayloads: payload_id (8 bytes) -> RLP(ExecutionPayload) plus
	// its tracked block value. The bucket is created on open but nothing
	// writes to it: the payload builder keeps built payloads in memory.
	PendingPayloads = "PendingPayload"

	// PoolTransactions: tx_hash -> RLP(transaction). The bucket is created
	// on open but nothing writes to it: the mempool holds its transactions
	// in memory only, so they are not reloaded on restart.
	PoolTransactions = "PoolTransaction"
)

// TableFlags mirrors the handful of bbolt bucket properties the storage
// layer actually needs (bbolt buckets have no notion of DupSort, so this
// only governs whether a bucket is created if missing).
type TableFlags uint

const (
	Default TableFlags = 0x00
)

type TableCfgItem struct {
	Flags TableFlags
}

type TableCfg map[string]TableCfgItem

// ChaindataTables lists every bucket the persistent store must create on
// first open. Order is irrelevant at runtime: the store creates the
// buckets by ranging over the ChaindataTablesCfg map, so creation order
// is not fixed.
var ChaindataTables = []string{
	DatabaseInfo,
	HeaderNumber,
	HeaderCanonical,
	Headers,
	HeaderTD,
	BlockBody,
	EthTx,
	TxLookup,
	Receipts,
	Log,
	PlainState,
	Code,
	IncarnationMap,
	TrieNodes,
	ChainHead,
	ChainFinalized,
	ChainSafe,
	PendingPayloads,
	PoolTransactions,
}

func init() {
	sort.Strings(ChaindataTables)
}

// ChaindataTablesCfg expands ChaindataTables into the bbolt-facing config
// map used by bboltkv.Open to create every bucket up front.
func ChaindataTablesCfg() TableCfg {
	cfg := make(TableCfg, len(ChaindataTables))
	for _, name := range ChaindataTables {
		cfg[name] = TableCfgItem{Flags: Default}
	}
	return cfg
}
