// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package trie

import (
	"sync"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
)

// NodeStore maps a node hash to its RLP encoding. A Trie is parameterized
// over one so the same Get/Put/Delete/Hash algorithm can run against an
// in-memory map in tests or a persistent bboltkv table in the running
// node (spec §4.A: "a lightweight handle parameterized by a root hash").
type NodeStore interface {
	GetNode(hash common.Hash) ([]byte, bool)
	PutNode(hash common.Hash, enc []byte)
}

// MemoryNodeStore is an in-memory NodeStore, used by tests and by short-lived
// tries built to verify a proof.
type MemoryNodeStore struct {
	mu    sync.RWMutex
	nodes map[common.Hash][]byte
}

func NewMemoryNodeStore() *MemoryNodeStore {
	return &MemoryNodeStore{nodes: make(map[common.Hash][]byte)}
}

func (m *MemoryNodeStore) GetNode(hash common.Hash) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	enc, ok := m.nodes[hash]
	return enc, ok
}

func (m *MemoryNodeStore) PutNode(hash common.Hash, enc []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[hash] = append([]byte{}, enc...)
}

// hashOf is the Keccak-256 hash of a node's canonical RLP encoding, the key
// under which it is (or would be) stored once it crosses the 32-byte
// inline threshold.
func hashOf(n node) common.Hash {
	return crypto.Keccak256Hash(nodeToRLP(n))
}
