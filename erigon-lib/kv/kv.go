// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package kv declares the storage layer's transaction/cursor contract.
// Every higher package (core/state, trie, txpool, turbo/builder) talks to
// the persistent store only through these interfaces, never through a
// concrete backend type, so the backend can be swapped (as it was here,
// from mdbx to bbolt) without touching a single caller.
package kv

import "context"

// Getter is the read-only half of a table access.
type Getter interface {
	GetOne(table string, key []byte) (val []byte, err error)
	Has(table string, key []byte) (bool, error)
	ForEach(table string, fromPrefix []byte, walker func(k, v []byte) error) error
	ForPrefix(table string, prefix []byte, walker func(k, v []byte) error) error
}

// Putter is the write half.
type Putter interface {
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error
}

// Tx is a read-only transaction.
type Tx interface {
	Getter
	Rollback()
}

// RwTx is a read-write transaction. Commit and Rollback are mutually
// exclusive terminal operations; calling either twice is a programming
// error the backend is free to panic on.
type RwTx interface {
	Tx
	Putter
	Commit() error
}

// RoDB opens read-only transactions.
type RoDB interface {
	View(ctx context.Context, f func(tx Tx) error) error
}

// RwDB opens read-write transactions in addition to read-only ones.
type RwDB interface {
	RoDB
	Update(ctx context.Context, f func(tx RwTx) error) error
	Close() error
}
