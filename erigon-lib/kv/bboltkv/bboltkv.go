// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package bboltkv backs kv.RwDB with go.etcd.io/bbolt, a single-writer
// embedded B+tree store. It is a drop-in replacement for erigon's native
// mdbx-go backend: mdbx is cgo-only and was not an option here, so bbolt
// (already present transitively in the dependency graph) takes over the
// same one-writer-many-readers transaction model bbolt and mdbx both
// implement as copy-on-write B-trees.
package bboltkv

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/fenwicklabs/execution-core/erigon-lib/kv"
)

type DB struct {
	bolt *bolt.DB
}

// Open creates (if missing) every bucket in cfg and returns a ready DB.
func Open(path string, cfg kv.TableCfg) (*DB, error) {
	bdb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("bboltkv: open %s: %w", path, err)
	}
	err = bdb.Update(func(tx *bolt.Tx) error {
		for name := range cfg {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("bboltkv: create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}
	return &DB{bolt: bdb}, nil
}

func (db *DB) Close() error { return db.bolt.Close() }

func (db *DB) View(ctx context.Context, f func(kv.Tx) error) error {
	return db.bolt.View(func(btx *bolt.Tx) error {
		return f(&tx{btx: btx})
	})
}

func (db *DB) Update(ctx context.Context, f func(kv.RwTx) error) error {
	return db.bolt.Update(func(btx *bolt.Tx) error {
		return f(&rwTx{tx{btx: btx}})
	})
}

type tx struct {
	btx *bolt.Tx
}

func (t *tx) bucket(table string) *bolt.Bucket {
	return t.btx.Bucket([]byte(table))
}

func (t *tx) GetOne(table string, key []byte) ([]byte, error) {
	b := t.bucket(table)
	if b == nil {
		return nil, fmt.Errorf("bboltkv: unknown table %s", table)
	}
	v := b.Get(key)
	if v == nil {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *tx) Has(table string, key []byte) (bool, error) {
	v, err := t.GetOne(table, key)
	return v != nil, err
}

func (t *tx) ForEach(table string, fromPrefix []byte, walker func(k, v []byte) error) error {
	b := t.bucket(table)
	if b == nil {
		return fmt.Errorf("bboltkv: unknown table %s", table)
	}
	c := b.Cursor()
	var k, v []byte
	if len(fromPrefix) == 0 {
		k, v = c.First()
	} else {
		k, v = c.Seek(fromPrefix)
	}
	for ; k != nil; k, v = c.Next() {
		if err := walker(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) ForPrefix(table string, prefix []byte, walker func(k, v []byte) error) error {
	b := t.bucket(table)
	if b == nil {
		return fmt.Errorf("bboltkv: unknown table %s", table)
	}
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		if err := walker(k, v); err != nil {
			return err
		}
	}
	return nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (t *tx) Rollback() {
	// bolt.Tx rollback happens automatically on View's return error; for a
	// read tx obtained directly (not via View) the caller doesn't get one,
	// so this is a no-op to satisfy kv.Tx for symmetry with RwTx.
}

type rwTx struct {
	tx
}

func (t *rwTx) Put(table string, key, value []byte) error {
	b := t.bucket(table)
	if b == nil {
		return fmt.Errorf("bboltkv: unknown table %s", table)
	}
	return b.Put(key, value)
}

func (t *rwTx) Delete(table string, key []byte) error {
	b := t.bucket(table)
	if b == nil {
		return fmt.Errorf("bboltkv: unknown table %s", table)
	}
	return b.Delete(key)
}

func (t *rwTx) Commit() error {
	// go.etcd.io/bbolt commits automatically when Update's callback
	// returns nil; nothing left to do here.
	return nil
}
