// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import "github.com/holiman/uint256"

// Memory is the EVM's byte-addressable, word-granular scratch space. It
// only ever grows, in 32-byte words, for the lifetime of one call frame.
type Memory struct {
	store []byte
}

func newMemory() *Memory { return &Memory{} }

// resize grows the backing array to size bytes if it is currently smaller.
// Callers are expected to have already rounded size up to a word boundary
// (toWordSize), matching the gas charged for the expansion.
func (m *Memory) resize(size uint64) {
	if uint64(len(m.store)) < size {
		m.store = append(m.store, make([]byte, size-uint64(len(m.store)))...)
	}
}

func (m *Memory) set(offset, size uint64, value []byte) {
	if size == 0 {
		return
	}
	if offset+size > uint64(len(m.store)) {
		panic("vm: memory write out of bounds")
	}
	copy(m.store[offset:offset+size], value)
}

// set32 writes a 256-bit value at offset, big-endian, zero-padded.
func (m *Memory) set32(offset uint64, val *uint256.Int) {
	if offset+32 > uint64(len(m.store)) {
		panic("vm: memory write out of bounds")
	}
	b := val.Bytes32()
	copy(m.store[offset:offset+32], b[:])
}

// getCopy returns an independent copy of [offset, offset+size).
func (m *Memory) getCopy(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	cp := make([]byte, size)
	copy(cp, m.store[offset:offset+size])
	return cp
}

// getPtr returns a direct slice into memory; callers must not retain it
// past the next mutating call.
func (m *Memory) getPtr(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	return m.store[offset : offset+size]
}

func (m *Memory) len() int { return len(m.store) }

func (m *Memory) data() []byte { return m.store }

// toWordSize rounds a byte size up to the nearest 32-byte word count,
// the unit memory actually grows in.
func toWordSize(size uint64) uint64 {
	if size > 1<<63 {
		return (1<<63-1)/32 + 1
	}
	return (size + 31) / 32
}
