// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"
)

func TestMemoryResizeGrowsInWords(t *testing.T) {
	m := newMemory()
	m.resize(toWordSize(40) * 32)
	if m.len() != 64 {
		t.Fatalf("len = %d, want 64 (two words)", m.len())
	}

	m.resize(toWordSize(10) * 32)
	if m.len() != 64 {
		t.Fatalf("resize to a smaller size should not shrink memory, got %d", m.len())
	}
}

func TestMemorySetAndGetCopy(t *testing.T) {
	m := newMemory()
	m.resize(32)
	m.set(0, 4, []byte{1, 2, 3, 4})

	got := m.getCopy(0, 4)
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("getCopy = %v, want [1 2 3 4]", got)
	}

	got[0] = 0xff
	if m.data()[0] == 0xff {
		t.Fatal("getCopy must not alias the backing store")
	}
}

func TestMemorySet32(t *testing.T) {
	m := newMemory()
	m.resize(32)
	m.set32(0, uint256.NewInt(256))

	want := make([]byte, 32)
	want[30] = 1
	if !bytes.Equal(m.data(), want) {
		t.Fatalf("set32 = %x, want %x", m.data(), want)
	}
}

func TestToWordSize(t *testing.T) {
	cases := []struct{ size, words uint64 }{
		{0, 0}, {1, 1}, {32, 1}, {33, 2}, {64, 2},
	}
	for _, c := range cases {
		if got := toWordSize(c.size); got != c.words {
			t.Errorf("toWordSize(%d) = %d, want %d", c.size, got, c.words)
		}
	}
}
