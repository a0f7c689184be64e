// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestStackPushPopBack(t *testing.T) {
	st := newStack()
	st.push(uint256.NewInt(1))
	st.push(uint256.NewInt(2))
	st.push(uint256.NewInt(3))

	if st.len() != 3 {
		t.Fatalf("len = %d, want 3", st.len())
	}
	if got := st.back(0).Uint64(); got != 3 {
		t.Fatalf("back(0) = %d, want 3", got)
	}
	if got := st.back(2).Uint64(); got != 1 {
		t.Fatalf("back(2) = %d, want 1", got)
	}

	v := st.pop()
	if v.Uint64() != 3 {
		t.Fatalf("pop = %d, want 3", v.Uint64())
	}
	if st.len() != 2 {
		t.Fatalf("len after pop = %d, want 2", st.len())
	}
}

func TestStackSwapAndDup(t *testing.T) {
	st := newStack()
	st.push(uint256.NewInt(10))
	st.push(uint256.NewInt(20))

	st.swap(1)
	if st.back(0).Uint64() != 10 || st.back(1).Uint64() != 20 {
		t.Fatalf("swap(1) produced %d, %d", st.back(0).Uint64(), st.back(1).Uint64())
	}

	st.dup(1)
	if st.len() != 3 || st.back(0).Uint64() != 10 {
		t.Fatalf("dup(1) produced top %d, len %d", st.back(0).Uint64(), st.len())
	}
}

func TestStackPeekIsTop(t *testing.T) {
	st := newStack()
	st.push(uint256.NewInt(7))
	st.peek().Add(st.peek(), uint256.NewInt(1))
	if st.back(0).Uint64() != 8 {
		t.Fatalf("peek did not mutate top in place, got %d", st.back(0).Uint64())
	}
}
