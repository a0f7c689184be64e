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

func TestMemoryGasCostQuadratic(t *testing.T) {
	// spec §4.C: memory_cost(w) = 3w + w^2/512.
	if got := memoryGasCost(1); got != 3 {
		t.Fatalf("memoryGasCost(1) = %d, want 3", got)
	}
	if got := memoryGasCost(512); got != 3*512+512 {
		t.Fatalf("memoryGasCost(512) = %d, want %d", got, 3*512+512)
	}
}

func TestMemoryExpansionCostIsIncremental(t *testing.T) {
	full := memoryGasCost(4)
	step1 := memoryExpansionCost(0, 2)
	step2 := memoryExpansionCost(2, 4)
	if step1+step2 != full {
		t.Fatalf("expansion in two steps = %d, want %d (single jump)", step1+step2, full)
	}
	if got := memoryExpansionCost(4, 2); got != 0 {
		t.Fatalf("shrinking must cost nothing, got %d", got)
	}
}

func TestCallGasBudget63of64Rule(t *testing.T) {
	available := uint64(64000)
	forwardCap := available - available/64
	if got := callGasBudget(available, available); got != forwardCap {
		t.Fatalf("requesting all gas should be capped to %d, got %d", forwardCap, got)
	}
	if got := callGasBudget(available, 1000); got != 1000 {
		t.Fatalf("a request under the cap should pass through unchanged, got %d", got)
	}
}

func TestGasExpChargesPerExponentByte(t *testing.T) {
	// opExp pops base first, so at dispatch time back(0) is base and
	// back(1) is the exponent gasExp actually charges for.
	in := &interpreter{evm: &EVM{rules: &activeRules{}}}
	st := newStack()
	st.push(uint256.NewInt(0x1234)) // exponent: 2 significant bytes
	st.push(uint256.NewInt(7))      // base
	cost, err := gasExp(in, nil, st, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(2) * ExpByteGasEIP158; cost != want {
		t.Fatalf("gasExp = %d, want %d", cost, want)
	}
}
