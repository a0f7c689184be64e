// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"github.com/holiman/uint256"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
)

// Contract is the execution context for one call frame: the running
// code, its input, and the gas meter the interpreter draws against.
type Contract struct {
	caller common.Address
	self   common.Address

	code     []byte
	codeHash common.Hash
	input    []byte

	Gas   uint64
	value *uint256.Int

	IsDelegateCall bool

	jumpdests map[uint64]struct{}
}

func newContract(caller, self common.Address, value *uint256.Int, gas uint64, code []byte, codeHash common.Hash) *Contract {
	if value == nil {
		value = new(uint256.Int)
	}
	return &Contract{
		caller:   caller,
		self:     self,
		code:     code,
		codeHash: codeHash,
		Gas:      gas,
		value:    value,
	}
}

func (c *Contract) validJumpdest(dest *uint256.Int) bool {
	if !dest.IsUint64() {
		return false
	}
	udest := dest.Uint64()
	if udest >= uint64(len(c.code)) {
		return false
	}
	if OpCode(c.code[udest]) != JUMPDEST {
		return false
	}
	if c.jumpdests == nil {
		c.jumpdests = analyzeJumpdests(c.code)
	}
	_, ok := c.jumpdests[udest]
	return ok
}

// analyzeJumpdests walks the code once, skipping PUSH immediate data, and
// returns the set of positions that are legal JUMPDEST targets.
func analyzeJumpdests(code []byte) map[uint64]struct{} {
	dests := make(map[uint64]struct{})
	for pc := uint64(0); pc < uint64(len(code)); pc++ {
		op := OpCode(code[pc])
		if op == JUMPDEST {
			dests[pc] = struct{}{}
			continue
		}
		if op.isPush() {
			pc += uint64(op - PUSH1 + 1)
		}
	}
	return dests
}

func (c *Contract) useGas(amount uint64) bool {
	if c.Gas < amount {
		return false
	}
	c.Gas -= amount
	return true
}
