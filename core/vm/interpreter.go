// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"fmt"
)

// scopeContext groups the three pieces of state one opcode execution
// touches: its operand stack, its memory, and the contract frame (code,
// input, remaining gas) it is running inside.
type scopeContext struct {
	Memory   *Memory
	Stack    *Stack
	Contract *Contract
}

// interpreter runs one call frame's bytecode to completion (STOP, RETURN,
// REVERT, an error, or running off the end of the code). It never
// suspends mid-opcode (spec §5: "the EVM never yields mid-instruction").
type interpreter struct {
	evm   *EVM
	table *JumpTable

	returnData []byte
	readOnly   bool
}

func newInterpreter(evm *EVM) *interpreter {
	return &interpreter{evm: evm, table: evm.jumpTable}
}

// run executes contract.code starting at pc 0 against the given input and
// returns the frame's output bytes (RETURN/REVERT data) and any halting
// error. readOnly propagates STATICCALL's no-state-change restriction
// down through nested calls.
func (in *interpreter) run(contract *Contract, input []byte, readOnly bool) ([]byte, error) {
	if readOnly && !in.readOnly {
		in.readOnly = true
		defer func() { in.readOnly = false }()
	}

	in.returnData = nil
	contract.input = input

	var (
		op          OpCode
		mem         = newMemory()
		stack       = newStack()
		pc    = uint64(0)
		res   []byte
		err   error
	)
	scope := &scopeContext{Memory: mem, Stack: stack, Contract: contract}

	for {
		if int(pc) >= len(contract.code) {
			op = STOP
		} else {
			op = OpCode(contract.code[pc])
		}

		operation := in.table[op]
		if operation == nil {
			return nil, fmt.Errorf("%w: 0x%x", ErrInvalidOpCode, byte(op))
		}
		if operation.sinceFork != nil && !operation.sinceFork(in.evm.rules) {
			return nil, fmt.Errorf("%w: 0x%x", ErrInvalidOpCode, byte(op))
		}
		if stack.len() < operation.minStack {
			return nil, ErrStackUnderflow
		}
		if stack.len() > operation.maxStack {
			return nil, ErrStackOverflow
		}
		if in.readOnly && operation.writes {
			return nil, ErrWriteProtection
		}

		var memorySize uint64
		if operation.memorySize != nil {
			size, overflow := operation.memorySize(stack)
			if overflow {
				return nil, ErrGasUintOverflow
			}
			wordSize := toWordSize(size)
			memorySize = wordSize * 32
		}

		cost := operation.constantGas
		if memorySize > 0 {
			currentWords := toWordSize(uint64(mem.len()))
			newWords := memorySize / 32
			cost += memoryExpansionCost(currentWords, newWords)
		}
		if operation.dynamicGas != nil {
			dyn, derr := operation.dynamicGas(in, contract, stack, mem, memorySize)
			if derr != nil {
				return nil, derr
			}
			cost += dyn
		}
		if !contract.useGas(cost) {
			return nil, ErrOutOfGas
		}
		if memorySize > 0 {
			mem.resize(memorySize)
		}

		res, err = operation.execute(&pc, in, scope)
		if err != nil {
			return res, err
		}
		pc++
		if operation.halts {
			return res, nil
		}
	}
}
