// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/fenwicklabs/execution-core/erigon-lib/chain"
	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
)

// callKind distinguishes the four call-family opcodes, which share almost
// all of their dispatch logic and differ only in value transfer and the
// caller/self/static-ness the callee frame inherits.
type callKind int

const (
	callKindCall callKind = iota
	callKindCallCode
	callKindDelegateCall
	callKindStaticCall
)

// maxCallDepth is the 1024-deep call stack limit (spec §4.C).
const maxCallDepth = 1024

// EVM ties one block's BlockContext and one transaction's TxContext to a
// StateDB and runs call frames against it. A fresh EVM is built per
// transaction (spec §9: "no singletons; state threaded through an
// explicit NodeContext").
type EVM struct {
	BlockContext
	TxContext

	StateDB StateDB

	chainConfig *chain.Config
	chainID     *uint256.Int
	rules       *activeRules

	jumpTable *JumpTable
	depth     int
}

// NewEVM constructs an EVM for one transaction's execution.
func NewEVM(blockCtx BlockContext, txCtx TxContext, statedb StateDB, config *chain.Config) *EVM {
	r := config.Rules(new(big.Int).SetUint64(blockCtx.BlockNumber), blockCtx.Time)
	return &EVM{
		BlockContext: blockCtx,
		TxContext:    txCtx,
		StateDB:      statedb,
		chainConfig:  config,
		chainID:      r.ChainID,
		rules: &activeRules{
			IsHomestead:      r.IsHomestead,
			IsByzantium:      r.IsByzantium,
			IsConstantinople: r.IsConstantinople,
			IsIstanbul:       r.IsIstanbul,
			IsBerlin:         r.IsBerlin,
			IsLondon:         r.IsLondon,
			IsMerge:          r.IsMerge,
			IsShanghai:       r.IsShanghai,
			IsCancun:         r.IsCancun,
		},
		jumpTable: newJumpTable(),
	}
}

// Call executes the code at addr with the given input, transferring value
// from caller first. This is the entrypoint the transaction executor uses
// for a plain message call (spec §4.D step 4).
func (evm *EVM) Call(caller common.Address, addr common.Address, input []byte, gas uint64, value *uint256.Int) (ret []byte, leftOverGas uint64, err error) {
	return evm.call(caller, addr, input, gas, value, false, false)
}

// StaticCall executes addr's code with writes forbidden throughout the
// nested call tree.
func (evm *EVM) StaticCall(caller common.Address, addr common.Address, input []byte, gas uint64) (ret []byte, leftOverGas uint64, err error) {
	return evm.call(caller, addr, input, gas, new(uint256.Int), false, true)
}

func (evm *EVM) call(caller, addr common.Address, input []byte, gas uint64, value *uint256.Int, delegate, static bool) ([]byte, uint64, error) {
	if evm.depth > maxCallDepth {
		return nil, gas, ErrDepth
	}
	if value.Sign() != 0 && evm.StateDB.GetBalance(caller).Cmp(value) < 0 {
		return nil, gas, ErrInsufficientBalance
	}

	snapshot := evm.StateDB.Snapshot()

	if !evm.StateDB.Exist(addr) {
		// Touching a non-existent address creates it; an empty account with
		// no balance/code/nonce is pruned again at Finalise (EIP-161).
		evm.StateDB.CreateAccount(addr)
	}
	evm.StateDB.SubBalance(caller, value)
	evm.StateDB.AddBalance(addr, value)

	if pc, ok := getPrecompile(addr); ok {
		ret, gasLeft, err := runPrecompile(pc, input, gas)
		if err != nil {
			evm.StateDB.RevertToSnapshot(snapshot)
		}
		return ret, gasLeft, err
	}

	code := evm.StateDB.GetCode(addr)
	if len(code) == 0 {
		return nil, gas, nil
	}

	contract := newContract(caller, addr, value, gas, code, evm.StateDB.GetCodeHash(addr))
	evm.depth++
	in := newInterpreter(evm)
	ret, err := in.run(contract, input, static)
	evm.depth--

	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			contract.Gas = 0
		}
	}
	return ret, contract.Gas, err
}

// Create deploys code from init at the CREATE-derived address.
func (evm *EVM) Create(caller common.Address, init []byte, gas uint64, value *uint256.Int) ([]byte, common.Address, uint64, error) {
	nonce := evm.StateDB.GetNonce(caller)
	addr := crypto.CreateAddress(caller, nonce)
	return evm.create(caller, init, gas, value, addr)
}

// Create2 deploys code from init at the CREATE2-derived address
// keccak256(0xff ++ sender ++ salt ++ keccak256(init_code))[12:].
func (evm *EVM) Create2(caller common.Address, init []byte, gas uint64, value *uint256.Int, salt [32]byte) ([]byte, common.Address, uint64, error) {
	initHash := crypto.Keccak256(init)
	addr := crypto.CreateAddress2(caller, salt, initHash)
	return evm.create(caller, init, gas, value, addr)
}

func (evm *EVM) create(caller common.Address, init []byte, gas uint64, value *uint256.Int, addr common.Address) ([]byte, common.Address, uint64, error) {
	if evm.depth > maxCallDepth {
		return nil, addr, gas, ErrDepth
	}
	if value.Sign() != 0 && evm.StateDB.GetBalance(caller).Cmp(value) < 0 {
		return nil, addr, gas, ErrInsufficientBalance
	}
	if evm.StateDB.GetNonce(caller)+1 == 0 {
		return nil, addr, gas, ErrNonceUintOverflow
	}
	evm.StateDB.SetNonce(caller, evm.StateDB.GetNonce(caller)+1)

	if (evm.StateDB.GetNonce(addr) != 0 || len(evm.StateDB.GetCode(addr)) != 0) && evm.StateDB.Exist(addr) {
		return nil, addr, gas, ErrContractAddressCollision
	}

	snapshot := evm.StateDB.Snapshot()
	evm.StateDB.CreateAccount(addr)
	evm.StateDB.SetNonce(addr, 1)
	evm.StateDB.SubBalance(caller, value)
	evm.StateDB.AddBalance(addr, value)

	contract := newContract(caller, addr, value, gas, init, common.Hash{})
	evm.depth++
	in := newInterpreter(evm)
	ret, err := in.run(contract, nil, false)
	evm.depth--

	if err == nil && len(ret) > MaxCodeSize {
		err = ErrMaxCodeSizeExceeded
	}
	if err == nil && len(ret) > 0 && ret[0] == 0xEF {
		err = ErrInvalidOpCode // EIP-3541: reject code starting with the EOF magic byte
	}
	if err == nil {
		createDataGas := uint64(len(ret)) * CreateDataGas
		if !contract.useGas(createDataGas) {
			err = ErrCodeStoreOutOfGas
		} else {
			evm.StateDB.SetCode(addr, ret)
		}
	}

	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			contract.Gas = 0
		}
		return ret, addr, contract.Gas, err
	}
	return ret, addr, contract.Gas, nil
}

// doCreate implements the CREATE/CREATE2 opcodes against the current
// frame's stack and memory, pushing the new address (or zero on failure).
func (evm *EVM) doCreate(in *interpreter, sc *scopeContext, salted bool) ([]byte, error) {
	value := sc.Stack.pop()
	offset, size := sc.Stack.pop(), sc.Stack.pop()
	var salt uint256.Int
	if salted {
		salt = sc.Stack.pop()
	}
	init := sc.Memory.getCopy(offset.Uint64(), size.Uint64())

	gas := sc.Contract.Gas
	gas -= gas / 64 // 63/64 rule: the outer frame keeps 1/64th in reserve
	sc.Contract.Gas -= gas

	var (
		ret     []byte
		addr    common.Address
		gasLeft uint64
		err     error
	)
	if salted {
		var saltBytes [32]byte = salt.Bytes32()
		ret, addr, gasLeft, err = evm.Create2(sc.Contract.self, init, gas, &value, saltBytes)
	} else {
		ret, addr, gasLeft, err = evm.Create(sc.Contract.self, init, gas, &value)
	}
	sc.Contract.Gas += gasLeft
	in.returnData = ret

	result := sc.Stack
	if err != nil && err != ErrExecutionReverted {
		result.push(new(uint256.Int))
	} else {
		result.push(new(uint256.Int).SetBytes(addr.Bytes()))
	}
	if err == ErrExecutionReverted {
		return ret, nil
	}
	return nil, nil
}

// doCall implements CALL/CALLCODE/DELEGATECALL/STATICCALL: it reads the
// shared argument layout off the stack (gas, address, [value], in
// offset/size, out offset/size), applies the 63/64 rule to the gas stipend,
// and dispatches to the right semantics for value transfer / self / caller.
func (evm *EVM) doCall(in *interpreter, sc *scopeContext, kind callKind) ([]byte, error) {
	stack := sc.Stack
	requestedGas := stack.pop()
	addr := stack.pop()
	var value uint256.Int
	if kind == callKindCall || kind == callKindCallCode {
		value = stack.pop()
	}
	inOffset, inSize := stack.pop(), stack.pop()
	outOffset, outSize := stack.pop(), stack.pop()

	toAddr := common.BytesToAddress(addr.Bytes())
	args := sc.Memory.getCopy(inOffset.Uint64(), inSize.Uint64())

	gas := callGasBudget(sc.Contract.Gas, requestedGas.Uint64())
	sc.Contract.useGas(gas) // always succeeds: callGasBudget never exceeds Contract.Gas
	if kind == callKindCall && value.Sign() != 0 {
		gas += fixedgasCallStipend // stipend is extra gas for the callee, not charged to the caller
	}

	var (
		ret     []byte
		gasLeft uint64
		err     error
	)
	switch kind {
	case callKindCall:
		ret, gasLeft, err = evm.call(sc.Contract.self, toAddr, args, gas, &value, false, false)
	case callKindCallCode:
		ret, gasLeft, err = evm.callCode(sc.Contract, toAddr, args, gas, &value)
	case callKindDelegateCall:
		ret, gasLeft, err = evm.delegateCall(sc.Contract, toAddr, args, gas)
	case callKindStaticCall:
		ret, gasLeft, err = evm.StaticCall(sc.Contract.self, toAddr, args, gas)
	}
	sc.Contract.Gas += gasLeft
	in.returnData = ret

	if err != nil {
		stack.push(new(uint256.Int))
	} else {
		stack.push(new(uint256.Int).SetOne())
	}
	if err == nil || err == ErrExecutionReverted {
		retSize := outSize.Uint64()
		if retSize > uint64(len(ret)) {
			retSize = uint64(len(ret))
		}
		sc.Memory.set(outOffset.Uint64(), retSize, ret[:retSize])
	}
	return nil, nil
}

// callCode runs addr's code but keeps the caller's own address as the
// execution context (storage, balance, self) — only code is borrowed.
func (evm *EVM) callCode(caller *Contract, addr common.Address, input []byte, gas uint64, value *uint256.Int) ([]byte, uint64, error) {
	if evm.depth > maxCallDepth {
		return nil, gas, ErrDepth
	}
	if value.Sign() != 0 && evm.StateDB.GetBalance(caller.self).Cmp(value) < 0 {
		return nil, gas, ErrInsufficientBalance
	}
	snapshot := evm.StateDB.Snapshot()
	code := evm.StateDB.GetCode(addr)
	contract := newContract(caller.self, caller.self, value, gas, code, evm.StateDB.GetCodeHash(addr))
	evm.depth++
	in := newInterpreter(evm)
	ret, err := in.run(contract, input, false)
	evm.depth--
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			contract.Gas = 0
		}
	}
	return ret, contract.Gas, err
}

// delegateCall runs addr's code in the caller frame's context entirely:
// self, caller and value are all inherited unchanged (no transfer).
func (evm *EVM) delegateCall(caller *Contract, addr common.Address, input []byte, gas uint64) ([]byte, uint64, error) {
	if evm.depth > maxCallDepth {
		return nil, gas, ErrDepth
	}
	snapshot := evm.StateDB.Snapshot()
	code := evm.StateDB.GetCode(addr)
	contract := newContract(caller.caller, caller.self, caller.value, gas, code, evm.StateDB.GetCodeHash(addr))
	contract.IsDelegateCall = true
	evm.depth++
	in := newInterpreter(evm)
	ret, err := in.run(contract, input, false)
	evm.depth--
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			contract.Gas = 0
		}
	}
	return ret, contract.Gas, err
}

// callGasBudget implements the 63/64 rule of spec §4.C: a call may
// request at most available - available/64 gas, and a request above
// that (or CALL's "all gas" idiom of passing more than is left) is
// silently capped rather than rejected.
func callGasBudget(available, requested uint64) uint64 {
	capGas := available - available/64
	if requested > capGas {
		return capGas
	}
	return requested
}

const fixedgasCallStipend = 2300

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
