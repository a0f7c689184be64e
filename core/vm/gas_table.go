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
	"github.com/fenwicklabs/execution-core/erigon-lib/common/fixedgas"
)

// --- memorySize funcs: bytes of memory an opcode's arguments require ---

func calcMemSize(offset, size *uint256.Int) (uint64, bool) {
	if size.IsZero() {
		return 0, false
	}
	if !offset.IsUint64() || !size.IsUint64() {
		return 0, true
	}
	end := new(uint256.Int).Add(offset, size)
	if !end.IsUint64() {
		return 0, true
	}
	return end.Uint64(), false
}

// constSize is a reusable uint256 for opcodes with a fixed-width memory
// window (MLOAD/MSTORE/MSTORE8) rather than a (offset,size) stack pair.
func constSize(n uint64) *uint256.Int { return uint256.NewInt(n) }

func memoryMload(stack *Stack) (uint64, bool)   { return calcMemSize(stack.back(0), constSize(32)) }
func memoryMstore(stack *Stack) (uint64, bool)  { return calcMemSize(stack.back(0), constSize(32)) }
func memoryMstore8(stack *Stack) (uint64, bool) { return calcMemSize(stack.back(0), constSize(1)) }

func memoryReturn(stack *Stack) (uint64, bool)         { return calcMemSize(stack.back(0), stack.back(1)) }
func memoryKeccak256(stack *Stack) (uint64, bool)      { return calcMemSize(stack.back(0), stack.back(1)) }
func memoryCallDataCopy(stack *Stack) (uint64, bool)   { return calcMemSize(stack.back(0), stack.back(2)) }
func memoryCodeCopy(stack *Stack) (uint64, bool)       { return calcMemSize(stack.back(0), stack.back(2)) }
func memoryReturnDataCopy(stack *Stack) (uint64, bool) { return calcMemSize(stack.back(0), stack.back(2)) }
func memoryExtCodeCopy(stack *Stack) (uint64, bool)    { return calcMemSize(stack.back(1), stack.back(3)) }
func memoryLog(stack *Stack) (uint64, bool) { return calcMemSize(stack.back(0), stack.back(1)) }

// memoryMcopy (EIP-5656) touches both the destination and source windows;
// the required size is the larger of the two ranges.
func memoryMcopy(stack *Stack) (uint64, bool) {
	length := stack.back(2)
	dst, overflow := calcMemSize(stack.back(0), length)
	if overflow {
		return 0, true
	}
	src, overflow := calcMemSize(stack.back(1), length)
	if overflow {
		return 0, true
	}
	if src > dst {
		return src, false
	}
	return dst, false
}

func memoryCreate(stack *Stack) (uint64, bool)  { return calcMemSize(stack.back(1), stack.back(2)) }
func memoryCreate2(stack *Stack) (uint64, bool) { return calcMemSize(stack.back(1), stack.back(2)) }

func memoryCall(stack *Stack) (uint64, bool) {
	in, _ := calcMemSize(stack.back(3), stack.back(4))
	out, _ := calcMemSize(stack.back(5), stack.back(6))
	if out > in {
		return out, false
	}
	return in, false
}

func memoryDelegateCall(stack *Stack) (uint64, bool) {
	in, _ := calcMemSize(stack.back(2), stack.back(3))
	out, _ := calcMemSize(stack.back(4), stack.back(5))
	if out > in {
		return out, false
	}
	return in, false
}

var memoryStaticCall = memoryDelegateCall

// --- dynamicGas funcs ---

func gasExp(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	exponent := stack.back(1)
	byteLen := (exponent.BitLen() + 7) / 8
	return uint64(byteLen) * ExpByteGasEIP158, nil
}

func gasKeccak256(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	size := stack.back(1)
	words := toWordSize(size.Uint64())
	return words * Keccak256WordGas, nil
}

func copyGasCost(size *uint256.Int) uint64 {
	return toWordSize(size.Uint64()) * CopyGas
}

func gasCallDataCopy(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return copyGasCost(stack.back(2)), nil
}

func gasCodeCopy(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return copyGasCost(stack.back(2)), nil
}

func gasReturnDataCopy(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return copyGasCost(stack.back(2)), nil
}

func gasMload(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return 0, nil
}
func gasMstore(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return 0, nil
}
func gasMstore8(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return 0, nil
}
func gasMcopy(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return copyGasCost(stack.back(2)), nil
}
func gasReturn(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return 0, nil
}

func makeGasLog(n int) dynamicGasFunc {
	return func(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		size := stack.back(1)
		return uint64(n)*LogTopicGas + size.Uint64()*LogDataGas, nil
	}
}

// accessAddressGas charges EIP-2929 cold/warm cost for touching addr,
// warming it for the remainder of the transaction on the first touch.
func accessAddressGas(in *interpreter, addr common.Address) uint64 {
	if !in.evm.rules.IsBerlin {
		return 0
	}
	if in.evm.StateDB.AddressInAccessList(addr) {
		return fixedgas.WarmStorageReadCostEIP2929
	}
	in.evm.StateDB.AddAddressToAccessList(addr)
	return fixedgas.ColdAccountAccessCostEIP2929
}

func gasBalance(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	addr := common.BytesToAddress(stack.back(0).Bytes())
	return accessAddressGas(in, addr), nil
}

func gasExtCodeSize(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	addr := common.BytesToAddress(stack.back(0).Bytes())
	return accessAddressGas(in, addr), nil
}

func gasExtCodeHash(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	addr := common.BytesToAddress(stack.back(0).Bytes())
	return accessAddressGas(in, addr), nil
}

func gasExtCodeCopy(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	addr := common.BytesToAddress(stack.back(0).Bytes())
	return accessAddressGas(in, addr) + copyGasCost(stack.back(3)), nil
}

// gasSload implements the cold/warm SLOAD split (EIP-2929) that replaced
// the flat pre-Berlin SLOAD cost.
func gasSload(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	loc := stack.back(0)
	hash := common.Hash(loc.Bytes32())
	if !in.evm.rules.IsBerlin {
		return fixedgas.ColdSloadCostEIP2929, nil
	}
	if _, warm := in.evm.StateDB.SlotInAccessList(c.self, hash); warm {
		return fixedgas.WarmStorageReadCostEIP2929, nil
	}
	in.evm.StateDB.AddSlotToAccessList(c.self, hash)
	return fixedgas.ColdSloadCostEIP2929, nil
}

// gasSstore implements the EIP-2200/3529 SSTORE cost-and-refund schedule:
// cost depends on the transition between the slot's original, current and
// new values; refunds are booked here and capped later at the transaction
// level (MaxRefundQuotient applied in the gas-accounting step).
func gasSstore(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	if c.Gas <= fixedgas.SstoreSentryGasEIP2200 {
		return 0, ErrOutOfGas
	}
	loc, newVal := stack.back(0), stack.back(1)
	hash := common.Hash(loc.Bytes32())

	var cost uint64
	_, slotWarm := in.evm.StateDB.SlotInAccessList(c.self, hash)
	if in.evm.rules.IsBerlin && !slotWarm {
		cost = fixedgas.ColdSloadCostEIP2929
		in.evm.StateDB.AddSlotToAccessList(c.self, hash)
	}

	current := in.evm.StateDB.GetState(c.self, hash)
	original := in.evm.StateDB.GetCommittedState(c.self, hash)

	// EIP-2929: from Berlin the cold surcharge above is part of the reset
	// price, so the reset base is 5000-2100.
	resetGas := uint64(fixedgas.SstoreResetGasEIP2200)
	if in.evm.rules.IsBerlin {
		resetGas -= fixedgas.ColdSloadCostEIP2929
	}

	if current.Eq(newVal) {
		return cost + fixedgas.WarmStorageReadCostEIP2929, nil
	}
	if original.Eq(&current) {
		if original.IsZero() {
			return cost + fixedgas.SstoreSetGasEIP2200, nil
		}
		if newVal.IsZero() {
			in.evm.StateDB.AddRefund(fixedgas.SstoreClearsScheduleRefundEIP3529)
		}
		return cost + resetGas, nil
	}

	// Dirty slot, already written once this transaction: a further write
	// is always the warm-read price; refunds adjust for the net effect
	// relative to the original value.
	if !original.IsZero() {
		if current.IsZero() {
			in.evm.StateDB.SubRefund(fixedgas.SstoreClearsScheduleRefundEIP3529)
		} else if newVal.IsZero() {
			in.evm.StateDB.AddRefund(fixedgas.SstoreClearsScheduleRefundEIP3529)
		}
	}
	if original.Eq(newVal) {
		if original.IsZero() {
			in.evm.StateDB.AddRefund(fixedgas.SstoreSetGasEIP2200 - fixedgas.WarmStorageReadCostEIP2929)
		} else {
			in.evm.StateDB.AddRefund(resetGas - fixedgas.WarmStorageReadCostEIP2929)
		}
	}
	return cost + fixedgas.WarmStorageReadCostEIP2929, nil
}

func gasCreate(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	size := stack.back(2)
	return toWordSize(size.Uint64()) * InitCodeWordGas, nil
}

func gasCreate2(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	size := stack.back(2)
	words := toWordSize(size.Uint64())
	return words*Keccak256WordGas + words*InitCodeWordGas, nil
}

func gasSelfdestruct(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	beneficiary := common.BytesToAddress(stack.back(0).Bytes())
	var cost uint64
	if in.evm.rules.IsBerlin && !in.evm.StateDB.AddressInAccessList(beneficiary) {
		in.evm.StateDB.AddAddressToAccessList(beneficiary)
		cost = fixedgas.ColdAccountAccessCostEIP2929
	}
	if !in.evm.StateDB.Empty(beneficiary) || in.evm.StateDB.GetBalance(c.self).IsZero() {
		return cost, nil
	}
	// Creates an account to receive the balance: EIP-150 new-account surcharge.
	return cost + 25000, nil
}

// callValueTransferGas charges the new-account surcharge (25000) for a
// value-carrying call to an address with no prior existence, in addition
// to the cold/warm access cost every call family member pays. The 2300
// stipend itself is added to the callee's budget at dispatch time in
// EVM.doCall, not charged here.
func callValueTransferGas(in *interpreter, addr common.Address, value *uint256.Int, isCall bool) uint64 {
	cost := accessAddressGas(in, addr)
	if isCall && !value.IsZero() && !in.evm.StateDB.Exist(addr) {
		cost += 25000
	}
	return cost
}

func gasCall(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	addr := common.BytesToAddress(stack.back(1).Bytes())
	value := stack.back(2)
	return callValueTransferGas(in, addr, value, true), nil
}

func gasCallCode(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	addr := common.BytesToAddress(stack.back(1).Bytes())
	return accessAddressGas(in, addr), nil
}

func gasDelegateCall(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	addr := common.BytesToAddress(stack.back(1).Bytes())
	return accessAddressGas(in, addr), nil
}

func gasStaticCall(in *interpreter, c *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	addr := common.BytesToAddress(stack.back(1).Bytes())
	return accessAddressGas(in, addr), nil
}
