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
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
	"github.com/fenwicklabs/execution-core/core/types"
)

// --- arithmetic ---

func opStop(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) { return nil, nil }

func opAdd(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	y.Add(&x, y)
	return nil, nil
}

func opMul(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	y.Mul(&x, y)
	return nil, nil
}

func opSub(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	y.Sub(&x, y)
	return nil, nil
}

func opDiv(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	y.Div(&x, y)
	return nil, nil
}

func opSdiv(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	y.SDiv(&x, y)
	return nil, nil
}

func opMod(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	y.Mod(&x, y)
	return nil, nil
}

func opSmod(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	y.SMod(&x, y)
	return nil, nil
}

func opAddmod(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y, z := sc.Stack.pop(), sc.Stack.pop(), sc.Stack.peek()
	z.AddMod(&x, &y, z)
	return nil, nil
}

func opMulmod(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y, z := sc.Stack.pop(), sc.Stack.pop(), sc.Stack.peek()
	z.MulMod(&x, &y, z)
	return nil, nil
}

func opExp(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	base, exponent := sc.Stack.pop(), sc.Stack.peek()
	exponent.Exp(&base, exponent)
	return nil, nil
}

func opSignExtend(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	back, num := sc.Stack.pop(), sc.Stack.peek()
	num.ExtendSign(num, &back)
	return nil, nil
}

// --- comparison / bitwise ---

func opLt(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	if x.Lt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opGt(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	if x.Gt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opSlt(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	if x.Slt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opSgt(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	if x.Sgt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opEq(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	if x.Eq(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opIszero(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x := sc.Stack.peek()
	if x.IsZero() {
		x.SetOne()
	} else {
		x.Clear()
	}
	return nil, nil
}

func opAnd(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	y.And(&x, y)
	return nil, nil
}

func opOr(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	y.Or(&x, y)
	return nil, nil
}

func opXor(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x, y := sc.Stack.pop(), sc.Stack.peek()
	y.Xor(&x, y)
	return nil, nil
}

func opNot(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x := sc.Stack.peek()
	x.Not(x)
	return nil, nil
}

func opByte(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	th, val := sc.Stack.pop(), sc.Stack.peek()
	val.Byte(&th)
	return nil, nil
}

func opShl(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	shift, value := sc.Stack.pop(), sc.Stack.peek()
	if shift.LtUint64(256) {
		value.Lsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}
	return nil, nil
}

func opShr(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	shift, value := sc.Stack.pop(), sc.Stack.peek()
	if shift.LtUint64(256) {
		value.Rsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}
	return nil, nil
}

func opSar(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	shift, value := sc.Stack.pop(), sc.Stack.peek()
	if shift.GtUint64(256) {
		if value.Sign() >= 0 {
			value.Clear()
		} else {
			value.SetAllOne()
		}
		return nil, nil
	}
	value.SRsh(value, uint(shift.Uint64()))
	return nil, nil
}

// --- keccak ---

func opKeccak256(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	offset, size := sc.Stack.pop(), sc.Stack.peek()
	data := sc.Memory.getPtr(offset.Uint64(), size.Uint64())
	hash := crypto.Keccak256(data)
	size.SetBytes(hash)
	return nil, nil
}

// --- environment ---

func opAddress(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetBytes(sc.Contract.self.Bytes()))
	return nil, nil
}

func opBalance(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	addr := sc.Stack.peek()
	address := common.BytesToAddress(addr.Bytes())
	addr.Set(in.evm.StateDB.GetBalance(address))
	return nil, nil
}

func opOrigin(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetBytes(in.evm.TxContext.Origin.Bytes()))
	return nil, nil
}

func opCaller(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetBytes(sc.Contract.caller.Bytes()))
	return nil, nil
}

func opCallValue(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).Set(sc.Contract.value))
	return nil, nil
}

func opCallDataLoad(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	x := sc.Stack.peek()
	if offset, overflow := x.Uint64WithOverflow(); !overflow {
		data := getData(sc.Contract.input, offset, 32)
		x.SetBytes(data)
	} else {
		x.Clear()
	}
	return nil, nil
}

func opCallDataSize(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetUint64(uint64(len(sc.Contract.input))))
	return nil, nil
}

func opCallDataCopy(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	memOffset, dataOffset, length := sc.Stack.pop(), sc.Stack.pop(), sc.Stack.pop()
	dataOff, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		dataOff = ^uint64(0)
	}
	data := getData(sc.Contract.input, dataOff, length.Uint64())
	sc.Memory.set(memOffset.Uint64(), length.Uint64(), data)
	return nil, nil
}

func opCodeSize(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetUint64(uint64(len(sc.Contract.code))))
	return nil, nil
}

func opCodeCopy(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	memOffset, codeOffset, length := sc.Stack.pop(), sc.Stack.pop(), sc.Stack.pop()
	codeOff, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		codeOff = ^uint64(0)
	}
	data := getData(sc.Contract.code, codeOff, length.Uint64())
	sc.Memory.set(memOffset.Uint64(), length.Uint64(), data)
	return nil, nil
}

func opGasprice(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).Set(in.evm.TxContext.GasPrice))
	return nil, nil
}

func opExtCodeSize(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	slot := sc.Stack.peek()
	address := common.BytesToAddress(slot.Bytes())
	slot.SetUint64(uint64(in.evm.StateDB.GetCodeSize(address)))
	return nil, nil
}

func opExtCodeCopy(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	addr := sc.Stack.pop()
	memOffset, codeOffset, length := sc.Stack.pop(), sc.Stack.pop(), sc.Stack.pop()
	address := common.BytesToAddress(addr.Bytes())
	code := in.evm.StateDB.GetCode(address)
	codeOff, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		codeOff = ^uint64(0)
	}
	data := getData(code, codeOff, length.Uint64())
	sc.Memory.set(memOffset.Uint64(), length.Uint64(), data)
	return nil, nil
}

func opReturnDataSize(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetUint64(uint64(len(in.returnData))))
	return nil, nil
}

func opReturnDataCopy(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	memOffset, dataOffset, length := sc.Stack.pop(), sc.Stack.pop(), sc.Stack.pop()
	offset64, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		return nil, ErrReturnDataOutOfBounds
	}
	end := new(uint256.Int).Add(&dataOffset, &length)
	end64, overflow := end.Uint64WithOverflow()
	if overflow || uint64(len(in.returnData)) < end64 {
		return nil, ErrReturnDataOutOfBounds
	}
	sc.Memory.set(memOffset.Uint64(), length.Uint64(), in.returnData[offset64:end64])
	return nil, nil
}

func opExtCodeHash(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	slot := sc.Stack.peek()
	address := common.BytesToAddress(slot.Bytes())
	if !in.evm.StateDB.Exist(address) || in.evm.StateDB.Empty(address) {
		slot.Clear()
		return nil, nil
	}
	slot.SetBytes(in.evm.StateDB.GetCodeHash(address).Bytes())
	return nil, nil
}

// --- block context ---

func opBlockhash(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	num := sc.Stack.peek()
	if !num.IsUint64() {
		num.Clear()
		return nil, nil
	}
	n := num.Uint64()
	if in.evm.BlockContext.GetHash == nil || n >= in.evm.BlockContext.BlockNumber || n+256 < in.evm.BlockContext.BlockNumber {
		num.Clear()
		return nil, nil
	}
	num.SetBytes(in.evm.BlockContext.GetHash(n).Bytes())
	return nil, nil
}

func opCoinbase(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetBytes(in.evm.BlockContext.Coinbase.Bytes()))
	return nil, nil
}

func opTimestamp(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetUint64(in.evm.BlockContext.Time))
	return nil, nil
}

func opNumber(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetUint64(in.evm.BlockContext.BlockNumber))
	return nil, nil
}

func opDifficulty(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	if in.evm.BlockContext.Random != nil {
		sc.Stack.push(new(uint256.Int).SetBytes(in.evm.BlockContext.Random.Bytes()))
		return nil, nil
	}
	sc.Stack.push(new(uint256.Int).Set(in.evm.BlockContext.Difficulty))
	return nil, nil
}

func opGasLimit(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetUint64(in.evm.BlockContext.GasLimit))
	return nil, nil
}

func opChainID(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).Set(in.evm.chainID))
	return nil, nil
}

func opSelfBalance(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(in.evm.StateDB.GetBalance(sc.Contract.self))
	return nil, nil
}

func opBaseFee(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).Set(in.evm.BlockContext.BaseFee))
	return nil, nil
}

func opBlobHash(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	idx := sc.Stack.peek()
	if idx.IsUint64() && idx.Uint64() < uint64(len(in.evm.TxContext.BlobHashes)) {
		idx.SetBytes(in.evm.TxContext.BlobHashes[idx.Uint64()].Bytes())
	} else {
		idx.Clear()
	}
	return nil, nil
}

func opBlobBaseFee(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).Set(in.evm.BlockContext.BlobBaseFee))
	return nil, nil
}

// --- memory / storage / flow ---

func opPop(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.pop()
	return nil, nil
}

func opMload(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	v := sc.Stack.peek()
	offset := v.Uint64()
	v.SetBytes(sc.Memory.getPtr(offset, 32))
	return nil, nil
}

func opMstore(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	offset, val := sc.Stack.pop(), sc.Stack.pop()
	sc.Memory.set32(offset.Uint64(), &val)
	return nil, nil
}

func opMstore8(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	offset, val := sc.Stack.pop(), sc.Stack.pop()
	sc.Memory.store[offset.Uint64()] = byte(val.Uint64())
	return nil, nil
}

func opMcopy(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	dst, src, length := sc.Stack.pop(), sc.Stack.pop(), sc.Stack.pop()
	data := sc.Memory.getCopy(src.Uint64(), length.Uint64())
	sc.Memory.set(dst.Uint64(), length.Uint64(), data)
	return nil, nil
}

func opSload(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	loc := sc.Stack.peek()
	hash := common.Hash(loc.Bytes32())
	val := in.evm.StateDB.GetState(sc.Contract.self, hash)
	loc.Set(&val)
	return nil, nil
}

func opSstore(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	loc, val := sc.Stack.pop(), sc.Stack.pop()
	hash := common.Hash(loc.Bytes32())
	in.evm.StateDB.SetState(sc.Contract.self, hash, val)
	return nil, nil
}

func opTload(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	loc := sc.Stack.peek()
	hash := common.Hash(loc.Bytes32())
	val := in.evm.StateDB.GetTransientState(sc.Contract.self, hash)
	loc.SetBytes(val.Bytes())
	return nil, nil
}

func opTstore(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	loc, val := sc.Stack.pop(), sc.Stack.pop()
	locHash := common.Hash(loc.Bytes32())
	valHash := common.Hash(val.Bytes32())
	in.evm.StateDB.SetTransientState(sc.Contract.self, locHash, valHash)
	return nil, nil
}

func opJump(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	dest := sc.Stack.pop()
	if !sc.Contract.validJumpdest(&dest) {
		return nil, ErrInvalidJump
	}
	*pc = dest.Uint64() - 1 // interpreter increments pc after execute returns
	return nil, nil
}

func opJumpi(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	dest, cond := sc.Stack.pop(), sc.Stack.pop()
	if cond.IsZero() {
		return nil, nil
	}
	if !sc.Contract.validJumpdest(&dest) {
		return nil, ErrInvalidJump
	}
	*pc = dest.Uint64() - 1
	return nil, nil
}

func opPc(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetUint64(*pc))
	return nil, nil
}

func opMsize(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetUint64(uint64(sc.Memory.len())))
	return nil, nil
}

func opGas(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int).SetUint64(sc.Contract.Gas))
	return nil, nil
}

func opJumpdest(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) { return nil, nil }

func opPush0(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	sc.Stack.push(new(uint256.Int))
	return nil, nil
}

func makePush(size int) executionFunc {
	return func(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
		data := getData(sc.Contract.code, *pc+1, uint64(size))
		sc.Stack.push(new(uint256.Int).SetBytes(data))
		*pc += uint64(size)
		return nil, nil
	}
}

func makeDup(n int) executionFunc {
	return func(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
		sc.Stack.dup(n)
		return nil, nil
	}
}

func makeSwap(n int) executionFunc {
	return func(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
		sc.Stack.swap(n)
		return nil, nil
	}
}

func makeLog(n int) executionFunc {
	return func(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
		offset, size := sc.Stack.pop(), sc.Stack.pop()
		topics := make([]common.Hash, n)
		for i := 0; i < n; i++ {
			t := sc.Stack.pop()
			topics[i] = common.Hash(t.Bytes32())
		}
		data := sc.Memory.getCopy(offset.Uint64(), size.Uint64())
		in.evm.StateDB.AddLog(&types.Log{
			Address: sc.Contract.self,
			Topics:  topics,
			Data:    data,
		})
		return nil, nil
	}
}

// --- halting ---

func opReturn(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	offset, size := sc.Stack.pop(), sc.Stack.pop()
	return sc.Memory.getCopy(offset.Uint64(), size.Uint64()), nil
}

func opRevert(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	offset, size := sc.Stack.pop(), sc.Stack.pop()
	ret := sc.Memory.getCopy(offset.Uint64(), size.Uint64())
	return ret, ErrExecutionReverted
}

func opInvalid(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	return nil, ErrInvalidOpCode
}

func opSelfdestruct(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	beneficiary := sc.Stack.pop()
	balance := in.evm.StateDB.GetBalance(sc.Contract.self)
	in.evm.StateDB.AddBalance(common.BytesToAddress(beneficiary.Bytes()), balance)
	in.evm.StateDB.SelfDestruct(sc.Contract.self)
	return nil, nil
}

// --- calls / creates: implemented in evm.go, wired here ---

func opCreate(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	return in.evm.doCreate(in, sc, false)
}

func opCreate2(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	return in.evm.doCreate(in, sc, true)
}

func opCall(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	return in.evm.doCall(in, sc, callKindCall)
}

func opCallCode(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	return in.evm.doCall(in, sc, callKindCallCode)
}

func opDelegateCall(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	return in.evm.doCall(in, sc, callKindDelegateCall)
}

func opStaticCall(pc *uint64, in *interpreter, sc *scopeContext) ([]byte, error) {
	return in.evm.doCall(in, sc, callKindStaticCall)
}

// getData returns a len-byte, right-zero-padded window of data starting
// at offset, tolerating offset/offset+len beyond len(data) (the EVM reads
// code/calldata past their end as implicit zero bytes).
func getData(data []byte, offset, length uint64) []byte {
	out := make([]byte, length)
	if offset >= uint64(len(data)) {
		return out
	}
	end := offset + length
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	copy(out, data[offset:end])
	return out
}
