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
	"github.com/fenwicklabs/execution-core/core/types"
)

// StateDB is the subset of core/state.IntraBlockState the interpreter and
// EVM call dispatcher need. Decoupling through an interface, rather than
// importing the concrete type, keeps the vm package usable against any
// journaled cache with the same shape (e.g. a read-only view during
// gas-estimation).
type StateDB interface {
	CreateAccount(common.Address)

	Exist(common.Address) bool
	Empty(common.Address) bool

	GetBalance(common.Address) *uint256.Int
	AddBalance(common.Address, *uint256.Int)
	SubBalance(common.Address, *uint256.Int)

	GetNonce(common.Address) uint64
	SetNonce(common.Address, uint64)

	GetCodeHash(common.Address) common.Hash
	GetCode(common.Address) []byte
	GetCodeSize(common.Address) int
	SetCode(common.Address, []byte)

	GetState(common.Address, common.Hash) uint256.Int
	GetCommittedState(common.Address, common.Hash) uint256.Int
	SetState(common.Address, common.Hash, uint256.Int)

	GetTransientState(common.Address, common.Hash) common.Hash
	SetTransientState(common.Address, common.Hash, common.Hash)

	SelfDestruct(common.Address)
	HasSelfDestructed(common.Address) bool

	AddRefund(uint64)
	SubRefund(uint64)
	GetRefund() uint64

	AddressInAccessList(common.Address) bool
	SlotInAccessList(common.Address, common.Hash) (bool, bool)
	AddAddressToAccessList(common.Address)
	AddSlotToAccessList(common.Address, common.Hash)

	Snapshot() int
	RevertToSnapshot(int)

	AddLog(*types.Log)
}

// BlockContext carries the block-wide values every call frame reads but
// none may change, resolved once per block (spec §9 "explicit
// NodeContext, no globals").
type BlockContext struct {
	Coinbase    common.Address
	GasLimit    uint64
	BlockNumber uint64
	Time        uint64
	Difficulty  *uint256.Int // 0 post-merge; PREVRANDAO is carried in Random
	Random      *common.Hash // non-nil post-merge
	BaseFee     *uint256.Int
	BlobBaseFee *uint256.Int

	GetHash func(blockNumber uint64) common.Hash
}

// TxContext carries the values fixed for the lifetime of one transaction.
type TxContext struct {
	Origin     common.Address
	GasPrice   *uint256.Int
	BlobHashes []common.Hash
}
