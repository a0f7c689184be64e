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

	"github.com/fenwicklabs/execution-core/erigon-lib/chain"
	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/core/types"
)

// mockStateDB is an in-memory StateDB good enough to drive the
// interpreter end to end without a real trie-backed store.
type mockStateDB struct {
	balance   map[common.Address]*uint256.Int
	nonce     map[common.Address]uint64
	code      map[common.Address][]byte
	storage   map[common.Address]map[common.Hash]uint256.Int
	transient map[common.Address]map[common.Hash]common.Hash
	destroyed map[common.Address]bool
	created   map[common.Address]bool
	refund    uint64
	accessAddr map[common.Address]bool
	accessSlot map[common.Address]map[common.Hash]bool
	logs      []*types.Log
}

func newMockStateDB() *mockStateDB {
	return &mockStateDB{
		balance:    make(map[common.Address]*uint256.Int),
		nonce:      make(map[common.Address]uint64),
		code:       make(map[common.Address][]byte),
		storage:    make(map[common.Address]map[common.Hash]uint256.Int),
		transient:  make(map[common.Address]map[common.Hash]common.Hash),
		destroyed:  make(map[common.Address]bool),
		created:    make(map[common.Address]bool),
		accessAddr: make(map[common.Address]bool),
		accessSlot: make(map[common.Address]map[common.Hash]bool),
	}
}

func (m *mockStateDB) CreateAccount(addr common.Address) { m.created[addr] = true }
func (m *mockStateDB) Exist(addr common.Address) bool     { return m.created[addr] || m.balance[addr] != nil }
func (m *mockStateDB) Empty(addr common.Address) bool {
	return m.nonce[addr] == 0 && m.GetBalance(addr).IsZero() && len(m.code[addr]) == 0
}

func (m *mockStateDB) GetBalance(addr common.Address) *uint256.Int {
	if b, ok := m.balance[addr]; ok {
		return b
	}
	return new(uint256.Int)
}
func (m *mockStateDB) AddBalance(addr common.Address, amount *uint256.Int) {
	m.balance[addr] = new(uint256.Int).Add(m.GetBalance(addr), amount)
}
func (m *mockStateDB) SubBalance(addr common.Address, amount *uint256.Int) {
	m.balance[addr] = new(uint256.Int).Sub(m.GetBalance(addr), amount)
}

func (m *mockStateDB) GetNonce(addr common.Address) uint64      { return m.nonce[addr] }
func (m *mockStateDB) SetNonce(addr common.Address, n uint64)   { m.nonce[addr] = n }

func (m *mockStateDB) GetCodeHash(addr common.Address) common.Hash { return common.Hash{} }
func (m *mockStateDB) GetCode(addr common.Address) []byte          { return m.code[addr] }
func (m *mockStateDB) GetCodeSize(addr common.Address) int         { return len(m.code[addr]) }
func (m *mockStateDB) SetCode(addr common.Address, code []byte)    { m.code[addr] = code }

func (m *mockStateDB) GetState(addr common.Address, key common.Hash) uint256.Int {
	if s, ok := m.storage[addr]; ok {
		return s[key]
	}
	return uint256.Int{}
}
func (m *mockStateDB) GetCommittedState(addr common.Address, key common.Hash) uint256.Int {
	return m.GetState(addr, key)
}
func (m *mockStateDB) SetState(addr common.Address, key common.Hash, value uint256.Int) {
	if m.storage[addr] == nil {
		m.storage[addr] = make(map[common.Hash]uint256.Int)
	}
	m.storage[addr][key] = value
}

func (m *mockStateDB) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	if s, ok := m.transient[addr]; ok {
		return s[key]
	}
	return common.Hash{}
}
func (m *mockStateDB) SetTransientState(addr common.Address, key common.Hash, value common.Hash) {
	if m.transient[addr] == nil {
		m.transient[addr] = make(map[common.Hash]common.Hash)
	}
	m.transient[addr][key] = value
}

func (m *mockStateDB) SelfDestruct(addr common.Address)         { m.destroyed[addr] = true }
func (m *mockStateDB) HasSelfDestructed(addr common.Address) bool { return m.destroyed[addr] }

func (m *mockStateDB) AddRefund(g uint64) { m.refund += g }
func (m *mockStateDB) SubRefund(g uint64) { m.refund -= g }
func (m *mockStateDB) GetRefund() uint64  { return m.refund }

func (m *mockStateDB) AddressInAccessList(addr common.Address) bool { return m.accessAddr[addr] }
func (m *mockStateDB) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	addrWarm := m.accessAddr[addr]
	slotWarm := m.accessSlot[addr] != nil && m.accessSlot[addr][slot]
	return addrWarm, slotWarm
}
func (m *mockStateDB) AddAddressToAccessList(addr common.Address) { m.accessAddr[addr] = true }
func (m *mockStateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	if m.accessSlot[addr] == nil {
		m.accessSlot[addr] = make(map[common.Hash]bool)
	}
	m.accessSlot[addr][slot] = true
}

func (m *mockStateDB) Snapshot() int      { return 0 }
func (m *mockStateDB) RevertToSnapshot(int) {}

func (m *mockStateDB) AddLog(l *types.Log) { m.logs = append(m.logs, l) }

func newTestEVM(db *mockStateDB) *EVM {
	return NewEVM(BlockContext{GasLimit: 30_000_000}, TxContext{}, db, chain.TestChainConfig())
}

// TestCallReturnsPushedValue runs PUSH1 0x2a, PUSH1 0x00, MSTORE, PUSH1 0x20,
// PUSH1 0x00, RETURN -- a minimal contract that returns the 32-byte value 42.
func TestCallReturnsPushedValue(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x2a,
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	db := newMockStateDB()
	addr := common.Address{0x01}
	db.SetCode(addr, code)

	evm := newTestEVM(db)
	ret, _, err := evm.Call(common.Address{0x02}, addr, nil, 100000, new(uint256.Int))
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if len(ret) != 32 || ret[31] != 0x2a {
		t.Fatalf("return = %x, want 32-byte 0x2a", ret)
	}
}

// TestSstoreThenSloadRoundTrips checks a simple storage write followed by a
// read of the same slot within one call frame.
func TestSstoreThenSloadRoundTrips(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x07, // value
		byte(PUSH1), 0x00, // key
		byte(SSTORE),
		byte(PUSH1), 0x00, // key
		byte(SLOAD),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	db := newMockStateDB()
	addr := common.Address{0x01}
	db.SetCode(addr, code)

	evm := newTestEVM(db)
	ret, _, err := evm.Call(common.Address{0x02}, addr, nil, 100000, new(uint256.Int))
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if ret[31] != 7 {
		t.Fatalf("round-tripped storage value = %d, want 7", ret[31])
	}
}

// TestStackOverflowHalts pushes past the 1024-deep limit and expects the
// interpreter to halt with ErrStackOverflow rather than run unbounded.
func TestStackOverflowHalts(t *testing.T) {
	code := make([]byte, 0, (stackLimit+2)*2)
	for i := 0; i < stackLimit+2; i++ {
		code = append(code, byte(PUSH1), 0x01)
	}
	db := newMockStateDB()
	addr := common.Address{0x01}
	db.SetCode(addr, code)

	evm := newTestEVM(db)
	_, _, err := evm.Call(common.Address{0x02}, addr, nil, 10_000_000, new(uint256.Int))
	if err == nil {
		t.Fatal("expected an error from exceeding the stack limit")
	}
}

// TestInvalidJumpDestReverts checks that JUMP to a non-JUMPDEST byte fails
// rather than silently continuing execution from an arbitrary offset.
func TestInvalidJumpDestReverts(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x05, // jump target, but position 5 is not a JUMPDEST
		byte(JUMP),
		byte(STOP),
		byte(STOP),
		byte(ADD), // position 5
	}
	db := newMockStateDB()
	addr := common.Address{0x01}
	db.SetCode(addr, code)

	evm := newTestEVM(db)
	_, _, err := evm.Call(common.Address{0x02}, addr, nil, 100000, new(uint256.Int))
	if err == nil {
		t.Fatal("expected an invalid-jump-destination error")
	}
}
