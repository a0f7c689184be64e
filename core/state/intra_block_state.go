// Copyright 2014 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package state implements the per-block journaled state cache (spec §3
// "State cache") that sits in front of the persistent store during
// transaction execution: every account and storage read is serviced from
// here first, every write is recorded both in the cache and in an undo
// journal so a failed call (or an entire reverted transaction) can be
// unwound without touching the underlying store.
package state

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
	"github.com/fenwicklabs/execution-core/core/types"
)

// IntraBlockState is the read/write cache the EVM interpreter and
// transaction executor operate against. One instance lives for the
// duration of a block; Finalise drains it into a StateWriter.
type IntraBlockState struct {
	reader StateReader

	stateObjects map[common.Address]*stateObject
	journal      *journal

	refund uint64

	accessList        *accessList
	transientStorage  map[common.Address]map[common.Hash]common.Hash

	logs    []*types.Log
	logSize uint

	nextRevisionID int
	validRevisions []revision
}

type revision struct {
	id           int
	journalIndex int
}

func New(reader StateReader) *IntraBlockState {
	return &IntraBlockState{
		reader:           reader,
		stateObjects:     make(map[common.Address]*stateObject),
		journal:          newJournal(),
		accessList:       newAccessList(),
		transientStorage: make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// --- snapshotting ---

func (s *IntraBlockState) Snapshot() int {
	id := s.nextRevisionID
	s.nextRevisionID++
	s.validRevisions = append(s.validRevisions, revision{id, s.journal.length()})
	return id
}

func (s *IntraBlockState) RevertToSnapshot(revid int) {
	idx := sort.Search(len(s.validRevisions), func(i int) bool {
		return s.validRevisions[i].id >= revid
	})
	if idx == len(s.validRevisions) || s.validRevisions[idx].id != revid {
		panic("state: revision id not found")
	}
	snapshot := s.validRevisions[idx].journalIndex
	s.journal.revertTo(snapshot, s)
	s.validRevisions = s.validRevisions[:idx]
}

// --- object lookup ---

func (s *IntraBlockState) getStateObject(addr common.Address) *stateObject {
	if obj, ok := s.stateObjects[addr]; ok {
		return obj
	}
	acc, err := s.reader.ReadAccountData(addr)
	if err != nil || acc == nil {
		return nil
	}
	obj := newStateObject(addr, *acc)
	s.stateObjects[addr] = obj
	return obj
}

func (s *IntraBlockState) getOrNewStateObject(addr common.Address) *stateObject {
	obj := s.getStateObject(addr)
	if obj == nil {
		obj = s.createObject(addr)
	}
	return obj
}

func (s *IntraBlockState) createObject(addr common.Address) *stateObject {
	obj := newStateObject(addr, *types.NewEmptyAccount())
	obj.newlyCreated = true
	s.stateObjects[addr] = obj
	s.journal.append(createObjectChange{account: &addr})
	return obj
}

// CreateAccount is invoked by CREATE/CREATE2: it establishes a fresh
// account, carrying over the prior balance if the address already held
// value (e.g. received ether before its contract was deployed).
func (s *IntraBlockState) CreateAccount(addr common.Address) {
	prev := s.getStateObject(addr)
	newObj := s.createObject(addr)
	if prev != nil {
		newObj.setBalance(prev.data.Balance)
	}
}

// --- balance/nonce/code ---

func (s *IntraBlockState) Exist(addr common.Address) bool {
	return s.getStateObject(addr) != nil
}

func (s *IntraBlockState) Empty(addr common.Address) bool {
	obj := s.getStateObject(addr)
	return obj == nil || obj.empty()
}

func (s *IntraBlockState) GetBalance(addr common.Address) *uint256.Int {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.data.Balance
	}
	return new(uint256.Int)
}

func (s *IntraBlockState) AddBalance(addr common.Address, amount *uint256.Int) {
	obj := s.getOrNewStateObject(addr)
	if amount.IsZero() {
		return
	}
	s.journal.append(balanceChange{account: &addr, prev: new(uint256.Int).Set(obj.data.Balance)})
	obj.setBalance(new(uint256.Int).Add(obj.data.Balance, amount))
}

func (s *IntraBlockState) SubBalance(addr common.Address, amount *uint256.Int) {
	obj := s.getOrNewStateObject(addr)
	if amount.IsZero() {
		return
	}
	s.journal.append(balanceChange{account: &addr, prev: new(uint256.Int).Set(obj.data.Balance)})
	obj.setBalance(new(uint256.Int).Sub(obj.data.Balance, amount))
}

func (s *IntraBlockState) GetNonce(addr common.Address) uint64 {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.data.Nonce
	}
	return 0
}

func (s *IntraBlockState) SetNonce(addr common.Address, nonce uint64) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(nonceChange{account: &addr, prev: obj.data.Nonce})
	obj.setNonce(nonce)
}

func (s *IntraBlockState) GetCodeHash(addr common.Address) common.Hash {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.data.CodeHash
	}
	return common.Hash{}
}

func (s *IntraBlockState) GetCode(addr common.Address) []byte {
	obj := s.getStateObject(addr)
	if obj == nil {
		return nil
	}
	if obj.code != nil {
		return obj.code
	}
	if obj.data.CodeHash == common.EmptyCodeHash {
		obj.code = []byte{}
		return obj.code
	}
	code, err := s.reader.ReadAccountCode(addr, obj.data.CodeHash)
	if err != nil {
		return nil
	}
	obj.code = code
	return code
}

func (s *IntraBlockState) GetCodeSize(addr common.Address) int {
	return len(s.GetCode(addr))
}

func (s *IntraBlockState) SetCode(addr common.Address, code []byte) {
	obj := s.getOrNewStateObject(addr)
	codeHash := crypto.Keccak256Hash(code)
	s.journal.append(codeChange{account: &addr, prevCode: obj.code, prevHash: obj.data.CodeHash[:]})
	obj.setCode(codeHash, code)
}

// --- storage ---

func (s *IntraBlockState) GetState(addr common.Address, key common.Hash) uint256.Int {
	obj := s.getStateObject(addr)
	if obj == nil {
		return uint256.Int{}
	}
	if v, ok := obj.dirtyStorage[key]; ok {
		return v
	}
	return s.getCommittedState(obj, key)
}

func (s *IntraBlockState) GetCommittedState(addr common.Address, key common.Hash) uint256.Int {
	obj := s.getStateObject(addr)
	if obj == nil {
		return uint256.Int{}
	}
	return s.getCommittedState(obj, key)
}

func (s *IntraBlockState) getCommittedState(obj *stateObject, key common.Hash) uint256.Int {
	if v, ok := obj.originStorage[key]; ok {
		return v
	}
	v, _, err := s.reader.ReadAccountStorage(obj.address, key)
	if err != nil {
		return uint256.Int{}
	}
	obj.originStorage[key] = v
	return v
}

func (s *IntraBlockState) SetState(addr common.Address, key common.Hash, value uint256.Int) {
	obj := s.getOrNewStateObject(addr)
	prev := s.GetState(addr, key)
	if prev == value {
		return
	}
	s.journal.append(storageChange{account: &addr, key: key, prevValue: prev})
	obj.setState(key, value)
}

// --- transient storage (EIP-1153) ---

func (s *IntraBlockState) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	return s.transientStorage[addr][key]
}

func (s *IntraBlockState) SetTransientState(addr common.Address, key, value common.Hash) {
	prev := s.GetTransientState(addr, key)
	if prev == value {
		return
	}
	s.journal.append(transientStorageChange{account: &addr, key: key, prevalue: prev})
	s.setTransientState(addr, key, value)
}

func (s *IntraBlockState) setTransientState(addr common.Address, key, value common.Hash) {
	m, ok := s.transientStorage[addr]
	if !ok {
		m = make(map[common.Hash]common.Hash)
		s.transientStorage[addr] = m
	}
	m[key] = value
}

// --- self-destruct ---

func (s *IntraBlockState) SelfDestruct(addr common.Address) {
	obj := s.getStateObject(addr)
	if obj == nil {
		return
	}
	s.journal.append(selfDestructChange{
		account:     &addr,
		prev:        obj.selfDestructed,
		prevBalance: new(uint256.Int).Set(obj.data.Balance),
	})
	obj.selfDestructed = true
	obj.setBalance(new(uint256.Int))
}

func (s *IntraBlockState) HasSelfDestructed(addr common.Address) bool {
	obj := s.getStateObject(addr)
	return obj != nil && obj.selfDestructed
}

// --- refund counter (EIP-3529 caps application elsewhere, in the gas
// accounting step of the transaction executor) ---

func (s *IntraBlockState) AddRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	s.refund += gas
}

func (s *IntraBlockState) SubRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	if gas > s.refund {
		panic("state: refund counter below zero")
	}
	s.refund -= gas
}

func (s *IntraBlockState) GetRefund() uint64 { return s.refund }

// --- access list (EIP-2929/2930) ---

func (s *IntraBlockState) AddressInAccessList(addr common.Address) bool {
	return s.accessList.containsAddress(addr)
}

func (s *IntraBlockState) SlotInAccessList(addr common.Address, slot common.Hash) (addressPresent, slotPresent bool) {
	return s.accessList.contains(addr, slot)
}

func (s *IntraBlockState) AddAddressToAccessList(addr common.Address) {
	if s.accessList.addAddress(addr) {
		s.journal.append(accessListAddAccountChange{address: &addr})
	}
}

func (s *IntraBlockState) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	addrAdded, slotAdded := s.accessList.addSlot(addr, slot)
	if addrAdded {
		s.journal.append(accessListAddAccountChange{address: &addr})
	}
	if slotAdded {
		s.journal.append(accessListAddSlotChange{address: &addr, slot: &slot})
	}
}

// Prepare resets the per-transaction access list and warms the
// transaction sender, recipient (if any) and the addresses from its
// access list, per EIP-2930/3651.
func (s *IntraBlockState) Prepare(sender common.Address, dst *common.Address, precompiles []common.Address, list types.AccessList) {
	s.accessList = newAccessList()
	s.accessList.addAddress(sender)
	if dst != nil {
		s.accessList.addAddress(*dst)
	}
	for _, addr := range precompiles {
		s.accessList.addAddress(addr)
	}
	for _, el := range list {
		s.accessList.addAddress(el.Address)
		for _, key := range el.StorageKeys {
			s.accessList.addSlot(el.Address, key)
		}
	}
}

// --- logs ---

func (s *IntraBlockState) AddLog(log *types.Log) {
	s.journal.append(addLogChange{account: &log.Address})
	s.logs = append(s.logs, log)
	s.logSize++
}

func (s *IntraBlockState) GetLogs() []*types.Log { return s.logs }

// --- finalisation ---

// Finalise drains every touched account into the given StateWriter and
// clears the per-block cache of dirty (but not origin) storage, leaving
// accounts resident for subsequent reads in the same block. An account
// that is empty per EIP-161 after this transaction is represented by an
// AccountUpdate with Deleted set, the pruning rule spec §4.D names.
func (s *IntraBlockState) Finalise(writer StateWriter) ([]AccountUpdate, error) {
	var updates []AccountUpdate
	addrs := make([]common.Address, 0, len(s.stateObjects))
	for addr := range s.stateObjects {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })

	for _, addr := range addrs {
		obj := s.stateObjects[addr]
		if obj.selfDestructed || obj.empty() {
			updates = append(updates, AccountUpdate{Address: addr, Deleted: true})
			delete(s.stateObjects, addr)
			continue
		}
		var dirty map[common.Hash]uint256.Int
		if len(obj.dirtyStorage) > 0 {
			dirty = make(map[common.Hash]uint256.Int, len(obj.dirtyStorage))
		}
		for key, value := range obj.dirtyStorage {
			if err := writer.WriteAccountStorage(addr, key, value); err != nil {
				return nil, err
			}
			obj.originStorage[key] = value
			dirty[key] = value
		}
		obj.dirtyStorage = make(map[common.Hash]uint256.Int)

		var code []byte
		if obj.newlyCreated && obj.data.CodeHash != common.EmptyCodeHash {
			code = obj.code
		}
		acc := obj.data
		updates = append(updates, AccountUpdate{Address: addr, Account: &acc, Code: code, Storage: dirty})
		obj.newlyCreated = false
	}
	return updates, nil
}
