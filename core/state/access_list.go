// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package state

import "github.com/fenwicklabs/execution-core/erigon-lib/common"

// accessList tracks the warm/cold set for EIP-2929/2930 gas accounting.
// The sender, recipient, coinbase (post-Shanghai) and precompile addresses
// are pre-warmed by the transaction executor before execution starts.
type accessList struct {
	addresses map[common.Address]int // address -> index into slots, or -1 for address-only
	slots     []map[common.Hash]struct{}
}

func newAccessList() *accessList {
	return &accessList{addresses: make(map[common.Address]int)}
}

func (al *accessList) containsAddress(addr common.Address) bool {
	_, ok := al.addresses[addr]
	return ok
}

func (al *accessList) contains(addr common.Address, slot common.Hash) (addressPresent, slotPresent bool) {
	idx, ok := al.addresses[addr]
	if !ok {
		return false, false
	}
	if idx < 0 {
		return true, false
	}
	_, slotOk := al.slots[idx][slot]
	return true, slotOk
}

func (al *accessList) addAddress(addr common.Address) bool {
	if al.containsAddress(addr) {
		return false
	}
	al.addresses[addr] = -1
	return true
}

func (al *accessList) addSlot(addr common.Address, slot common.Hash) (addrAdded, slotAdded bool) {
	idx, addrPresent := al.addresses[addr]
	if !addrPresent || idx < 0 {
		al.slots = append(al.slots, map[common.Hash]struct{}{slot: {}})
		al.addresses[addr] = len(al.slots) - 1
		return !addrPresent, true
	}
	if _, ok := al.slots[idx][slot]; ok {
		return false, false
	}
	al.slots[idx][slot] = struct{}{}
	return false, true
}

func (al *accessList) deleteSlot(addr common.Address, slot common.Hash) {
	idx := al.addresses[addr]
	delete(al.slots[idx], slot)
}

func (al *accessList) deleteAddress(addr common.Address) {
	delete(al.addresses, addr)
}
