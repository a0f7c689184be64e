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

package state

import (
	"github.com/holiman/uint256"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
)

// journalEntry is one undoable mutation of the per-block state cache
// (spec §9 "Journaled cache"). Each entry knows how to revert itself
// given the IntraBlockState it was recorded against.
type journalEntry interface {
	revert(*IntraBlockState)
	dirtied() *common.Address
}

type journal struct {
	entries []journalEntry
	dirties map[common.Address]int // address -> number of dirtying entries
}

func newJournal() *journal {
	return &journal{dirties: make(map[common.Address]int)}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
	if addr := entry.dirtied(); addr != nil {
		j.dirties[*addr]++
	}
}

// length returns the current number of entries, used as a snapshot id:
// revert-to-snapshot is a truncate-and-replay-inverse back to this length.
func (j *journal) length() int { return len(j.entries) }

func (j *journal) revertTo(snapshot int, state *IntraBlockState) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].revert(state)
		if addr := j.entries[i].dirtied(); addr != nil {
			if j.dirties[*addr]--; j.dirties[*addr] == 0 {
				delete(j.dirties, *addr)
			}
		}
	}
	j.entries = j.entries[:snapshot]
}

type (
	createObjectChange struct {
		account *common.Address
	}
	balanceChange struct {
		account *common.Address
		prev    *uint256.Int
	}
	nonceChange struct {
		account *common.Address
		prev    uint64
	}
	codeChange struct {
		account            *common.Address
		prevCode, prevHash []byte
	}
	storageChange struct {
		account      *common.Address
		key          common.Hash
		prevValue    uint256.Int
	}
	selfDestructChange struct {
		account     *common.Address
		prev        bool // whether it had already self-destructed
		prevBalance *uint256.Int
	}
	touchChange struct {
		account *common.Address
	}
	addLogChange struct {
		account *common.Address
	}
	transientStorageChange struct {
		account       *common.Address
		key, prevalue common.Hash
	}
	refundChange struct {
		prev uint64
	}
	accessListAddAccountChange struct {
		address *common.Address
	}
	accessListAddSlotChange struct {
		address *common.Address
		slot    *common.Hash
	}
)

func (c createObjectChange) revert(s *IntraBlockState) { delete(s.stateObjects, *c.account) }
func (c createObjectChange) dirtied() *common.Address  { return c.account }

func (c balanceChange) revert(s *IntraBlockState) { s.getStateObject(*c.account).setBalance(c.prev) }
func (c balanceChange) dirtied() *common.Address  { return c.account }

func (c nonceChange) revert(s *IntraBlockState) { s.getStateObject(*c.account).setNonce(c.prev) }
func (c nonceChange) dirtied() *common.Address  { return c.account }

func (c codeChange) revert(s *IntraBlockState) {
	s.getStateObject(*c.account).setCode(common.BytesToHash(c.prevHash), c.prevCode)
}
func (c codeChange) dirtied() *common.Address { return c.account }

func (c storageChange) revert(s *IntraBlockState) {
	s.getStateObject(*c.account).setState(c.key, c.prevValue)
}
func (c storageChange) dirtied() *common.Address { return c.account }

func (c selfDestructChange) revert(s *IntraBlockState) {
	obj := s.getStateObject(*c.account)
	obj.selfDestructed = c.prev
	obj.setBalance(c.prevBalance)
}
func (c selfDestructChange) dirtied() *common.Address { return c.account }

func (c touchChange) revert(s *IntraBlockState) {}
func (c touchChange) dirtied() *common.Address  { return c.account }

func (c addLogChange) revert(s *IntraBlockState) {
	s.logs = s.logs[:len(s.logs)-1]
	s.logSize--
}
func (c addLogChange) dirtied() *common.Address { return c.account }

func (c transientStorageChange) revert(s *IntraBlockState) {
	s.setTransientState(*c.account, c.key, c.prevalue)
}
func (c transientStorageChange) dirtied() *common.Address { return nil }

func (c refundChange) revert(s *IntraBlockState) { s.refund = c.prev }
func (c refundChange) dirtied() *common.Address  { return nil }

func (c accessListAddAccountChange) revert(s *IntraBlockState) {
	s.accessList.deleteAddress(*c.address)
}
func (c accessListAddAccountChange) dirtied() *common.Address { return nil }

func (c accessListAddSlotChange) revert(s *IntraBlockState) {
	s.accessList.deleteSlot(*c.address, *c.slot)
}
func (c accessListAddSlotChange) dirtied() *common.Address { return nil }
