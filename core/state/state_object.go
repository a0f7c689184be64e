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
	"github.com/fenwicklabs/execution-core/core/types"
)

// stateObject is the in-memory representation of one account during a
// block's execution: the account fields plus whatever storage slots and
// code have been touched, all undoable through the enclosing journal.
type stateObject struct {
	address common.Address
	data    types.Account // current values
	code    []byte        // nil until loaded; empty slice is a valid "no code"

	// originStorage caches reads back to the state store (committed values,
	// spec's "GetCommittedState"); dirtyStorage holds writes made this block
	// that have not yet been written back to the store at Finalise.
	originStorage map[common.Hash]uint256.Int
	dirtyStorage  map[common.Hash]uint256.Int

	selfDestructed bool
	newlyCreated   bool // created by this block's execution (CREATE/CREATE2 or first touch)
}

func newStateObject(addr common.Address, account types.Account) *stateObject {
	if account.Balance == nil {
		account.Balance = new(uint256.Int)
	}
	return &stateObject{
		address:       addr,
		data:          account,
		originStorage: make(map[common.Hash]uint256.Int),
		dirtyStorage:  make(map[common.Hash]uint256.Int),
	}
}

func (o *stateObject) empty() bool {
	return o.data.Nonce == 0 && o.data.Balance.IsZero() && o.data.CodeHash == common.EmptyCodeHash
}

func (o *stateObject) setBalance(amount *uint256.Int) {
	if amount == nil {
		amount = new(uint256.Int)
	}
	o.data.Balance = new(uint256.Int).Set(amount)
}

func (o *stateObject) setNonce(nonce uint64) { o.data.Nonce = nonce }

func (o *stateObject) setCode(codeHash common.Hash, code []byte) {
	o.code = code
	o.data.CodeHash = codeHash
}

func (o *stateObject) setState(key common.Hash, value uint256.Int) {
	o.dirtyStorage[key] = value
}
