// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package types

import (
	"github.com/holiman/uint256"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
)

// Account is the state-trie value at keccak(address): nonce, balance, code
// hash and storage root. The zero value is the "empty account" sentinel
// once CodeHash/Root are set to their empty-sentinel hashes.
type Account struct {
	Nonce    uint64
	Balance  *uint256.Int
	Root     common.Hash // storage trie root
	CodeHash common.Hash
}

// NewEmptyAccount returns an account with zero nonce/balance and the
// canonical empty-code/empty-storage sentinels.
func NewEmptyAccount() *Account {
	return &Account{
		Balance:  new(uint256.Int),
		Root:     common.EmptyRootHash,
		CodeHash: common.EmptyCodeHash,
	}
}

// IsEmpty reports whether a is "empty" per EIP-161: zero nonce,
// zero balance, empty code hash. Post-Spurious-Dragon, such accounts must
// not exist in the state trie.
func (a *Account) IsEmpty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.IsZero()) && a.CodeHash == common.EmptyCodeHash
}

func (a *Account) Copy() *Account {
	cp := &Account{Nonce: a.Nonce, Root: a.Root, CodeHash: a.CodeHash}
	if a.Balance != nil {
		cp.Balance = new(uint256.Int).Set(a.Balance)
	} else {
		cp.Balance = new(uint256.Int)
	}
	return cp
}
