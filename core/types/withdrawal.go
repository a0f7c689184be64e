// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package types

import (
	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/rlp"
)

// Withdrawal is a validator balance credit delivered by the consensus
// layer: it consumes no gas and never carries a signature.
type Withdrawal struct {
	Index     uint64
	Validator uint64
	Address   common.Address
	Amount    uint64 // Gwei
}

type Withdrawals []*Withdrawal

// DeriveWithdrawalsRoot builds the Merkle-Patricia trie keyed by RLP(index)
// over the withdrawals, the same construction DeriveReceiptsRoot uses, per
// EIP-4895's withdrawals-root header field. An empty list still returns the
// empty trie's root rather than a nil hash, so a post-Shanghai header with
// no withdrawals in a block still gets a well-defined root to compare.
func DeriveWithdrawalsRoot(withdrawals Withdrawals, newTrie func() ReceiptTrie) (common.Hash, error) {
	t := newTrie()
	for i, w := range withdrawals {
		key, err := rlp.EncodeToBytes(uint64(i))
		if err != nil {
			return common.Hash{}, err
		}
		enc, err := rlp.EncodeToBytes(w)
		if err != nil {
			return common.Hash{}, err
		}
		if err := t.Put(key, enc); err != nil {
			return common.Hash{}, err
		}
	}
	return t.Hash(), nil
}
