// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package core wires the EVM interpreter (package vm) into transaction and
// block-level execution (spec §4.D "Transaction Executor", §4.E "Block
// Processor").
package core

import (
	"errors"
	"fmt"
)

// ErrGasLimitReached is returned when a block's remaining gas pool cannot
// cover a transaction's gas limit.
var ErrGasLimitReached = errors.New("core: gas limit reached")

// GasPool tracks the gas available for the rest of a block, shared across
// every transaction's execution so none can collectively exceed the
// header's gas limit.
type GasPool uint64

// AddGas makes gas available for execution.
func (gp *GasPool) AddGas(amount uint64) *GasPool {
	if uint64(*gp)+amount < uint64(*gp) {
		panic("gas pool pushed above uint64")
	}
	*gp += GasPool(amount)
	return gp
}

// SubGas deducts the given amount from the pool, failing if the pool is
// smaller.
func (gp *GasPool) SubGas(amount uint64) error {
	if uint64(*gp) < amount {
		return ErrGasLimitReached
	}
	*gp -= GasPool(amount)
	return nil
}

// Gas returns the amount of gas remaining in the pool.
func (gp *GasPool) Gas() uint64 {
	return uint64(*gp)
}

func (gp *GasPool) String() string {
	return fmt.Sprintf("%d", uint64(*gp))
}
