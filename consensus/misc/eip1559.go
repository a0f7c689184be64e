// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package misc

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/fenwicklabs/execution-core/erigon-lib/chain"
	"github.com/fenwicklabs/execution-core/core/types"
)

var errMissingBaseFee = errors.New("header is missing baseFee")

const (
	// ElasticityMultiplier bounds how far a block's gas used may run above
	// its target (gas limit / multiplier) in a single block.
	ElasticityMultiplier uint64 = 2

	// BaseFeeChangeDenominator caps the base fee's per-block move at
	// 1/denominator of the parent base fee.
	BaseFeeChangeDenominator uint64 = 8

	// InitialBaseFee is the base fee assigned to the first London block.
	InitialBaseFee = 1_000_000_000
)

// VerifyEIP1559Header checks that a header's base fee matches what
// CalcBaseFee derives from its parent, the London fork's header invariant.
func VerifyEIP1559Header(config *chain.Config, parent, header *types.Header) error {
	if header.BaseFee == nil {
		return errMissingBaseFee
	}
	expected := CalcBaseFee(parent)
	if header.BaseFee.Cmp(expected) != 0 {
		return fmt.Errorf("invalid baseFee: have %s, want %s", header.BaseFee, expected)
	}
	return nil
}

// CalcBaseFee computes the next block's base fee from its parent per
// EIP-1559: unchanged at target gas usage, otherwise moved toward the new
// usage by at most 1/BaseFeeChangeDenominator of the parent base fee.
func CalcBaseFee(parent *types.Header) *big.Int {
	if parent.BaseFee == nil {
		return big.NewInt(InitialBaseFee)
	}

	parentGasTarget := parent.GasLimit / ElasticityMultiplier
	if parent.GasUsed == parentGasTarget {
		return new(big.Int).Set(parent.BaseFee)
	}

	if parent.GasUsed > parentGasTarget {
		gasUsedDelta := parent.GasUsed - parentGasTarget
		delta := new(big.Int).Mul(parent.BaseFee, new(big.Int).SetUint64(gasUsedDelta))
		delta.Div(delta, new(big.Int).SetUint64(parentGasTarget))
		delta.Div(delta, new(big.Int).SetUint64(BaseFeeChangeDenominator))
		if delta.Sign() == 0 {
			delta.SetInt64(1)
		}
		return new(big.Int).Add(parent.BaseFee, delta)
	}

	gasUsedDelta := parentGasTarget - parent.GasUsed
	delta := new(big.Int).Mul(parent.BaseFee, new(big.Int).SetUint64(gasUsedDelta))
	delta.Div(delta, new(big.Int).SetUint64(parentGasTarget))
	delta.Div(delta, new(big.Int).SetUint64(BaseFeeChangeDenominator))

	baseFee := new(big.Int).Sub(parent.BaseFee, delta)
	if baseFee.Sign() < 0 {
		baseFee.SetUint64(0)
	}
	return baseFee
}
