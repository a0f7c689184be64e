// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package chain holds the chain configuration: fork activation rules and
// the handful of per-fork constants (base fee denominator, blob target/max,
// blob gas price update fraction) the block processor, tx executor and
// payload builder all consult.
package chain

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Config is the parsed chain specification (spec §3 "Chain configuration"
// / §6 "Chain spec file"). Fork times are Unix seconds; a nil pointer means
// "not yet scheduled".
type Config struct {
	ChainID *big.Int

	HomesteadBlock *big.Int
	EIP150Block    *big.Int
	EIP155Block    *big.Int
	EIP158Block    *big.Int
	ByzantiumBlock *big.Int
	ConstantinopleBlock *big.Int
	PetersburgBlock     *big.Int
	IstanbulBlock       *big.Int
	BerlinBlock         *big.Int
	LondonBlock         *big.Int

	ShanghaiTime *uint64
	CancunTime   *uint64

	TerminalTotalDifficulty *big.Int
}

func (c *Config) IsHomestead(num *big.Int) bool { return isForked(c.HomesteadBlock, num) }
func (c *Config) IsEIP150(num *big.Int) bool     { return isForked(c.EIP150Block, num) }
func (c *Config) IsEIP155(num *big.Int) bool     { return isForked(c.EIP155Block, num) }
func (c *Config) IsEIP158(num *big.Int) bool     { return isForked(c.EIP158Block, num) }
func (c *Config) IsByzantium(num *big.Int) bool  { return isForked(c.ByzantiumBlock, num) }
func (c *Config) IsConstantinople(num *big.Int) bool { return isForked(c.ConstantinopleBlock, num) }
func (c *Config) IsPetersburg(num *big.Int) bool     { return isForked(c.PetersburgBlock, num) }
func (c *Config) IsIstanbul(num *big.Int) bool       { return isForked(c.IstanbulBlock, num) }
func (c *Config) IsBerlin(num *big.Int) bool         { return isForked(c.BerlinBlock, num) }
func (c *Config) IsLondon(num *big.Int) bool         { return isForked(c.LondonBlock, num) }

func (c *Config) IsShanghai(time uint64) bool { return isForkedTime(c.ShanghaiTime, time) }
func (c *Config) IsCancun(time uint64) bool   { return isForkedTime(c.CancunTime, time) }

func isForked(forkBlock, num *big.Int) bool {
	if forkBlock == nil || num == nil {
		return false
	}
	return forkBlock.Cmp(num) <= 0
}

func isForkedTime(forkTime *uint64, time uint64) bool {
	return forkTime != nil && *forkTime <= time
}

// EIP-4844 blob-gas constants. Cancun values are the only ones this
// codebase needs; a Config that wants to vary them per-fork (BSC's Bohr/
// Prague fork bumps the target) would plug into these methods instead of
// using bare constants, which is why they hang off *Config rather than
// being package-level consts.

const (
	minBlobGasPrice        uint64 = 1
	blobGasPerBlob         uint64 = 131072 // 2**17
	targetBlobGasPerBlock  uint64 = 3 * blobGasPerBlob
	maxBlobGasPerBlock     uint64 = 6 * blobGasPerBlob
	blobGasPriceUpdateFrac uint64 = 3338477
)

func (c *Config) GetMinBlobGasPrice() uint64               { return minBlobGasPrice }
func (c *Config) GetTargetBlobGasPerBlock() uint64          { return targetBlobGasPerBlock }
func (c *Config) GetMaxBlobGasPerBlock() uint64             { return maxBlobGasPerBlock }
func (c *Config) GetBlobGasPriceUpdateFraction() uint64     { return blobGasPriceUpdateFrac }

// Rules is a fork-activation snapshot resolved once per block, so the hot
// path (EVM interpreter, gas schedule) checks booleans instead of
// re-comparing big.Ints on every opcode.
type Rules struct {
	ChainID                                         *uint256.Int
	IsHomestead, IsEIP150, IsEIP155, IsEIP158        bool
	IsByzantium, IsConstantinople, IsPetersburg      bool
	IsIstanbul, IsBerlin, IsLondon                   bool
	IsMerge                                          bool
	IsShanghai, IsCancun                             bool
}

// Rules resolves the fork-activation snapshot for (blockNumber, blockTime).
func (c *Config) Rules(blockNumber *big.Int, blockTime uint64) Rules {
	chainID, _ := uint256.FromBig(c.ChainID)
	return Rules{
		ChainID:          chainID,
		IsHomestead:      c.IsHomestead(blockNumber),
		IsEIP150:         c.IsEIP150(blockNumber),
		IsEIP155:         c.IsEIP155(blockNumber),
		IsEIP158:         c.IsEIP158(blockNumber),
		IsByzantium:      c.IsByzantium(blockNumber),
		IsConstantinople: c.IsConstantinople(blockNumber),
		IsPetersburg:     c.IsPetersburg(blockNumber),
		IsIstanbul:       c.IsIstanbul(blockNumber),
		IsBerlin:         c.IsBerlin(blockNumber),
		IsLondon:         c.IsLondon(blockNumber),
		// The merge transition is gated on total difficulty, not a block
		// number or time, so there is no IsMerge(num) predicate to call
		// here the way the other forks have one. A chain spec that has set
		// TerminalTotalDifficulty has committed to merging, and every block
		// this codebase processes post-London on such a spec is post-merge
		// in practice, so that combination is used as the proxy.
		IsMerge:    c.TerminalTotalDifficulty != nil && c.IsLondon(blockNumber),
		IsShanghai: c.IsShanghai(blockTime),
		IsCancun:   c.IsCancun(blockTime),
	}
}

// TestChainConfig is a chain spec with every fork active from genesis, for
// tests that want to exercise current rules without constructing a real
// chain spec file.
func TestChainConfig() *Config {
	return &Config{
		ChainID:                 big.NewInt(1337),
		HomesteadBlock:          big.NewInt(0),
		EIP150Block:             big.NewInt(0),
		EIP155Block:             big.NewInt(0),
		EIP158Block:             big.NewInt(0),
		ByzantiumBlock:          big.NewInt(0),
		ConstantinopleBlock:     big.NewInt(0),
		PetersburgBlock:         big.NewInt(0),
		IstanbulBlock:           big.NewInt(0),
		BerlinBlock:             big.NewInt(0),
		LondonBlock:             big.NewInt(0),
		ShanghaiTime:            newUint64(0),
		CancunTime:              newUint64(0),
		TerminalTotalDifficulty: big.NewInt(0),
	}
}

func newUint64(v uint64) *uint64 { return &v }
