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
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
)

// Log is one LOGn emission: the emitting address, up to four indexed
// topics, and opaque data.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte

	// Derived fields, not part of consensus encoding, filled in by the
	// block processor once the log's position is known.
	BlockNumber uint64      `rlp:"-"`
	TxHash      common.Hash `rlp:"-"`
	TxIndex     uint        `rlp:"-"`
	BlockHash   common.Hash `rlp:"-"`
	Index       uint        `rlp:"-"`
	Removed     bool        `rlp:"-"`
}

// Bloom9 mixes a single byte slice into a 2048-bit (256-byte) bloom filter
// using the three-hash scheme from the Yellow Paper appendix B.
func bloom9(b []byte, bloom *[256]byte) {
	h := crypto.Keccak256(b)
	for i := 0; i < 3; i++ {
		bit := (uint(h[2*i])<<8 + uint(h[2*i+1])) & 2047
		bloom[256-1-bit/8] |= 1 << (bit % 8)
	}
}

// CreateBloom builds the logs bloom for a set of logs: each log's address
// and every topic are folded in.
func CreateBloom(logs []*Log) [256]byte {
	var bloom [256]byte
	for _, log := range logs {
		bloom9(log.Address.Bytes(), &bloom)
		for _, topic := range log.Topics {
			bloom9(topic.Bytes(), &bloom)
		}
	}
	return bloom
}
