// Copyright 2024 The Erigon Authors
// This file is part of Erigon.

package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/rlp"
)

func sampleHeader() *Header {
	baseFee := big.NewInt(7)
	wdHash := common.EmptyRootHash
	bgu, ebg := uint64(0), uint64(0)
	pbr := common.Hash{}
	return &Header{
		ParentHash:  common.HexToHash("0x01"),
		UncleHash:   common.EmptyRootHash,
		Coinbase:    common.HexToAddress("0x02"),
		Root:        common.HexToHash("0x03"),
		TxHash:      common.EmptyRootHash,
		ReceiptHash: common.EmptyRootHash,
		Difficulty:  big.NewInt(0),
		Number:      big.NewInt(100),
		GasLimit:    30_000_000,
		GasUsed:     21_000,
		Time:        1_700_000_000,
		Extra:       []byte("test"),
		BaseFee:             baseFee,
		WithdrawalsHash:       &wdHash,
		BlobGasUsed:           &bgu,
		ExcessBlobGas:         &ebg,
		ParentBeaconBlockRoot: &pbr,
	}
}

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := sampleHeader()
	enc, err := rlp.EncodeToBytes(h)
	require.NoError(t, err)

	var decoded Header
	require.NoError(t, rlp.DecodeBytes(enc, &decoded))
	require.Equal(t, h.Hash(), decoded.Hash())
	require.Equal(t, h.BaseFee.Uint64(), decoded.BaseFee.Uint64())
	require.NotNil(t, decoded.ExcessBlobGas)
}

func TestHeaderWithoutCancunFields(t *testing.T) {
	h := sampleHeader()
	h.WithdrawalsHash = nil
	h.BlobGasUsed = nil
	h.ExcessBlobGas = nil
	h.ParentBeaconBlockRoot = nil

	enc, err := rlp.EncodeToBytes(h)
	require.NoError(t, err)

	var decoded Header
	require.NoError(t, rlp.DecodeBytes(enc, &decoded))
	require.Nil(t, decoded.WithdrawalsHash)
	require.Equal(t, h.Hash(), decoded.Hash())
}

func TestBlockRoundTrip(t *testing.T) {
	h := sampleHeader()
	b := NewBlock(h, nil, nil, nil)

	enc, err := rlp.EncodeToBytes(b)
	require.NoError(t, err)

	var decoded Block
	require.NoError(t, rlp.DecodeBytes(enc, &decoded))
	require.Equal(t, b.Hash(), decoded.Hash())
}
