// Copyright 2024 The Erigon Authors
// This file is part of Erigon.

package types

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
)

func testKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.ToECDSA(common.FromHex("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"[:64]))
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func TestLegacyTxSignRoundTrip(t *testing.T) {
	key, addr := testKey(t)
	to := common.HexToAddress("0x000000000000000000000000000000000000aa")
	tx := NewTx(&LegacyTx{
		Nonce:    3,
		GasPrice: big.NewInt(1_000_000_000),
		Gas:      21000,
		To:       &to,
		Value:    uint256.NewInt(5),
		Data:     nil,
	})
	signer := LatestSigner(big.NewInt(1))
	signed, err := SignTx(tx, signer, key)
	require.NoError(t, err)

	recovered, err := signer.Sender(signed)
	require.NoError(t, err)
	require.Equal(t, addr, recovered)

	enc, err := signed.MarshalBinary()
	require.NoError(t, err)
	var decoded Transaction
	require.NoError(t, decoded.UnmarshalBinary(enc))
	require.Equal(t, signed.Hash(), decoded.Hash())
}

func TestDynamicFeeTxSignRoundTrip(t *testing.T) {
	key, addr := testKey(t)
	to := common.HexToAddress("0x000000000000000000000000000000000000bb")
	tx := NewTx(&DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     7,
		GasTipCap: big.NewInt(2_000_000_000),
		GasFeeCap: big.NewInt(30_000_000_000),
		Gas:       100000,
		To:        &to,
		Value:     uint256.NewInt(0),
		Data:      []byte{0xde, 0xad, 0xbe, 0xef},
	})
	signer := LatestSigner(big.NewInt(1))
	signed, err := SignTx(tx, signer, key)
	require.NoError(t, err)

	recovered, err := signer.Sender(signed)
	require.NoError(t, err)
	require.Equal(t, addr, recovered)
	require.Equal(t, byte(DynamicFeeTxType), signed.Type())

	enc, err := signed.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, byte(DynamicFeeTxType), enc[0])

	var decoded Transaction
	require.NoError(t, decoded.UnmarshalBinary(enc))
	require.Equal(t, signed.Hash(), decoded.Hash())
	require.Equal(t, to, *decoded.To())
}

func TestContractCreationToIsNil(t *testing.T) {
	key, _ := testKey(t)
	tx := NewTx(&DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(1),
		Gas:       500000,
		To:        nil,
		Value:     uint256.NewInt(0),
		Data:      []byte{0x60, 0x00},
	})
	signer := LatestSigner(big.NewInt(1))
	signed, err := SignTx(tx, signer, key)
	require.NoError(t, err)
	require.True(t, signed.IsContractCreation())

	enc, err := signed.MarshalBinary()
	require.NoError(t, err)
	var decoded Transaction
	require.NoError(t, decoded.UnmarshalBinary(enc))
	require.Nil(t, decoded.To())
	require.True(t, decoded.IsContractCreation())
}
