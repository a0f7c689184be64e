// Copyright 2024 The Erigon Authors
// This file is part of Erigon.

package state

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/core/types"
)

// emptyReader is a StateReader over no accounts, used where tests only
// care about the in-memory overlay built up during the test itself.
type emptyReader struct{}

func (emptyReader) ReadAccountData(common.Address) (*types.Account, error) { return nil, nil }
func (emptyReader) ReadAccountStorage(common.Address, common.Hash) (uint256.Int, bool, error) {
	return uint256.Int{}, false, nil
}
func (emptyReader) ReadAccountCode(common.Address, common.Hash) ([]byte, error) { return nil, nil }
func (emptyReader) ReadAccountCodeSize(common.Address, common.Hash) (int, error) { return 0, nil }

func TestBalanceSnapshotRevert(t *testing.T) {
	s := New(emptyReader{})
	addr := common.HexToAddress("0x01")

	s.AddBalance(addr, uint256.NewInt(100))
	snap := s.Snapshot()
	s.AddBalance(addr, uint256.NewInt(50))
	require.Equal(t, uint64(150), s.GetBalance(addr).Uint64())

	s.RevertToSnapshot(snap)
	require.Equal(t, uint64(100), s.GetBalance(addr).Uint64())
}

func TestSelfDestructRevert(t *testing.T) {
	s := New(emptyReader{})
	addr := common.HexToAddress("0x02")
	s.AddBalance(addr, uint256.NewInt(10))

	snap := s.Snapshot()
	s.SelfDestruct(addr)
	require.True(t, s.HasSelfDestructed(addr))
	require.True(t, s.GetBalance(addr).IsZero())

	s.RevertToSnapshot(snap)
	require.False(t, s.HasSelfDestructed(addr))
	require.Equal(t, uint64(10), s.GetBalance(addr).Uint64())
}

func TestStorageSetGetRevert(t *testing.T) {
	s := New(emptyReader{})
	addr := common.HexToAddress("0x03")
	key := common.HexToHash("0x01")

	snap := s.Snapshot()
	s.SetState(addr, key, *uint256.NewInt(42))
	require.Equal(t, uint64(42), s.GetState(addr, key).Uint64())

	s.RevertToSnapshot(snap)
	require.True(t, s.GetState(addr, key).IsZero())
}

func TestAccessListWarming(t *testing.T) {
	s := New(emptyReader{})
	addr := common.HexToAddress("0x04")
	slot := common.HexToHash("0x01")

	require.False(t, s.AddressInAccessList(addr))
	s.AddAddressToAccessList(addr)
	require.True(t, s.AddressInAccessList(addr))

	addrPresent, slotPresent := s.SlotInAccessList(addr, slot)
	require.True(t, addrPresent)
	require.False(t, slotPresent)

	s.AddSlotToAccessList(addr, slot)
	_, slotPresent = s.SlotInAccessList(addr, slot)
	require.True(t, slotPresent)
}

func TestFinaliseEmptyAccountPruned(t *testing.T) {
	s := New(emptyReader{})
	addr := common.HexToAddress("0x05")

	s.AddBalance(addr, uint256.NewInt(1))
	s.SubBalance(addr, uint256.NewInt(1))
	s.SetNonce(addr, 0)

	updates, err := s.Finalise(noopWriter{})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.True(t, updates[0].Deleted)
}

type noopWriter struct{}

func (noopWriter) UpdateAccountData(common.Address, *types.Account) error { return nil }
func (noopWriter) UpdateAccountCode(common.Hash, []byte) error            { return nil }
func (noopWriter) DeleteAccount(common.Address) error                    { return nil }
func (noopWriter) WriteAccountStorage(common.Address, common.Hash, uint256.Int) error {
	return nil
}
