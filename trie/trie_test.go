// Copyright 2024 The Erigon Authors
// This file is part of Erigon.

package trie

import (
	"testing"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/stretchr/testify/require"
)

func TestEmptyTrieHash(t *testing.T) {
	tr, err := New(common.Hash{}, NewMemoryNodeStore())
	require.NoError(t, err)
	require.Equal(t, common.EmptyRootHash, tr.Hash())
}

func TestPutGet(t *testing.T) {
	tr, err := New(common.Hash{}, NewMemoryNodeStore())
	require.NoError(t, err)

	entries := map[string]string{
		"doe":    "reindeer",
		"dog":    "puppy",
		"dogglesworth": "cat",
	}
	for k, v := range entries {
		require.NoError(t, tr.Put([]byte(k), []byte(v)))
	}
	for k, v := range entries {
		got, found, err := tr.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, v, string(got))
	}

	_, found, err := tr.Get([]byte("nope"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestDeleteCollapses(t *testing.T) {
	tr, err := New(common.Hash{}, NewMemoryNodeStore())
	require.NoError(t, err)

	require.NoError(t, tr.Put([]byte("a"), []byte("1")))
	require.NoError(t, tr.Put([]byte("b"), []byte("2")))
	require.NoError(t, tr.Delete([]byte("a")))

	_, found, err := tr.Get([]byte("a"))
	require.NoError(t, err)
	require.False(t, found)

	got, found, err := tr.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2", string(got))
}

func TestCommitAndReopen(t *testing.T) {
	db := NewMemoryNodeStore()
	tr, err := New(common.Hash{}, db)
	require.NoError(t, err)

	keys := []string{"alpha", "alphabet", "beta", "gamma", "gammaray"}
	for i, k := range keys {
		require.NoError(t, tr.Put([]byte(k), []byte{byte(i + 1)}))
	}
	root, err := tr.Commit()
	require.NoError(t, err)
	require.NotEqual(t, common.EmptyRootHash, root)

	reopened, err := New(root, db)
	require.NoError(t, err)
	for i, k := range keys {
		got, found, err := reopened.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, []byte{byte(i + 1)}, got)
	}
}

func TestHashDeterministic(t *testing.T) {
	buildA := func() *Trie {
		tr, _ := New(common.Hash{}, NewMemoryNodeStore())
		tr.Put([]byte("x"), []byte("1"))
		tr.Put([]byte("y"), []byte("2"))
		return tr
	}
	buildB := func() *Trie {
		tr, _ := New(common.Hash{}, NewMemoryNodeStore())
		tr.Put([]byte("y"), []byte("2"))
		tr.Put([]byte("x"), []byte("1"))
		return tr
	}
	require.Equal(t, buildA().Hash(), buildB().Hash())
}

func TestProveAndVerify(t *testing.T) {
	db := NewMemoryNodeStore()
	tr, err := New(common.Hash{}, db)
	require.NoError(t, err)

	keys := []string{"account1", "account2", "account3longer-key-forcing-branch"}
	for i, k := range keys {
		require.NoError(t, tr.Put([]byte(k), []byte{byte(0xA0 + i)}))
	}
	root, err := tr.Commit()
	require.NoError(t, err)

	for i, k := range keys {
		proof, err := tr.Prove([]byte(k))
		require.NoError(t, err)
		require.NotEmpty(t, proof)

		val, ok, err := VerifyProof(root, []byte(k), proof)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte{byte(0xA0 + i)}, val)
	}
}

func TestEncodingRoundTrip(t *testing.T) {
	key := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	hex := keybytesToHex(key)
	require.Equal(t, key, hexToKeybytes(hex))

	compact := compactEncode(hex)
	require.Equal(t, hex, compactDecode(compact))
}
