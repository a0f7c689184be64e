// Copyright 2014 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package trie

import (
	"fmt"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
)

// Trie is a Merkle-Patricia trie handle: a root node plus the NodeStore it
// resolves unresolved hashNode references against. Per the design note in
// spec §9, a Trie does not cache dirty nodes across commits — each Commit
// writes the full set of touched nodes to db and returns, and a fresh Trie
// opened at the resulting root has no relation to the one that produced it
// beyond the shared db.
type Trie struct {
	db   NodeStore
	root node
}

// New opens a Trie at root. A zero root (common.Hash{}) or the canonical
// empty-trie hash both mean "start empty".
func New(root common.Hash, db NodeStore) (*Trie, error) {
	t := &Trie{db: db}
	if (root == common.Hash{}) || root == common.EmptyRootHash {
		return t, nil
	}
	enc, ok := db.GetNode(root)
	if !ok {
		return nil, fmt.Errorf("trie: missing root node %s", root.Hex())
	}
	n, err := decodeNode(enc)
	if err != nil {
		return nil, fmt.Errorf("trie: invalid root node %s: %w", root.Hex(), err)
	}
	t.root = n
	return t, nil
}

// Get looks up key, returning (value, found).
func (t *Trie) Get(key []byte) ([]byte, bool, error) {
	v, newroot, didResolve, err := t.get(t.root, keybytesToHex(key), 0)
	if err != nil {
		return nil, false, err
	}
	if didResolve {
		t.root = newroot
	}
	if v == nil {
		return nil, false, nil
	}
	return []byte(v.(valueNode)), true, nil
}

func (t *Trie) get(n node, key []byte, pos int) (value node, newnode node, didResolve bool, err error) {
	switch n := n.(type) {
	case nil:
		return nil, nil, false, nil
	case valueNode:
		return n, n, false, nil
	case *shortNode:
		if len(key)-pos < len(n.Key) || !bytesEqual(n.Key, key[pos:pos+len(n.Key)]) {
			return nil, n, false, nil
		}
		value, newval, didResolve, err := t.get(n.Val, key, pos+len(n.Key))
		if err == nil && didResolve {
			n = n.copy()
			n.Val = newval
		}
		return value, n, didResolve, err
	case *fullNode:
		child, newchild, didResolve, err := t.get(n.Children[key[pos]], key, pos+1)
		if err == nil && didResolve {
			n = n.copy()
			n.Children[key[pos]] = newchild
		}
		return child, n, didResolve, err
	case hashNode:
		resolved, err := t.resolveHash(n)
		if err != nil {
			return nil, n, true, err
		}
		value, newnode, _, err := t.get(resolved, key, pos)
		return value, newnode, true, err
	default:
		panic(fmt.Sprintf("trie: unexpected node type %T", n))
	}
}

func (t *Trie) resolveHash(h hashNode) (node, error) {
	enc, ok := t.db.GetNode(common.BytesToHash(h))
	if !ok {
		return nil, fmt.Errorf("trie: missing node %x", []byte(h))
	}
	return decodeNode(enc)
}

// Put inserts or updates key to value. An empty value deletes key, the
// same as Delete.
func (t *Trie) Put(key, value []byte) error {
	if len(value) == 0 {
		return t.Delete(key)
	}
	k := keybytesToHex(key)
	root, err := t.insert(t.root, k, valueNode(value))
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func (t *Trie) insert(n node, key []byte, value node) (node, error) {
	if len(key) == 0 {
		if v, ok := n.(valueNode); ok {
			_ = v
		}
		return value, nil
	}
	switch n := n.(type) {
	case nil:
		return &shortNode{Key: append([]byte{}, key...), Val: value}, nil
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		if matchlen == len(n.Key) {
			newVal, err := t.insert(n.Val, key[matchlen:], value)
			if err != nil {
				return nil, err
			}
			return &shortNode{Key: n.Key, Val: newVal}, nil
		}
		branch := &fullNode{}
		var err error
		branch.Children[n.Key[matchlen]], err = t.insert(nil, n.Key[matchlen+1:], n.Val)
		if err != nil {
			return nil, err
		}
		branch.Children[key[matchlen]], err = t.insert(nil, key[matchlen+1:], value)
		if err != nil {
			return nil, err
		}
		if matchlen == 0 {
			return branch, nil
		}
		return &shortNode{Key: append([]byte{}, key[:matchlen]...), Val: branch}, nil
	case *fullNode:
		newNode := n.copy()
		var err error
		newNode.Children[key[0]], err = t.insert(n.Children[key[0]], key[1:], value)
		if err != nil {
			return nil, err
		}
		return newNode, nil
	case hashNode:
		resolved, err := t.resolveHash(n)
		if err != nil {
			return nil, err
		}
		return t.insert(resolved, key, value)
	default:
		panic(fmt.Sprintf("trie: unexpected node type %T at insert", n))
	}
}

// Delete removes key, collapsing branches and merging short nodes as
// needed to keep the tree in canonical (no degenerate single-child branch)
// form, as spec §4.A requires for a deterministic root hash.
func (t *Trie) Delete(key []byte) error {
	root, _, err := t.delete(t.root, keybytesToHex(key))
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func (t *Trie) delete(n node, key []byte) (node, bool, error) {
	switch n := n.(type) {
	case nil:
		return nil, false, nil
	case valueNode:
		return nil, true, nil
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		if matchlen < len(n.Key) {
			return n, false, nil
		}
		if matchlen == len(key) {
			return nil, true, nil
		}
		child, ok, err := t.delete(n.Val, key[matchlen:])
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return n, false, nil
		}
		switch child := child.(type) {
		case *shortNode:
			return &shortNode{Key: concat(n.Key, child.Key), Val: child.Val}, true, nil
		default:
			return &shortNode{Key: n.Key, Val: child}, true, nil
		}
	case *fullNode:
		newNode := n.copy()
		child, ok, err := t.delete(n.Children[key[0]], key[1:])
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return n, false, nil
		}
		newNode.Children[key[0]] = child
		pos := -1
		count := 0
		for i, c := range newNode.Children {
			if c != nil {
				count++
				pos = i
			}
		}
		if count == 1 && pos != 16 {
			cnode := newNode.Children[pos]
			if hn, ok := cnode.(hashNode); ok {
				resolved, err := t.resolveHash(hn)
				if err != nil {
					return nil, false, err
				}
				cnode = resolved
			}
			if sn, ok := cnode.(*shortNode); ok {
				combined := &shortNode{Key: concat([]byte{byte(pos)}, sn.Key), Val: sn.Val}
				return combined, true, nil
			}
			return &shortNode{Key: []byte{byte(pos)}, Val: cnode}, true, nil
		}
		if count == 1 && pos == 16 {
			return &shortNode{Key: []byte{16}, Val: newNode.Children[16]}, true, nil
		}
		return newNode, true, nil
	case hashNode:
		resolved, err := t.resolveHash(n)
		if err != nil {
			return nil, false, err
		}
		return t.delete(resolved, key)
	default:
		panic(fmt.Sprintf("trie: unexpected node type %T at delete", n))
	}
}

func concat(a, b []byte) []byte {
	out := make([]byte, len(a)+len(b))
	copy(out, a)
	copy(out[len(a):], b)
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Hash returns the root hash of the trie without modifying storage.
func (t *Trie) Hash() common.Hash {
	if t.root == nil {
		return common.EmptyRootHash
	}
	return hashOf(t.root)
}

// Commit writes every node reachable from the root whose encoding is at
// least 32 bytes (and therefore addressed by hash rather than embedded
// inline in its parent) to the backing NodeStore, and returns the root
// hash. It does not mutate t's in-memory structure beyond resolving any
// remaining hashNode placeholders it must walk through.
func (t *Trie) Commit() (common.Hash, error) {
	if t.root == nil {
		return common.EmptyRootHash, nil
	}
	if err := t.commit(t.root); err != nil {
		return common.Hash{}, err
	}
	return t.Hash(), nil
}

func (t *Trie) commit(n node) error {
	switch n := n.(type) {
	case *shortNode:
		if err := t.commitChild(n.Val); err != nil {
			return err
		}
	case *fullNode:
		for _, c := range n.Children {
			if c == nil {
				continue
			}
			if err := t.commitChild(c); err != nil {
				return err
			}
		}
	}
	enc := nodeToRLP(n)
	if len(enc) >= 32 {
		t.db.PutNode(crypto.Keccak256Hash(enc), enc)
	}
	return nil
}

func (t *Trie) commitChild(n node) error {
	switch n := n.(type) {
	case valueNode, hashNode:
		return nil
	default:
		return t.commit(n)
	}
}
