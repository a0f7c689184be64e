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

	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
	"github.com/fenwicklabs/execution-core/erigon-lib/rlp"
)

// node is any of the four trie node kinds. Unlike the leaf/extension/branch
// terminology of the Yellow Paper, Go code (following go-ethereum/erigon)
// collapses leaf and extension into a single shortNode, distinguished by
// whether Val is a valueNode.
type node interface {
	fstring(ind string) string
}

type (
	// fullNode is a 16-ary branch plus an optional value at the terminator
	// slot (index 16), for keys that end exactly at this branch.
	fullNode struct {
		Children [17]node
	}

	// shortNode is either a leaf (Val is valueNode) or an extension
	// (Val is a fullNode or hashNode), sharing Key as their common nibble
	// prefix in compact-encoded form once committed.
	shortNode struct {
		Key []byte
		Val node
	}

	// hashNode is an unresolved reference: the Keccak-256 hash of a child
	// node's RLP encoding, stored in place of the child until resolved
	// from the backing NodeStore.
	hashNode []byte

	// valueNode is a terminal leaf value.
	valueNode []byte
)

func (n *fullNode) copy() *fullNode { c := *n; return &c }
func (n *shortNode) copy() *shortNode { c := *n; return &c }

func (n *fullNode) fstring(ind string) string {
	resp := fmt.Sprintf("[\n%s  ", ind)
	for i, child := range n.Children {
		if child == nil {
			resp += fmt.Sprintf("%s: <nil> ", indices[i])
			continue
		}
		resp += fmt.Sprintf("%s: %v", indices[i], child.fstring(ind+"  "))
	}
	return resp + fmt.Sprintf("\n%s] ", ind)
}

func (n *shortNode) fstring(ind string) string {
	return fmt.Sprintf("{%x: %v} ", n.Key, n.Val.fstring(ind+"  "))
}

func (n hashNode) fstring(ind string) string  { return fmt.Sprintf("<%x> ", []byte(n)) }
func (n valueNode) fstring(ind string) string { return fmt.Sprintf("%x ", []byte(n)) }

var indices = [17]string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8",
	"9", "a", "b", "c", "d", "e", "f", "[17]",
}

// nodeToRLP returns the canonical RLP encoding of a resolved node, the
// preimage whose Keccak-256 hash is either its hashNode reference from a
// parent, or (for the root) the trie's root hash.
func nodeToRLP(n node) []byte {
	switch n := n.(type) {
	case *shortNode:
		key, _ := rlp.EncodeToBytes(compactEncode(n.Key))
		return reassembleList(append(key, childRLP(n.Val)...))
	case *fullNode:
		var payload []byte
		for _, c := range n.Children {
			if c == nil {
				payload = append(payload, 0x80)
				continue
			}
			payload = append(payload, childRLP(c)...)
		}
		return reassembleList(payload)
	case valueNode:
		enc, _ := rlp.EncodeToBytes([]byte(n))
		return enc
	case hashNode:
		enc, _ := rlp.EncodeToBytes([]byte(n))
		return enc
	default:
		return []byte{0x80}
	}
}

// childRLP returns the RLP-encoded representation of n as it is embedded in
// its parent: inline if the encoding is under 32 bytes, otherwise a
// hashNode reference to an out-of-line entry in the NodeStore.
func childRLP(n node) []byte {
	switch n := n.(type) {
	case valueNode:
		enc, _ := rlp.EncodeToBytes([]byte(n))
		return enc
	case hashNode:
		enc, _ := rlp.EncodeToBytes([]byte(n))
		return enc
	}
	full := nodeToRLP(n)
	if len(full) < 32 {
		return full
	}
	h := crypto.Keccak256(full)
	enc, _ := rlp.EncodeToBytes(h)
	return enc
}

// decodeNode parses the RLP encoding of a stored node. Children under the
// 32-byte inline threshold are embedded directly; larger ones are left as
// hashNode references, resolved lazily on descent.
func decodeNode(buf []byte) (node, error) {
	isList, content, _, err := rlp.Split(buf)
	if err != nil {
		return nil, err
	}
	if !isList {
		return valueNode(content), nil
	}
	items, err := rlp.SplitList(content)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 2:
		key := compactDecode(trimString(items[0]))
		if hasTerm(key) {
			return &shortNode{Key: key, Val: valueNode(trimString(items[1]))}, nil
		}
		val, err := decodeChild(items[1])
		if err != nil {
			return nil, err
		}
		return &shortNode{Key: key, Val: val}, nil
	case 17:
		fn := &fullNode{}
		for i := 0; i < 16; i++ {
			if len(items[i]) == 0 {
				continue
			}
			child, err := decodeChild(items[i])
			if err != nil {
				return nil, err
			}
			fn.Children[i] = child
		}
		if len(trimString(items[16])) > 0 {
			fn.Children[16] = valueNode(trimString(items[16]))
		}
		return fn, nil
	default:
		return nil, fmt.Errorf("trie: invalid node with %d list elements", len(items))
	}
}

// decodeChild interprets one already-split list element as either an
// inline sub-node (re-decoded recursively) or a 32-byte hash reference.
func decodeChild(raw []byte) (node, error) {
	isList, content, _, err := rlp.Split(raw)
	if err != nil {
		return nil, err
	}
	if isList {
		return decodeNode(reassembleList(content))
	}
	str := trimString(raw)
	if len(str) == 0 {
		return nil, nil
	}
	if len(str) == 32 {
		return hashNode(str), nil
	}
	return decodeNode(raw)
}

// trimString strips the RLP string header from a single already-encoded
// string item, returning its raw payload.
func trimString(raw []byte) []byte {
	_, content, _, err := rlp.Split(raw)
	if err != nil {
		return nil
	}
	return content
}

// reassembleList re-wraps an already-split list payload with its list
// header so it can be fed back through decodeNode.
func reassembleList(payload []byte) []byte {
	header := make([]byte, 0, 9)
	n := len(payload)
	if n <= 55 {
		header = append(header, 0xc0+byte(n))
	} else {
		var lb []byte
		for tmp := n; tmp > 0; tmp >>= 8 {
			lb = append([]byte{byte(tmp)}, lb...)
		}
		header = append(header, 0xf7+byte(len(lb)))
		header = append(header, lb...)
	}
	return append(header, payload...)
}
