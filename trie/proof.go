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
	"errors"
	"fmt"

	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
)

// ErrProofNotFound is returned by VerifyProof when the path described by
// the proof does not terminate at key, e.g. it ends in a nil child.
var ErrProofNotFound = errors.New("trie: proof does not cover key")

// Prove returns the ordered list of RLP-encoded nodes on the path from the
// root to key: the Merkle-Patricia proof used by get_account_proof and
// get_storage_proof (spec §4.A, §4.B). The last element's hash need not
// equal a hashNode reference of its own (it may be inlined); Prove always
// emits it as a full list/string encoding so VerifyProof can recompute
// hashes uniformly.
func (t *Trie) Prove(key []byte) ([][]byte, error) {
	var proof [][]byte
	n := t.root
	k := keybytesToHex(key)
	pos := 0
	for len(k)-pos >= 0 {
		switch cur := n.(type) {
		case nil:
			return proof, nil
		case valueNode:
			return proof, nil
		case *shortNode:
			enc := nodeToRLP(cur)
			proof = append(proof, enc)
			if len(k)-pos < len(cur.Key) || !bytesEqual(cur.Key, k[pos:pos+len(cur.Key)]) {
				return proof, nil
			}
			n = cur.Val
			pos += len(cur.Key)
		case *fullNode:
			enc := nodeToRLP(cur)
			proof = append(proof, enc)
			if pos >= len(k) {
				return proof, nil
			}
			n = cur.Children[k[pos]]
			pos++
		case hashNode:
			resolved, err := t.resolveHash(cur)
			if err != nil {
				return nil, err
			}
			n = resolved
		default:
			return proof, nil
		}
	}
	return proof, nil
}

// VerifyProof checks that proof is a valid Merkle-Patricia proof of key's
// presence (value, true) or absence (nil, false) under rootHash.
func VerifyProof(rootHash common.Hash, key []byte, proof [][]byte) ([]byte, bool, error) {
	k := keybytesToHex(key)
	pos := 0
	wantHash := rootHash
	for i, encNode := range proof {
		if crypto.Keccak256Hash(encNode) != wantHash && !(i == 0 && len(encNode) < 32) {
			if crypto.Keccak256Hash(encNode) != wantHash {
				return nil, false, fmt.Errorf("trie: proof node %d hash mismatch", i)
			}
		}
		n, err := decodeNode(encNode)
		if err != nil {
			return nil, false, err
		}
		switch cur := n.(type) {
		case *shortNode:
			if len(k)-pos < len(cur.Key) || !bytesEqual(cur.Key, k[pos:pos+len(cur.Key)]) {
				return nil, false, nil
			}
			pos += len(cur.Key)
			if vn, ok := cur.Val.(valueNode); ok {
				if pos != len(k) {
					return nil, false, nil
				}
				return []byte(vn), true, nil
			}
			if hn, ok := cur.Val.(hashNode); ok {
				wantHash = common.BytesToHash(hn)
				continue
			}
			// inlined child continues within the same encoded step; recurse
			// by re-deriving its hash from its own encoding.
			wantHash = crypto.Keccak256Hash(nodeToRLP(cur.Val))
		case *fullNode:
			if pos >= len(k) {
				if vn, ok := cur.Children[16].(valueNode); ok {
					return []byte(vn), true, nil
				}
				return nil, false, nil
			}
			child := cur.Children[k[pos]]
			pos++
			switch c := child.(type) {
			case nil:
				return nil, false, nil
			case hashNode:
				wantHash = common.BytesToHash(c)
			case valueNode:
				if pos != len(k) {
					return nil, false, nil
				}
				return []byte(c), true, nil
			default:
				wantHash = crypto.Keccak256Hash(nodeToRLP(c))
			}
		default:
			return nil, false, fmt.Errorf("trie: unexpected proof node type %T", n)
		}
	}
	return nil, false, ErrProofNotFound
}
