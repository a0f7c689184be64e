// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package common holds the address/hash primitives shared by every layer of
// the execution core: the trie, the state store, the EVM and the block
// processor all key off these two fixed-size arrays.
package common

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"reflect"
)

const (
	AddressLength = 20
	HashLength    = 32
)

// Address is a 20-byte Ethereum account address.
type Address [AddressLength]byte

func BytesToAddress(b []byte) (a Address) {
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func HexToAddress(s string) Address { return BytesToAddress(FromHex(s)) }

func (a Address) Bytes() []byte   { return a[:] }
func (a Address) Hex() string     { return "0x" + hex.EncodeToString(a[:]) }
func (a Address) String() string  { return a.Hex() }
func (a Address) Cmp(b Address) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (a *Address) SetBytes(b []byte) { *a = BytesToAddress(b) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

func (a *Address) UnmarshalText(input []byte) error {
	b := FromHex(string(input))
	if len(b) != AddressLength {
		return fmt.Errorf("invalid address length %d", len(b))
	}
	copy(a[:], b)
	return nil
}

// Hash is a 32-byte hash — a trie node reference, block hash, tx hash, or
// 256-bit storage key/value.
type Hash [HashLength]byte

var (
	// EmptyRootHash is the keccak256 RLP encoding of an empty trie: the
	// state/storage/receipts/transactions root of an empty Merkle-Patricia
	// trie.
	EmptyRootHash = HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")
	// EmptyCodeHash is keccak256("") — the code hash of an EOA / empty contract.
	EmptyCodeHash = HexToHash("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")
)

func BytesToHash(b []byte) (h Hash) {
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func HexToHash(s string) Hash { return BytesToHash(FromHex(s)) }

func BigToHash(n *big.Int) Hash { return BytesToHash(n.Bytes()) }

func (h Hash) Bytes() []byte  { return h[:] }
func (h Hash) Hex() string    { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash) String() string { return h.Hex() }

func (h *Hash) SetBytes(b []byte) { *h = BytesToHash(b) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

func (h *Hash) UnmarshalText(input []byte) error {
	b := FromHex(string(input))
	if len(b) != HashLength {
		return fmt.Errorf("invalid hash length %d", len(b))
	}
	copy(h[:], b)
	return nil
}

// FromHex accepts an optionally-0x-prefixed hex string, odd-length
// tolerant (left zero-padded), and returns the decoded bytes. Invalid
// input decodes to nil rather than panicking — callers that need strict
// validation use UnmarshalText.
func FromHex(s string) []byte {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// UnprefixedHash and UnprefixedAddress marshal without the 0x prefix, as
// used by the retesteth-flavoured JSON state tests (tests/state_test_util.go).
type UnprefixedHash Hash

func (h UnprefixedHash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

func (h *UnprefixedHash) UnmarshalText(input []byte) error {
	dec := make([]byte, hex.DecodedLen(len(input)))
	if _, err := hex.Decode(dec, input); err != nil {
		return err
	}
	copy(h[HashLength-len(dec):], dec)
	return nil
}

type UnprefixedAddress Address

func (a UnprefixedAddress) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(a[:])), nil
}

func (a *UnprefixedAddress) UnmarshalText(input []byte) error {
	dec := make([]byte, hex.DecodedLen(len(input)))
	if _, err := hex.Decode(dec, input); err != nil {
		return err
	}
	copy(a[AddressLength-len(dec):], dec)
	return nil
}

// IsEmptyValue reports whether v is the Go zero value.
func IsEmptyValue(v reflect.Value) bool {
	return v.IsZero()
}
