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

package rlp

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"

	"github.com/holiman/uint256"
)

var (
	ErrExpectedList   = errors.New("rlp: expected list")
	ErrExpectedString = errors.New("rlp: expected string")
	ErrCanonSize      = errors.New("rlp: non-canonical size information")
	ErrElemTooLarge   = errors.New("rlp: element is larger than containing list")
)

// Decoder is implemented by types that decode themselves from raw RLP item
// bytes (the full encoding of a single string or list item, header
// included).
type Decoder interface {
	DecodeRLP(raw []byte) error
}

// item is a parsed RLP element: either a byte string or an ordered list of
// sub-items.
type item struct {
	isList bool
	str    []byte // valid when !isList
	list   []item // valid when isList
}

// DecodeBytes parses RLP-encoded data from b into val, which must be a
// non-nil pointer.
func DecodeBytes(b []byte, val interface{}) error {
	it, rest, err := parseItem(b)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("rlp: %d trailing bytes after value", len(rest))
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("rlp: DecodeBytes requires a non-nil pointer")
	}
	return decodeInto(it, rv.Elem())
}

// Split returns the parsed first RLP item and the remaining bytes,
// exposing the raw item/list boundaries the trie decoder needs to walk a
// node's children without knowing their concrete Go type.
func Split(b []byte) (isList bool, content []byte, rest []byte, err error) {
	it, rest, err := parseItem(b)
	if err != nil {
		return false, nil, nil, err
	}
	if it.isList {
		return true, reencodeList(it.list), rest, nil
	}
	return false, it.str, rest, nil
}

// SplitList walks the concatenated payload of an RLP list (the content
// returned by Split for a list item) and returns the raw encoding of each
// element, so callers with a variable or fork-dependent field count (e.g.
// block headers) can decode field-by-field instead of through reflection.
func SplitList(payload []byte) ([][]byte, error) {
	var out [][]byte
	rest := payload
	for len(rest) > 0 {
		_, _, next, err := Split(rest)
		if err != nil {
			return nil, err
		}
		out = append(out, rest[:len(rest)-len(next)])
		rest = next
	}
	return out, nil
}

func reencodeList(items []item) []byte {
	var payload []byte
	for _, it := range items {
		payload = append(payload, reencodeItem(it)...)
	}
	return payload
}

func reencodeItem(it item) []byte {
	if it.isList {
		return encodeList([][]byte{reencodeList(it.list)})
	}
	b, _ := encodeBytes(it.str)
	return b
}

func parseItem(b []byte) (item, []byte, error) {
	if len(b) == 0 {
		return item{}, nil, errors.New("rlp: input too short")
	}
	switch tag := b[0]; {
	case tag < 0x80:
		return item{str: b[0:1]}, b[1:], nil
	case tag < 0xb8:
		n := int(tag - 0x80)
		if len(b) < 1+n {
			return item{}, nil, errors.New("rlp: input too short for string")
		}
		if n == 1 && b[1] < 0x80 {
			return item{}, nil, ErrCanonSize
		}
		return item{str: b[1 : 1+n]}, b[1+n:], nil
	case tag < 0xc0:
		lenLen := int(tag - 0xb7)
		n, rest, err := readSize(b[1:], lenLen)
		if err != nil {
			return item{}, nil, err
		}
		if uint64(len(rest)) < n {
			return item{}, nil, errors.New("rlp: input too short for string")
		}
		return item{str: rest[:n]}, rest[n:], nil
	case tag < 0xf8:
		n := int(tag - 0xc0)
		if len(b) < 1+n {
			return item{}, nil, errors.New("rlp: input too short for list")
		}
		list, err := parseList(b[1 : 1+n])
		if err != nil {
			return item{}, nil, err
		}
		return item{isList: true, list: list}, b[1+n:], nil
	default:
		lenLen := int(tag - 0xf7)
		n, rest, err := readSize(b[1:], lenLen)
		if err != nil {
			return item{}, nil, err
		}
		if uint64(len(rest)) < n {
			return item{}, nil, errors.New("rlp: input too short for list")
		}
		list, err := parseList(rest[:n])
		if err != nil {
			return item{}, nil, err
		}
		return item{isList: true, list: list}, rest[n:], nil
	}
}

func readSize(b []byte, lenLen int) (uint64, []byte, error) {
	if len(b) < lenLen {
		return 0, nil, errors.New("rlp: input too short for length")
	}
	if lenLen > 0 && b[0] == 0 {
		return 0, nil, ErrCanonSize
	}
	var n uint64
	for i := 0; i < lenLen; i++ {
		n = n<<8 | uint64(b[i])
	}
	return n, b[lenLen:], nil
}

func parseList(b []byte) ([]item, error) {
	var items []item
	for len(b) > 0 {
		it, rest, err := parseItem(b)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
		b = rest
	}
	return items, nil
}

func decodeInto(it item, v reflect.Value) error {
	if dec, ok := addrIfPossible(v).(Decoder); ok {
		return dec.DecodeRLP(reencodeItem(it))
	}
	switch v.Kind() {
	case reflect.Ptr:
		elemKind := v.Type().Elem().Kind()
		if !it.isList && len(it.str) == 0 && (elemKind == reflect.Array) {
			// An empty string decodes to a nil pointer for fixed-size byte
			// array types (e.g. *common.Address), the wire representation
			// of an optional field such as a contract-creation "to".
			v.Set(reflect.Zero(v.Type()))
			return nil
		}
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		if bi, ok := v.Interface().(*big.Int); ok {
			if it.isList {
				return ErrExpectedString
			}
			bi.SetBytes(it.str)
			return nil
		}
		if u, ok := v.Interface().(*uint256.Int); ok {
			if it.isList {
				return ErrExpectedString
			}
			u.SetBytes(it.str)
			return nil
		}
		return decodeInto(it, v.Elem())
	case reflect.String:
		if it.isList {
			return ErrExpectedString
		}
		v.SetString(string(it.str))
		return nil
	case reflect.Bool:
		if it.isList {
			return ErrExpectedString
		}
		v.SetBool(len(it.str) == 1 && it.str[0] == 1)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if it.isList {
			return ErrExpectedString
		}
		if len(it.str) > 8 {
			return fmt.Errorf("rlp: uint overflow decoding %d bytes", len(it.str))
		}
		var n uint64
		for _, bb := range it.str {
			n = n<<8 | uint64(bb)
		}
		v.SetUint(n)
		return nil
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			if it.isList {
				return ErrExpectedString
			}
			if v.Kind() == reflect.Array {
				if len(it.str) != v.Len() {
					return fmt.Errorf("rlp: array length mismatch: have %d want %d", len(it.str), v.Len())
				}
				reflect.Copy(v, reflect.ValueOf(it.str))
				return nil
			}
			v.SetBytes(append([]byte{}, it.str...))
			return nil
		}
		if !it.isList {
			return ErrExpectedList
		}
		if v.Kind() == reflect.Slice {
			v.Set(reflect.MakeSlice(v.Type(), len(it.list), len(it.list)))
		} else if len(it.list) != v.Len() {
			return fmt.Errorf("rlp: array length mismatch: have %d want %d", len(it.list), v.Len())
		}
		for i, sub := range it.list {
			if err := decodeInto(sub, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		if !it.isList {
			return ErrExpectedList
		}
		idx := 0
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).PkgPath != "" {
				continue
			}
			if tag := v.Type().Field(i).Tag.Get("rlp"); tag == "-" {
				continue
			}
			if idx >= len(it.list) {
				return fmt.Errorf("rlp: too few elements for struct %s", v.Type())
			}
			if err := decodeInto(it.list[idx], v.Field(i)); err != nil {
				return err
			}
			idx++
		}
		return nil
	default:
		return fmt.Errorf("rlp: unsupported kind %v", v.Kind())
	}
}

func addrIfPossible(v reflect.Value) interface{} {
	if v.CanAddr() {
		return v.Addr().Interface()
	}
	return v.Interface()
}
