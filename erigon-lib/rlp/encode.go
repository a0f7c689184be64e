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

// Package rlp implements Recursive Length Prefix encoding, the canonical
// wire/hash encoding for headers, bodies, transactions and receipts
// (spec §3, §4.A). It covers the contracts the core must honor — struct,
// slice, big-integer, byte-slice and custom Encoder/Decoder shapes — not
// a general-purpose codec for arbitrary Go values.
package rlp

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
	"reflect"

	"github.com/holiman/uint256"
)

// Encoder is implemented by types that know how to encode themselves to
// RLP, such as typed transactions whose encoding is prefixed by a type byte.
type Encoder interface {
	EncodeRLP(io.Writer) error
}

// EncodeToBytes returns the canonical RLP encoding of val.
func EncodeToBytes(val interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, val); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the RLP encoding of val to w.
func Encode(w io.Writer, val interface{}) error {
	if enc, ok := val.(Encoder); ok {
		return enc.EncodeRLP(w)
	}
	b, err := encodeValue(reflect.ValueOf(val))
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func encodeValue(v reflect.Value) ([]byte, error) {
	if !v.IsValid() {
		return []byte{0x80}, nil
	}
	if enc, ok := v.Interface().(Encoder); ok {
		var buf bytes.Buffer
		if err := enc.EncodeRLP(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			switch v.Type().Elem().Kind() {
			case reflect.Slice, reflect.Array, reflect.Struct:
				return encodeValue(reflect.New(v.Type().Elem()).Elem())
			default:
				return encodeUint64(0)
			}
		}
		if big, ok := v.Interface().(*big.Int); ok {
			return encodeBigInt(big)
		}
		if u, ok := v.Interface().(*uint256.Int); ok {
			if u == nil {
				return encodeBytes(nil)
			}
			return encodeBytes(bytes.TrimLeft(u.Bytes(), "\x00"))
		}
		return encodeValue(v.Elem())
	case reflect.String:
		return encodeBytes([]byte(v.String()))
	case reflect.Bool:
		if v.Bool() {
			return []byte{0x01}, nil
		}
		return []byte{0x80}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return encodeUint64(v.Uint())
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			return encodeBytes(b)
		}
		var items [][]byte
		for i := 0; i < v.Len(); i++ {
			enc, err := encodeValue(v.Index(i))
			if err != nil {
				return nil, err
			}
			items = append(items, enc)
		}
		return encodeList(items), nil
	case reflect.Struct:
		var items [][]byte
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).PkgPath != "" {
				continue // unexported
			}
			if tag := v.Type().Field(i).Tag.Get("rlp"); tag == "-" {
				continue
			}
			enc, err := encodeValue(v.Field(i))
			if err != nil {
				return nil, err
			}
			items = append(items, enc)
		}
		return encodeList(items), nil
	case reflect.Interface:
		return encodeValue(v.Elem())
	default:
		return nil, fmt.Errorf("rlp: unsupported kind %v", v.Kind())
	}
}

func encodeBigInt(b *big.Int) ([]byte, error) {
	if b == nil {
		return encodeBytes(nil)
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("rlp: cannot encode negative big.Int")
	}
	if b.Sign() == 0 {
		return encodeBytes(nil)
	}
	return encodeBytes(b.Bytes())
}

func encodeUint64(i uint64) ([]byte, error) {
	if i == 0 {
		return []byte{0x80}, nil
	}
	if i < 0x80 {
		return []byte{byte(i)}, nil
	}
	var b [8]byte
	n := putUintBytes(b[:], i)
	return encodeBytes(b[8-n:])
}

func putUintBytes(b []byte, i uint64) int {
	n := 0
	for tmp := i; tmp > 0; tmp >>= 8 {
		n++
	}
	for j := 0; j < n; j++ {
		b[len(b)-1-j] = byte(i >> (8 * uint(j)))
	}
	return n
}

// encodeBytes returns the RLP "string" encoding of b.
func encodeBytes(b []byte) ([]byte, error) {
	if len(b) == 1 && b[0] < 0x80 {
		return b, nil
	}
	return append(headerFor(0x80, len(b)), b...), nil
}

func encodeList(items [][]byte) []byte {
	var payload []byte
	for _, it := range items {
		payload = append(payload, it...)
	}
	return append(headerFor(0xc0, len(payload)), payload...)
}

// headerFor returns the length-prefix header for an RLP string (offset
// 0x80) or list (offset 0xc0) of the given payload length.
func headerFor(offset byte, n int) []byte {
	if n <= 55 {
		return []byte{offset + byte(n)}
	}
	var lb []byte
	for tmp := n; tmp > 0; tmp >>= 8 {
		lb = append([]byte{byte(tmp)}, lb...)
	}
	return append([]byte{offset + 55 + byte(len(lb))}, lb...)
}
