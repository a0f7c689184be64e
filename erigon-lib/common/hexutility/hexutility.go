// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package hexutility provides JSON-friendly hex encodings for byte slices,
// as consumed by the state-test JSON fixtures and the chainspec loader.
package hexutility

import (
	"encoding/hex"
	"fmt"
)

// Bytes marshals/unmarshals as a 0x-prefixed hex string.
type Bytes []byte

func (b Bytes) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(b)), nil
}

func (b *Bytes) UnmarshalText(input []byte) error {
	raw := string(input)
	if len(raw) >= 2 && (raw[:2] == "0x" || raw[:2] == "0X") {
		raw = raw[2:]
	}
	if len(raw)%2 == 1 {
		raw = "0" + raw
	}
	dec, err := hex.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("invalid hex string: %w", err)
	}
	*b = dec
	return nil
}

func (b Bytes) String() string { return "0x" + hex.EncodeToString(b) }

// Encode returns the 0x-prefixed hex encoding of b.
func Encode(b []byte) string { return "0x" + hex.EncodeToString(b) }

// Decode accepts an optionally 0x-prefixed hex string.
func Decode(s string) ([]byte, error) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}
