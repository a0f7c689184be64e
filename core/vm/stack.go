// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"errors"

	"github.com/holiman/uint256"
)

// stackLimit is the EVM's maximum operand stack depth.
const stackLimit = 1024

var (
	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackUnderflow = errors.New("stack underflow")
)

// Stack is the EVM's 256-bit-word operand stack.
type Stack struct {
	data []uint256.Int
}

func newStack() *Stack {
	return &Stack{data: make([]uint256.Int, 0, 16)}
}

func (st *Stack) push(v *uint256.Int) {
	st.data = append(st.data, *v)
}

func (st *Stack) pop() (v uint256.Int) {
	v = st.data[len(st.data)-1]
	st.data = st.data[:len(st.data)-1]
	return v
}

func (st *Stack) len() int { return len(st.data) }

// peek returns a pointer to the top element, for in-place opcode results.
func (st *Stack) peek() *uint256.Int {
	return &st.data[len(st.data)-1]
}

// back returns the n-th element from the top, 0-indexed (back(0) == top).
func (st *Stack) back(n int) *uint256.Int {
	return &st.data[len(st.data)-1-n]
}

func (st *Stack) swap(n int) {
	top := len(st.data) - 1
	st.data[top], st.data[top-n] = st.data[top-n], st.data[top]
}

func (st *Stack) dup(n int) {
	v := st.data[len(st.data)-n]
	st.data = append(st.data, v)
}
