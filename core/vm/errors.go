// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import "errors"

// These are the EVM halt/revert conditions of spec §7: recovered locally
// by the call dispatcher, never propagated past the top-level Call/Create.
var (
	ErrOutOfGas                 = errors.New("out of gas")
	ErrCodeStoreOutOfGas        = errors.New("contract creation code storage out of gas")
	ErrDepth                    = errors.New("max call depth exceeded")
	ErrInsufficientBalance      = errors.New("insufficient balance for transfer")
	ErrContractAddressCollision = errors.New("contract address collision")
	ErrExecutionReverted        = errors.New("execution reverted")
	ErrMaxCodeSizeExceeded      = errors.New("max code size exceeded")
	ErrInvalidJump              = errors.New("invalid jump destination")
	ErrWriteProtection          = errors.New("write protection")
	ErrReturnDataOutOfBounds    = errors.New("return data out of bounds")
	ErrGasUintOverflow          = errors.New("gas uint64 overflow")
	ErrInvalidOpCode            = errors.New("invalid opcode")
	ErrNonceUintOverflow        = errors.New("nonce uint64 overflow")
)

// MaxCodeSize is the EIP-170 contract code size limit.
const MaxCodeSize = 24576

// MaxInitCodeSize is the EIP-3860 init code size limit (2x MaxCodeSize).
const MaxInitCodeSize = 2 * MaxCodeSize
