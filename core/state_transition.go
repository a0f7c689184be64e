// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/fenwicklabs/execution-core/consensus/misc"
	"github.com/fenwicklabs/execution-core/core/state"
	"github.com/fenwicklabs/execution-core/core/types"
	"github.com/fenwicklabs/execution-core/core/vm"
	"github.com/fenwicklabs/execution-core/erigon-lib/chain"
	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/common/fixedgas"
)

// Transaction validation errors (spec §4.D step 2, "validation; failure
// rejects the transaction entirely").
var (
	ErrNonceTooLow          = errors.New("nonce too low")
	ErrNonceTooHigh         = errors.New("nonce too high")
	ErrNonceMax             = errors.New("nonce has max value")
	ErrSenderNoEOA          = errors.New("sender not an eoa")
	ErrInsufficientFunds    = errors.New("insufficient funds for gas * price + value")
	ErrIntrinsicGas         = errors.New("intrinsic gas too low")
	ErrGasLimitExceeded     = errors.New("tx gas limit exceeds block gas limit")
	ErrFeeCapTooLow         = errors.New("max fee per gas below base fee")
	ErrTipAboveFeeCap       = errors.New("max priority fee per gas higher than max fee per gas")
	ErrBlobFeeCapTooLow     = errors.New("max blob fee per gas below blob base fee")
	ErrMissingBlobHashes    = errors.New("blob transaction missing blob hashes")
	ErrBlobHashWrongVersion = errors.New("blob transaction hash has wrong version")
	ErrTooManyBlobs         = errors.New("too many blobs")
	ErrBlobTxCreate         = errors.New("blob transaction may not have a nil recipient")
	ErrMaxInitCodeSizeExceeded = errors.New("max initcode size exceeded")
)

// MaxRefundQuotient caps the gas refund at gas_used/5 (EIP-3529), applied
// at the executor level regardless of what gasSstore booked in the
// interpreter's per-opcode refund counter.
const MaxRefundQuotient = 5

// blobVersionedHashVersion is the leading byte every EIP-4844 versioned
// hash must carry: a KZG commitment hashed with SHA-256, version-tagged
// so a future commitment scheme can claim a different prefix.
const blobVersionedHashVersion = 0x01

// ExecutionResult is what running one transaction's top-level call/create
// produces, before receipt/log bookkeeping (spec §4.D steps 4-6).
type ExecutionResult struct {
	UsedGas         uint64
	RefundedGas     uint64
	Err             error
	ReturnData      []byte
	ContractAddress *common.Address
}

// Failed reports whether the top-level call/create halted or reverted.
// This does not mean the transaction was rejected: fee and nonce effects
// still apply (spec §4.D "Step 4 failure is contained").
func (r *ExecutionResult) Failed() bool { return r.Err != nil }

// IntrinsicGas computes a transaction's base cost before any EVM
// execution: the flat per-type floor, per-byte calldata cost, EIP-2930
// access-list cost, and (for contract creation) the EIP-3860 initcode
// word surcharge in addition to the flat creation floor.
func IntrinsicGas(tx *types.Transaction) (uint64, error) {
	isCreate := tx.To() == nil

	gas := uint64(fixedgas.TxGas)
	if isCreate {
		gas = fixedgas.TxGasContractCreation
	}

	data := tx.Data()
	var nz uint64
	for _, b := range data {
		if b != 0 {
			nz++
		}
	}
	z := uint64(len(data)) - nz
	if (gas+nz*fixedgas.TxDataNonZeroGasEIP2028)/fixedgas.TxDataNonZeroGasEIP2028 < nz {
		return 0, vm.ErrGasUintOverflow
	}
	gas += nz * fixedgas.TxDataNonZeroGasEIP2028
	if (gas+z*fixedgas.TxDataZeroGas)/fixedgas.TxDataZeroGas < z {
		return 0, vm.ErrGasUintOverflow
	}
	gas += z * fixedgas.TxDataZeroGas

	if isCreate {
		if len(data) > vm.MaxInitCodeSize {
			return 0, ErrMaxInitCodeSizeExceeded
		}
		words := (uint64(len(data)) + 31) / 32
		gas += words * uint64(vm.InitCodeWordGas)
	}

	for _, tuple := range tx.AccessList() {
		gas += fixedgas.TxAccessListAddressGas
		gas += uint64(len(tuple.StorageKeys)) * fixedgas.TxAccessListStorageKeyGas
	}

	return gas, nil
}

// ValidateTransaction runs every check spec §4.D step 2 names against the
// current state and the block it will (or did) execute in, ahead of
// running the interpreter at all. Nonce equality (rather than the
// mempool's "nonce ≥ current" tolerance) is enforced here because this
// path validates a transaction about to execute in sequence, not one
// being admitted to the pool (spec §4.G draws that distinction).
func ValidateTransaction(tx *types.Transaction, sender common.Address, ibs *state.IntraBlockState, header *types.Header, config *chain.Config) error {
	if ibs.GetCodeHash(sender) != common.EmptyCodeHash && ibs.GetCodeHash(sender) != (common.Hash{}) {
		return ErrSenderNoEOA // EIP-3607
	}

	stateNonce := ibs.GetNonce(sender)
	if stateNonce == ^uint64(0) {
		return ErrNonceMax
	}
	if tx.Nonce() < stateNonce {
		return fmt.Errorf("%w: tx %d, state %d", ErrNonceTooLow, tx.Nonce(), stateNonce)
	}
	if tx.Nonce() > stateNonce {
		return fmt.Errorf("%w: tx %d, state %d", ErrNonceTooHigh, tx.Nonce(), stateNonce)
	}

	if tx.Gas() > header.GasLimit {
		return fmt.Errorf("%w: tx %d, block %d", ErrGasLimitExceeded, tx.Gas(), header.GasLimit)
	}

	igas, err := IntrinsicGas(tx)
	if err != nil {
		return err
	}
	if tx.Gas() < igas {
		return fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGas, tx.Gas(), igas)
	}

	feeCap := tx.GasFeeCap()
	tipCap := tx.GasTipCap()
	if feeCap != nil && tipCap != nil && tipCap.Cmp(feeCap) > 0 {
		return fmt.Errorf("%w: tip %s, fee cap %s", ErrTipAboveFeeCap, tipCap, feeCap)
	}
	if header.BaseFee != nil && feeCap != nil && feeCap.Sign() > 0 && feeCap.Cmp(header.BaseFee) < 0 {
		return fmt.Errorf("%w: fee cap %s, base fee %s", ErrFeeCapTooLow, feeCap, header.BaseFee)
	}

	cost := txMaxCost(tx)
	balance := ibs.GetBalance(sender)
	if balance.Cmp(cost) < 0 {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientFunds, balance, cost)
	}

	if tx.Type() == types.BlobTxType {
		if err := validateBlobTx(tx, header, config); err != nil {
			return err
		}
	}

	return nil
}

// ValidateBlobTx exports validateBlobTx for the mempool's admission path
// (spec §4.G), which runs the same blob-shape and blob-fee-cap checks
// against the latest header rather than the block being executed.
func ValidateBlobTx(tx *types.Transaction, header *types.Header, config *chain.Config) error {
	return validateBlobTx(tx, header, config)
}

func validateBlobTx(tx *types.Transaction, header *types.Header, config *chain.Config) error {
	if tx.To() == nil {
		return ErrBlobTxCreate
	}
	hashes := tx.BlobHashes()
	if len(hashes) == 0 {
		return ErrMissingBlobHashes
	}
	if len(hashes) > fixedgas.MaxBlobsPerBlock {
		return fmt.Errorf("%w: %d blobs", ErrTooManyBlobs, len(hashes))
	}
	for _, h := range hashes {
		if h[0] != blobVersionedHashVersion {
			return ErrBlobHashWrongVersion
		}
	}
	if header.ExcessBlobGas != nil {
		blobFeeCap := tx.BlobGasFeeCap()
		if blobFeeCap != nil {
			blobBaseFee, err := misc.GetBlobGasPrice(config, *header.ExcessBlobGas)
			if err != nil {
				return err
			}
			feeCap256, overflow := uint256.FromBig(blobFeeCap)
			if overflow || feeCap256.Cmp(blobBaseFee) < 0 {
				return fmt.Errorf("%w: fee cap %s, blob base fee %s", ErrBlobFeeCapTooLow, blobFeeCap, blobBaseFee)
			}
		}
	}
	return nil
}

// txMaxCost is the maximum a transaction can debit the sender's balance
// for: value plus gas_limit at the fee cap plus blob gas at the blob fee
// cap, the figure validated against the sender's balance up front since
// the actual price paid is only known once the block's base fee is fixed.
// TxMaxCost exports txMaxCost for callers outside this package that need
// the same up-front balance check without running full validation (the
// mempool's admission check, spec §4.G).
func TxMaxCost(tx *types.Transaction) *big.Int { return txMaxCost(tx) }

func txMaxCost(tx *types.Transaction) *big.Int {
	cost := new(big.Int)
	if tx.Value() != nil {
		cost.Add(cost, tx.Value().ToBig())
	}
	price := tx.GasFeeCap()
	if price == nil {
		price = tx.GasPrice()
	}
	if price != nil {
		cost.Add(cost, new(big.Int).Mul(price, new(big.Int).SetUint64(tx.Gas())))
	}
	if blobFeeCap := tx.BlobGasFeeCap(); blobFeeCap != nil {
		blobGas := uint64(len(tx.BlobHashes())) * fixedgas.BlobGasPerBlob
		cost.Add(cost, new(big.Int).Mul(blobFeeCap, new(big.Int).SetUint64(blobGas)))
	}
	return cost
}

// ApplyTransaction runs one transaction's top-level call or create
// against evm and ibs, debiting gas up front and crediting the unused
// remainder back at the end (spec §4.D steps 3-5). gp is the block's
// shared gas pool: SubGas failing here means the block itself is invalid,
// distinct from the transaction merely running out of gas mid-execution.
func ApplyTransaction(evm *vm.EVM, ibs *state.IntraBlockState, gp *GasPool, sender common.Address, tx *types.Transaction) (*ExecutionResult, error) {
	if err := gp.SubGas(tx.Gas()); err != nil {
		return nil, err
	}

	effectivePrice := effectiveGasPriceUint256(tx, evm.BaseFee)

	gasCost := new(uint256.Int).Mul(effectivePrice, uint256.NewInt(tx.Gas()))
	ibs.SubBalance(sender, gasCost)
	ibs.SetNonce(sender, tx.Nonce()+1)

	precompiles := vm.ActivePrecompiles()
	if evm.BlockContext.Random != nil { // post-merge: Shanghai warms the coinbase
		precompiles = append(precompiles, evm.BlockContext.Coinbase)
	}
	ibs.Prepare(sender, tx.To(), precompiles, tx.AccessList())

	igas, err := IntrinsicGas(tx)
	if err != nil {
		return nil, err
	}
	gasRemaining := tx.Gas() - igas

	var (
		ret         []byte
		vmErr       error
		contractAddr *common.Address
	)
	if tx.To() == nil {
		var addr common.Address
		ret, addr, gasRemaining, vmErr = evm.Create(sender, tx.Data(), gasRemaining, tx.Value())
		contractAddr = &addr
	} else {
		ret, gasRemaining, vmErr = evm.Call(sender, *tx.To(), tx.Data(), gasRemaining, tx.Value())
	}

	gasUsed := tx.Gas() - gasRemaining
	refund := gasUsed / MaxRefundQuotient
	if counter := ibs.GetRefund(); counter < refund {
		refund = counter
	}
	gasRemaining += refund
	gasUsed = tx.Gas() - gasRemaining

	ibs.AddBalance(sender, new(uint256.Int).Mul(effectivePrice, uint256.NewInt(gasRemaining)))
	gp.AddGas(gasRemaining)

	if evm.BaseFee != nil {
		tip := new(uint256.Int)
		if effectivePrice.Cmp(evm.BaseFee) > 0 {
			tip = new(uint256.Int).Sub(effectivePrice, evm.BaseFee)
		}
		ibs.AddBalance(evm.BlockContext.Coinbase, new(uint256.Int).Mul(tip, uint256.NewInt(gasUsed)))
	} else {
		ibs.AddBalance(evm.BlockContext.Coinbase, new(uint256.Int).Mul(effectivePrice, uint256.NewInt(gasUsed)))
	}

	return &ExecutionResult{
		UsedGas:         gasUsed,
		RefundedGas:     refund,
		Err:             vmErr,
		ReturnData:      ret,
		ContractAddress: contractAddr,
	}, nil
}

// effectiveGasPriceUint256 is min(feeCap, baseFee+tipCap) for EIP-1559
// transactions, or the flat GasPrice for legacy/access-list transactions
// (spec §4.D step 5 "effective_gas_price").
func effectiveGasPriceUint256(tx *types.Transaction, baseFee *uint256.Int) *uint256.Int {
	if baseFee == nil {
		p := tx.GasPrice()
		if p == nil {
			return new(uint256.Int)
		}
		v, _ := uint256.FromBig(p)
		return v
	}
	tip := tx.GasTipCap()
	feeCap := tx.GasFeeCap()
	if tip == nil || feeCap == nil {
		p := tx.GasPrice()
		if p == nil {
			return new(uint256.Int)
		}
		v, _ := uint256.FromBig(p)
		return v
	}
	tipV, _ := uint256.FromBig(tip)
	feeCapV, _ := uint256.FromBig(feeCap)
	effective := new(uint256.Int).Add(baseFee, tipV)
	if effective.Cmp(feeCapV) > 0 {
		return feeCapV
	}
	return effective
}

// BuildReceipt assembles the receipt for one executed transaction (spec
// §4.D step 6). cumulativeGasUsed is the running total across the block
// up to and including this transaction.
func BuildReceipt(tx *types.Transaction, result *ExecutionResult, cumulativeGasUsed uint64, logs []*types.Log) *types.Receipt {
	r := &types.Receipt{
		Type:              tx.Type(),
		CumulativeGasUsed: cumulativeGasUsed,
		Logs:              logs,
		GasUsed:           result.UsedGas,
		TxHash:            [32]byte(tx.Hash()),
	}
	if result.Failed() {
		r.Status = types.ReceiptStatusFailed
	} else {
		r.Status = types.ReceiptStatusSuccessful
	}
	r.Bloom = types.CreateBloom(logs)
	return r
}
