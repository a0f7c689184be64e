// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/fenwicklabs/execution-core/consensus/misc"
	"github.com/fenwicklabs/execution-core/core/state"
	"github.com/fenwicklabs/execution-core/core/types"
	"github.com/fenwicklabs/execution-core/core/vm"
	"github.com/fenwicklabs/execution-core/erigon-lib/chain"
	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/kv"
	"github.com/fenwicklabs/execution-core/erigon-lib/rlp"
	"github.com/fenwicklabs/execution-core/trie"
)

var (
	ErrHeaderGasUsedMismatch    = errors.New("header gas used mismatch")
	ErrHeaderReceiptRootMismatch = errors.New("header receipt root mismatch")
	ErrHeaderStateRootMismatch  = errors.New("header state root mismatch")
	ErrHeaderTxRootMismatch     = errors.New("header transaction root mismatch")
	ErrHeaderBloomMismatch      = errors.New("header bloom mismatch")
	ErrWithdrawalsWithoutShanghai = errors.New("withdrawals present before shanghai")
)

// ProcessResult is everything ProcessBlock produces: per-transaction
// receipts plus the GetHash-style state root a caller can compare against
// the block's header (spec §4.E "Block processing").
type ProcessResult struct {
	Receipts types.Receipts
	Logs     []*types.Log
	GasUsed  uint64
	Root     common.Hash
}

// GetHashFunc resolves a historical block hash by number, for the BLOCKHASH
// opcode and the EVM's BlockContext.GetHash.
type GetHashFunc func(blockNumber uint64) common.Hash

// ProcessBlock runs every transaction in block against ibs in order,
// applies withdrawals, and flushes the resulting AccountUpdate stream to
// writer and nodeStore, returning the receipts and new state root (spec
// §4.E steps 1-6). It does not itself compare the result against block's
// header (call ValidateBlock for that) or persist the block itself (call
// state.WriteBlock, normally via ImportBlock, for step 7).
func ProcessBlock(config *chain.Config, block *types.Block, ibs *state.IntraBlockState, writer state.StateWriter, parentRoot common.Hash, getHash GetHashFunc, nodeStore trie.NodeStore) (*ProcessResult, error) {
	header := block.Header()
	gp := new(GasPool).AddGas(header.GasLimit)

	blockCtx := vm.BlockContext{
		Coinbase:    header.Coinbase,
		GasLimit:    header.GasLimit,
		BlockNumber: header.Number.Uint64(),
		Time:        header.Time,
		GetHash:     getHash,
	}
	if header.Difficulty != nil {
		blockCtx.Difficulty, _ = uint256.FromBig(header.Difficulty)
	}
	if header.BaseFee != nil {
		blockCtx.BaseFee, _ = uint256.FromBig(header.BaseFee)
	}
	if header.MixDigest != (common.Hash{}) {
		mix := header.MixDigest
		blockCtx.Random = &mix
	}
	if header.ExcessBlobGas != nil {
		price, err := blobBasePrice(config, *header.ExcessBlobGas)
		if err != nil {
			return nil, err
		}
		blockCtx.BlobBaseFee = price
	}

	var (
		receipts    types.Receipts
		allLogs     []*types.Log
		cumGasUsed  uint64
		logStart    int
	)

	for i, tx := range block.Transactions() {
		signer := types.LatestSigner(config.ChainID)
		sender, err := signer.Sender(tx)
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		if err := ValidateTransaction(tx, sender, ibs, header, config); err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}

		txCtx := vm.TxContext{Origin: sender, GasPrice: effectiveGasPriceUint256(tx, blockCtx.BaseFee)}
		if hashes := tx.BlobHashes(); len(hashes) > 0 {
			txCtx.BlobHashes = hashes
		}

		evm := vm.NewEVM(blockCtx, txCtx, ibs, config)
		result, err := ApplyTransaction(evm, ibs, gp, sender, tx)
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}

		cumGasUsed += result.UsedGas
		logs := ibs.GetLogs()[logStart:]
		for j, l := range logs {
			l.BlockNumber = header.Number.Uint64()
			l.TxHash = tx.Hash()
			l.TxIndex = uint(i)
			l.BlockHash = block.Hash()
			l.Index = uint(logStart + j)
		}
		logStart += len(logs)
		receipt := BuildReceipt(tx, result, cumGasUsed, logs)
		receipt.BlockHash = [32]byte(block.Hash())
		receipt.BlockNumber = header.Number.Uint64()
		receipt.TransactionIndex = uint(i)
		if result.ContractAddress != nil {
			receipt.ContractAddress = *result.ContractAddress
		}

		receipts = append(receipts, receipt)
		allLogs = append(allLogs, logs...)
	}

	if err := ApplyWithdrawals(ibs, block.Withdrawals()); err != nil {
		return nil, err
	}

	updates, err := ibs.Finalise(writer)
	if err != nil {
		return nil, err
	}

	if err := state.ApplyAccountUpdates(writer, updates); err != nil {
		return nil, err
	}

	root, err := state.CommitStateRoot(nodeStore, parentRoot, updates)
	if err != nil {
		return nil, err
	}

	return &ProcessResult{
		Receipts: receipts,
		Logs:     allLogs,
		GasUsed:  cumGasUsed,
		Root:     root,
	}, nil
}

// ApplyWithdrawals credits each withdrawal's amount (given in Gwei, per
// the consensus-layer wire format) to its address. Withdrawals consume no
// gas and never touch the sender-side nonce/balance-check machinery a
// transaction does (spec §4.E "Withdrawals").
func ApplyWithdrawals(ibs *state.IntraBlockState, withdrawals types.Withdrawals) error {
	for _, w := range withdrawals {
		amountWei := new(uint256.Int).Mul(uint256.NewInt(w.Amount), uint256.NewInt(1_000_000_000))
		ibs.AddBalance(w.Address, amountWei)
	}
	return nil
}

// ValidateBlock checks a processed block's receipts/gas/logs against the
// values its header claims, the final gate before a block is considered
// canonical (spec §4.E "Header verification").
func ValidateBlock(block *types.Block, result *ProcessResult) error {
	header := block.Header()
	if result.GasUsed != header.GasUsed {
		return fmt.Errorf("%w: have %d, want %d", ErrHeaderGasUsedMismatch, result.GasUsed, header.GasUsed)
	}

	receiptRoot, err := types.DeriveReceiptsRoot(result.Receipts, newMemTrie)
	if err != nil {
		return err
	}
	if receiptRoot != header.ReceiptHash {
		return fmt.Errorf("%w: have %s, want %s", ErrHeaderReceiptRootMismatch, receiptRoot, header.ReceiptHash)
	}

	bloom := types.CreateBloom(result.Logs)
	if bloom != header.Bloom {
		return ErrHeaderBloomMismatch
	}

	txRoot, err := DeriveTransactionsRoot(block.Transactions())
	if err != nil {
		return err
	}
	if txRoot != header.TxHash {
		return fmt.Errorf("%w: have %s, want %s", ErrHeaderTxRootMismatch, txRoot, header.TxHash)
	}

	if header.WithdrawalsHash == nil && len(block.Withdrawals()) > 0 {
		return ErrWithdrawalsWithoutShanghai
	}

	if result.Root != header.Root {
		return fmt.Errorf("%w: have %s, want %s", ErrHeaderStateRootMismatch, result.Root, header.Root)
	}
	return nil
}

// DeriveTransactionsRoot builds the Merkle-Patricia trie keyed by
// RLP(index) over the transactions' canonical (EIP-2718 typed) encoding.
func DeriveTransactionsRoot(txs []*types.Transaction) (common.Hash, error) {
	t, err := trie.New(common.Hash{}, trie.NewMemoryNodeStore())
	if err != nil {
		return common.Hash{}, err
	}
	for i, tx := range txs {
		key, err := rlp.EncodeToBytes(uint64(i))
		if err != nil {
			return common.Hash{}, err
		}
		enc, err := tx.MarshalBinary()
		if err != nil {
			return common.Hash{}, err
		}
		if err := t.Put(key, enc); err != nil {
			return common.Hash{}, err
		}
	}
	return t.Hash(), nil
}

func newMemTrie() types.ReceiptTrie {
	t, _ := trie.New(common.Hash{}, trie.NewMemoryNodeStore())
	return t
}

// ImportBlock is the full spec §4.E pipeline for one block: process,
// validate against the header, then atomically commit body/header/
// receipts/tx-lookup/trie+storage nodes/code to store (step 7). The block
// is stored but left non-canonical; HeaderCanonical and the head/safe/
// finalized pointers are a fork-choice update's job (spec §4.F), not
// this one's.
func ImportBlock(ctx context.Context, config *chain.Config, store *state.Store, block *types.Block, parentRoot common.Hash, getHash GetHashFunc) (*ProcessResult, error) {
	var result *ProcessResult
	err := store.DB().Update(ctx, func(tx kv.RwTx) error {
		reader := state.NewPlainStateReader(tx)
		writer := state.NewPlainStateWriter(tx)
		ibs := state.New(reader)
		nodeStore := state.NewKVNodeStoreRW(tx)

		res, err := ProcessBlock(config, block, ibs, writer, parentRoot, getHash, nodeStore)
		if err != nil {
			return fmt.Errorf("process block %d: %w", block.Number(), err)
		}
		if err := ValidateBlock(block, res); err != nil {
			return err
		}
		if err := state.WriteBlock(tx, block, res.Receipts); err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

// blobBasePrice is a thin name for misc.GetBlobGasPrice, kept local so
// callers above read as block-processor logic rather than a consensus/misc
// import.
func blobBasePrice(config *chain.Config, excessBlobGas uint64) (*uint256.Int, error) {
	return misc.GetBlobGasPrice(config, excessBlobGas)
}
