// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package builder is the payload builder (spec §4.H): given a parent block
// and PayloadAttributes, it assembles a candidate block by repeatedly
// pulling the best-priced eligible transaction out of the mempool and
// executing it, until the gas limit or a time budget is hit, then answers
// get_payload with the finished block, its blob bundles, and block_value.
package builder

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/fenwicklabs/execution-core/consensus/misc"
	"github.com/fenwicklabs/execution-core/core"
	"github.com/fenwicklabs/execution-core/core/state"
	"github.com/fenwicklabs/execution-core/core/types"
	"github.com/fenwicklabs/execution-core/core/vm"
	"github.com/fenwicklabs/execution-core/erigon-lib/chain"
	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
	"github.com/fenwicklabs/execution-core/erigon-lib/kv"
	"github.com/fenwicklabs/execution-core/erigon-lib/rlp"
	"github.com/fenwicklabs/execution-core/trie"
	"github.com/fenwicklabs/execution-core/txpool"
	"github.com/fenwicklabs/execution-core/turbo/execution/eth1"
)

// BuildDeadline bounds how long StartBuild keeps adding transactions to a
// candidate before returning it as-is (spec §5: "payload builds carry a
// soft deadline after which further transactions stop being added but the
// partial block remains retrievable").
const BuildDeadline = 2 * time.Second

var ErrUnknownPayload = errors.New("builder: unknown payload id")

// Payload is a finished build: the assembled block, its blob bundles keyed
// by transaction hash, and the cumulative coinbase credit (spec §4.H
// get_payload's block_value).
type Payload struct {
	Block      *types.Block
	Receipts   types.Receipts
	Blobs      map[common.Hash]*txpool.BlobBundle
	BlockValue *uint256.Int
}

// Builder assembles candidate blocks against a Store/Pool pair and answers
// get_payload for builds it started (spec §4.H). It implements
// turbo/execution/eth1.Builder so a Manager can start builds without
// importing this package.
type Builder struct {
	store  *state.Store
	pool   *txpool.Pool
	config *chain.Config

	mu       sync.Mutex
	payloads map[eth1.PayloadID]*Payload
}

func New(store *state.Store, pool *txpool.Pool, config *chain.Config) *Builder {
	return &Builder{
		store:    store,
		pool:     pool,
		config:   config,
		payloads: make(map[eth1.PayloadID]*Payload),
	}
}

// StartBuild assembles one candidate block against parent under attrs and
// stores it under id for a later GetPayload call.
func (b *Builder) StartBuild(ctx context.Context, id eth1.PayloadID, parent common.Hash, attrs eth1.PayloadAttributes) error {
	deadline, cancel := context.WithTimeout(ctx, BuildDeadline)
	defer cancel()

	parentHeader, err := b.store.HeaderByHash(ctx, parent)
	if err != nil {
		return err
	}
	if parentHeader == nil {
		return fmt.Errorf("builder: unknown parent %s", parent)
	}

	var payload *Payload
	err = b.store.DB().View(deadline, func(tx kv.Tx) error {
		p, err := b.build(deadline, tx, parentHeader, attrs)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.payloads[id] = payload
	b.mu.Unlock()
	return nil
}

// GetPayload returns (and claims) the build stored under id (spec §4.H
// get_payload). A second call for the same id returns ErrUnknownPayload,
// matching the engine API's get-then-discard contract for a payload id.
func (b *Builder) GetPayload(id eth1.PayloadID) (*Payload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.payloads[id]
	if !ok {
		return nil, ErrUnknownPayload
	}
	delete(b.payloads, id)
	return p, nil
}

// build does the actual assembly work inside a read-only snapshot: it
// never writes to PlainState or persists new trie nodes (trie.NodeStore
// returned by state.NewKVNodeStore is read-only; CommitStateRoot's writes
// through it are discarded), since a candidate block isn't real state
// until core.ImportBlock later runs for real against the accepted block.
func (b *Builder) build(ctx context.Context, tx kv.Tx, parent *types.Header, attrs eth1.PayloadAttributes) (*Payload, error) {
	header, err := b.skeleton(parent, attrs)
	if err != nil {
		return nil, err
	}

	reader := state.NewPlainStateReader(tx)
	ibs := state.New(reader)
	gp := new(core.GasPool).AddGas(header.GasLimit)

	blockCtx := vm.BlockContext{
		Coinbase:    header.Coinbase,
		GasLimit:    header.GasLimit,
		BlockNumber: header.Number.Uint64(),
		Time:        header.Time,
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
	}
	if header.BaseFee != nil {
		blockCtx.BaseFee, _ = uint256.FromBig(header.BaseFee)
	}
	mix := header.MixDigest
	blockCtx.Random = &mix
	if header.ExcessBlobGas != nil {
		price, err := misc.GetBlobGasPrice(b.config, *header.ExcessBlobGas)
		if err != nil {
			return nil, err
		}
		blockCtx.BlobBaseFee = price
	}

	var (
		chosen     []*types.Transaction
		receipts   types.Receipts
		allLogs    []*types.Log
		blobs      = make(map[common.Hash]*txpool.BlobBundle)
		cumGasUsed uint64
		blockValue = new(uint256.Int)
	)

	runs := b.pool.Pending()
	cursor := make(map[common.Address]int, len(runs))

buildLoop:
	for {
		select {
		case <-ctx.Done():
			break buildLoop
		default:
		}

		best, sender, ok := nextBest(runs, cursor, header, blockCtx.BaseFee)
		if !ok {
			break
		}
		cursor[sender]++

		if best.Gas() > gp.Gas() {
			continue
		}

		signer := types.LatestSigner(b.config.ChainID)
		txSender, err := signer.Sender(best)
		if err != nil || txSender != sender {
			continue
		}
		if err := core.ValidateTransaction(best, sender, ibs, header, b.config); err != nil {
			continue
		}

		txCtx := vm.TxContext{Origin: sender, GasPrice: effectiveTip(best, blockCtx.BaseFee)}
		if hashes := best.BlobHashes(); len(hashes) > 0 {
			txCtx.BlobHashes = hashes
		}

		coinbaseBefore := new(uint256.Int).Set(ibs.GetBalance(header.Coinbase))
		evm := vm.NewEVM(blockCtx, txCtx, ibs, b.config)
		result, err := core.ApplyTransaction(evm, ibs, gp, sender, best)
		if err != nil {
			continue
		}
		credit := new(uint256.Int).Sub(ibs.GetBalance(header.Coinbase), coinbaseBefore)
		blockValue.Add(blockValue, credit)

		cumGasUsed += result.UsedGas
		logs := ibs.GetLogs()
		receipt := core.BuildReceipt(best, result, cumGasUsed, logs)
		receipt.BlockNumber = header.Number.Uint64()
		receipt.TransactionIndex = uint(len(chosen))
		if result.ContractAddress != nil {
			receipt.ContractAddress = *result.ContractAddress
		}

		chosen = append(chosen, best)
		receipts = append(receipts, receipt)
		allLogs = append(allLogs, logs...)
		if best.Type() == types.BlobTxType {
			if bundle, ok := b.pool.Blobs(best.Hash()); ok {
				blobs[best.Hash()] = bundle
			}
		}
	}

	if err := core.ApplyWithdrawals(ibs, attrs.Withdrawals); err != nil {
		return nil, err
	}
	updates, err := ibs.Finalise(state.NoopWriter{})
	if err != nil {
		return nil, err
	}
	stateRoot, err := state.CommitStateRoot(state.NewKVNodeStore(tx), parent.Root, updates)
	if err != nil {
		return nil, err
	}

	txRoot, err := core.DeriveTransactionsRoot(chosen)
	if err != nil {
		return nil, err
	}
	receiptRoot, err := types.DeriveReceiptsRoot(receipts, newMemTrie)
	if err != nil {
		return nil, err
	}
	withdrawalsRoot, err := types.DeriveWithdrawalsRoot(attrs.Withdrawals, newMemTrie)
	if err != nil {
		return nil, err
	}

	header.Root = stateRoot
	header.TxHash = txRoot
	header.ReceiptHash = receiptRoot
	header.Bloom = types.CreateBloom(allLogs)
	header.GasUsed = cumGasUsed
	header.WithdrawalsHash = &withdrawalsRoot

	block := types.NewBlock(header, chosen, nil, attrs.Withdrawals)
	return &Payload{Block: block, Receipts: receipts, Blobs: blobs, BlockValue: blockValue}, nil
}

// skeleton builds the unfinished header spec §4.H calls "a header skeleton
// from PayloadAttributes": everything derivable before any transaction
// runs.
func (b *Builder) skeleton(parent *types.Header, attrs eth1.PayloadAttributes) (*types.Header, error) {
	uncleHash, err := emptyUncleHash()
	if err != nil {
		return nil, err
	}
	header := &types.Header{
		ParentHash:            parent.Hash(),
		UncleHash:             uncleHash,
		Coinbase:              attrs.SuggestedFeeRecipient,
		Number:                new(big.Int).Add(parent.Number, big.NewInt(1)),
		GasLimit:              parent.GasLimit,
		Time:                  attrs.Timestamp,
		MixDigest:             attrs.PrevRandao,
		ParentBeaconBlockRoot: attrs.ParentBeaconBlockRoot,
	}
	if b.config.IsLondon(header.Number) {
		header.BaseFee = misc.CalcBaseFee(parent)
	}
	if attrs.ParentBeaconBlockRoot != nil {
		excess := misc.CalcExcessBlobGas(b.config, parent)
		header.ExcessBlobGas = &excess
		used := uint64(0)
		header.BlobGasUsed = &used
	}
	return header, nil
}

// nextBest scans every sender's remaining run for the one eligible
// transaction with the highest effective tip under baseFee, spec §4.H
// "repeatedly takes the best-priced eligible transaction." A sender's run
// only advances past a transaction once it has been chosen or skipped, so
// nonce order within a sender is preserved.
func nextBest(runs map[common.Address][]*types.Transaction, cursor map[common.Address]int, header *types.Header, baseFee *uint256.Int) (*types.Transaction, common.Address, bool) {
	var (
		best       *types.Transaction
		bestSender common.Address
		bestTip    *uint256.Int
	)
	senders := make([]common.Address, 0, len(runs))
	for sender := range runs {
		senders = append(senders, sender)
	}
	sort.Slice(senders, func(i, j int) bool { return senders[i].Hex() < senders[j].Hex() })

	for _, sender := range senders {
		run := runs[sender]
		i := cursor[sender]
		if i >= len(run) {
			continue
		}
		tx := run[i]
		if tx.Gas() > header.GasLimit {
			continue
		}
		tip := effectiveTip(tx, baseFee)
		if best == nil || tip.Cmp(bestTip) > 0 {
			best, bestSender, bestTip = tx, sender, tip
		}
	}
	return best, bestSender, best != nil
}

func effectiveTip(tx *types.Transaction, baseFee *uint256.Int) *uint256.Int {
	feeCap := tx.GasFeeCap()
	tip := tx.GasTipCap()
	if baseFee == nil || tip == nil || feeCap == nil {
		p := tx.GasPrice()
		if p == nil {
			return new(uint256.Int)
		}
		v, _ := uint256.FromBig(p)
		return v
	}
	tipV, _ := uint256.FromBig(tip)
	feeCapV, _ := uint256.FromBig(feeCap)
	available := new(uint256.Int).Sub(feeCapV, baseFee)
	if available.Sign() < 0 {
		return new(uint256.Int)
	}
	if tipV.Cmp(available) < 0 {
		return tipV
	}
	return available
}

func newMemTrie() types.ReceiptTrie {
	t, _ := trie.New(common.Hash{}, trie.NewMemoryNodeStore())
	return t
}

func emptyUncleHash() (common.Hash, error) {
	enc, err := rlp.EncodeToBytes([]*types.Header{})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}
