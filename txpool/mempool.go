// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package txpool is the mempool: pending transactions keyed by hash and
// indexed by sender/nonce, admitted under a looser nonce tolerance than
// block execution uses (spec §4.G).
package txpool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/fenwicklabs/execution-core/core"
	"github.com/fenwicklabs/execution-core/core/state"
	"github.com/fenwicklabs/execution-core/core/types"
	"github.com/fenwicklabs/execution-core/erigon-lib/chain"
	"github.com/fenwicklabs/execution-core/erigon-lib/common"
)

// Mempool rejection reasons, spec §7 "Mempool rejection".
var (
	ErrAlreadyKnown      = errors.New("transaction already known")
	ErrNonceTooLow       = errors.New("nonce too low")
	ErrUnderpriced       = errors.New("transaction underpriced")
	ErrGasLimitTooHigh   = errors.New("gas limit too high")
	ErrBalanceTooLow     = errors.New("balance too low")
	ErrBlobQuotaExceeded = errors.New("blob quota exceeded")
	ErrInvalidSignature  = errors.New("invalid signature")
)

// BlobBundle is a type-3 transaction's sidecar (blobs, KZG commitments
// and proofs). It is stored apart from the transaction itself, mirroring
// spec §4.B's separate mempool_tx/mempool_blobs tables and SPEC_FULL §C.5:
// blobs are never gossipped with the transaction body and a builder only
// needs them at GetPayload time.
type BlobBundle struct {
	Blobs       [][]byte
	Commitments [][]byte
	Proofs      [][]byte
}

type entry struct {
	tx     *types.Transaction
	sender common.Address
	blobs  *BlobBundle
}

// Pool is the process-wide mempool. One exclusive lock guards every map;
// per spec §5 the lock is never held across EVM execution - Add/Remove/
// Filter only ever touch in-memory bookkeeping.
type Pool struct {
	mu       sync.Mutex
	config   *chain.Config
	byHash   map[common.Hash]*entry
	bySender map[common.Address]map[uint64]*entry
	// present tracks, per sender, which nonces currently sit in the pool,
	// so Filter can walk the contiguous run from the lowest held nonce in
	// O(run length) instead of scanning and sorting bySender's map on
	// every call (SPEC_FULL §B: RoaringBitmap serves exactly this).
	present map[common.Address]*roaring64.Bitmap
	blobs   map[common.Hash]*BlobBundle
}

func New(config *chain.Config) *Pool {
	return &Pool{
		config:   config,
		byHash:   make(map[common.Hash]*entry),
		bySender: make(map[common.Address]map[uint64]*entry),
		present:  make(map[common.Address]*roaring64.Bitmap),
		blobs:    make(map[common.Hash]*BlobBundle),
	}
}

// Add admits tx into the pool. latest is a reader over the current head's
// post-state (not the block being built), header is the latest canonical
// header (its GasLimit/BaseFee/ExcessBlobGas are the reference point for
// the checks below), and bundle is non-nil only for a type-3 transaction.
func (p *Pool) Add(tx *types.Transaction, bundle *BlobBundle, latest state.StateReader, header *types.Header) error {
	hash := tx.Hash()

	signer := types.LatestSigner(p.config.ChainID)
	sender, err := signer.Sender(tx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byHash[hash]; ok {
		return ErrAlreadyKnown
	}
	if err := p.validate(tx, sender, latest, header); err != nil {
		return err
	}

	e := &entry{tx: tx, sender: sender, blobs: bundle}
	p.byHash[hash] = e
	m, ok := p.bySender[sender]
	if !ok {
		m = make(map[uint64]*entry)
		p.bySender[sender] = m
	}
	m[tx.Nonce()] = e

	bm, ok := p.present[sender]
	if !ok {
		bm = roaring64.New()
		p.present[sender] = bm
	}
	bm.Add(tx.Nonce())

	if tx.Type() == types.BlobTxType && bundle != nil {
		p.blobs[hash] = bundle
	}
	return nil
}

// validate runs the admission checks of spec §4.D step 2 against latest
// state, with the two deviations spec §4.G calls out: reference state is
// the pool's notion of "latest" rather than the block being executed, and
// nonce admission is "≥ account nonce" rather than strict equality (so a
// sender can queue several transactions ahead of the one that will run
// next).
func (p *Pool) validate(tx *types.Transaction, sender common.Address, latest state.StateReader, header *types.Header) error {
	acc, err := latest.ReadAccountData(sender)
	if err != nil {
		return err
	}
	if acc != nil && acc.CodeHash != common.EmptyCodeHash {
		return core.ErrSenderNoEOA
	}
	var nonce uint64
	if acc != nil {
		nonce = acc.Nonce
	}
	if tx.Nonce() < nonce {
		return fmt.Errorf("%w: tx %d, account %d", ErrNonceTooLow, tx.Nonce(), nonce)
	}

	if tx.Gas() > header.GasLimit {
		return fmt.Errorf("%w: tx %d, block %d", ErrGasLimitTooHigh, tx.Gas(), header.GasLimit)
	}

	igas, err := core.IntrinsicGas(tx)
	if err != nil {
		return err
	}
	if tx.Gas() < igas {
		return fmt.Errorf("%w: intrinsic gas %d exceeds gas limit %d", ErrUnderpriced, igas, tx.Gas())
	}

	if header.BaseFee != nil {
		if feeCap := tx.GasFeeCap(); feeCap != nil && feeCap.Sign() > 0 && feeCap.Cmp(header.BaseFee) < 0 {
			return fmt.Errorf("%w: fee cap %s below base fee %s", ErrUnderpriced, feeCap, header.BaseFee)
		}
	}

	cost := core.TxMaxCost(tx)
	if acc == nil || acc.Balance == nil || acc.Balance.ToBig().Cmp(cost) < 0 {
		return fmt.Errorf("%w: want %s", ErrBalanceTooLow, cost)
	}

	if tx.Type() == types.BlobTxType {
		if err := core.ValidateBlobTx(tx, header, p.config); err != nil {
			return fmt.Errorf("%w: %v", ErrBlobQuotaExceeded, err)
		}
	}
	return nil
}

// Remove evicts a transaction by hash, spec §4.G "evicts on explicit
// removal by the block processor after inclusion".
func (p *Pool) Remove(hash common.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.byHash[hash]
	if !ok {
		return
	}
	delete(p.byHash, hash)
	delete(p.blobs, hash)

	if m := p.bySender[e.sender]; m != nil {
		delete(m, e.tx.Nonce())
		if len(m) == 0 {
			delete(p.bySender, e.sender)
		}
	}
	if bm := p.present[e.sender]; bm != nil {
		bm.Remove(e.tx.Nonce())
		if bm.IsEmpty() {
			delete(p.present, e.sender)
		}
	}
}

// Blobs returns the blob bundle stored for hash, if any.
func (p *Pool) Blobs(hash common.Hash) (*BlobBundle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blobs[hash]
	return b, ok
}

// Filter returns, for every sender with at least one transaction passing
// predicate, the contiguous nonce-ordered run starting at that sender's
// lowest pooled nonce - the shape spec §4.G's filter and the payload
// builder's "nonce matches current cached nonce" both need. A gap (a
// nonce not present, or one predicate rejects) ends that sender's run;
// later, higher nonces are withheld since they cannot execute before it.
func (p *Pool) Filter(predicate func(tx *types.Transaction) bool) map[common.Address][]*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[common.Address][]*types.Transaction, len(p.bySender))
	for sender, bm := range p.present {
		if bm.IsEmpty() {
			continue
		}
		txs := p.bySender[sender]
		var run []*types.Transaction
		for n := bm.Minimum(); bm.Contains(n); n++ {
			e := txs[n]
			if e == nil {
				break
			}
			if predicate != nil && !predicate(e.tx) {
				break
			}
			run = append(run, e.tx)
		}
		if len(run) > 0 {
			out[sender] = run
		}
	}
	return out
}

// Pending is Filter with no predicate, with each sender's run sorted by
// nonce. The order of senders in the returned map is not defined.
func (p *Pool) Pending() map[common.Address][]*types.Transaction {
	all := p.Filter(nil)
	for _, txs := range all {
		sort.Slice(txs, func(i, j int) bool { return txs[i].Nonce() < txs[j].Nonce() })
	}
	return all
}

// Len reports the number of distinct transactions held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byHash)
}
