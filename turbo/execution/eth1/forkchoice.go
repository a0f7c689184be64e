// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package eth1 is the fork-choice and canonical-chain manager (spec §4.F):
// it takes the consensus layer's (head, safe, finalized) triple, walks the
// header chain to find where head reconnects to what is already canonical,
// and rewrites HeaderCanonical plus the three chain pointers in one atomic
// pass. Grounded on erigon's execution/eth1 fork-choice handling.
package eth1

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fenwicklabs/execution-core/core/state"
	"github.com/fenwicklabs/execution-core/core/types"
	"github.com/fenwicklabs/execution-core/erigon-lib/chain"
	"github.com/fenwicklabs/execution-core/erigon-lib/common"
	"github.com/fenwicklabs/execution-core/erigon-lib/crypto"
	"github.com/fenwicklabs/execution-core/erigon-lib/kv"
	"github.com/fenwicklabs/execution-core/trie"
)

// Status mirrors engine_forkchoiceUpdated's payloadStatus.status (spec §6).
type Status string

const (
	StatusValid   Status = "VALID"
	StatusInvalid Status = "INVALID"
	StatusSyncing Status = "SYNCING"
)

var (
	// ErrInvalidHeadHash is returned for a zero head hash, spec §4.F step 1.
	ErrInvalidHeadHash = errors.New("fork choice: invalid head hash")
	// ErrSyncing is returned when head, safe or finalized cannot be
	// resolved to a known header, spec §4.F step 2.
	ErrSyncing = errors.New("fork choice: syncing")
	// ErrUnordered is returned when finalized/safe/head are not
	// non-decreasing by number, spec §4.F step 3.
	ErrUnordered = errors.New("fork choice: finalized/safe/head out of order")
	// ErrPreMergeBlock is returned for a head past genesis with non-zero
	// difficulty when the chain config sets no terminal total difficulty,
	// spec §4.F step 4. The head's total difficulty is not compared
	// against the configured terminal value.
	ErrPreMergeBlock = errors.New("fork choice: block is pre-merge")
	// ErrNewHeadAlreadyCanonical is returned (alongside a VALID result)
	// when head is already the tracked latest block, spec §4.F step 5.
	ErrNewHeadAlreadyCanonical = errors.New("fork choice: new head already canonical")
)

// DisconnectedError reports which of head/safe/finalized failed to land on
// the rewritten canonical chain, spec §4.F steps 6-7.
type DisconnectedError struct {
	Head, Safe, Finalized bool
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("fork choice: disconnected (head=%v safe=%v finalized=%v)", e.Head, e.Safe, e.Finalized)
}

// ForkChoiceState is the (head, safe, finalized) triple the consensus
// layer delivers with engine_forkchoiceUpdated (spec §4.F).
type ForkChoiceState struct {
	HeadHash      common.Hash
	SafeHash      common.Hash
	FinalizedHash common.Hash
}

// PayloadAttributes requests a local build alongside a fork-choice update
// (spec §4.F step 9, §6 engine_forkchoiceUpdated).
type PayloadAttributes struct {
	Timestamp             uint64
	PrevRandao            common.Hash
	SuggestedFeeRecipient common.Address
	Withdrawals           types.Withdrawals
	ParentBeaconBlockRoot *common.Hash
}

// PayloadID identifies a build started from a fork-choice update: spec
// §4.F step 9's hash(head||timestamp||prev_randao||fee_recipient||
// beacon_root||withdrawals_root)[..8].
type PayloadID [8]byte

func (id PayloadID) String() string { return fmt.Sprintf("%x", id[:]) }

// NewPayloadID derives a PayloadID per spec §4.F step 9.
func NewPayloadID(head common.Hash, attrs *PayloadAttributes, withdrawalsRoot common.Hash) PayloadID {
	var beaconRoot common.Hash
	if attrs.ParentBeaconBlockRoot != nil {
		beaconRoot = *attrs.ParentBeaconBlockRoot
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], attrs.Timestamp)
	h := crypto.Keccak256(head.Bytes(), ts[:], attrs.PrevRandao.Bytes(),
		attrs.SuggestedFeeRecipient.Bytes(), beaconRoot.Bytes(), withdrawalsRoot.Bytes())
	var id PayloadID
	copy(id[:], h[:8])
	return id
}

// Builder is the narrow handoff surface spec §4.F step 9 needs from the
// payload builder (Module H): start assembling a candidate block from
// parent under attrs, identified by id. Kept as an interface here (rather
// than importing turbo/builder directly) so eth1 and builder don't form an
// import cycle - whichever caller constructs both wires the concrete type
// in.
type Builder interface {
	StartBuild(ctx context.Context, id PayloadID, parent common.Hash, attrs PayloadAttributes) error
}

// Result mirrors engine_forkchoiceUpdated's response shape (spec §6).
type Result struct {
	Status          Status
	LatestValidHash common.Hash
	PayloadID       *PayloadID
}

// Manager applies fork-choice updates against a Store, spec §4.F's
// "Fork-Choice & Canonical-Chain Manager".
type Manager struct {
	store   *state.Store
	config  *chain.Config
	builder Builder
}

// NewManager builds a Manager. builder may be nil if no payload builds
// will ever be requested through this Manager.
func NewManager(store *state.Store, config *chain.Config, builder Builder) *Manager {
	return &Manager{store: store, config: config, builder: builder}
}

// Apply runs the spec §4.F algorithm end to end. attrs is nil when the
// consensus layer isn't requesting a payload build alongside this update.
func (m *Manager) Apply(ctx context.Context, fcs ForkChoiceState, attrs *PayloadAttributes) (*Result, error) {
	if fcs.HeadHash == (common.Hash{}) {
		return nil, ErrInvalidHeadHash
	}

	head, err := m.store.HeaderByHash(ctx, fcs.HeadHash)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return &Result{Status: StatusSyncing}, ErrSyncing
	}

	safe, err := m.resolveOptional(ctx, fcs.SafeHash)
	if err != nil {
		return nil, err
	}
	finalized, err := m.resolveOptional(ctx, fcs.FinalizedHash)
	if err != nil {
		return nil, err
	}

	if err := checkOrder(head, safe, finalized); err != nil {
		return nil, err
	}

	// Merge-boundary check: post-merge headers fix Difficulty at zero. A
	// non-zero difficulty past genesis is rejected only when no terminal
	// total difficulty is configured; with one configured, such a head
	// passes without a total-difficulty comparison (spec §4.F step 4).
	if head.Number.Sign() != 0 && head.Difficulty != nil && head.Difficulty.Sign() != 0 {
		if m.config.TerminalTotalDifficulty == nil {
			return nil, ErrPreMergeBlock
		}
	}

	latestHash, _, err := m.store.HeadHash(ctx)
	if err != nil {
		return nil, err
	}

	// Fast path (SPEC_FULL §C.1, grounded on original_source/ethrex's
	// fork_choice.rs): head is already the tracked latest block, so there
	// is nothing to walk or rewrite.
	if latestHash == fcs.HeadHash {
		result, err := m.maybeStartBuild(ctx, fcs.HeadHash, attrs)
		if err != nil {
			return nil, err
		}
		result.Status, result.LatestValidHash = StatusValid, fcs.HeadHash
		return result, ErrNewHeadAlreadyCanonical
	}

	alreadyCanonical := false
	err = m.store.DB().Update(ctx, func(tx kv.RwTx) error {
		if canon, ok, err := state.CanonicalHash(tx, head.Number.Uint64()); err != nil {
			return err
		} else if ok && canon == fcs.HeadHash {
			alreadyCanonical = true
			return nil
		}

		reconnect, prevLatestNumber, err := walkToCanonical(tx, head)
		if err != nil {
			return err
		}

		disc := &DisconnectedError{}
		if safe != nil && !onCanonicalPath(tx, reconnect, safe) {
			disc.Safe = true
		}
		if finalized != nil && !onCanonicalPath(tx, reconnect, finalized) {
			disc.Finalized = true
		}
		if disc.Safe || disc.Finalized {
			return disc
		}

		for _, h := range reconnect {
			if err := state.SetCanonical(tx, h.Number.Uint64(), h.Hash()); err != nil {
				return err
			}
		}
		for n := head.Number.Uint64() + 1; n <= prevLatestNumber; n++ {
			if err := state.UnsetCanonical(tx, n); err != nil {
				return err
			}
		}

		if err := state.UpdateLatest(tx, fcs.HeadHash); err != nil {
			return err
		}
		if safe != nil {
			if err := state.UpdateSafe(tx, fcs.SafeHash); err != nil {
				return err
			}
		}
		if finalized != nil {
			if err := state.UpdateFinalized(tx, fcs.FinalizedHash); err != nil {
				return err
			}
		}
		return nil
	})

	var discErr *DisconnectedError
	if errors.As(err, &discErr) {
		return nil, discErr
	}
	if err != nil {
		return nil, err
	}
	if alreadyCanonical {
		result, err := m.maybeStartBuild(ctx, fcs.HeadHash, attrs)
		if err != nil {
			return nil, err
		}
		result.Status, result.LatestValidHash = StatusValid, fcs.HeadHash
		return result, ErrNewHeadAlreadyCanonical
	}

	result, err := m.maybeStartBuild(ctx, fcs.HeadHash, attrs)
	if err != nil {
		return nil, err
	}
	result.Status, result.LatestValidHash = StatusValid, fcs.HeadHash
	return result, nil
}

func (m *Manager) resolveOptional(ctx context.Context, hash common.Hash) (*types.Header, error) {
	if hash == (common.Hash{}) {
		return nil, nil
	}
	h, err := m.store.HeaderByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrSyncing
	}
	return h, nil
}

func checkOrder(head, safe, finalized *types.Header) error {
	if safe != nil && safe.Number.Cmp(head.Number) > 0 {
		return ErrUnordered
	}
	if finalized != nil && finalized.Number.Cmp(head.Number) > 0 {
		return ErrUnordered
	}
	if safe != nil && finalized != nil && finalized.Number.Cmp(safe.Number) > 0 {
		return ErrUnordered
	}
	return nil
}

// walkToCanonical walks head's ancestry back to the first header already
// marked canonical at its own number, returning every header walked
// (head first) plus the number the canonical chain previously reached -
// the reconnection set spec §4.F step 6 builds before rewriting
// HeaderCanonical. Failure to reach a canonical ancestor - an orphaned
// chain segment - is reported as Disconnected(Head), step 6's "could not
// reconnect" case.
func walkToCanonical(tx kv.RwTx, head *types.Header) ([]*types.Header, uint64, error) {
	prevLatestNumber := uint64(0)
	if n, ok, err := highestCanonical(tx); err != nil {
		return nil, 0, err
	} else if ok {
		prevLatestNumber = n
	}

	var reconnect []*types.Header
	current := head
	for {
		number := current.Number.Uint64()
		hash := current.Hash()
		if canon, ok, err := state.CanonicalHash(tx, number); err != nil {
			return nil, 0, err
		} else if ok && canon == hash {
			break
		}
		reconnect = append(reconnect, current)
		if number == 0 {
			break
		}
		parent, err := headerByHashTx(tx, current.ParentHash)
		if err != nil {
			return nil, 0, err
		}
		if parent == nil {
			return nil, 0, &DisconnectedError{Head: true}
		}
		current = parent
	}
	return reconnect, prevLatestNumber, nil
}

// highestCanonical reports the number the canonical chain reached before
// this update, read off ChainHead rather than scanning HeaderCanonical.
func highestCanonical(tx kv.RwTx) (uint64, bool, error) {
	hash, ok, err := func() (common.Hash, bool, error) {
		enc, err := tx.GetOne(kv.ChainHead, pointerKey)
		if err != nil || enc == nil {
			return common.Hash{}, false, err
		}
		return common.BytesToHash(enc), true, nil
	}()
	if err != nil || !ok {
		return 0, ok, err
	}
	number, ok, err := state.ReadHeaderNumber(tx, hash)
	return number, ok, err
}

var pointerKey = []byte("v")

func headerByHashTx(tx kv.Tx, hash common.Hash) (*types.Header, error) {
	number, ok, err := state.ReadHeaderNumber(tx, hash)
	if err != nil || !ok {
		return nil, err
	}
	return state.ReadHeader(tx, number, hash)
}

// onCanonicalPath reports whether target is part of the just-walked
// reconnection set, or was already canonical below it.
func onCanonicalPath(tx kv.Tx, reconnect []*types.Header, target *types.Header) bool {
	targetHash := target.Hash()
	for _, h := range reconnect {
		if h.Hash() == targetHash {
			return true
		}
	}
	canon, ok, err := state.CanonicalHash(tx, target.Number.Uint64())
	return err == nil && ok && canon == targetHash
}

func (m *Manager) maybeStartBuild(ctx context.Context, head common.Hash, attrs *PayloadAttributes) (*Result, error) {
	if attrs == nil {
		return &Result{}, nil
	}

	headHeader, err := m.store.HeaderByHash(ctx, head)
	if err != nil {
		return nil, err
	}
	if err := validatePayloadAttributes(attrs, headHeader, m.config); err != nil {
		return nil, err
	}

	withdrawalsRoot, err := types.DeriveWithdrawalsRoot(attrs.Withdrawals, newMemTrie)
	if err != nil {
		return nil, err
	}
	id := NewPayloadID(head, attrs, withdrawalsRoot)
	if m.builder != nil {
		if err := m.builder.StartBuild(ctx, id, head, *attrs); err != nil {
			return nil, err
		}
	}
	return &Result{PayloadID: &id}, nil
}

func newMemTrie() types.ReceiptTrie {
	t, _ := trie.New(common.Hash{}, trie.NewMemoryNodeStore())
	return t
}

// validatePayloadAttributes checks spec §4.F step 9's preconditions: the
// requested timestamp must move the chain forward, and each fork's
// mandatory attribute fields must be present.
func validatePayloadAttributes(attrs *PayloadAttributes, head *types.Header, config *chain.Config) error {
	if attrs.Timestamp <= head.Time {
		return fmt.Errorf("payload attributes: timestamp %d must be after head timestamp %d", attrs.Timestamp, head.Time)
	}
	if config.IsShanghai(attrs.Timestamp) && attrs.Withdrawals == nil {
		return errors.New("payload attributes: withdrawals required post-shanghai")
	}
	if config.IsCancun(attrs.Timestamp) && attrs.ParentBeaconBlockRoot == nil {
		return errors.New("payload attributes: parent beacon block root required post-cancun")
	}
	return nil
}
