// Copyright 2025 The Certledger Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log coordinates the write path of the engine: the sequencer that
// turns pending entries into signed tree heads, and the operation manager
// that drives it on a cadence.
package log

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/certledger/certledger/crypto"
	"github.com/certledger/certledger/merkle"
	"github.com/certledger/certledger/merkle/compact"
	"github.com/certledger/certledger/monitoring"
	"github.com/certledger/certledger/storage"
	"github.com/certledger/certledger/types"
	"github.com/certledger/certledger/util/clock"
)

const (
	// DefaultBatchSize bounds how many pending entries one cycle consumes.
	DefaultBatchSize = 1000
)

var (
	once                 sync.Once
	signingRuns          monitoring.Counter
	failedSigningRuns    monitoring.Counter
	entriesAdded         monitoring.Counter
	batchesAdded         monitoring.Counter
	signingLatency       monitoring.Histogram
	currentTreeSizeGauge monitoring.Gauge
)

func createMetrics(mf monitoring.MetricFactory) {
	signingRuns = mf.NewCounter("signing_runs", "Number of times a signing run has succeeded")
	failedSigningRuns = mf.NewCounter("failed_signing_runs", "Number of times a signing run has failed")
	entriesAdded = mf.NewCounter("entries_added", "Number of entries added to the tree")
	batchesAdded = mf.NewCounter("batches_added", "Number of non-empty batches sequenced")
	signingLatency = mf.NewHistogram("signing_latency", "Latency of signing runs in seconds")
	currentTreeSizeGauge = mf.NewGauge("current_tree_size", "Size of the tree at the latest signed head")
}

// Sequencer assigns leaf indices to pending entries and publishes signed
// tree heads. It is the only writer of the committed tree: there must be at
// most one Sequencer per log instance.
type Sequencer struct {
	hasher     merkle.LogHasher
	signer     *crypto.Signer
	store      storage.LogStorage
	timeSource clock.TimeSource
	batchSize  int

	mu sync.Mutex
	// tree is the compact frontier of the committed tree, lazily rebuilt
	// from storage and carried between cycles. nil forces a rebuild.
	tree *compact.Tree
	// lastTimestampMillis is the timestamp of the last published head.
	lastTimestampMillis uint64
	// fatal is set when persisted state fails an integrity check. Once set,
	// every subsequent cycle fails with it until an operator intervenes.
	fatal error
}

// NewSequencer creates a Sequencer for the given storage and signing key.
func NewSequencer(hasher merkle.LogHasher, signer *crypto.Signer, store storage.LogStorage, timeSource clock.TimeSource, batchSize int, mf monitoring.MetricFactory) *Sequencer {
	if mf == nil {
		mf = monitoring.InertMetricFactory{}
	}
	once.Do(func() {
		createMetrics(mf)
	})
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if timeSource == nil {
		timeSource = clock.System
	}
	return &Sequencer{
		hasher:     hasher,
		signer:     signer,
		store:      store,
		timeSource: timeSource,
		batchSize:  batchSize,
	}
}

// loadTree rebuilds the compact frontier from the stored head, verifying
// that the recomputed root matches the one that was signed.
func (s *Sequencer) loadTree(ctx context.Context) error {
	sth, err := s.store.LatestTreeHead(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.tree = compact.NewTree(s.hasher)
			s.lastTimestampMillis = 0
			return nil
		}
		return fmt.Errorf("load tree head: %w", err)
	}

	getHashes := func(ids []compact.NodeID) ([][]byte, error) {
		leafHashes, err := s.store.LeafHashes(ctx, sth.TreeSize)
		if err != nil {
			return nil, err
		}
		hashes := make([][]byte, 0, len(ids))
		for _, id := range ids {
			lo := id.Index << id.Level
			hi := (id.Index + 1) << id.Level
			if hi > uint64(len(leafHashes)) {
				return nil, fmt.Errorf("node %+v outside tree of size %d", id, len(leafHashes))
			}
			hashes = append(hashes, merkle.Root(s.hasher, leafHashes[lo:hi]))
		}
		return hashes, nil
	}

	tree, err := compact.NewTreeWithState(s.hasher, sth.TreeSize, getHashes, sth.RootHash[:])
	if err != nil {
		if errors.Is(err, compact.ErrRootMismatch) {
			s.fatal = &storage.CorruptionError{Detail: fmt.Sprintf("rebuilt tree of size %d does not match signed root: %v", sth.TreeSize, err)}
			return s.fatal
		}
		return fmt.Errorf("rebuild tree state: %w", err)
	}
	s.tree = tree
	s.lastTimestampMillis = sth.TimestampMillis
	return nil
}

// SequenceBatch executes one signing cycle: it drains up to batchSize
// pending entries, extends the tree, signs the new head and commits
// everything atomically. It returns the number of entries sequenced. A head
// is signed and stored even when there are no pending entries, so the
// published timestamp keeps advancing as evidence of liveness.
func (s *Sequencer) SequenceBatch(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fatal != nil {
		return 0, s.fatal
	}
	start := s.timeSource.Now()
	count, err := s.sequenceBatch(ctx)
	signingLatency.Observe(s.timeSource.Now().Sub(start).Seconds())
	if err != nil {
		failedSigningRuns.Inc()
		// The in-memory frontier may have been mutated before the failure;
		// rebuild it from storage on the next cycle.
		s.tree = nil
		if storage.IsCorruption(err) {
			s.fatal = err
		}
		return 0, err
	}
	signingRuns.Inc()
	return count, nil
}

func (s *Sequencer) sequenceBatch(ctx context.Context) (int, error) {
	if s.tree == nil {
		if err := s.loadTree(ctx); err != nil {
			return 0, err
		}
	}

	pending, err := s.store.PendingEntries(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending entries: %w", err)
	}

	oldSize := s.tree.Size()
	batch := make([]*storage.SequencedEntry, 0, len(pending))
	for i, pe := range pending {
		encoded, err := pe.Entry.MarshalBinary()
		if err != nil {
			return 0, fmt.Errorf("marshal pending entry %d: %v", pe.Token, err)
		}
		leafHash := s.hasher.HashLeaf(encoded)
		if err := s.tree.AppendLeafHash(leafHash); err != nil {
			return 0, fmt.Errorf("append leaf %d: %v", oldSize+uint64(i), err)
		}
		batch = append(batch, &storage.SequencedEntry{
			LeafIndex:      oldSize + uint64(i),
			MerkleLeafHash: leafHash,
			Entry:          pe.Entry,
			IdentityHash:   pe.IdentityHash,
			Token:          pe.Token,
		})
	}

	// Timestamps on published heads are strictly increasing even if the
	// wall clock stalls or steps backwards.
	timestamp := uint64(s.timeSource.Now().UnixMilli())
	if timestamp <= s.lastTimestampMillis {
		timestamp = s.lastTimestampMillis + 1
	}

	th := &types.TreeHead{
		TreeSize:        s.tree.Size(),
		TimestampMillis: timestamp,
	}
	copy(th.RootHash[:], s.tree.CurrentRoot())
	sth, err := s.signer.SignTreeHead(th)
	if err != nil {
		return 0, fmt.Errorf("sign tree head: %w", err)
	}

	if err := s.store.Sequence(ctx, batch, sth); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	s.lastTimestampMillis = timestamp
	currentTreeSizeGauge.Set(float64(th.TreeSize))
	if len(batch) > 0 {
		entriesAdded.Add(float64(len(batch)))
		batchesAdded.Inc()
		klog.V(1).Infof("sequenced %d entries, tree size now %d", len(batch), th.TreeSize)
	}
	return len(batch), nil
}

// ExecutePass implements Operation so the sequencer can be driven by an
// OperationManager.
func (s *Sequencer) ExecutePass(ctx context.Context) (int, error) {
	return s.SequenceBatch(ctx)
}

// Operation is a task that processes work in discrete passes.
type Operation interface {
	// ExecutePass performs a single pass and returns the number of items
	// processed.
	ExecutePass(ctx context.Context) (int, error)
}

// OperationManager drives an Operation on a fixed cadence until its context
// is cancelled.
type OperationManager struct {
	op          Operation
	runInterval time.Duration
	timeSource  clock.TimeSource
}

// NewOperationManager creates a manager that runs op every runInterval.
func NewOperationManager(op Operation, runInterval time.Duration, timeSource clock.TimeSource) *OperationManager {
	if timeSource == nil {
		timeSource = clock.System
	}
	return &OperationManager{op: op, runInterval: runInterval, timeSource: timeSource}
}

// OperationLoop runs passes until ctx is cancelled. Errors from a pass are
// logged and the loop continues; the next pass may succeed if the failure
// was transient.
func (m *OperationManager) OperationLoop(ctx context.Context) {
	klog.Infof("operation manager starting, interval %v", m.runInterval)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			klog.Infof("operation manager shutting down: %v", ctx.Err())
			return
		case <-timer.C:
		}
		start := m.timeSource.Now()
		count, err := m.op.ExecutePass(ctx)
		if err != nil {
			klog.Warningf("pass failed: %v", err)
		} else if count > 0 {
			klog.V(1).Infof("pass processed %d items in %v", count, m.timeSource.Now().Sub(start))
		}
		wait := m.runInterval - m.timeSource.Now().Sub(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}
