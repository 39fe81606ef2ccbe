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

// Package server implements the read path of the log: tree heads, entries
// and Merkle proofs served from committed state.
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/certledger/certledger/merkle"
	"github.com/certledger/certledger/monitoring"
	"github.com/certledger/certledger/storage"
	"github.com/certledger/certledger/types"
)

// MaxGetEntries bounds the number of entries returned by one GetEntryRange
// call; larger requests are truncated, and clients page through the rest.
const MaxGetEntries = 1000

var (
	once         sync.Once
	requestCount monitoring.Counter
	errorCount   monitoring.Counter
)

func createMetrics(mf monitoring.MetricFactory) {
	requestCount = mf.NewCounter("server_requests", "Number of read requests served", "method")
	errorCount = mf.NewCounter("server_errors", "Number of read requests that failed", "method")
}

// LogServer serves read requests against a log's committed state. Reads are
// consistent because the committed tree is append-only: the server resolves
// the tree head first and every leaf it then touches is covered by, and
// immutable under, that head.
type LogServer struct {
	hasher merkle.LogHasher
	store  storage.LogStorage
}

// NewLogServer creates a LogServer reading from the given storage.
func NewLogServer(hasher merkle.LogHasher, store storage.LogStorage, mf monitoring.MetricFactory) *LogServer {
	if mf == nil {
		mf = monitoring.InertMetricFactory{}
	}
	once.Do(func() {
		createMetrics(mf)
	})
	return &LogServer{hasher: hasher, store: store}
}

func observe(method string, err error) {
	requestCount.Inc(method)
	if err != nil {
		errorCount.Inc(method)
	}
}

// GetLatestTreeHead returns the most recently published signed tree head.
func (s *LogServer) GetLatestTreeHead(ctx context.Context) (*types.SignedTreeHead, error) {
	sth, err := s.store.LatestTreeHead(ctx)
	observe("GetLatestTreeHead", err)
	return sth, err
}

// snapshotSize resolves the tree size a request operates against. treeSize
// must not exceed the latest published size.
func (s *LogServer) snapshotSize(ctx context.Context, treeSize uint64) (uint64, error) {
	sth, err := s.store.LatestTreeHead(ctx)
	if err != nil {
		return 0, err
	}
	if treeSize > sth.TreeSize {
		return 0, merkle.RangeError{What: "tree size", Value: treeSize, TreeSize: sth.TreeSize}
	}
	return treeSize, nil
}

// GetInclusionProof returns the audit path for the leaf at index within the
// tree of the given size.
func (s *LogServer) GetInclusionProof(ctx context.Context, index, treeSize uint64) (proof [][]byte, err error) {
	defer func() { observe("GetInclusionProof", err) }()

	size, err := s.snapshotSize(ctx, treeSize)
	if err != nil {
		return nil, err
	}
	if index >= size {
		return nil, merkle.RangeError{What: "leaf index", Value: index, TreeSize: size}
	}
	leafHashes, err := s.store.LeafHashes(ctx, size)
	if err != nil {
		return nil, fmt.Errorf("fetch leaf hashes: %w", err)
	}
	return merkle.InclusionProof(s.hasher, index, leafHashes)
}

// GetConsistencyProof returns the proof that the tree of size toSize is an
// append-only extension of the tree of size fromSize.
func (s *LogServer) GetConsistencyProof(ctx context.Context, fromSize, toSize uint64) (proof [][]byte, err error) {
	defer func() { observe("GetConsistencyProof", err) }()

	size, err := s.snapshotSize(ctx, toSize)
	if err != nil {
		return nil, err
	}
	if fromSize > size {
		return nil, merkle.RangeError{What: "old tree size", Value: fromSize, TreeSize: size}
	}
	leafHashes, err := s.store.LeafHashes(ctx, size)
	if err != nil {
		return nil, fmt.Errorf("fetch leaf hashes: %w", err)
	}
	return merkle.ConsistencyProof(s.hasher, fromSize, leafHashes)
}

// GetEntryAndProof returns the entry at index together with its audit path
// within the tree of the given size.
func (s *LogServer) GetEntryAndProof(ctx context.Context, index, treeSize uint64) (entry *storage.SequencedEntry, proof [][]byte, err error) {
	defer func() { observe("GetEntryAndProof", err) }()

	proof, err = s.GetInclusionProof(ctx, index, treeSize)
	if err != nil {
		return nil, nil, err
	}
	entry, err = s.store.EntryByIndex(ctx, index)
	if err != nil {
		return nil, nil, err
	}
	return entry, proof, nil
}

// GetEntryRange returns sequenced entries [begin, begin+count), truncated
// to the committed tree size and to MaxGetEntries.
func (s *LogServer) GetEntryRange(ctx context.Context, begin, count uint64) (entries []*storage.SequencedEntry, err error) {
	defer func() { observe("GetEntryRange", err) }()

	sth, err := s.store.LatestTreeHead(ctx)
	if err != nil {
		return nil, err
	}
	if begin >= sth.TreeSize {
		return nil, merkle.RangeError{What: "leaf index", Value: begin, TreeSize: sth.TreeSize}
	}
	if count == 0 {
		return nil, merkle.RangeError{What: "entry count", Value: 0, TreeSize: sth.TreeSize}
	}
	if count > MaxGetEntries {
		count = MaxGetEntries
	}
	if begin+count > sth.TreeSize {
		count = sth.TreeSize - begin
	}
	return s.store.EntryRange(ctx, begin, count)
}
