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

// Package storagetest verifies that a storage implementation obeys the
// LogStorage contract. Every backend's test package runs this suite against
// a fresh store.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/certledger/certledger/merkle/rfc6962"
	"github.com/certledger/certledger/storage"
	"github.com/certledger/certledger/types"
)

// StorageFactory creates a fresh, empty LogStorage for one test. Cleanup is
// the factory's responsibility, via t.Cleanup.
type StorageFactory func(t *testing.T) storage.LogStorage

// RunLogStorageTests runs the contract suite against the given factory.
func RunLogStorageTests(t *testing.T, factory StorageFactory) {
	ctx := context.Background()
	for name, fn := range map[string]func(*testing.T, context.Context, storage.LogStorage){
		"EmptyStore":             testEmptyStore,
		"QueueAndPending":        testQueueAndPending,
		"QueueDuplicatePending":  testQueueDuplicatePending,
		"QueueDuplicateSequence": testQueueDuplicateSequenced,
		"PendingLimit":           testPendingLimit,
		"SequenceCommit":         testSequenceCommit,
		"SequenceValidation":     testSequenceValidation,
		"SequenceEmptyBatch":     testSequenceEmptyBatch,
		"EntryRange":             testEntryRange,
	} {
		t.Run(name, func(t *testing.T) {
			fn(t, ctx, factory(t))
		})
	}
}

func testEntry(n int) *types.Entry {
	return &types.Entry{
		Type:        types.CertificateEntry,
		Certificate: []byte(fmt.Sprintf("certificate-%04d", n)),
	}
}

func queueN(ctx context.Context, t *testing.T, s storage.LogStorage, n int) []*storage.QueuedEntry {
	t.Helper()
	out := make([]*storage.QueuedEntry, 0, n)
	for i := 0; i < n; i++ {
		qe, err := s.QueueEntry(ctx, testEntry(i), time.Unix(1000+int64(i), 0))
		if err != nil {
			t.Fatalf("QueueEntry(%d): %v", i, err)
		}
		out = append(out, qe)
	}
	return out
}

// sequenceAll drains the pending queue and commits it as leaves
// [curSize, curSize+n) under a head with the given timestamp.
func sequenceAll(ctx context.Context, t *testing.T, s storage.LogStorage, curSize uint64, timestampMillis uint64) []*storage.SequencedEntry {
	t.Helper()
	pending, err := s.PendingEntries(ctx, 0)
	if err != nil {
		t.Fatalf("PendingEntries: %v", err)
	}
	batch := make([]*storage.SequencedEntry, 0, len(pending))
	for i, pe := range pending {
		encoded, err := pe.Entry.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary: %v", err)
		}
		batch = append(batch, &storage.SequencedEntry{
			LeafIndex:      curSize + uint64(i),
			MerkleLeafHash: rfc6962.DefaultHasher.HashLeaf(encoded),
			Entry:          pe.Entry,
			IdentityHash:   pe.IdentityHash,
			Token:          pe.Token,
		})
	}
	sth := &types.SignedTreeHead{
		TreeHead: types.TreeHead{
			TreeSize:        curSize + uint64(len(batch)),
			TimestampMillis: timestampMillis,
		},
		Signature: []byte("sig"),
	}
	if err := s.Sequence(ctx, batch, sth); err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	return batch
}

func testEmptyStore(t *testing.T, ctx context.Context, s storage.LogStorage) {
	if _, err := s.LatestTreeHead(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("LatestTreeHead on empty store: err=%v, want ErrNotFound", err)
	}
	if _, err := s.EntryByIndex(ctx, 0); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("EntryByIndex on empty store: err=%v, want ErrNotFound", err)
	}
	pending, err := s.PendingEntries(ctx, 10)
	if err != nil {
		t.Fatalf("PendingEntries: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("PendingEntries on empty store: %d entries", len(pending))
	}
	hashes, err := s.LeafHashes(ctx, 0)
	if err != nil {
		t.Fatalf("LeafHashes(0): %v", err)
	}
	if len(hashes) != 0 {
		t.Errorf("LeafHashes(0): %d hashes", len(hashes))
	}
}

func testQueueAndPending(t *testing.T, ctx context.Context, s storage.LogStorage) {
	queued := queueN(ctx, t, s, 5)
	for i := 1; i < len(queued); i++ {
		if queued[i].Token <= queued[i-1].Token {
			t.Errorf("token %d after token %d, want increasing", queued[i].Token, queued[i-1].Token)
		}
		if queued[i].Duplicate {
			t.Errorf("entry %d reported as duplicate", i)
		}
		if queued[i].LeafIndex != -1 {
			t.Errorf("entry %d has leaf index %d, want -1 while pending", i, queued[i].LeafIndex)
		}
	}

	pending, err := s.PendingEntries(ctx, 0)
	if err != nil {
		t.Fatalf("PendingEntries: %v", err)
	}
	if len(pending) != 5 {
		t.Fatalf("PendingEntries returned %d entries, want 5", len(pending))
	}
	for i, pe := range pending {
		if pe.Token != queued[i].Token {
			t.Errorf("pending[%d].Token=%d, want %d (arrival order)", i, pe.Token, queued[i].Token)
		}
		if !bytes.Equal(pe.IdentityHash, queued[i].IdentityHash) {
			t.Errorf("pending[%d] identity hash mismatch", i)
		}
	}
}

func testQueueDuplicatePending(t *testing.T, ctx context.Context, s storage.LogStorage) {
	first, err := s.QueueEntry(ctx, testEntry(0), time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("QueueEntry: %v", err)
	}
	second, err := s.QueueEntry(ctx, testEntry(0), time.Unix(2000, 0))
	if err != nil {
		t.Fatalf("QueueEntry (dup): %v", err)
	}
	if !second.Duplicate {
		t.Error("resubmission not reported as duplicate")
	}
	if second.Token != first.Token {
		t.Errorf("duplicate returned token %d, want original %d", second.Token, first.Token)
	}
	if second.LeafIndex != -1 {
		t.Errorf("duplicate of pending entry has leaf index %d, want -1", second.LeafIndex)
	}

	pending, err := s.PendingEntries(ctx, 0)
	if err != nil {
		t.Fatalf("PendingEntries: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("duplicate submission created pending state: %d entries, want 1", len(pending))
	}
}

func testQueueDuplicateSequenced(t *testing.T, ctx context.Context, s storage.LogStorage) {
	queueN(ctx, t, s, 3)
	sequenceAll(ctx, t, s, 0, 5000)

	qe, err := s.QueueEntry(ctx, testEntry(1), time.Unix(9000, 0))
	if err != nil {
		t.Fatalf("QueueEntry (dup of sequenced): %v", err)
	}
	if !qe.Duplicate {
		t.Error("resubmission of sequenced entry not reported as duplicate")
	}
	if qe.LeafIndex != 1 {
		t.Errorf("duplicate of sequenced entry has leaf index %d, want 1", qe.LeafIndex)
	}

	pending, err := s.PendingEntries(ctx, 0)
	if err != nil {
		t.Fatalf("PendingEntries: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("duplicate submission re-queued a sequenced entry: %d pending", len(pending))
	}
}

func testPendingLimit(t *testing.T, ctx context.Context, s storage.LogStorage) {
	queued := queueN(ctx, t, s, 10)
	pending, err := s.PendingEntries(ctx, 4)
	if err != nil {
		t.Fatalf("PendingEntries: %v", err)
	}
	if len(pending) != 4 {
		t.Fatalf("PendingEntries(limit=4) returned %d entries", len(pending))
	}
	for i, pe := range pending {
		if pe.Token != queued[i].Token {
			t.Errorf("pending[%d].Token=%d, want %d", i, pe.Token, queued[i].Token)
		}
	}
}

func testSequenceCommit(t *testing.T, ctx context.Context, s storage.LogStorage) {
	queueN(ctx, t, s, 4)
	batch := sequenceAll(ctx, t, s, 0, 5000)

	sth, err := s.LatestTreeHead(ctx)
	if err != nil {
		t.Fatalf("LatestTreeHead: %v", err)
	}
	if sth.TreeSize != 4 || sth.TimestampMillis != 5000 {
		t.Errorf("head size=%d ts=%d, want 4/5000", sth.TreeSize, sth.TimestampMillis)
	}

	pending, err := s.PendingEntries(ctx, 0)
	if err != nil {
		t.Fatalf("PendingEntries: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("%d entries still pending after sequencing", len(pending))
	}

	for _, want := range batch {
		got, err := s.EntryByIndex(ctx, want.LeafIndex)
		if err != nil {
			t.Fatalf("EntryByIndex(%d): %v", want.LeafIndex, err)
		}
		if !bytes.Equal(got.MerkleLeafHash, want.MerkleLeafHash) {
			t.Errorf("leaf %d merkle hash mismatch", want.LeafIndex)
		}
		if !bytes.Equal(got.IdentityHash, want.IdentityHash) {
			t.Errorf("leaf %d identity hash mismatch", want.LeafIndex)
		}
		if got.Entry == nil || !bytes.Equal(got.Entry.Certificate, want.Entry.Certificate) {
			t.Errorf("leaf %d entry payload mismatch", want.LeafIndex)
		}
	}

	hashes, err := s.LeafHashes(ctx, 4)
	if err != nil {
		t.Fatalf("LeafHashes: %v", err)
	}
	for i, h := range hashes {
		if !bytes.Equal(h, batch[i].MerkleLeafHash) {
			t.Errorf("LeafHashes[%d] mismatch", i)
		}
	}

	if _, err := s.EntryByIndex(ctx, 4); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("EntryByIndex(4): err=%v, want ErrNotFound", err)
	}
}

func testSequenceValidation(t *testing.T, ctx context.Context, s storage.LogStorage) {
	queueN(ctx, t, s, 2)
	sequenceAll(ctx, t, s, 0, 5000)

	queueN(ctx, t, s, 3)
	pending, err := s.PendingEntries(ctx, 0)
	if err != nil {
		t.Fatalf("PendingEntries: %v", err)
	}
	// queueN reuses payloads 0..2, so entries 0 and 1 dedup away.
	if len(pending) != 1 {
		t.Fatalf("%d pending, want 1", len(pending))
	}
	encoded, err := pending[0].Entry.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	good := &storage.SequencedEntry{
		LeafIndex:      2,
		MerkleLeafHash: rfc6962.DefaultHasher.HashLeaf(encoded),
		Entry:          pending[0].Entry,
		IdentityHash:   pending[0].IdentityHash,
		Token:          pending[0].Token,
	}
	head := func(size, ts uint64) *types.SignedTreeHead {
		return &types.SignedTreeHead{
			TreeHead:  types.TreeHead{TreeSize: size, TimestampMillis: ts},
			Signature: []byte("sig"),
		}
	}

	// Gap in leaf indices.
	bad := *good
	bad.LeafIndex = 5
	if err := s.Sequence(ctx, []*storage.SequencedEntry{&bad}, head(3, 6000)); err == nil {
		t.Error("Sequence accepted non-contiguous leaf index")
	}
	// Head size does not cover the batch.
	if err := s.Sequence(ctx, []*storage.SequencedEntry{good}, head(5, 6000)); err == nil {
		t.Error("Sequence accepted inconsistent head size")
	}
	// Timestamp regression.
	if err := s.Sequence(ctx, []*storage.SequencedEntry{good}, head(3, 4000)); err == nil {
		t.Error("Sequence accepted regressing timestamp")
	}

	// Nothing was committed by the rejected calls.
	sth, err := s.LatestTreeHead(ctx)
	if err != nil {
		t.Fatalf("LatestTreeHead: %v", err)
	}
	if sth.TreeSize != 2 || sth.TimestampMillis != 5000 {
		t.Errorf("head moved to size=%d ts=%d after rejected calls", sth.TreeSize, sth.TimestampMillis)
	}
	if _, err := s.EntryByIndex(ctx, 2); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("leaf 2 exists after rejected calls: err=%v", err)
	}

	// A valid call still goes through.
	if err := s.Sequence(ctx, []*storage.SequencedEntry{good}, head(3, 6000)); err != nil {
		t.Errorf("Sequence (valid): %v", err)
	}
}

func testSequenceEmptyBatch(t *testing.T, ctx context.Context, s storage.LogStorage) {
	queueN(ctx, t, s, 1)
	sequenceAll(ctx, t, s, 0, 5000)

	// Re-publishing the head with a later timestamp needs no new leaves.
	sth := &types.SignedTreeHead{
		TreeHead:  types.TreeHead{TreeSize: 1, TimestampMillis: 7000},
		Signature: []byte("sig2"),
	}
	if err := s.Sequence(ctx, nil, sth); err != nil {
		t.Fatalf("Sequence (empty batch): %v", err)
	}
	got, err := s.LatestTreeHead(ctx)
	if err != nil {
		t.Fatalf("LatestTreeHead: %v", err)
	}
	if got.TimestampMillis != 7000 {
		t.Errorf("head timestamp %d, want 7000", got.TimestampMillis)
	}
	if !bytes.Equal(got.Signature, []byte("sig2")) {
		t.Error("head signature not updated")
	}
}

func testEntryRange(t *testing.T, ctx context.Context, s storage.LogStorage) {
	queueN(ctx, t, s, 6)
	batch := sequenceAll(ctx, t, s, 0, 5000)

	got, err := s.EntryRange(ctx, 2, 3)
	if err != nil {
		t.Fatalf("EntryRange(2, 3): %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("EntryRange returned %d entries, want 3", len(got))
	}
	for i, e := range got {
		want := batch[2+i]
		if e.LeafIndex != want.LeafIndex {
			t.Errorf("range[%d].LeafIndex=%d, want %d", i, e.LeafIndex, want.LeafIndex)
		}
		if !bytes.Equal(e.MerkleLeafHash, want.MerkleLeafHash) {
			t.Errorf("range[%d] merkle hash mismatch", i)
		}
	}

	if _, err := s.EntryRange(ctx, 4, 5); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("EntryRange past the end: err=%v, want ErrNotFound", err)
	}
}
