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

// Package storage defines the capability set the log engine requires from a
// durable backend. Concrete backends (in-memory, embedded key-value store)
// are interchangeable implementations selected at configuration time.
package storage

import (
	"context"
	"time"

	"github.com/certledger/certledger/types"
)

// PendingEntry is an entry awaiting inclusion, keyed by its arrival token.
// Tokens increase monotonically in submission order and are distinct from
// leaf indices.
type PendingEntry struct {
	Token        int64
	Entry        *types.Entry
	IdentityHash []byte
	QueueTime    time.Time
}

// SequencedEntry is an entry permanently bound to a leaf index. The Merkle
// leaf hash is computed over the entry's canonical encoding at sequencing
// time and stored alongside it.
type SequencedEntry struct {
	LeafIndex      uint64
	MerkleLeafHash []byte
	Entry          *types.Entry
	IdentityHash   []byte
	// Token is the arrival token of the pending entry this was sequenced
	// from; backends use it to retire the pending record in the same commit.
	Token int64
}

// QueuedEntry is the result of a QueueEntry call.
type QueuedEntry struct {
	// Duplicate is true if an entry with the same identity hash was already
	// known, in which case the remaining fields describe the existing entry
	// and no new state was created.
	Duplicate    bool
	Token        int64
	IdentityHash []byte
	// LeafIndex is the assigned leaf index if the entry has already been
	// sequenced, or -1 while it is still pending.
	LeafIndex int64
}

// LogStorage is the durable backend for a single log instance.
//
// Implementations must be safe for concurrent use. Sequence is the only
// operation that advances the committed tree; it must be atomic with respect
// to crashes: either all of a cycle's leaves and the new tree head become
// durable together, or none do and the previous head remains the truth.
type LogStorage interface {
	// QueueEntry adds an entry to the pending table. Submission is
	// idempotent on the entry's identity hash: duplicates of pending
	// entries return the original token, duplicates of sequenced entries
	// return the existing leaf index, and neither creates new state.
	QueueEntry(ctx context.Context, entry *types.Entry, queueTime time.Time) (*QueuedEntry, error)

	// PendingEntries returns up to limit pending entries in arrival order.
	PendingEntries(ctx context.Context, limit int) ([]*PendingEntry, error)

	// Sequence atomically appends the batch to the sequenced table, retires
	// the corresponding pending records, and stores sth as the new latest
	// tree head. The batch must carry contiguous leaf indices starting at
	// the previous tree size, and sth must extend the previous head
	// (non-decreasing size and timestamp); violations are rejected before
	// anything is written.
	Sequence(ctx context.Context, batch []*SequencedEntry, sth *types.SignedTreeHead) error

	// EntryByIndex returns the sequenced entry with the given leaf index,
	// or an error wrapping ErrNotFound.
	EntryByIndex(ctx context.Context, leafIndex uint64) (*SequencedEntry, error)

	// EntryRange returns the count sequenced entries starting at leaf index
	// begin. All of them must exist.
	EntryRange(ctx context.Context, begin uint64, count uint64) ([]*SequencedEntry, error)

	// LeafHashes returns the Merkle leaf hashes of leaves [0, size), in
	// leaf index order.
	LeafHashes(ctx context.Context, size uint64) ([][]byte, error)

	// LatestTreeHead returns the current tree head, or an error wrapping
	// ErrNotFound if no head has been stored yet.
	LatestTreeHead(ctx context.Context) (*types.SignedTreeHead, error)

	// Close releases any resources held by the backend.
	Close() error
}
