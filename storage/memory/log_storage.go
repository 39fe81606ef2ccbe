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

// Package memory provides an in-memory LogStorage implementation intended
// for tests and single-process deployments where durability is not needed.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/certledger/certledger/monitoring"
	"github.com/certledger/certledger/storage"
	"github.com/certledger/certledger/types"
)

const degree = 8

var (
	once            sync.Once
	queuedCounter   monitoring.Counter
	dequeuedCounter monitoring.Counter
	dupCounter      monitoring.Counter
)

func createMetrics(mf monitoring.MetricFactory) {
	queuedCounter = mf.NewCounter("mem_queued_leaves", "Number of leaves queued to the in-memory backend")
	dequeuedCounter = mf.NewCounter("mem_sequenced_leaves", "Number of leaves sequenced by the in-memory backend")
	dupCounter = mf.NewCounter("mem_duplicate_leaves", "Number of duplicate submissions detected", "state")
}

// kv is a simple key->value type that implements btree.Item.
type kv struct {
	k string
	v interface{}
}

// Less than by key.
func (a kv) Less(b btree.Item) bool {
	return strings.Compare(a.k, b.(kv).k) < 0
}

func pendingKey(token int64) string {
	return fmt.Sprintf("/pending/%020d", token)
}

func sequencedKey(index uint64) string {
	return fmt.Sprintf("/sequenced/%020d", index)
}

func hashKey(identityHash []byte) string {
	return fmt.Sprintf("/byhash/%x", identityHash)
}

const headKey = "/head"

// hashRecord tracks where the entry with a given identity hash lives.
type hashRecord struct {
	sequenced bool
	token     int64
	leafIndex uint64
}

// logStorage implements storage.LogStorage over an in-memory B-Tree.
//
// A single RWMutex guards the tree. Sequence takes the write lock for its
// whole critical section, so a cycle's leaves and tree head always become
// visible together.
type logStorage struct {
	mu        sync.RWMutex
	tree      *btree.BTree
	nextToken int64
}

// NewLogStorage creates an empty in-memory log storage.
func NewLogStorage(mf monitoring.MetricFactory) storage.LogStorage {
	if mf == nil {
		mf = monitoring.InertMetricFactory{}
	}
	once.Do(func() {
		createMetrics(mf)
	})
	return &logStorage{tree: btree.New(degree), nextToken: 1}
}

func (m *logStorage) QueueEntry(ctx context.Context, entry *types.Entry, queueTime time.Time) (*storage.QueuedEntry, error) {
	if entry == nil {
		return nil, fmt.Errorf("memory: nil entry")
	}
	identityHash, err := entry.IdentityHash()
	if err != nil {
		return nil, fmt.Errorf("memory: invalid entry: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if item := m.tree.Get(kv{k: hashKey(identityHash)}); item != nil {
		rec := item.(kv).v.(hashRecord)
		qe := &storage.QueuedEntry{
			Duplicate:    true,
			Token:        rec.token,
			IdentityHash: identityHash,
			LeafIndex:    -1,
		}
		if rec.sequenced {
			qe.LeafIndex = int64(rec.leafIndex)
			dupCounter.Inc("sequenced")
		} else {
			dupCounter.Inc("pending")
		}
		return qe, nil
	}

	token := m.nextToken
	m.nextToken++
	m.tree.ReplaceOrInsert(kv{k: pendingKey(token), v: &storage.PendingEntry{
		Token:        token,
		Entry:        entry,
		IdentityHash: identityHash,
		QueueTime:    queueTime,
	}})
	m.tree.ReplaceOrInsert(kv{k: hashKey(identityHash), v: hashRecord{token: token}})
	queuedCounter.Inc()

	return &storage.QueuedEntry{Token: token, IdentityHash: identityHash, LeafIndex: -1}, nil
}

func (m *logStorage) PendingEntries(ctx context.Context, limit int) ([]*storage.PendingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*storage.PendingEntry
	m.tree.AscendGreaterOrEqual(kv{k: "/pending/"}, func(i btree.Item) bool {
		item := i.(kv)
		if !strings.HasPrefix(item.k, "/pending/") {
			return false
		}
		out = append(out, item.v.(*storage.PendingEntry))
		return limit <= 0 || len(out) < limit
	})
	return out, nil
}

func (m *logStorage) Sequence(ctx context.Context, batch []*storage.SequencedEntry, sth *types.SignedTreeHead) error {
	if sth == nil {
		return fmt.Errorf("memory: nil tree head")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var curSize, curTimestamp uint64
	if item := m.tree.Get(kv{k: headKey}); item != nil {
		cur := item.(kv).v.(*types.SignedTreeHead)
		curSize = cur.TreeSize
		curTimestamp = cur.TimestampMillis
	}
	if err := storage.ValidateSequence(batch, sth, curSize, curTimestamp); err != nil {
		return err
	}

	for _, e := range batch {
		m.tree.ReplaceOrInsert(kv{k: sequencedKey(e.LeafIndex), v: e})
		m.tree.ReplaceOrInsert(kv{k: hashKey(e.IdentityHash), v: hashRecord{
			sequenced: true,
			token:     e.Token,
			leafIndex: e.LeafIndex,
		}})
		m.tree.Delete(kv{k: pendingKey(e.Token)})
	}
	m.tree.ReplaceOrInsert(kv{k: headKey, v: sth})
	dequeuedCounter.Add(float64(len(batch)))

	return nil
}

func (m *logStorage) EntryByIndex(ctx context.Context, leafIndex uint64) (*storage.SequencedEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entryByIndex(leafIndex)
}

func (m *logStorage) entryByIndex(leafIndex uint64) (*storage.SequencedEntry, error) {
	item := m.tree.Get(kv{k: sequencedKey(leafIndex)})
	if item == nil {
		return nil, fmt.Errorf("leaf %d: %w", leafIndex, storage.ErrNotFound)
	}
	return item.(kv).v.(*storage.SequencedEntry), nil
}

func (m *logStorage) EntryRange(ctx context.Context, begin, count uint64) ([]*storage.SequencedEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*storage.SequencedEntry, 0, count)
	for i := begin; i < begin+count; i++ {
		e, err := m.entryByIndex(i)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *logStorage) LeafHashes(ctx context.Context, size uint64) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hashes := make([][]byte, 0, size)
	for i := uint64(0); i < size; i++ {
		e, err := m.entryByIndex(i)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, e.MerkleLeafHash)
	}
	return hashes, nil
}

func (m *logStorage) LatestTreeHead(ctx context.Context) (*types.SignedTreeHead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item := m.tree.Get(kv{k: headKey})
	if item == nil {
		return nil, fmt.Errorf("tree head: %w", storage.ErrNotFound)
	}
	return item.(kv).v.(*types.SignedTreeHead), nil
}

func (m *logStorage) Close() error {
	return nil
}
