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

// Package boltdb provides a LogStorage implementation backed by an embedded
// bbolt database file. Each Sequence call commits in a single write
// transaction, so a cycle's leaves and tree head are durable together or
// not at all.
package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/certledger/certledger/monitoring"
	"github.com/certledger/certledger/storage"
	"github.com/certledger/certledger/types"
)

var (
	pendingBucket   = []byte("pending")
	sequencedBucket = []byte("sequenced")
	byHashBucket    = []byte("byhash")
	metaBucket      = []byte("meta")

	headMetaKey = []byte("head")
)

var (
	once            sync.Once
	queuedCounter   monitoring.Counter
	dequeuedCounter monitoring.Counter
	dupCounter      monitoring.Counter
)

func createMetrics(mf monitoring.MetricFactory) {
	queuedCounter = mf.NewCounter("bolt_queued_leaves", "Number of leaves queued to the bolt backend")
	dequeuedCounter = mf.NewCounter("bolt_sequenced_leaves", "Number of leaves sequenced by the bolt backend")
	dupCounter = mf.NewCounter("bolt_duplicate_leaves", "Number of duplicate submissions detected", "state")
}

// logStorage implements storage.LogStorage over a bbolt database.
type logStorage struct {
	db *bolt.DB
}

// NewLogStorage opens (creating if necessary) the database file at path.
func NewLogStorage(path string, mf monitoring.MetricFactory) (storage.LogStorage, error) {
	if mf == nil {
		mf = monitoring.InertMetricFactory{}
	}
	once.Do(func() {
		createMetrics(mf)
	})

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, &storage.IOError{Op: "open", Err: err}
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{pendingBucket, sequencedBucket, byHashBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, &storage.IOError{Op: "init", Err: err}
	}
	return &logStorage{db: db}, nil
}

func keyFor(n uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], n)
	return k[:]
}

// hashRecord is the value stored in the byhash bucket: a state byte (0
// pending, 1 sequenced) followed by the token and, if sequenced, the leaf
// index.
func encodeHashRecord(sequenced bool, token int64, leafIndex uint64) []byte {
	b := make([]byte, 17)
	if sequenced {
		b[0] = 1
	}
	binary.BigEndian.PutUint64(b[1:9], uint64(token))
	binary.BigEndian.PutUint64(b[9:17], leafIndex)
	return b
}

func decodeHashRecord(b []byte) (sequenced bool, token int64, leafIndex uint64, err error) {
	if len(b) != 17 {
		return false, 0, 0, &storage.CorruptionError{Detail: fmt.Sprintf("hash record is %d bytes, want 17", len(b))}
	}
	return b[0] == 1, int64(binary.BigEndian.Uint64(b[1:9])), binary.BigEndian.Uint64(b[9:17]), nil
}

// Pending values are the queue time in Unix milliseconds followed by the
// entry's canonical encoding. The token is the bucket key.
func encodePending(entry []byte, queueTime time.Time) []byte {
	b := make([]byte, 8+len(entry))
	binary.BigEndian.PutUint64(b[:8], uint64(queueTime.UnixMilli()))
	copy(b[8:], entry)
	return b
}

func decodePending(token int64, b []byte) (*storage.PendingEntry, error) {
	if len(b) < 8 {
		return nil, &storage.CorruptionError{Detail: fmt.Sprintf("pending record for token %d is %d bytes", token, len(b))}
	}
	var entry types.Entry
	if err := entry.UnmarshalBinary(b[8:]); err != nil {
		return nil, &storage.CorruptionError{Detail: fmt.Sprintf("pending entry for token %d: %v", token, err)}
	}
	identityHash, err := entry.IdentityHash()
	if err != nil {
		return nil, &storage.CorruptionError{Detail: fmt.Sprintf("pending entry for token %d: %v", token, err)}
	}
	return &storage.PendingEntry{
		Token:        token,
		Entry:        &entry,
		IdentityHash: identityHash,
		QueueTime:    time.UnixMilli(int64(binary.BigEndian.Uint64(b[:8]))).UTC(),
	}, nil
}

// Sequenced values are the Merkle leaf hash, the identity hash, the arrival
// token and the entry's canonical encoding. The leaf index is the bucket key.
func encodeSequenced(e *storage.SequencedEntry, entry []byte) []byte {
	b := make([]byte, 0, 2*types.HashLen+8+len(entry))
	b = append(b, e.MerkleLeafHash...)
	b = append(b, e.IdentityHash...)
	b = binary.BigEndian.AppendUint64(b, uint64(e.Token))
	b = append(b, entry...)
	return b
}

func decodeSequenced(leafIndex uint64, b []byte) (*storage.SequencedEntry, error) {
	if len(b) < 2*types.HashLen+8 {
		return nil, &storage.CorruptionError{Detail: fmt.Sprintf("sequenced record for leaf %d is %d bytes", leafIndex, len(b))}
	}
	var entry types.Entry
	if err := entry.UnmarshalBinary(b[2*types.HashLen+8:]); err != nil {
		return nil, &storage.CorruptionError{Detail: fmt.Sprintf("sequenced entry for leaf %d: %v", leafIndex, err)}
	}
	return &storage.SequencedEntry{
		LeafIndex:      leafIndex,
		MerkleLeafHash: append([]byte(nil), b[:types.HashLen]...),
		IdentityHash:   append([]byte(nil), b[types.HashLen:2*types.HashLen]...),
		Token:          int64(binary.BigEndian.Uint64(b[2*types.HashLen : 2*types.HashLen+8])),
		Entry:          &entry,
	}, nil
}

func (s *logStorage) QueueEntry(ctx context.Context, entry *types.Entry, queueTime time.Time) (*storage.QueuedEntry, error) {
	if entry == nil {
		return nil, fmt.Errorf("boltdb: nil entry")
	}
	identityHash, err := entry.IdentityHash()
	if err != nil {
		return nil, fmt.Errorf("boltdb: invalid entry: %v", err)
	}
	entryBytes, err := entry.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("boltdb: invalid entry: %v", err)
	}

	var qe *storage.QueuedEntry
	err = s.db.Update(func(tx *bolt.Tx) error {
		if rec := tx.Bucket(byHashBucket).Get(identityHash); rec != nil {
			sequenced, token, leafIndex, err := decodeHashRecord(rec)
			if err != nil {
				return err
			}
			qe = &storage.QueuedEntry{
				Duplicate:    true,
				Token:        token,
				IdentityHash: identityHash,
				LeafIndex:    -1,
			}
			if sequenced {
				qe.LeafIndex = int64(leafIndex)
				dupCounter.Inc("sequenced")
			} else {
				dupCounter.Inc("pending")
			}
			return nil
		}

		pending := tx.Bucket(pendingBucket)
		seq, err := pending.NextSequence()
		if err != nil {
			return err
		}
		token := int64(seq)
		if err := pending.Put(keyFor(seq), encodePending(entryBytes, queueTime)); err != nil {
			return err
		}
		if err := tx.Bucket(byHashBucket).Put(identityHash, encodeHashRecord(false, token, 0)); err != nil {
			return err
		}
		qe = &storage.QueuedEntry{Token: token, IdentityHash: identityHash, LeafIndex: -1}
		queuedCounter.Inc()
		return nil
	})
	if err != nil {
		if storage.IsCorruption(err) {
			return nil, err
		}
		return nil, &storage.IOError{Op: "queue", Err: err}
	}
	return qe, nil
}

func (s *logStorage) PendingEntries(ctx context.Context, limit int) ([]*storage.PendingEntry, error) {
	var out []*storage.PendingEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(pendingBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			pe, err := decodePending(int64(binary.BigEndian.Uint64(k)), v)
			if err != nil {
				return err
			}
			out = append(out, pe)
		}
		return nil
	})
	if err != nil {
		if storage.IsCorruption(err) {
			return nil, err
		}
		return nil, &storage.IOError{Op: "pending scan", Err: err}
	}
	return out, nil
}

func (s *logStorage) Sequence(ctx context.Context, batch []*storage.SequencedEntry, sth *types.SignedTreeHead) error {
	if sth == nil {
		return fmt.Errorf("boltdb: nil tree head")
	}
	sthBytes, err := sth.MarshalBinary()
	if err != nil {
		return fmt.Errorf("boltdb: invalid tree head: %v", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		var curSize, curTimestamp uint64
		if raw := tx.Bucket(metaBucket).Get(headMetaKey); raw != nil {
			var cur types.SignedTreeHead
			if err := cur.UnmarshalBinary(raw); err != nil {
				return &storage.CorruptionError{Detail: fmt.Sprintf("stored tree head: %v", err)}
			}
			curSize = cur.TreeSize
			curTimestamp = cur.TimestampMillis
		}
		if err := storage.ValidateSequence(batch, sth, curSize, curTimestamp); err != nil {
			return err
		}

		sequenced := tx.Bucket(sequencedBucket)
		byHash := tx.Bucket(byHashBucket)
		pending := tx.Bucket(pendingBucket)
		for _, e := range batch {
			entryBytes, err := e.Entry.MarshalBinary()
			if err != nil {
				return fmt.Errorf("leaf %d: %v", e.LeafIndex, err)
			}
			if err := sequenced.Put(keyFor(e.LeafIndex), encodeSequenced(e, entryBytes)); err != nil {
				return err
			}
			if err := byHash.Put(e.IdentityHash, encodeHashRecord(true, e.Token, e.LeafIndex)); err != nil {
				return err
			}
			if err := pending.Delete(keyFor(uint64(e.Token))); err != nil {
				return err
			}
		}
		return tx.Bucket(metaBucket).Put(headMetaKey, sthBytes)
	})
	if err != nil {
		if storage.IsCorruption(err) {
			return err
		}
		return &storage.IOError{Op: "sequence", Err: err}
	}
	dequeuedCounter.Add(float64(len(batch)))
	return nil
}

func (s *logStorage) EntryByIndex(ctx context.Context, leafIndex uint64) (*storage.SequencedEntry, error) {
	var entry *storage.SequencedEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(sequencedBucket).Get(keyFor(leafIndex))
		if raw == nil {
			return fmt.Errorf("leaf %d: %w", leafIndex, storage.ErrNotFound)
		}
		var err error
		entry, err = decodeSequenced(leafIndex, raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *logStorage) EntryRange(ctx context.Context, begin, count uint64) ([]*storage.SequencedEntry, error) {
	out := make([]*storage.SequencedEntry, 0, count)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sequencedBucket)
		for i := begin; i < begin+count; i++ {
			raw := b.Get(keyFor(i))
			if raw == nil {
				return fmt.Errorf("leaf %d: %w", i, storage.ErrNotFound)
			}
			e, err := decodeSequenced(i, raw)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *logStorage) LeafHashes(ctx context.Context, size uint64) ([][]byte, error) {
	hashes := make([][]byte, 0, size)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sequencedBucket)
		for i := uint64(0); i < size; i++ {
			raw := b.Get(keyFor(i))
			if raw == nil {
				return fmt.Errorf("leaf %d: %w", i, storage.ErrNotFound)
			}
			if len(raw) < types.HashLen {
				return &storage.CorruptionError{Detail: fmt.Sprintf("sequenced record for leaf %d is %d bytes", i, len(raw))}
			}
			hashes = append(hashes, append([]byte(nil), raw[:types.HashLen]...))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func (s *logStorage) LatestTreeHead(ctx context.Context) (*types.SignedTreeHead, error) {
	var sth types.SignedTreeHead
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(metaBucket).Get(headMetaKey)
		if raw == nil {
			return fmt.Errorf("tree head: %w", storage.ErrNotFound)
		}
		if err := sth.UnmarshalBinary(raw); err != nil {
			return &storage.CorruptionError{Detail: fmt.Sprintf("stored tree head: %v", err)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sth, nil
}

func (s *logStorage) Close() error {
	return s.db.Close()
}
