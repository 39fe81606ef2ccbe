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

package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"testing"
	"time"

	logcrypto "github.com/certledger/certledger/crypto"
	"github.com/certledger/certledger/log"
	"github.com/certledger/certledger/merkle"
	"github.com/certledger/certledger/merkle/rfc6962"
	"github.com/certledger/certledger/monitoring"
	"github.com/certledger/certledger/storage"
	"github.com/certledger/certledger/storage/memory"
	"github.com/certledger/certledger/types"
	"github.com/certledger/certledger/util/clock"
)

// setupLog commits the given payloads to a fresh in-memory log and returns
// the server plus the sequencing machinery for tests that keep appending.
func setupLog(t *testing.T, payloads ...string) (*LogServer, storage.LogStorage, *log.Sequencer, *clock.FakeTimeSource) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewLogStorage(monitoring.InertMetricFactory{})
	ts := clock.NewFake(time.UnixMilli(100000))
	signer := logcrypto.NewSigner(ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize)))
	seq := log.NewSequencer(rfc6962.DefaultHasher, signer, store, ts, 0, monitoring.InertMetricFactory{})

	for _, p := range payloads {
		entry := &types.Entry{Type: types.CertificateEntry, Certificate: []byte(p)}
		if _, err := store.QueueEntry(ctx, entry, ts.Now()); err != nil {
			t.Fatalf("QueueEntry(%q): %v", p, err)
		}
	}
	if _, err := seq.SequenceBatch(ctx); err != nil {
		t.Fatalf("SequenceBatch: %v", err)
	}
	return NewLogServer(rfc6962.DefaultHasher, store, monitoring.InertMetricFactory{}), store, seq, ts
}

func isRangeError(err error) bool {
	var re merkle.RangeError
	return errors.As(err, &re)
}

func TestGetLatestTreeHead(t *testing.T) {
	srv, _, _, _ := setupLog(t, "A", "B", "C")
	sth, err := srv.GetLatestTreeHead(context.Background())
	if err != nil {
		t.Fatalf("GetLatestTreeHead: %v", err)
	}
	if sth.TreeSize != 3 {
		t.Errorf("tree size %d, want 3", sth.TreeSize)
	}
}

func TestGetLatestTreeHeadEmptyLog(t *testing.T) {
	store := memory.NewLogStorage(monitoring.InertMetricFactory{})
	srv := NewLogServer(rfc6962.DefaultHasher, store, monitoring.InertMetricFactory{})
	if _, err := srv.GetLatestTreeHead(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetLatestTreeHead on empty log: err=%v, want ErrNotFound", err)
	}
}

func TestGetInclusionProof(t *testing.T) {
	ctx := context.Background()
	srv, store, _, _ := setupLog(t, "A", "B", "C", "D", "E")
	sth, err := srv.GetLatestTreeHead(ctx)
	if err != nil {
		t.Fatalf("GetLatestTreeHead: %v", err)
	}

	v := merkle.NewLogVerifier(rfc6962.DefaultHasher)
	for index := uint64(0); index < sth.TreeSize; index++ {
		proof, err := srv.GetInclusionProof(ctx, index, sth.TreeSize)
		if err != nil {
			t.Fatalf("GetInclusionProof(%d): %v", index, err)
		}
		entry, err := store.EntryByIndex(ctx, index)
		if err != nil {
			t.Fatalf("EntryByIndex(%d): %v", index, err)
		}
		if err := v.VerifyInclusionProof(index, sth.TreeSize, proof, sth.RootHash[:], entry.MerkleLeafHash); err != nil {
			t.Errorf("proof for leaf %d does not verify: %v", index, err)
		}
	}
}

func TestGetInclusionProofRangeErrors(t *testing.T) {
	ctx := context.Background()
	srv, _, _, _ := setupLog(t, "A", "B", "C")

	if _, err := srv.GetInclusionProof(ctx, 3, 3); !isRangeError(err) {
		t.Errorf("GetInclusionProof(3, 3): err=%v, want RangeError", err)
	}
	// Sizes above the committed head are rejected, not waited for.
	if _, err := srv.GetInclusionProof(ctx, 0, 4); !isRangeError(err) {
		t.Errorf("GetInclusionProof(0, 4): err=%v, want RangeError", err)
	}
}

func TestGetEntryAndProof(t *testing.T) {
	ctx := context.Background()
	srv, _, _, _ := setupLog(t, "A", "B", "C")
	sth, err := srv.GetLatestTreeHead(ctx)
	if err != nil {
		t.Fatalf("GetLatestTreeHead: %v", err)
	}

	entry, proof, err := srv.GetEntryAndProof(ctx, 1, 3)
	if err != nil {
		t.Fatalf("GetEntryAndProof: %v", err)
	}
	if !bytes.Equal(entry.Entry.Certificate, []byte("B")) {
		t.Errorf("entry payload %q, want %q", entry.Entry.Certificate, "B")
	}
	v := merkle.NewLogVerifier(rfc6962.DefaultHasher)
	if err := v.VerifyInclusionProof(1, 3, proof, sth.RootHash[:], entry.MerkleLeafHash); err != nil {
		t.Errorf("returned proof does not verify: %v", err)
	}
}

func TestGetConsistencyProof(t *testing.T) {
	ctx := context.Background()
	srv, store, seq, ts := setupLog(t, "A", "B", "C")
	head3, err := srv.GetLatestTreeHead(ctx)
	if err != nil {
		t.Fatalf("GetLatestTreeHead: %v", err)
	}

	ts.Advance(time.Second)
	entry := &types.Entry{Type: types.CertificateEntry, Certificate: []byte("D")}
	if _, err := store.QueueEntry(ctx, entry, ts.Now()); err != nil {
		t.Fatalf("QueueEntry: %v", err)
	}
	if _, err := seq.SequenceBatch(ctx); err != nil {
		t.Fatalf("SequenceBatch: %v", err)
	}
	head4, err := srv.GetLatestTreeHead(ctx)
	if err != nil {
		t.Fatalf("GetLatestTreeHead: %v", err)
	}

	proof, err := srv.GetConsistencyProof(ctx, 3, 4)
	if err != nil {
		t.Fatalf("GetConsistencyProof(3, 4): %v", err)
	}
	v := merkle.NewLogVerifier(rfc6962.DefaultHasher)
	if err := v.VerifyConsistencyProof(3, 4, head3.RootHash[:], head4.RootHash[:], proof); err != nil {
		t.Errorf("consistency proof does not verify: %v", err)
	}

	if _, err := srv.GetConsistencyProof(ctx, 5, 4); !isRangeError(err) {
		t.Errorf("GetConsistencyProof(5, 4): err=%v, want RangeError", err)
	}
	if _, err := srv.GetConsistencyProof(ctx, 3, 9); !isRangeError(err) {
		t.Errorf("GetConsistencyProof(3, 9): err=%v, want RangeError", err)
	}
}

func TestGetEntryRange(t *testing.T) {
	ctx := context.Background()
	payloads := make([]string, 6)
	for i := range payloads {
		payloads[i] = fmt.Sprintf("entry-%d", i)
	}
	srv, _, _, _ := setupLog(t, payloads...)

	entries, err := srv.GetEntryRange(ctx, 2, 3)
	if err != nil {
		t.Fatalf("GetEntryRange(2, 3): %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("GetEntryRange returned %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		if want := uint64(2 + i); e.LeafIndex != want {
			t.Errorf("entries[%d].LeafIndex=%d, want %d", i, e.LeafIndex, want)
		}
		if !bytes.Equal(e.Entry.Certificate, []byte(payloads[2+i])) {
			t.Errorf("entries[%d] payload mismatch", i)
		}
	}

	// Ranges past the end are truncated, not rejected.
	entries, err = srv.GetEntryRange(ctx, 4, 100)
	if err != nil {
		t.Fatalf("GetEntryRange(4, 100): %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("GetEntryRange(4, 100) returned %d entries, want 2", len(entries))
	}

	if _, err := srv.GetEntryRange(ctx, 6, 1); !isRangeError(err) {
		t.Errorf("GetEntryRange(6, 1): err=%v, want RangeError", err)
	}
	if _, err := srv.GetEntryRange(ctx, 0, 0); !isRangeError(err) {
		t.Errorf("GetEntryRange(0, 0): err=%v, want RangeError", err)
	}
}

// TestReadsDuringSequencing checks that a reader sees either the old or the
// new head, never a head without its leaves.
func TestReadsDuringSequencing(t *testing.T) {
	ctx := context.Background()
	srv, store, seq, ts := setupLog(t, "A")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			ts.Advance(time.Millisecond)
			entry := &types.Entry{Type: types.CertificateEntry, Certificate: []byte(fmt.Sprintf("c-%d", i))}
			if _, err := store.QueueEntry(ctx, entry, ts.Now()); err != nil {
				t.Errorf("QueueEntry: %v", err)
				return
			}
			if _, err := seq.SequenceBatch(ctx); err != nil {
				t.Errorf("SequenceBatch: %v", err)
				return
			}
		}
	}()

	v := merkle.NewLogVerifier(rfc6962.DefaultHasher)
	for {
		select {
		case <-done:
			return
		default:
		}
		sth, err := srv.GetLatestTreeHead(ctx)
		if err != nil {
			t.Fatalf("GetLatestTreeHead: %v", err)
		}
		index := sth.TreeSize - 1
		entry, proof, err := srv.GetEntryAndProof(ctx, index, sth.TreeSize)
		if err != nil {
			t.Fatalf("GetEntryAndProof(%d, %d): %v", index, sth.TreeSize, err)
		}
		if err := v.VerifyInclusionProof(index, sth.TreeSize, proof, sth.RootHash[:], entry.MerkleLeafHash); err != nil {
			t.Fatalf("proof under head of size %d does not verify: %v", sth.TreeSize, err)
		}
	}
}
