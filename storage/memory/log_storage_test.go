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

package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/certledger/certledger/monitoring"
	"github.com/certledger/certledger/storage"
	"github.com/certledger/certledger/storage/memory"
	"github.com/certledger/certledger/storage/storagetest"
	"github.com/certledger/certledger/types"
)

func TestLogStorageContract(t *testing.T) {
	storagetest.RunLogStorageTests(t, func(t *testing.T) storage.LogStorage {
		return memory.NewLogStorage(monitoring.InertMetricFactory{})
	})
}

func TestConcurrentQueue(t *testing.T) {
	ctx := context.Background()
	s := memory.NewLogStorage(monitoring.InertMetricFactory{})

	const workers = 8
	const perWorker = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				entry := &types.Entry{
					Type:        types.CertificateEntry,
					Certificate: []byte{byte(w), byte(i)},
				}
				if _, err := s.QueueEntry(ctx, entry, time.Now()); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("QueueEntry: %v", err)
	}

	pending, err := s.PendingEntries(ctx, 0)
	if err != nil {
		t.Fatalf("PendingEntries: %v", err)
	}
	if got, want := len(pending), workers*perWorker; got != want {
		t.Errorf("%d entries pending, want %d", got, want)
	}
	seen := make(map[int64]bool)
	for _, pe := range pending {
		if seen[pe.Token] {
			t.Errorf("token %d issued twice", pe.Token)
		}
		seen[pe.Token] = true
	}
}
