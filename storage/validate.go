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

package storage

import (
	"fmt"

	"github.com/certledger/certledger/types"
)

// ValidateSequence checks a Sequence call against the current head before
// anything is written. Backends share this so they enforce the same
// contiguity and monotonicity rules.
func ValidateSequence(batch []*SequencedEntry, sth *types.SignedTreeHead, curSize, curTimestampMillis uint64) error {
	if sth == nil {
		return fmt.Errorf("nil tree head")
	}
	if want := curSize + uint64(len(batch)); sth.TreeSize != want {
		return fmt.Errorf("tree head size %d does not cover %d existing + %d new leaves", sth.TreeSize, curSize, len(batch))
	}
	if sth.TimestampMillis < curTimestampMillis {
		return fmt.Errorf("tree head timestamp %d regresses from %d", sth.TimestampMillis, curTimestampMillis)
	}
	for i, e := range batch {
		if e == nil {
			return fmt.Errorf("nil entry at batch position %d", i)
		}
		if want := curSize + uint64(i); e.LeafIndex != want {
			return fmt.Errorf("leaf index %d at batch position %d, want %d", e.LeafIndex, i, want)
		}
		if len(e.MerkleLeafHash) != types.HashLen {
			return fmt.Errorf("leaf %d: merkle hash is %d bytes, want %d", e.LeafIndex, len(e.MerkleLeafHash), types.HashLen)
		}
		if len(e.IdentityHash) != types.HashLen {
			return fmt.Errorf("leaf %d: identity hash is %d bytes, want %d", e.LeafIndex, len(e.IdentityHash), types.HashLen)
		}
	}
	return nil
}
