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

package types

import (
	"encoding/binary"
	"fmt"
)

// entryTimestampEncLen is identity_hash(32) + timestamp(8).
const entryTimestampEncLen = HashLen + 8

// EntryTimestamp binds an entry's identity hash to the time the log accepted
// it. Intake signs this assertion and returns it to the submitter as the
// log's promise to include the entry.
type EntryTimestamp struct {
	IdentityHash    [HashLen]byte
	TimestampMillis uint64
}

// MarshalBinary returns the canonical fixed-width encoding signed by the log:
// identity_hash followed by the big-endian timestamp.
func (et *EntryTimestamp) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, entryTimestampEncLen)
	b = append(b, et.IdentityHash[:]...)
	b = binary.BigEndian.AppendUint64(b, et.TimestampMillis)
	return b, nil
}

// UnmarshalBinary decodes the canonical entry timestamp encoding.
func (et *EntryTimestamp) UnmarshalBinary(b []byte) error {
	if len(b) != entryTimestampEncLen {
		return fmt.Errorf("types: entry timestamp encoding is %d bytes, want %d", len(b), entryTimestampEncLen)
	}
	copy(et.IdentityHash[:], b[:HashLen])
	et.TimestampMillis = binary.BigEndian.Uint64(b[HashLen:])
	return nil
}
