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

// HashLen is the length of all digests used by the log.
const HashLen = 32

// treeHeadEncLen is tree_size(8) + timestamp(8) + root_hash(32).
const treeHeadEncLen = 8 + 8 + HashLen

// TreeHead summarizes the log at one point in time. The field order of the
// binary encoding (tree_size, timestamp, root_hash) is fixed: these are the
// exact bytes the log signs.
type TreeHead struct {
	TreeSize        uint64
	TimestampMillis uint64
	RootHash        [HashLen]byte
}

// MarshalBinary returns the canonical fixed-width big-endian encoding of the
// tree head. It never fails; the error return satisfies encoding.BinaryMarshaler.
func (th *TreeHead) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, treeHeadEncLen)
	b = binary.BigEndian.AppendUint64(b, th.TreeSize)
	b = binary.BigEndian.AppendUint64(b, th.TimestampMillis)
	b = append(b, th.RootHash[:]...)
	return b, nil
}

// UnmarshalBinary decodes the canonical tree head encoding.
func (th *TreeHead) UnmarshalBinary(b []byte) error {
	if len(b) != treeHeadEncLen {
		return fmt.Errorf("types: tree head encoding is %d bytes, want %d", len(b), treeHeadEncLen)
	}
	th.TreeSize = binary.BigEndian.Uint64(b)
	th.TimestampMillis = binary.BigEndian.Uint64(b[8:])
	copy(th.RootHash[:], b[16:])
	return nil
}

// SignedTreeHead is a tree head plus the log's signature over its canonical
// encoding.
type SignedTreeHead struct {
	TreeHead
	Signature []byte
}

// MarshalBinary encodes the tree head followed by a length-prefixed signature.
func (s *SignedTreeHead) MarshalBinary() ([]byte, error) {
	head, err := s.TreeHead.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if len(s.Signature) > 0xffff {
		return nil, fmt.Errorf("types: signature too long: %d bytes", len(s.Signature))
	}
	b := make([]byte, 0, len(head)+2+len(s.Signature))
	b = append(b, head...)
	b = binary.BigEndian.AppendUint16(b, uint16(len(s.Signature)))
	b = append(b, s.Signature...)
	return b, nil
}

// UnmarshalBinary decodes a signed tree head. Trailing bytes are rejected.
func (s *SignedTreeHead) UnmarshalBinary(b []byte) error {
	if len(b) < treeHeadEncLen+2 {
		return fmt.Errorf("types: signed tree head encoding too short: %d bytes", len(b))
	}
	if err := s.TreeHead.UnmarshalBinary(b[:treeHeadEncLen]); err != nil {
		return err
	}
	sigLen := int(binary.BigEndian.Uint16(b[treeHeadEncLen:]))
	sig := b[treeHeadEncLen+2:]
	if len(sig) != sigLen {
		return fmt.Errorf("types: signature is %d bytes, header declares %d", len(sig), sigLen)
	}
	s.Signature = append([]byte(nil), sig...)
	return nil
}
