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

package merkle

import (
	"fmt"
	"math/bits"
)

// RangeError reports index or size arguments that fall outside the tree.
// It indicates a caller bug and must not be retried.
type RangeError struct {
	What     string
	Value    uint64
	TreeSize uint64
}

func (e RangeError) Error() string {
	return fmt.Sprintf("merkle: %s %d invalid for tree size %d", e.What, e.Value, e.TreeSize)
}

// splitPoint returns the largest power of two strictly less than n. This is
// the left/right split used throughout RFC 6962: the left subtree of a tree
// of n > 1 leaves always holds splitPoint(n) leaves.
func splitPoint(n uint64) uint64 {
	return uint64(1) << (bits.Len64(n-1) - 1)
}

// Root computes the RFC 6962 Merkle tree hash over the given sequence of
// leaf hashes. The empty sequence hashes to the hasher's empty root. Odd
// nodes are promoted unmatched; there is never any padding leaf.
func Root(h LogHasher, leafHashes [][]byte) []byte {
	switch n := uint64(len(leafHashes)); n {
	case 0:
		return h.EmptyRoot()
	case 1:
		return leafHashes[0]
	default:
		k := splitPoint(n)
		return h.HashChildren(Root(h, leafHashes[:k]), Root(h, leafHashes[k:]))
	}
}

// InclusionProof returns the audit path for the leaf at the given index in
// the tree whose leaves hash to leafHashes, ordered from the leaf's sibling
// towards the root. The tree size proven is len(leafHashes).
func InclusionProof(h LogHasher, index uint64, leafHashes [][]byte) ([][]byte, error) {
	n := uint64(len(leafHashes))
	if index >= n {
		return nil, RangeError{What: "leaf index", Value: index, TreeSize: n}
	}
	return inclusionPath(h, index, leafHashes), nil
}

// inclusionPath implements PATH(m, D) from RFC 6962 section 2.1.1.
func inclusionPath(h LogHasher, m uint64, hashes [][]byte) [][]byte {
	if len(hashes) <= 1 {
		return nil
	}
	k := splitPoint(uint64(len(hashes)))
	if m < k {
		return append(inclusionPath(h, m, hashes[:k]), Root(h, hashes[k:]))
	}
	return append(inclusionPath(h, m-k, hashes[k:]), Root(h, hashes[:k]))
}

// ConsistencyProof returns the proof that the tree of size oldSize is a
// prefix of the tree whose leaves hash to leafHashes. The proof is empty if
// oldSize is zero (everything extends the empty tree) or equal to the
// current size.
func ConsistencyProof(h LogHasher, oldSize uint64, leafHashes [][]byte) ([][]byte, error) {
	n := uint64(len(leafHashes))
	if oldSize > n {
		return nil, RangeError{What: "old size", Value: oldSize, TreeSize: n}
	}
	if oldSize == 0 || oldSize == n {
		return [][]byte{}, nil
	}
	return consistencySubproof(h, oldSize, leafHashes, true), nil
}

// consistencySubproof implements SUBPROOF(m, D, b) from RFC 6962 section
// 2.1.2. The flag records whether the subtree covered by hashes is a
// complete subtree of the old tree, in which case its root is already known
// to the verifier.
func consistencySubproof(h LogHasher, m uint64, hashes [][]byte, complete bool) [][]byte {
	n := uint64(len(hashes))
	if m == n {
		if complete {
			return [][]byte{}
		}
		return [][]byte{Root(h, hashes)}
	}
	k := splitPoint(n)
	if m <= k {
		return append(consistencySubproof(h, m, hashes[:k], complete), Root(h, hashes[k:]))
	}
	return append(consistencySubproof(h, m-k, hashes[k:], false), Root(h, hashes[:k]))
}
