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

// Package compact provides a compact Merkle tree representation that keeps
// O(log(size)) state: one subtree root per set bit of the tree size. That
// frontier is sufficient to append leaves and recompute the current root
// without rehashing the whole tree.
package compact

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"
)

// Hasher provides the node hashing operations the tree needs. It is
// satisfied by merkle.LogHasher implementations.
type Hasher interface {
	EmptyRoot() []byte
	HashChildren(l, r []byte) []byte
}

// NodeID identifies a node of the Merkle tree. A node at (level, index)
// covers leaves [index<<level, (index+1)<<level).
type NodeID struct {
	Level uint
	Index uint64
}

// NewNodeID returns a NodeID with the given level and index.
func NewNodeID(level uint, index uint64) NodeID {
	return NodeID{Level: level, Index: index}
}

// FrontierIDs returns the IDs of the roots of the perfect subtrees along the
// right border of a tree of the given size, ordered from the lowest level
// upwards. There is one ID per set bit of size.
func FrontierIDs(size uint64) []NodeID {
	ids := make([]NodeID, 0, bits.OnesCount64(size))
	for sz := size; sz != 0; sz &= sz - 1 {
		level := uint(bits.TrailingZeros64(sz))
		ids = append(ids, NodeID{Level: level, Index: (sz - 1) >> level})
	}
	return ids
}

// ErrRootMismatch is returned by NewTreeWithState when the recomputed root
// does not match the expected value. Callers must treat it as evidence of
// corrupted persisted state.
var ErrRootMismatch = errors.New("compact: root hash mismatch")

// GetHashesFunc looks up the hashes of the identified Merkle tree nodes.
// It is used to populate a tree's frontier from persisted state, and must
// return exactly one hash per requested ID, in the same order.
type GetHashesFunc func(ids []NodeID) ([][]byte, error)

// Tree is a compact Merkle tree over an append-only sequence of leaf hashes.
//
// It is not safe for concurrent use.
type Tree struct {
	hasher Hasher
	size   uint64
	// nodes[i] is the root hash of the perfect subtree of 1<<i leaves ending
	// at the right border of the tree. It is set iff bit i of size is set.
	// For example a tree of size 21 = 16+4+1 has nodes[0], nodes[2] and
	// nodes[4] set, and nodes[1] == nodes[3] == nil.
	nodes [][]byte
	root  []byte
}

// NewTree creates an empty compact Tree.
func NewTree(hasher Hasher) *Tree {
	return &Tree{
		hasher: hasher,
		root:   hasher.EmptyRoot(),
	}
}

// NewTreeWithState creates a compact Tree for the given size, populating its
// frontier via getHashes and verifying that the resulting root matches
// expectedRoot. A mismatch is reported as ErrRootMismatch.
func NewTreeWithState(hasher Hasher, size uint64, getHashes GetHashesFunc, expectedRoot []byte) (*Tree, error) {
	t := &Tree{
		hasher: hasher,
		size:   size,
		nodes:  make([][]byte, bits.Len64(size)),
	}

	ids := FrontierIDs(size)
	hashes, err := getHashes(ids)
	if err != nil {
		return nil, fmt.Errorf("fetching %d frontier nodes: %w", len(ids), err)
	}
	if got, want := len(hashes), len(ids); got != want {
		return nil, fmt.Errorf("got %d frontier hashes, want %d", got, want)
	}
	for i, id := range ids {
		if len(hashes[i]) == 0 {
			return nil, fmt.Errorf("empty hash for frontier node %+v", id)
		}
		t.nodes[id.Level] = hashes[i]
	}
	t.recalcRoot()

	if !bytes.Equal(t.root, expectedRoot) {
		return nil, fmt.Errorf("%w: got %x, want %x", ErrRootMismatch, t.root, expectedRoot)
	}
	return t, nil
}

// Size returns the number of leaves in the tree.
func (t *Tree) Size() uint64 {
	return t.size
}

// CurrentRoot returns the root hash for the current tree size.
func (t *Tree) CurrentRoot() []byte {
	return t.root
}

// Hashes returns a copy of the frontier node hashes, indexed by level.
// Levels whose size bit is unset are nil.
func (t *Tree) Hashes() [][]byte {
	n := make([][]byte, len(t.nodes))
	copy(n, t.nodes)
	return n
}

// AppendLeafHash extends the tree by one leaf with the given Merkle leaf
// hash, and updates the current root. The only failure mode is a violated
// internal invariant, which callers must treat as fatal: a corrupt tree must
// not continue to serve.
func (t *Tree) AppendLeafHash(leafHash []byte) error {
	if len(leafHash) == 0 {
		return errors.New("compact: empty leaf hash")
	}

	// Carry the running hash up through the low set bits of the size: each
	// one is a complete subtree that the new leaf closes off.
	hash := leafHash
	level := uint(0)
	for sz := t.size; sz&1 == 1; sz >>= 1 {
		if t.nodes[level] == nil {
			return fmt.Errorf("compact: missing frontier node at level %d, size %d", level, t.size)
		}
		hash = t.hasher.HashChildren(t.nodes[level], hash)
		t.nodes[level] = nil
		level++
	}
	if level == uint(len(t.nodes)) {
		t.nodes = append(t.nodes, hash)
	} else {
		t.nodes[level] = hash
	}

	t.size++
	t.recalcRoot()
	return nil
}

// recalcRoot folds the frontier nodes, lowest level first, into the root
// hash for the current size.
func (t *Tree) recalcRoot() {
	if t.size == 0 {
		t.root = t.hasher.EmptyRoot()
		return
	}
	var root []byte
	for level := 0; level < len(t.nodes); level++ {
		if t.size&(1<<uint(level)) == 0 {
			continue
		}
		if root == nil {
			root = t.nodes[level]
		} else {
			root = t.hasher.HashChildren(t.nodes[level], root)
		}
	}
	t.root = root
}
