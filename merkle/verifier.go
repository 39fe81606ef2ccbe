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
	"bytes"
	"errors"
	"fmt"
)

// RootMismatchError occurs when a proof recomputes a root that differs from
// the trusted one.
type RootMismatchError struct {
	ExpectedRoot   []byte
	CalculatedRoot []byte
}

func (e RootMismatchError) Error() string {
	return fmt.Sprintf("calculated root %x does not match expected root %x", e.CalculatedRoot, e.ExpectedRoot)
}

// LogVerifier verifies inclusion and consistency proofs for append only logs.
// It is the client side of the proof construction in this package: the two
// must agree byte for byte.
type LogVerifier struct {
	hasher LogHasher
}

// NewLogVerifier returns a new LogVerifier using the given hasher.
func NewLogVerifier(hasher LogHasher) LogVerifier {
	return LogVerifier{hasher: hasher}
}

// VerifyInclusionProof checks that proof demonstrates that the leaf with the
// given Merkle leaf hash is the leaf at leafIndex in the tree of treeSize
// leaves with the given root.
func (v LogVerifier) VerifyInclusionProof(leafIndex, treeSize uint64, proof [][]byte, root, leafHash []byte) error {
	calcRoot, err := v.RootFromInclusionProof(leafIndex, treeSize, proof, leafHash)
	if err != nil {
		return err
	}
	if !bytes.Equal(calcRoot, root) {
		return RootMismatchError{ExpectedRoot: root, CalculatedRoot: calcRoot}
	}
	return nil
}

// RootFromInclusionProof recomputes the tree root implied by the leaf hash
// and its audit path. Every proof component must be consumed exactly once.
func (v LogVerifier) RootFromInclusionProof(leafIndex, treeSize uint64, proof [][]byte, leafHash []byte) ([]byte, error) {
	if leafIndex >= treeSize {
		return nil, RangeError{What: "leaf index", Value: leafIndex, TreeSize: treeSize}
	}
	if got, want := len(leafHash), v.hasher.Size(); got != want {
		return nil, fmt.Errorf("leaf hash is %d bytes, want %d", got, want)
	}

	node, lastNode := leafIndex, treeSize-1
	hash := leafHash
	used := 0

	for lastNode > 0 {
		switch {
		case node&1 == 1:
			// Right child: the sibling is on the left.
			if used == len(proof) {
				return nil, fmt.Errorf("proof has only %d components, too few for tree size %d", len(proof), treeSize)
			}
			hash = v.hasher.HashChildren(proof[used], hash)
			used++
		case node < lastNode:
			// Left child with an existing right sibling.
			if used == len(proof) {
				return nil, fmt.Errorf("proof has only %d components, too few for tree size %d", len(proof), treeSize)
			}
			hash = v.hasher.HashChildren(hash, proof[used])
			used++
		default:
			// The node is promoted unmatched; no sibling at this level.
		}
		node >>= 1
		lastNode >>= 1
	}
	if used != len(proof) {
		return nil, fmt.Errorf("proof has %d components, only %d used", len(proof), used)
	}
	return hash, nil
}

// VerifyConsistencyProof checks that proof demonstrates that the tree of
// size2 leaves with root2 is an append-only extension of the tree of size1
// leaves with root1.
func (v LogVerifier) VerifyConsistencyProof(size1, size2 uint64, root1, root2 []byte, proof [][]byte) error {
	if size1 > size2 {
		return RangeError{What: "old size", Value: size1, TreeSize: size2}
	}
	if size1 == size2 {
		if !bytes.Equal(root1, root2) {
			return RootMismatchError{ExpectedRoot: root2, CalculatedRoot: root1}
		}
		if len(proof) > 0 {
			return errors.New("roots match but proof is non-empty")
		}
		return nil
	}
	if size1 == 0 {
		// Anything extends the empty tree.
		if len(proof) > 0 {
			return fmt.Errorf("expected empty proof for old size 0, got %d components", len(proof))
		}
		return nil
	}
	if len(proof) == 0 {
		return errors.New("empty proof")
	}

	node, lastNode := size1-1, size2-1
	used := 0

	// Skip levels where the old tree's rightmost node is a right child: its
	// subtree is identical in both trees.
	for node&1 == 1 {
		node >>= 1
		lastNode >>= 1
	}

	var hash1, hash2 []byte
	if node > 0 {
		hash1 = proof[used]
		hash2 = proof[used]
		used++
	} else {
		// The old tree was a perfect subtree of the new one; its root needs
		// no recomputation.
		hash1 = root1
		hash2 = root1
	}

	// Recompute both roots in lockstep over the shared path.
	for node > 0 {
		switch {
		case node&1 == 1:
			if used == len(proof) {
				return errors.New("insufficient number of proof components")
			}
			hash1 = v.hasher.HashChildren(proof[used], hash1)
			hash2 = v.hasher.HashChildren(proof[used], hash2)
			used++
		case node < lastNode:
			// The right sibling exists only in the new tree.
			if used == len(proof) {
				return errors.New("insufficient number of proof components")
			}
			hash2 = v.hasher.HashChildren(hash2, proof[used])
			used++
		default:
			// No sibling in either tree.
		}
		node >>= 1
		lastNode >>= 1
	}

	if !bytes.Equal(hash1, root1) {
		return RootMismatchError{ExpectedRoot: root1, CalculatedRoot: hash1}
	}

	// The remainder of the path exists only in the new tree.
	for lastNode > 0 {
		if used == len(proof) {
			return errors.New("insufficient number of proof components for new root")
		}
		hash2 = v.hasher.HashChildren(hash2, proof[used])
		used++
		lastNode >>= 1
	}

	if !bytes.Equal(hash2, root2) {
		return RootMismatchError{ExpectedRoot: root2, CalculatedRoot: hash2}
	}
	if used != len(proof) {
		return errors.New("proof has too many components")
	}
	return nil
}
