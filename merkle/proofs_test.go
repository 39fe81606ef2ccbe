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
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/certledger/certledger/merkle/rfc6962"
)

// The test corpus and expected values below are the RFC 6962 reference
// vectors used across Certificate Transparency implementations.
func dh(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex.DecodeString(%q): %v", s, err)
	}
	return b
}

func refLeaves(t *testing.T) [][]byte {
	t.Helper()
	var leaves [][]byte
	for _, s := range []string{
		"",
		"00",
		"10",
		"2021",
		"3031",
		"40414243",
		"5051525354555657",
		"606162636465666768696a6b6c6d6e6f",
	} {
		leaves = append(leaves, dh(t, s))
	}
	return leaves
}

func refLeafHashes(t *testing.T) [][]byte {
	t.Helper()
	var hashes [][]byte
	for _, l := range refLeaves(t) {
		hashes = append(hashes, rfc6962.DefaultHasher.HashLeaf(l))
	}
	return hashes
}

var refRoots = []string{
	"6e340b9cffb37a989ca544e6bb780a2c78901d3fb33738768511a30617afa01d",
	"fac54203e7cc696cf0dfcb42c92a1d9dbaf70ad9e621f4bd8d98662f00e3c125",
	"aeb6bcfe274b70a14fb067a5e5578264db0fa9b51af5e0ba159158f329e06e77",
	"d37ee418976dd95753c1c73862b9398fa2a2cf9b4ff0fdfe8b30cd95209614b7",
	"4e3bbb1f7b478dcfe71fb631631519a3bca12c9aefca1612bfce4c13a86264d4",
	"76e67dadbcdf1e10e1b74ddc608abd2f98dfb16fbce75277b5232a127f2087ef",
	"ddb89be403809e325750d3d263cd78929c2942b7942a34b77e122c9594a74c8c",
	"5dc9da79a70659a9ad559cb701ded9a2ab9d823aad2f4960cfe370eff4604328",
}

const emptyRootHex = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestRootEmptyTree(t *testing.T) {
	got := Root(rfc6962.DefaultHasher, nil)
	if want := dh(t, emptyRootHex); !bytes.Equal(got, want) {
		t.Errorf("Root(empty): got %x, want %x", got, want)
	}
}

func TestRootReferenceVectors(t *testing.T) {
	hashes := refLeafHashes(t)
	for size := 1; size <= len(hashes); size++ {
		got := Root(rfc6962.DefaultHasher, hashes[:size])
		if want := dh(t, refRoots[size-1]); !bytes.Equal(got, want) {
			t.Errorf("Root(size %d): got %x, want %x", size, got, want)
		}
	}
}

func TestInclusionProofReferenceVectors(t *testing.T) {
	hashes := refLeafHashes(t)
	// Indices are 0-based; the classic vector table numbers leaves from 1.
	for _, tc := range []struct {
		index, size uint64
		proof       []string
	}{
		{0, 1, nil},
		{0, 8, []string{
			"96a296d224f285c67bee93c30f8a309157f0daa35dc5b87e410b78630a09cfc7",
			"5f083f0a1a33ca076a95279832580db3e0ef4584bdff1f54c8a360f50de3031e",
			"6b47aaf29ee3c2af9af889bc1fb9254dabd31177f16232dd6aab035ca39bf6e4",
		}},
		{5, 8, []string{
			"bc1a0643b12e4d2d7c77918f44e0f4f79a838b6cf9ec5b5c283e1f4d88599e6b",
			"ca854ea128ed050b41b35ffc1b87b8eb2bde461e9e3b5596ece6b9d5975a0ae0",
			"d37ee418976dd95753c1c73862b9398fa2a2cf9b4ff0fdfe8b30cd95209614b7",
		}},
		{2, 3, []string{
			"fac54203e7cc696cf0dfcb42c92a1d9dbaf70ad9e621f4bd8d98662f00e3c125",
		}},
		{1, 5, []string{
			"6e340b9cffb37a989ca544e6bb780a2c78901d3fb33738768511a30617afa01d",
			"5f083f0a1a33ca076a95279832580db3e0ef4584bdff1f54c8a360f50de3031e",
			"bc1a0643b12e4d2d7c77918f44e0f4f79a838b6cf9ec5b5c283e1f4d88599e6b",
		}},
	} {
		t.Run(fmt.Sprintf("index_%d_size_%d", tc.index, tc.size), func(t *testing.T) {
			got, err := InclusionProof(rfc6962.DefaultHasher, tc.index, hashes[:tc.size])
			if err != nil {
				t.Fatalf("InclusionProof: %v", err)
			}
			if len(got) != len(tc.proof) {
				t.Fatalf("proof has %d components, want %d", len(got), len(tc.proof))
			}
			for i, p := range tc.proof {
				if want := dh(t, p); !bytes.Equal(got[i], want) {
					t.Errorf("proof[%d]: got %x, want %x", i, got[i], want)
				}
			}
		})
	}
}

func TestConsistencyProofReferenceVectors(t *testing.T) {
	hashes := refLeafHashes(t)
	for _, tc := range []struct {
		size1, size2 uint64
		proof        []string
	}{
		{1, 1, nil},
		{1, 8, []string{
			"96a296d224f285c67bee93c30f8a309157f0daa35dc5b87e410b78630a09cfc7",
			"5f083f0a1a33ca076a95279832580db3e0ef4584bdff1f54c8a360f50de3031e",
			"6b47aaf29ee3c2af9af889bc1fb9254dabd31177f16232dd6aab035ca39bf6e4",
		}},
		{6, 8, []string{
			"0ebc5d3437fbe2db158b9f126a1d118e308181031d0a949f8dededebc558ef6a",
			"ca854ea128ed050b41b35ffc1b87b8eb2bde461e9e3b5596ece6b9d5975a0ae0",
			"d37ee418976dd95753c1c73862b9398fa2a2cf9b4ff0fdfe8b30cd95209614b7",
		}},
		{2, 5, []string{
			"5f083f0a1a33ca076a95279832580db3e0ef4584bdff1f54c8a360f50de3031e",
			"bc1a0643b12e4d2d7c77918f44e0f4f79a838b6cf9ec5b5c283e1f4d88599e6b",
		}},
	} {
		t.Run(fmt.Sprintf("%d_to_%d", tc.size1, tc.size2), func(t *testing.T) {
			got, err := ConsistencyProof(rfc6962.DefaultHasher, tc.size1, hashes[:tc.size2])
			if err != nil {
				t.Fatalf("ConsistencyProof: %v", err)
			}
			if len(got) != len(tc.proof) {
				t.Fatalf("proof has %d components, want %d", len(got), len(tc.proof))
			}
			for i, p := range tc.proof {
				if want := dh(t, p); !bytes.Equal(got[i], want) {
					t.Errorf("proof[%d]: got %x, want %x", i, got[i], want)
				}
			}
		})
	}
}

// Every inclusion proof the constructor emits must verify against the root
// the constructor computes, for every leaf of every tree size in the corpus.
func TestInclusionProofsRoundtrip(t *testing.T) {
	hashes := refLeafHashes(t)
	v := NewLogVerifier(rfc6962.DefaultHasher)
	for size := uint64(1); size <= uint64(len(hashes)); size++ {
		root := Root(rfc6962.DefaultHasher, hashes[:size])
		for index := uint64(0); index < size; index++ {
			proof, err := InclusionProof(rfc6962.DefaultHasher, index, hashes[:size])
			if err != nil {
				t.Fatalf("InclusionProof(%d, %d): %v", index, size, err)
			}
			if err := v.VerifyInclusionProof(index, size, proof, root, hashes[index]); err != nil {
				t.Errorf("VerifyInclusionProof(%d, %d): %v", index, size, err)
			}
		}
	}
}

func TestConsistencyProofsRoundtrip(t *testing.T) {
	hashes := refLeafHashes(t)
	v := NewLogVerifier(rfc6962.DefaultHasher)
	for size2 := uint64(0); size2 <= uint64(len(hashes)); size2++ {
		root2 := Root(rfc6962.DefaultHasher, hashes[:size2])
		for size1 := uint64(0); size1 <= size2; size1++ {
			root1 := Root(rfc6962.DefaultHasher, hashes[:size1])
			proof, err := ConsistencyProof(rfc6962.DefaultHasher, size1, hashes[:size2])
			if err != nil {
				t.Fatalf("ConsistencyProof(%d, %d): %v", size1, size2, err)
			}
			if size1 == 0 || size1 == size2 {
				if len(proof) != 0 {
					t.Errorf("ConsistencyProof(%d, %d): got %d components, want empty", size1, size2, len(proof))
				}
			}
			if err := v.VerifyConsistencyProof(size1, size2, root1, root2, proof); err != nil {
				t.Errorf("VerifyConsistencyProof(%d, %d): %v", size1, size2, err)
			}
		}
	}
}

func TestProofRangeErrors(t *testing.T) {
	hashes := refLeafHashes(t)
	var rangeErr RangeError

	if _, err := InclusionProof(rfc6962.DefaultHasher, 8, hashes); !errors.As(err, &rangeErr) {
		t.Errorf("InclusionProof(index==size): got %v, want RangeError", err)
	}
	if _, err := InclusionProof(rfc6962.DefaultHasher, 0, nil); !errors.As(err, &rangeErr) {
		t.Errorf("InclusionProof(empty tree): got %v, want RangeError", err)
	}
	if _, err := ConsistencyProof(rfc6962.DefaultHasher, 9, hashes); !errors.As(err, &rangeErr) {
		t.Errorf("ConsistencyProof(old>new): got %v, want RangeError", err)
	}
}
