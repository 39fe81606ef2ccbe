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

// Package crypto provides signing and verification of the log's canonical
// structures: tree heads and entry timestamps.
package crypto

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/certledger/certledger/types"
)

// Signer is responsible for signing log artifacts with a fixed key.
type Signer struct {
	// Hash is the digest algorithm applied to messages before signing.
	// Ignored for Ed25519, which signs the message directly.
	Hash   crypto.Hash
	Signer crypto.Signer
}

// NewSigner returns a Signer based on the given key, hashing with SHA-256.
func NewSigner(signer crypto.Signer) *Signer {
	return &Signer{Hash: crypto.SHA256, Signer: signer}
}

// Public returns the public key that can verify this Signer's signatures.
func (s *Signer) Public() crypto.PublicKey {
	return s.Signer.Public()
}

// Sign produces a signature over the given message.
func (s *Signer) Sign(msg []byte) ([]byte, error) {
	if _, ok := s.Signer.(ed25519.PrivateKey); ok {
		return s.Signer.Sign(rand.Reader, msg, crypto.Hash(0))
	}
	h := s.Hash.New()
	h.Write(msg)
	return s.Signer.Sign(rand.Reader, h.Sum(nil), s.Hash)
}

// SignTreeHead signs the canonical encoding of the given tree head.
func (s *Signer) SignTreeHead(th *types.TreeHead) (*types.SignedTreeHead, error) {
	msg, err := th.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal tree head: %v", err)
	}
	sig, err := s.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("sign tree head: %v", err)
	}
	return &types.SignedTreeHead{TreeHead: *th, Signature: sig}, nil
}

// SignEntryTimestamp signs the canonical encoding of the given entry
// timestamp, the log's promise to include the entry.
func (s *Signer) SignEntryTimestamp(et *types.EntryTimestamp) ([]byte, error) {
	msg, err := et.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal entry timestamp: %v", err)
	}
	sig, err := s.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("sign entry timestamp: %v", err)
	}
	return sig, nil
}
