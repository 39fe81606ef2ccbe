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

package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/certledger/certledger/types"
)

// ErrVerify is returned when a signature does not verify under the given key.
var ErrVerify = errors.New("crypto: signature verification failed")

// Verify checks sig over msg under pub. The message is hashed with SHA-256
// except for Ed25519, which signs messages directly.
func Verify(pub crypto.PublicKey, msg, sig []byte) error {
	switch pub := pub.(type) {
	case *ecdsa.PublicKey:
		digest := sha256.Sum256(msg)
		if !ecdsa.VerifyASN1(pub, digest[:], sig) {
			return ErrVerify
		}
	case *rsa.PublicKey:
		digest := sha256.Sum256(msg)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
			return ErrVerify
		}
	case ed25519.PublicKey:
		if !ed25519.Verify(pub, msg, sig) {
			return ErrVerify
		}
	default:
		return fmt.Errorf("unsupported public key type %T", pub)
	}
	return nil
}

// VerifySignedTreeHead checks the signature carried by sth under pub.
func VerifySignedTreeHead(pub crypto.PublicKey, sth *types.SignedTreeHead) error {
	msg, err := sth.TreeHead.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal tree head: %v", err)
	}
	return Verify(pub, msg, sth.Signature)
}

// VerifyEntryTimestamp checks sig over the canonical encoding of et under pub.
func VerifyEntryTimestamp(pub crypto.PublicKey, et *types.EntryTimestamp, sig []byte) error {
	msg, err := et.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal entry timestamp: %v", err)
	}
	return Verify(pub, msg, sig)
}
