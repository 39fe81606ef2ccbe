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

// Package types contains the canonical wire representations of log entries
// and tree heads. The encodings are fixed-width and versioned so that
// independent implementations hash and verify byte-identical data.
package types

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// EntryType distinguishes certificate from precertificate submissions.
type EntryType uint16

// Known entry types.
const (
	CertificateEntry EntryType = 0
	PrecertEntry     EntryType = 1
)

const (
	// EntryVersion is the only supported version of the entry encoding.
	EntryVersion = 1

	// IssuerKeyHashLen is the length of the issuer key hash carried by
	// precertificate entries.
	IssuerKeyHashLen = sha256.Size

	// entryHeaderLen is version(1) + type(2) + certificate length(4).
	entryHeaderLen = 7
)

// Entry is one canonically encoded log submission. It is immutable once
// created; the log never interprets the certificate bytes.
type Entry struct {
	Type        EntryType
	Certificate []byte
	// IssuerKeyHash is the SHA-256 hash of the public key of the CA that
	// issued the precertificate. It must be empty for certificate entries
	// and exactly IssuerKeyHashLen bytes for precertificate entries.
	IssuerKeyHash []byte
}

func (e *Entry) check() error {
	switch e.Type {
	case CertificateEntry:
		if len(e.IssuerKeyHash) != 0 {
			return fmt.Errorf("types: certificate entry carries issuer key hash")
		}
	case PrecertEntry:
		if got := len(e.IssuerKeyHash); got != IssuerKeyHashLen {
			return fmt.Errorf("types: issuer key hash is %d bytes, want %d", got, IssuerKeyHashLen)
		}
	default:
		return fmt.Errorf("types: unknown entry type %d", e.Type)
	}
	if len(e.Certificate) == 0 {
		return fmt.Errorf("types: entry has no certificate bytes")
	}
	return nil
}

// MarshalBinary returns the canonical encoding of the entry:
//
//	version(uint8) || type(uint16) || len(uint32) || certificate || issuerKeyHash
//
// where the trailing issuerKeyHash is present only for precertificates.
// All integers are big-endian.
func (e *Entry) MarshalBinary() ([]byte, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	b := make([]byte, 0, entryHeaderLen+len(e.Certificate)+len(e.IssuerKeyHash))
	b = append(b, EntryVersion)
	b = binary.BigEndian.AppendUint16(b, uint16(e.Type))
	b = binary.BigEndian.AppendUint32(b, uint32(len(e.Certificate)))
	b = append(b, e.Certificate...)
	b = append(b, e.IssuerKeyHash...)
	return b, nil
}

// UnmarshalBinary decodes the canonical entry encoding. Trailing bytes are
// rejected.
func (e *Entry) UnmarshalBinary(b []byte) error {
	if len(b) < entryHeaderLen {
		return fmt.Errorf("types: entry encoding too short: %d bytes", len(b))
	}
	if v := b[0]; v != EntryVersion {
		return fmt.Errorf("types: unsupported entry version %d", v)
	}
	typ := EntryType(binary.BigEndian.Uint16(b[1:3]))
	certLen := int(binary.BigEndian.Uint32(b[3:7]))
	rest := b[entryHeaderLen:]
	if len(rest) < certLen {
		return fmt.Errorf("types: entry declares %d certificate bytes, only %d remain", certLen, len(rest))
	}
	cert, rest := rest[:certLen], rest[certLen:]

	var ikh []byte
	if typ == PrecertEntry {
		if len(rest) < IssuerKeyHashLen {
			return fmt.Errorf("types: precert entry missing issuer key hash")
		}
		ikh, rest = rest[:IssuerKeyHashLen], rest[IssuerKeyHashLen:]
	}
	if len(rest) != 0 {
		return fmt.Errorf("types: %d trailing bytes after entry", len(rest))
	}

	decoded := Entry{
		Type:          typ,
		Certificate:   append([]byte(nil), cert...),
		IssuerKeyHash: append([]byte(nil), ikh...),
	}
	if err := decoded.check(); err != nil {
		return err
	}
	*e = decoded
	return nil
}

// IdentityHash returns the SHA-256 hash of the entry's canonical encoding.
// It identifies an entry before sequencing and is the deduplication key; it
// is not the Merkle leaf hash.
func (e *Entry) IdentityHash() ([]byte, error) {
	b, err := e.MarshalBinary()
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(b)
	return h[:], nil
}
