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

// Package pem loads signing keys from PEM encoded material.
package pem

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// UnmarshalPrivateKey reads a DER or PEM private key in PKCS#8, PKCS#1 or
// SEC 1 format.
func UnmarshalPrivateKey(keyBytes []byte) (crypto.Signer, error) {
	if block, _ := pem.Decode(keyBytes); block != nil {
		keyBytes = block.Bytes
	}
	if key, err := x509.ParsePKCS8PrivateKey(keyBytes); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("pem: key of type %T cannot sign", key)
		}
		return signer, nil
	}
	if key, err := x509.ParseECPrivateKey(keyBytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(keyBytes); err == nil {
		return key, nil
	}
	return nil, errors.New("pem: could not parse private key")
}

// ReadPrivateKeyFile loads a private key from the PEM file at path.
func ReadPrivateKeyFile(path string) (crypto.Signer, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pem: read %q: %v", path, err)
	}
	signer, err := UnmarshalPrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("%v (from %q)", err, path)
	}
	return signer, nil
}

// UnmarshalPublicKey reads a DER or PEM encoded PKIX public key.
func UnmarshalPublicKey(keyBytes []byte) (crypto.PublicKey, error) {
	if block, _ := pem.Decode(keyBytes); block != nil {
		keyBytes = block.Bytes
	}
	pub, err := x509.ParsePKIXPublicKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("pem: could not parse public key: %v", err)
	}
	return pub, nil
}

// ReadPublicKeyFile loads a public key from the PEM file at path.
func ReadPublicKeyFile(path string) (crypto.PublicKey, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pem: read %q: %v", path, err)
	}
	pub, err := UnmarshalPublicKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("%v (from %q)", err, path)
	}
	return pub, nil
}
