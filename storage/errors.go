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

package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested entry or tree head does not exist.
// It is surfaced to the caller and must not be retried by the engine.
var ErrNotFound = errors.New("storage: not found")

// IOError indicates a transient backend failure. Callers may retry with
// backoff; the tree signer aborts its current cycle cleanly and retries on
// the next cadence.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CorruptionError indicates that persisted data failed an integrity check.
// It is fatal: the log must refuse to sequence entries or serve proofs until
// an operator intervenes.
type CorruptionError struct {
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("storage: corruption detected: %s", e.Detail)
}

// IsCorruption reports whether err is, or wraps, a CorruptionError.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
