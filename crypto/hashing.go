// Copyright 2026 The OpenTrusty Authors
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

// Package crypto holds deterministic hashing helpers shared across
// domains.
package crypto

import (
	"crypto/sha256"
	"encoding/binary"
)

// StableBucket computes a deterministic bucket in [0,100) for a
// (subject, namespace) pair: the first 32 bits of SHA-256 over
// "subject:namespace", taken modulo 100.
//
// Purpose: Gives percentage-rollout rules in the feature-flag evaluator
// a bucket assignment that is stable across processes and languages;
// the attachment scan stub reuses it for a deterministic verdict.
// Domain: Flags
// Invariants: same (subject, namespace) always yields the same bucket.
// Security: not a secret-keyed hash by design — the result must be
// reproducible by anyone who knows the subject and namespace, so an
// HMAC would be the wrong primitive here.
func StableBucket(subject, namespace string) int {
	sum := sha256.Sum256([]byte(subject + ":" + namespace))
	v := binary.BigEndian.Uint32(sum[:4])
	return int(v % 100)
}
