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

package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheapParams keeps the KDF fast under test.
var cheapParams = Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHasher_HashThenVerify(t *testing.T) {
	h := NewHasherWithParams(cheapParams)

	encoded, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := h.Verify("correct horse battery staple", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_SaltVariesPerHash(t *testing.T) {
	h := NewHasherWithParams(cheapParams)

	a, err := h.Hash("same input")
	require.NoError(t, err)
	b, err := h.Hash("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHasher_Verify_MalformedHash(t *testing.T) {
	h := NewHasher()

	for _, bad := range []string{"", "plaintext", "$argon2id$v=19$truncated", "$bcryptish$v=19$m=8,t=1,p=1$c2FsdA$aGFzaA"} {
		_, err := h.Verify("anything", bad)
		assert.ErrorIs(t, err, ErrMalformedHash, "input %q", bad)
	}
}

func TestHasher_Verify_CostsReadFromHash(t *testing.T) {
	writer := NewHasherWithParams(cheapParams)
	encoded, err := writer.Hash("migrating password")
	require.NoError(t, err)

	// A hasher configured with different costs must still verify a hash
	// written under the old ones.
	reader := NewHasher()
	ok, err := reader.Verify("migrating password", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsBcryptHash(t *testing.T) {
	assert.True(t, IsBcryptHash("$2a$10$N9qo8uLOickgx2ZMRZoMye"))
	assert.True(t, IsBcryptHash("$2b$12$abcdefghijklmnopqrstuv"))
	assert.False(t, IsBcryptHash("$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA"))
	assert.False(t, IsBcryptHash(""))
}
