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

package authsession

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-32-byte-test-secret!!!"

func TestManager_IssueThenVerify(t *testing.T) {
	m := NewManager(testSecret, false)
	rec := httptest.NewRecorder()

	require.NoError(t, m.Issue(rec, "user-1", "user@example.com", "Ada", "tenant-1", "acme"))

	req := httptest.NewRequest("GET", "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	claims, err := m.Verify(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "acme", claims.TenantSlug)
}

func TestManager_Verify_MissingCookie(t *testing.T) {
	m := NewManager(testSecret, false)
	req := httptest.NewRequest("GET", "/", nil)
	_, err := m.Verify(req)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestManager_Verify_WrongSecret(t *testing.T) {
	issuer := NewManager(testSecret, false)
	verifier := NewManager("a-completely-different-32-byte-key!", false)

	rec := httptest.NewRecorder()
	require.NoError(t, issuer.Issue(rec, "user-1", "user@example.com", "Ada", "tenant-1", "acme"))

	req := httptest.NewRequest("GET", "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	_, err := verifier.Verify(req)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestManager_Clear(t *testing.T) {
	m := NewManager(testSecret, false)
	rec := httptest.NewRecorder()
	m.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}
