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

// Package authsession implements the signed session cookie:
// a single cookie carrying {user_id, email, name, tenant_id,
// tenant_slug}, recovered on every request without a server-side
// session table.
package authsession

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession is returned when the cookie is missing, expired, or
// fails signature verification.
var ErrInvalidSession = errors.New("invalid or expired session")

// CookieName is the name of the signed session cookie.
const CookieName = "controlplane_session"

// maxAge is the cookie's lifetime: 7 days.
const maxAge = 7 * 24 * time.Hour

// Claims is the JSON shape signed into the session cookie.
type Claims struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	TenantID   string `json:"tenant_id"`
	TenantSlug string `json:"tenant_slug"`
	jwt.RegisteredClaims
}

// Manager issues and verifies session cookies using an HMAC-signed JWT
// in place of a bespoke encryption scheme.
//
// Purpose: Recovers (user, tenant) from one cookie on every request.
// Domain: Platform (Security)
type Manager struct {
	secret []byte
	secure bool
}

// NewManager creates a Manager. secret must be at least 32 bytes; secure controls the cookie's Secure
// flag (production mode only).
func NewManager(secret string, secure bool) *Manager {
	return &Manager{secret: []byte(secret), secure: secure}
}

// Issue signs claims and sets the session cookie on w.
func (m *Manager) Issue(w http.ResponseWriter, userID, email, name, tenantID, tenantSlug string) error {
	now := time.Now()
	claims := Claims{
		UserID:     userID,
		Email:      email,
		Name:       name,
		TenantID:   tenantID,
		TenantSlug: tenantSlug,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(maxAge)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie immediately (logout).
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Verify extracts and validates the session cookie from r.
func (m *Manager) Verify(r *http.Request) (*Claims, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil, ErrInvalidSession
	}

	token, err := jwt.ParseWithClaims(c.Value, &Claims{}, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
