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

package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opsgrid/controlplane/csrf"
	"github.com/opsgrid/controlplane/internal/authsession"
	"github.com/opsgrid/controlplane/ratelimit"
	"github.com/opsgrid/controlplane/tenant"
)

// sessionAuth verifies the session cookie and stashes its claims in the
// request context. Every /api route requires a valid session.
func sessionAuth(sessions *authsession.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := sessions.Verify(r)
			if err != nil {
				writeError(w, r, err, false)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// requireTenantScope resolves the acting user's tenant.Context and
// stashes it in the request context, so handlers never build tenant
// scope themselves. The tenant is taken from the session claims; it
// is the tenant the user authenticated into.
func requireTenantScope(tenants *tenant.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := claimsFrom(r.Context())
			if !ok {
				writeError(w, r, authsession.ErrInvalidSession, false)
				return
			}
			tc, err := tenants.BuildContext(r.Context(), claims.TenantID, claims.UserID)
			if err != nil {
				writeError(w, r, err, false)
				return
			}
			next.ServeHTTP(w, r.WithContext(withTenantContext(r.Context(), tc)))
		})
	}
}

// rateLimit applies the fixed-window read/write limits,
// keyed by the acting principal, and sets the usual X-RateLimit-*
// response headers.
func rateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := claimsFrom(r.Context())
			if !ok {
				writeError(w, r, authsession.ErrInvalidSession, false)
				return
			}
			class := ratelimit.ClassWrite
			if r.Method == http.MethodGet {
				class = ratelimit.ClassRead
			}
			allowed, remaining, resetAt := limiter.Allow(class, claims.UserID)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
			if !allowed {
				writeError(w, r, ratelimit.ErrRateLimited, false)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// csrfMiddleware rejects cross-origin state-changing requests that
// don't carry the fetch marker header. It runs ahead of
// session auth so a forged request is rejected before it can even
// attempt to present a cookie.
func csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !csrf.Check(r) {
			writeError(w, r, errCSRF, false)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errCSRF = errors.New("cross-origin request rejected")

// urlParam is a small indirection over chi.URLParam so handler files
// don't need to import chi directly for path parameters.
func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}
