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
	"context"

	"github.com/opsgrid/controlplane/internal/authsession"
	"github.com/opsgrid/controlplane/tenant"
)

type ctxKey int

const (
	claimsCtxKey ctxKey = iota
	tenantCtxKey
)

func withClaims(ctx context.Context, c *authsession.Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, c)
}

func claimsFrom(ctx context.Context) (*authsession.Claims, bool) {
	c, ok := ctx.Value(claimsCtxKey).(*authsession.Claims)
	return c, ok
}

func withTenantContext(ctx context.Context, tc tenant.Context) context.Context {
	return context.WithValue(ctx, tenantCtxKey, tc)
}

// tenantContextFrom returns the resolved tenant.Context stashed by
// requireTenantScope. Handlers call this rather than rebuilding the
// scope themselves, so the "never forget the tenant filter" invariant
// is enforced in one place.
func tenantContextFrom(ctx context.Context) (tenant.Context, bool) {
	tc, ok := ctx.Value(tenantCtxKey).(tenant.Context)
	return tc, ok
}
