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
	"net/http"
	"strconv"
	"time"

	"github.com/opsgrid/controlplane/audit"
)

// auditLogsHandler serves the append-only audit trail. Reads are
// restricted to ADMIN role: everyone else gets a 403.
func auditLogsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		if err := tc.RequireAdmin(); err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}

		q := r.URL.Query()
		f := audit.Filter{TenantID: tc.TenantID, Limit: 50}
		if v := q.Get("entityType"); v != "" {
			f.EntityType = &v
		}
		if v := q.Get("entityId"); v != "" {
			f.EntityID = &v
		}
		if v := q.Get("actorId"); v != "" {
			f.ActorID = &v
		}
		if v := q.Get("action"); v != "" {
			f.Action = &v
		}
		if v := q.Get("startDate"); v != "" {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				f.StartDate = &ts
			}
		}
		if v := q.Get("endDate"); v != "" {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				f.EndDate = &ts
			}
		}
		if v := q.Get("cursor"); v != "" {
			f.Cursor = &v
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				f.Limit = n
			}
		}

		events, next, hasMore, err := d.AuditLogs.List(r.Context(), f)
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"logs":       events,
			"nextCursor": next,
			"hasMore":    hasMore,
		})
	}
}
