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
	"encoding/json"
	"net/http"

	"github.com/opsgrid/controlplane/incident"
)

func listSavedViewsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		views, err := d.Incidents.ListSavedViews(r.Context(), tc)
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func createSavedViewHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		var body struct {
			Name    string          `json:"name"`
			Filters incident.Filter `json:"filters"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		v, err := d.Incidents.CreateSavedView(r.Context(), tc, body.Name, body.Filters)
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

func deleteSavedViewHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		if err := d.Incidents.DeleteSavedView(r.Context(), tc, urlParam(r, "viewID")); err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
