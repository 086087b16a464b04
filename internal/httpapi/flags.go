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

	"github.com/opsgrid/controlplane/flag"
	"github.com/opsgrid/controlplane/incident"
)

func listFlagsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		flags, err := d.Flags.List(r.Context(), tc)
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"flags": flags})
	}
}

func createFlagHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		var body struct {
			Key         string               `json:"key"`
			Name        string               `json:"name"`
			Description string               `json:"description"`
			Enabled     bool                 `json:"enabled"`
			Environment incident.Environment `json:"environment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		f, err := d.Flags.Create(r.Context(), tc, flag.CreateInput{
			Key:         body.Key,
			Name:        body.Name,
			Description: body.Description,
			Enabled:     body.Enabled,
			Environment: body.Environment,
		})
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	}
}

func updateFlagHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		var body struct {
			Name        *string `json:"name"`
			Description *string `json:"description"`
			Enabled     *bool   `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		f, err := d.Flags.Update(r.Context(), tc, urlParam(r, "flagID"), flag.UpdateInput{
			Name:        body.Name,
			Description: body.Description,
			Enabled:     body.Enabled,
		})
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func deleteFlagHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		if err := d.Flags.Delete(r.Context(), tc, urlParam(r, "flagID")); err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func evaluateFlagHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		var body struct {
			UserID      string               `json:"userId"`
			Environment incident.Environment `json:"environment"`
			Service     string               `json:"service"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		result, err := d.Flags.Evaluate(r.Context(), tc, urlParam(r, "flagID"), flag.EvalContext{
			UserID:      body.UserID,
			Environment: body.Environment,
			Service:     body.Service,
		})
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func addRuleHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		var body struct {
			Type      flag.RuleType  `json:"type"`
			Condition flag.Condition `json:"condition"`
			Order     int            `json:"order"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		rule, err := d.Flags.AddRule(r.Context(), tc, urlParam(r, "flagID"), body.Type, body.Condition, body.Order)
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusCreated, rule)
	}
}

func removeRuleHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		if err := d.Flags.RemoveRule(r.Context(), tc, urlParam(r, "flagID"), urlParam(r, "ruleID")); err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
