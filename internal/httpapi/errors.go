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
	"errors"
	"log/slog"
	"net/http"

	"github.com/opsgrid/controlplane/flag"
	"github.com/opsgrid/controlplane/incident"
	"github.com/opsgrid/controlplane/internal/authsession"
	"github.com/opsgrid/controlplane/ratelimit"
	"github.com/opsgrid/controlplane/tenant"
)

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// errorResponse is the JSON shape for every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	// LegalNext is populated only for ErrInvalidTransition, carrying the
	// legal next states.
	LegalNext []string `json:"legalNextStates,omitempty"`
}

// writeError maps a domain or plumbing error to a status code and JSON
// body using a fixed status/error taxonomy, logging internal errors but never
// leaking their text in production mode.
func writeError(w http.ResponseWriter, r *http.Request, err error, devMode bool) {
	status, resp := classify(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "internal error", "error", err, "path", r.URL.Path)
		if !devMode {
			resp = errorResponse{Error: "internal server error"}
		}
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, authsession.ErrInvalidSession):
		return http.StatusUnauthorized, errorResponse{Error: "authentication required"}
	case errors.Is(err, tenant.ErrTenantContextMissing),
		errors.Is(err, tenant.ErrInsufficientRole),
		errors.Is(err, tenant.ErrTenantInactive),
		errors.Is(err, errCSRF):
		return http.StatusForbidden, errorResponse{Error: err.Error()}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{Error: err.Error()}
	case errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, tenant.ErrMembershipNotFound),
		errors.Is(err, incident.ErrNotFound),
		errors.Is(err, incident.ErrAttachmentNotFound),
		errors.Is(err, incident.ErrSavedViewNotFound),
		errors.Is(err, flag.ErrNotFound),
		errors.Is(err, flag.ErrRuleNotFound):
		// Foreign-tenant and genuinely-absent entities are indistinguishable
		// by design.
		return http.StatusNotFound, errorResponse{Error: "not found"}
	case errors.Is(err, incident.ErrInvalidTransition):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), LegalNext: legalNextStates(err)}
	case errors.Is(err, tenant.ErrTenantAlreadyExists), errors.Is(err, flag.ErrDuplicateKey):
		return http.StatusConflict, errorResponse{Error: err.Error()}
	case errors.Is(err, incident.ErrInvalidTitle),
		errors.Is(err, incident.ErrInvalidSeverity),
		errors.Is(err, incident.ErrInvalidEnvironment),
		errors.Is(err, incident.ErrInvalidService),
		errors.Is(err, incident.ErrAssigneeNotInTenant),
		errors.Is(err, incident.ErrInvalidEventType),
		errors.Is(err, incident.ErrInvalidMessage),
		errors.Is(err, incident.ErrAttachmentRejected),
		errors.Is(err, incident.ErrNotOwner),
		errors.Is(err, flag.ErrInvalidKey),
		errors.Is(err, flag.ErrInvalidName),
		errors.Is(err, flag.ErrInvalidRuleType),
		errors.Is(err, flag.ErrInvalidPercentage),
		errors.Is(err, flag.ErrEmptyAllowlist),
		errors.Is(err, flag.ErrEmptyChildren),
		errors.Is(err, flag.ErrRuleTooDeep),
		errors.Is(err, tenant.ErrInvalidTenantName),
		errors.Is(err, tenant.ErrInvalidRole):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	default:
		return http.StatusInternalServerError, errorResponse{Error: err.Error()}
	}
}

// legalNextStates extracts the legal next states an illegal transition
// left behind, so the 400 response can tell the caller what would have
// been accepted from the incident's current status.
func legalNextStates(err error) []string {
	var te *incident.TransitionError
	if !errors.As(err, &te) {
		return nil
	}
	out := make([]string, 0, len(te.LegalNext))
	for _, s := range te.LegalNext {
		out = append(out, string(s))
	}
	return out
}
