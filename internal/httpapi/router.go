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

// Package httpapi wires the domain services behind the JSON-over-HTTP
// surface: chi routing, session-cookie authentication,
// tenant-scope resolution, rate limiting, and CSRF checks.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opsgrid/controlplane/audit"
	"github.com/opsgrid/controlplane/flag"
	"github.com/opsgrid/controlplane/incident"
	"github.com/opsgrid/controlplane/internal/authsession"
	"github.com/opsgrid/controlplane/ratelimit"
	"github.com/opsgrid/controlplane/realtime"
	"github.com/opsgrid/controlplane/tenant"
)

// Deps bundles every collaborator the HTTP surface needs.
//
// Purpose: Single constructor argument for NewRouter.
// Domain: Platform (HTTP)
type Deps struct {
	Sessions    *authsession.Manager
	Tenants     *tenant.Service
	Incidents   *incident.Service
	Flags       *flag.Service
	AuditLogs   audit.Repository
	Stream      *realtime.Stream
	Limiter     *ratelimit.Limiter
	DevMode     bool
	CORSOrigins []string
}

// NewRouter builds the chi router for the control plane.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID, chimw.RealIP, chimw.Logger, chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(csrfMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/api", func(api chi.Router) {
		api.Use(sessionAuth(d.Sessions))
		api.Use(rateLimit(d.Limiter))
		api.Use(requireTenantScope(d.Tenants))

		api.Route("/incidents", func(ir chi.Router) {
			ir.Get("/", listIncidentsHandler(d))
			ir.Post("/", createIncidentHandler(d))
			ir.Post("/bulk-action", bulkActionHandler(d))
			ir.Get("/{incidentID}", getIncidentHandler(d))
			ir.Patch("/{incidentID}", changeStatusHandler(d))
			ir.Post("/{incidentID}/timeline", addTimelineEventHandler(d))
			ir.Get("/{incidentID}/stream", streamHandler(d))
			ir.Post("/{incidentID}/attachments", uploadAttachmentHandler(d))
			ir.Delete("/{incidentID}/attachments/{attachmentID}", deleteAttachmentHandler(d))
		})

		api.Route("/feature-flags", func(fr chi.Router) {
			fr.Get("/", listFlagsHandler(d))
			fr.Post("/", createFlagHandler(d))
			fr.Patch("/{flagID}", updateFlagHandler(d))
			fr.Delete("/{flagID}", deleteFlagHandler(d))
			fr.Post("/{flagID}/evaluate", evaluateFlagHandler(d))
			fr.Post("/{flagID}/rules", addRuleHandler(d))
			fr.Delete("/{flagID}/rules/{ruleID}", removeRuleHandler(d))
		})

		api.Get("/audit-logs", auditLogsHandler(d))

		api.Route("/saved-views", func(vr chi.Router) {
			vr.Get("/", listSavedViewsHandler(d))
			vr.Post("/", createSavedViewHandler(d))
			vr.Delete("/{viewID}", deleteSavedViewHandler(d))
		})
	})

	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
