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
	"time"

	"github.com/opsgrid/controlplane/audit"
	"github.com/opsgrid/controlplane/flag"
	"github.com/opsgrid/controlplane/incident"
	"github.com/opsgrid/controlplane/internal/authsession"
	"github.com/opsgrid/controlplane/job"
	"github.com/opsgrid/controlplane/ratelimit"
	"github.com/opsgrid/controlplane/realtime"
	"github.com/opsgrid/controlplane/store/postgres"
	"github.com/opsgrid/controlplane/tenant"
)

// WireOptions carries the runtime knobs NewDeps needs beyond the
// database handle itself.
type WireOptions struct {
	SessionSecret string
	CookieSecure  bool
	DevMode       bool
	CORSOrigins   []string
	RealtimePoll  time.Duration
}

// NewDeps builds the full Deps graph — every repository, domain
// service, and platform collaborator — from one database handle. The
// serve subcommand uses it; router tests assemble Deps from in-memory
// fakes instead.
func NewDeps(db *postgres.DB, opts WireOptions) Deps {
	auditRepo := postgres.NewAuditRepository(db)
	auditLogger := audit.NewRepositoryLogger(auditRepo)

	tenantRepo := postgres.NewTenantRepository(db)
	membershipRepo := postgres.NewMembershipRepository(db)
	tenantSvc := tenant.NewService(tenantRepo, membershipRepo, auditLogger)

	incidentRepo := postgres.NewIncidentRepository(db)
	timelineRepo := postgres.NewTimelineRepository(db)
	attachmentRepo := postgres.NewAttachmentRepository(db)
	savedViewRepo := postgres.NewSavedViewRepository(db)

	jobRepo := postgres.NewJobRepository(db)
	jobSvc := job.NewService(jobRepo)

	incidentSvc := incident.NewService(
		incidentRepo, timelineRepo, attachmentRepo, savedViewRepo, membershipRepo,
		auditLogger, db,
		func(ctx context.Context, jobType string, payload map[string]any) error {
			tc, ok := tenantContextFrom(ctx)
			tenantID := ""
			if ok {
				tenantID = tc.TenantID
			}
			return jobSvc.Enqueue(ctx, tenantID, jobType, payload)
		},
	)

	flagRepo := postgres.NewFlagRepository(db)
	ruleRepo := postgres.NewRuleRepository(db)
	flagSvc := flag.NewService(flagRepo, ruleRepo, auditLogger, db)

	stream := realtime.NewStream(incidentRepo, timelineRepo, opts.RealtimePoll)

	sessions := authsession.NewManager(opts.SessionSecret, opts.CookieSecure)
	limiter := ratelimit.NewLimiter()

	return Deps{
		Sessions:    sessions,
		Tenants:     tenantSvc,
		Incidents:   incidentSvc,
		Flags:       flagSvc,
		AuditLogs:   auditRepo,
		Stream:      stream,
		Limiter:     limiter,
		DevMode:     opts.DevMode,
		CORSOrigins: opts.CORSOrigins,
	}
}
