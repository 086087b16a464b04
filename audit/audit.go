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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/opsgrid/controlplane/internal/id"
)

// Action tags. Incident create, status change, assignment and bulk
// operations, and every flag and rule mutation, write exactly one of
// these per successful mutation. Timeline notes and actions, attachment
// upload and delete, and saved-view create and delete write no audit row.
const (
	TypeCreate       = "CREATE"
	TypeUpdate       = "UPDATE"
	TypeDelete       = "DELETE"
	TypeStatusChange = "STATUS_CHANGE"
	TypeAssign       = "ASSIGN"
	TypeBulkAssign   = "BULK_ASSIGN"
	TypeBulkStatus   = "BULK_STATUS_CHANGE"
)

// Entity type tags.
const (
	EntityTenant     = "tenant"
	EntityMembership = "membership"
	EntityIncident   = "incident"
	EntityAttachment = "attachment"
	EntityFlag       = "feature_flag"
	EntityRule       = "rule"
	EntitySavedView  = "saved_view"
)

// Standard structured-log attribute keys.
const (
	AttrAuditType  = "audit_type"
	AttrTenantID   = "tenant_id"
	AttrActorID    = "actor_id"
	AttrEntityType = "entity_type"
	AttrEntityID   = "entity_id"
	AttrTimestamp  = "timestamp"
	AttrComponent  = "component"
	AttrMetadata   = "metadata"
)

// Event represents one auditable mutation.
//
// Purpose: Canonical representation of an append-only audit row.
// Domain: Audit
// Invariants: Type and EntityType are known constants; Timestamp is set
// on write. Before/After are opaque JSON-able snapshots.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"action"`
	TenantID   string         `json:"tenant_id"`
	ActorID    string         `json:"actor_id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Before     any            `json:"before_data,omitempty"`
	After      any            `json:"after_data,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"created_at"`
}

// Filter describes a query over the audit log.
type Filter struct {
	TenantID   string
	EntityType *string
	EntityID   *string
	ActorID    *string
	Action     *string
	StartDate  *time.Time
	EndDate    *time.Time
	Cursor     *string
	Limit      int
}

// Logger defines the interface for audit logging.
//
// Purpose: Abstraction used by every domain service to emit one
// audit row per successful mutation.
// Domain: Audit
type Logger interface {
	Log(ctx context.Context, event Event)
}

// Repository defines append-only storage for audit events.
//
// Purpose: Persistence and cursor-paginated retrieval of audit trails.
// Domain: Audit
type Repository interface {
	Log(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) (events []Event, nextCursor string, hasMore bool, err error)
}

// SlogLogger implements Logger using slog only, with no persistence.
// Useful for services under test that don't need a Repository.
type SlogLogger struct{}

// NewSlogLogger creates a logger that only writes to slog.
func NewSlogLogger() *SlogLogger { return &SlogLogger{} }

// Log records an audit event to the structured logger.
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String(AttrAuditType, event.Type),
		slog.String(AttrTenantID, event.TenantID),
		slog.String(AttrActorID, event.ActorID),
		slog.String(AttrEntityType, event.EntityType),
		slog.String(AttrEntityID, event.EntityID),
		slog.Time(AttrTimestamp, event.Timestamp),
	}

	if len(event.Metadata) > 0 {
		group := make([]any, 0, len(event.Metadata)*2)
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group(AttrMetadata, group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String(AttrComponent, "audit"))...)
}

// RepositoryLogger implements Logger using a Repository and slog.
//
// Purpose: Default production logger — every event is both logged and
// durably persisted inside the caller's transaction.
// Domain: Audit
type RepositoryLogger struct {
	repo Repository
	slog *SlogLogger
}

// NewRepositoryLogger creates a repository-backed logger.
func NewRepositoryLogger(repo Repository) *RepositoryLogger {
	return &RepositoryLogger{repo: repo, slog: NewSlogLogger()}
}

// Log records an audit event to both slog and the repository. The
// caller is expected to invoke this from within the same transaction
// as the mutation it documents so that a rollback discards both.
func (l *RepositoryLogger) Log(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = id.NewUUIDv7()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	l.slog.Log(ctx, event)

	if err := l.repo.Log(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to persist audit event", "error", err)
	}
}

// isSecret reports whether a metadata key likely carries a sensitive value.
func isSecret(key string) bool {
	k := strings.ToLower(key)
	secrets := []string{"password", "secret", "token", "key", "authorization", "hash", "credential", "private"}
	for _, s := range secrets {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
