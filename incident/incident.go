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

// Package incident implements the incident state machine: creation,
// status transitions, assignment, timeline events, attachments, and
// bulk operations, all tenant-scoped.
package incident

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Domain errors.
var (
	ErrNotFound            = errors.New("incident not found")
	ErrInvalidTitle        = errors.New("title must be at least 5 characters")
	ErrInvalidSeverity     = errors.New("invalid severity")
	ErrInvalidEnvironment  = errors.New("invalid environment")
	ErrInvalidService      = errors.New("service must not be empty")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAssigneeNotInTenant = errors.New("assignee is not a member of this tenant")
	ErrInvalidEventType    = errors.New("invalid timeline event type")
	ErrInvalidMessage      = errors.New("message must be at least 1 character")
	ErrAttachmentRejected  = errors.New("attachment rejected")
	ErrAttachmentNotFound  = errors.New("attachment not found")
	ErrSavedViewNotFound   = errors.New("saved view not found")
	ErrNotOwner            = errors.New("only the owner may perform this action")
)

// Severity levels, most to least severe.
type Severity string

const (
	Sev1 Severity = "SEV1"
	Sev2 Severity = "SEV2"
	Sev3 Severity = "SEV3"
	Sev4 Severity = "SEV4"
)

func (s Severity) Valid() bool {
	switch s {
	case Sev1, Sev2, Sev3, Sev4:
		return true
	}
	return false
}

// Status is the incident's position in its life cycle.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusMitigated Status = "MITIGATED"
	StatusResolved  Status = "RESOLVED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusMitigated, StatusResolved:
		return true
	}
	return false
}

// validTransitions is the authoritative transition table. RESOLVED is
// terminal; reopening is not supported.
var validTransitions = map[Status][]Status{
	StatusOpen:      {StatusMitigated, StatusResolved},
	StatusMitigated: {StatusResolved},
	StatusResolved:  {},
}

// CanTransition reports whether from -> to is a legal status change.
// Self-transitions are always rejected.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError reports an illegal status change together with the
// transitions that would have been legal from the current status.
type TransitionError struct {
	From      Status
	To        Status
	LegalNext []Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// Unwrap lets errors.Is(err, ErrInvalidTransition) keep working for
// callers that don't care about the legal-next detail.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// checkTransition returns a TransitionError if from -> to is illegal.
func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to, LegalNext: validTransitions[from]}
	}
	return nil
}

// Environment values a flag or incident may be scoped to.
type Environment string

const (
	EnvDev     Environment = "DEV"
	EnvStaging Environment = "STAGING"
	EnvProd    Environment = "PROD"
)

func (e Environment) Valid() bool {
	switch e {
	case EnvDev, EnvStaging, EnvProd:
		return true
	}
	return false
}

// Incident is a tracked operational event.
//
// Purpose: Primary tenant-scoped entity this package manages.
// Domain: Incident
// Invariants: Title length >= 5. Status transitions only via
// validTransitions. AssigneeID, if set, must hold a membership in the
// same tenant (enforced by the service, not this type).
type Incident struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	Title       string      `json:"title"`
	Severity    Severity    `json:"severity"`
	Status      Status      `json:"status"`
	Service     string      `json:"service"`
	Environment Environment `json:"environment"`
	Tags        []string    `json:"tags"`
	CreatedByID string      `json:"created_by_id"`
	AssigneeID  *string     `json:"assignee_id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TimelineEventType distinguishes free-form notes, recorded actions,
// and system-generated status-change records.
type TimelineEventType string

const (
	EventNote         TimelineEventType = "NOTE"
	EventAction       TimelineEventType = "ACTION"
	EventStatusChange TimelineEventType = "STATUS_CHANGE"
)

// TimelineEvent is an append-only annotation on an incident.
//
// Purpose: Audit-visible narrative of an incident's life.
// Domain: Incident
// Invariants: Never mutated or deleted once written.
type TimelineEvent struct {
	ID          string            `json:"id"`
	IncidentID  string            `json:"incident_id"`
	TenantID    string            `json:"tenant_id"`
	Type        TimelineEventType `json:"type"`
	Message     string            `json:"message"`
	Data        map[string]any    `json:"data,omitempty"`
	CreatedByID string            `json:"created_by_id"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ScanStatus tracks an attachment's virus-scan lifecycle.
type ScanStatus string

const (
	ScanPending  ScanStatus = "PENDING"
	ScanScanning ScanStatus = "SCANNING"
	ScanClean    ScanStatus = "CLEAN"
	ScanInfected ScanStatus = "INFECTED"
	ScanFailed   ScanStatus = "FAILED"
)

// Attachment is evidence uploaded against an incident.
//
// Purpose: Tenant-scoped file metadata; the file bytes themselves live
// in an out-of-scope object store referenced by StorageURL.
// Domain: Incident
type Attachment struct {
	ID         string     `json:"id"`
	IncidentID string     `json:"incident_id"`
	TenantID   string     `json:"tenant_id"`
	FileName   string     `json:"file_name"`
	MimeType   string     `json:"mime_type"`
	SizeBytes  int64      `json:"size_bytes"`
	StorageURL string     `json:"storage_url"`
	ScanStatus ScanStatus `json:"scan_status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SavedView is a user's named, reusable incident filter.
//
// Purpose: Per-user convenience over the list filters in Filter.
// Domain: Incident
// Invariants: Only the owning UserID (or an ADMIN) may delete it.
type SavedView struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Filters   Filter    `json:"filters"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter describes the list query parameters accepted by List.
//
// Purpose: Shared shape between incident listing and SavedView storage
// so a saved view can be replayed verbatim.
// Domain: Incident
type Filter struct {
	Status      *Status      `json:"status,omitempty"`
	Severity    *Severity    `json:"severity,omitempty"`
	Environment *Environment `json:"environment,omitempty"`
	Service     *string      `json:"service,omitempty"`
	Tag         *string      `json:"tag,omitempty"`
	Assignee    *string      `json:"assignee,omitempty"`
	Search      *string      `json:"search,omitempty"`
	Cursor      *string      `json:"cursor,omitempty"`
	Limit       int          `json:"limit,omitempty"`
}

// Repository defines tenant-scoped incident persistence.
//
// Purpose: Abstraction consumed by Service; every method requires the
// caller to have already resolved a tenant scope into the query (the
// tenant ID argument below stands in for the TenantContext the HTTP
// layer and Service extract role/permission checks from).
// Domain: Incident
type Repository interface {
	Create(ctx context.Context, i *Incident) error
	GetByID(ctx context.Context, tenantID, id string) (*Incident, error)
	Update(ctx context.Context, i *Incident) error
	List(ctx context.Context, tenantID string, f Filter) (items []*Incident, nextCursor string, hasMore bool, err error)
	CountSince(ctx context.Context, tenantID, id string, since time.Time) (updatedAt time.Time, found bool, err error)
}

// TimelineRepository defines append-only timeline persistence.
//
// Purpose: Abstraction for timeline storage, separated from Repository
// because it is append-only and has a different access pattern
// (ordered scan per incident rather than cursor pages over many).
// Domain: Incident
type TimelineRepository interface {
	Append(ctx context.Context, e *TimelineEvent) error
	ListByIncident(ctx context.Context, tenantID, incidentID string) ([]*TimelineEvent, error)
	CountByIncident(ctx context.Context, tenantID, incidentID string) (int, error)
	ListSince(ctx context.Context, tenantID, incidentID string, afterCount int) ([]*TimelineEvent, error)
}

// AttachmentRepository defines attachment persistence.
//
// Purpose: Abstraction for attachment metadata storage.
// Domain: Incident
type AttachmentRepository interface {
	Create(ctx context.Context, a *Attachment) error
	GetByID(ctx context.Context, tenantID, id string) (*Attachment, error)
	Delete(ctx context.Context, tenantID, id string) error
	ListByIncident(ctx context.Context, tenantID, incidentID string) ([]*Attachment, error)
	UpdateScanStatus(ctx context.Context, id string, status ScanStatus) error
}

// SavedViewRepository defines per-user saved view persistence.
//
// Purpose: Abstraction for saved view storage.
// Domain: Incident
type SavedViewRepository interface {
	Create(ctx context.Context, v *SavedView) error
	GetByID(ctx context.Context, tenantID, id string) (*SavedView, error)
	Delete(ctx context.Context, tenantID, id string) error
	ListByUser(ctx context.Context, tenantID, userID string) ([]*SavedView, error)
}
