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

package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/opsgrid/controlplane/audit"
	"github.com/opsgrid/controlplane/internal/id"
	"github.com/opsgrid/controlplane/internal/txn"
	"github.com/opsgrid/controlplane/tenant"
)

const (
	maxBodyAttachment = 10 << 20 // 10 MiB
	defaultListLimit  = 20
	maxListLimit      = 100
)

var allowedAttachmentMIME = map[string]bool{
	"application/pdf": true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/plain": true,
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// Service implements the incident state machine and surrounding
// collaborators: timeline, attachments, saved views, bulk operations.
//
// Purpose: Enforces every incident invariant so that no caller can
// reach the repositories without going through a legal transition.
// Domain: Incident
type Service struct {
	repo        Repository
	timeline    TimelineRepository
	attachments AttachmentRepository
	savedViews  SavedViewRepository
	memberships tenant.MembershipRepository
	auditLogger audit.Logger
	runner      txn.Runner
	enqueue     func(ctx context.Context, jobType string, payload map[string]any) error
}

// NewService creates a new incident service. enqueue is called inside
// the same transaction as the triggering mutation to
// schedule background work such as attachment scanning; it may be nil
// if the caller doesn't need job enqueuing wired in yet.
func NewService(
	repo Repository,
	timeline TimelineRepository,
	attachments AttachmentRepository,
	savedViews SavedViewRepository,
	memberships tenant.MembershipRepository,
	auditLogger audit.Logger,
	runner txn.Runner,
	enqueue func(ctx context.Context, jobType string, payload map[string]any) error,
) *Service {
	return &Service{
		repo:        repo,
		timeline:    timeline,
		attachments: attachments,
		savedViews:  savedViews,
		memberships: memberships,
		auditLogger: auditLogger,
		runner:      runner,
		enqueue:     enqueue,
	}
}

// CreateInput carries the fields needed to open a new incident.
type CreateInput struct {
	Title       string
	Severity    Severity
	Service     string
	Environment Environment
	Tags        []string
}

// Create opens a new OPEN incident, recording its initial STATUS_CHANGE
// timeline event and CREATE audit row in one transaction.
func (s *Service) Create(ctx context.Context, tc tenant.Context, in CreateInput) (*Incident, error) {
	if err := tc.RequireWrite(); err != nil {
		return nil, err
	}
	if len(in.Title) < 5 {
		return nil, ErrInvalidTitle
	}
	if !in.Severity.Valid() {
		return nil, ErrInvalidSeverity
	}
	if !in.Environment.Valid() {
		return nil, ErrInvalidEnvironment
	}
	if in.Service == "" {
		return nil, ErrInvalidService
	}

	now := time.Now()
	inc := &Incident{
		ID:          id.NewUUIDv7(),
		TenantID:    tc.TenantID,
		Title:       in.Title,
		Severity:    in.Severity,
		Status:      StatusOpen,
		Service:     in.Service,
		Environment: in.Environment,
		Tags:        in.Tags,
		CreatedByID: tc.PrincipalUserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, inc); err != nil {
			return fmt.Errorf("failed to create incident: %w", err)
		}

		if err := s.timeline.Append(ctx, &TimelineEvent{
			ID:          id.NewUUIDv7(),
			IncidentID:  inc.ID,
			TenantID:    tc.TenantID,
			Type:        EventStatusChange,
			Data:        map[string]any{"from": nil, "to": string(StatusOpen)},
			CreatedByID: tc.PrincipalUserID,
			CreatedAt:   now,
		}); err != nil {
			return fmt.Errorf("failed to append creation event: %w", err)
		}

		s.auditLogger.Log(ctx, audit.Event{
			ID:         id.NewUUIDv7(),
			Type:       audit.TypeCreate,
			TenantID:   tc.TenantID,
			ActorID:    tc.PrincipalUserID,
			EntityType: audit.EntityIncident,
			EntityID:   inc.ID,
			After:      inc,
			Timestamp:  now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// ChangeStatus transitions an incident's status, optionally appending a
// NOTE, atomically.
func (s *Service) ChangeStatus(ctx context.Context, tc tenant.Context, incidentID string, newStatus Status, message string) (*Incident, error) {
	if err := tc.RequireWrite(); err != nil {
		return nil, err
	}
	if !newStatus.Valid() {
		return nil, ErrInvalidTransition
	}

	var result *Incident
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		inc, err := s.repo.GetByID(ctx, tc.TenantID, incidentID)
		if err != nil {
			return err
		}
		if err := checkTransition(inc.Status, newStatus); err != nil {
			return err
		}

		now := time.Now()
		before := *inc
		from := inc.Status
		inc.Status = newStatus
		inc.UpdatedAt = now

		if err := s.repo.Update(ctx, inc); err != nil {
			return fmt.Errorf("failed to update incident status: %w", err)
		}

		if err := s.timeline.Append(ctx, &TimelineEvent{
			ID:          id.NewUUIDv7(),
			IncidentID:  inc.ID,
			TenantID:    tc.TenantID,
			Type:        EventStatusChange,
			Data:        map[string]any{"from": string(from), "to": string(newStatus)},
			CreatedByID: tc.PrincipalUserID,
			CreatedAt:   now,
		}); err != nil {
			return fmt.Errorf("failed to append status event: %w", err)
		}

		if message != "" {
			if err := s.timeline.Append(ctx, &TimelineEvent{
				ID:          id.NewUUIDv7(),
				IncidentID:  inc.ID,
				TenantID:    tc.TenantID,
				Type:        EventNote,
				Message:     message,
				CreatedByID: tc.PrincipalUserID,
				CreatedAt:   now,
			}); err != nil {
				return fmt.Errorf("failed to append note: %w", err)
			}
		}

		s.auditLogger.Log(ctx, audit.Event{
			ID:         id.NewUUIDv7(),
			Type:       audit.TypeStatusChange,
			TenantID:   tc.TenantID,
			ActorID:    tc.PrincipalUserID,
			EntityType: audit.EntityIncident,
			EntityID:   inc.ID,
			Before:     before,
			After:      inc,
			Timestamp:  now,
		})

		result = inc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Assign sets or clears an incident's assignee. A non-nil assigneeID
// must hold a membership in the same tenant.
func (s *Service) Assign(ctx context.Context, tc tenant.Context, incidentID string, assigneeID *string) (*Incident, error) {
	if err := tc.RequireWrite(); err != nil {
		return nil, err
	}
	if assigneeID != nil {
		if _, err := s.memberships.Get(ctx, tc.TenantID, *assigneeID); err != nil {
			return nil, ErrAssigneeNotInTenant
		}
	}

	var result *Incident
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		inc, err := s.repo.GetByID(ctx, tc.TenantID, incidentID)
		if err != nil {
			return err
		}
		before := *inc
		inc.AssigneeID = assigneeID
		inc.UpdatedAt = time.Now()

		if err := s.repo.Update(ctx, inc); err != nil {
			return fmt.Errorf("failed to assign incident: %w", err)
		}

		assignee := ""
		if assigneeID != nil {
			assignee = *assigneeID
		}
		if err := s.timeline.Append(ctx, &TimelineEvent{
			ID:          id.NewUUIDv7(),
			IncidentID:  inc.ID,
			TenantID:    tc.TenantID,
			Type:        EventAction,
			Message:     "assigned to " + assignee,
			CreatedByID: tc.PrincipalUserID,
			CreatedAt:   inc.UpdatedAt,
		}); err != nil {
			return fmt.Errorf("failed to append assignment event: %w", err)
		}

		s.auditLogger.Log(ctx, audit.Event{
			ID:         id.NewUUIDv7(),
			Type:       audit.TypeAssign,
			TenantID:   tc.TenantID,
			ActorID:    tc.PrincipalUserID,
			EntityType: audit.EntityIncident,
			EntityID:   inc.ID,
			Before:     before,
			After:      inc,
			Timestamp:  inc.UpdatedAt,
		})

		result = inc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddTimelineEvent appends a NOTE or ACTION event. STATUS_CHANGE events
// are only ever produced by ChangeStatus.
func (s *Service) AddTimelineEvent(ctx context.Context, tc tenant.Context, incidentID string, eventType TimelineEventType, message string) (*TimelineEvent, error) {
	if err := tc.RequireWrite(); err != nil {
		return nil, err
	}
	if eventType != EventNote && eventType != EventAction {
		return nil, ErrInvalidEventType
	}
	if len(message) < 1 {
		return nil, ErrInvalidMessage
	}

	if _, err := s.repo.GetByID(ctx, tc.TenantID, incidentID); err != nil {
		return nil, err
	}

	e := &TimelineEvent{
		ID:          id.NewUUIDv7(),
		IncidentID:  incidentID,
		TenantID:    tc.TenantID,
		Type:        eventType,
		Message:     message,
		CreatedByID: tc.PrincipalUserID,
		CreatedAt:   time.Now(),
	}
	if err := s.timeline.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to append timeline event: %w", err)
	}
	return e, nil
}

// BulkAssignEngineer assigns a single engineer across many incidents,
// in one transaction.
func (s *Service) BulkAssignEngineer(ctx context.Context, tc tenant.Context, incidentIDs []string, assigneeID string) (int, error) {
	if err := tc.RequireWrite(); err != nil {
		return 0, err
	}
	if _, err := s.memberships.Get(ctx, tc.TenantID, assigneeID); err != nil {
		return 0, ErrAssigneeNotInTenant
	}

	count := 0
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		for _, incidentID := range incidentIDs {
			inc, err := s.repo.GetByID(ctx, tc.TenantID, incidentID)
			if err != nil {
				return err
			}
			before := *inc
			inc.AssigneeID = &assigneeID
			inc.UpdatedAt = time.Now()
			if err := s.repo.Update(ctx, inc); err != nil {
				return fmt.Errorf("failed to bulk-assign incident %s: %w", incidentID, err)
			}
			s.auditLogger.Log(ctx, audit.Event{
				ID:         id.NewUUIDv7(),
				Type:       audit.TypeBulkAssign,
				TenantID:   tc.TenantID,
				ActorID:    tc.PrincipalUserID,
				EntityType: audit.EntityIncident,
				EntityID:   inc.ID,
				Before:     before,
				After:      inc,
				Timestamp:  inc.UpdatedAt,
			})
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// BulkChangeStatus validates every incident's transition before
// touching any row: if any incident lacks a legal path to newStatus,
// the whole operation fails and no row is mutated.
func (s *Service) BulkChangeStatus(ctx context.Context, tc tenant.Context, incidentIDs []string, newStatus Status) (int, error) {
	if err := tc.RequireWrite(); err != nil {
		return 0, err
	}
	if !newStatus.Valid() {
		return 0, ErrInvalidTransition
	}

	count := 0
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		incidents := make([]*Incident, 0, len(incidentIDs))
		for _, incidentID := range incidentIDs {
			inc, err := s.repo.GetByID(ctx, tc.TenantID, incidentID)
			if err != nil {
				return err
			}
			if err := checkTransition(inc.Status, newStatus); err != nil {
				return err
			}
			incidents = append(incidents, inc)
		}

		now := time.Now()
		for _, inc := range incidents {
			before := *inc
			from := inc.Status
			inc.Status = newStatus
			inc.UpdatedAt = now
			if err := s.repo.Update(ctx, inc); err != nil {
				return fmt.Errorf("failed to bulk-transition incident %s: %w", inc.ID, err)
			}
			if err := s.timeline.Append(ctx, &TimelineEvent{
				ID:          id.NewUUIDv7(),
				IncidentID:  inc.ID,
				TenantID:    tc.TenantID,
				Type:        EventStatusChange,
				Data:        map[string]any{"from": string(from), "to": string(newStatus)},
				CreatedByID: tc.PrincipalUserID,
				CreatedAt:   now,
			}); err != nil {
				return fmt.Errorf("failed to append bulk status event: %w", err)
			}
			s.auditLogger.Log(ctx, audit.Event{
				ID:         id.NewUUIDv7(),
				Type:       audit.TypeBulkStatus,
				TenantID:   tc.TenantID,
				ActorID:    tc.PrincipalUserID,
				EntityType: audit.EntityIncident,
				EntityID:   inc.ID,
				Before:     before,
				After:      inc,
				Timestamp:  now,
			})
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Get retrieves a single incident, tenant-scoped.
func (s *Service) Get(ctx context.Context, tc tenant.Context, incidentID string) (*Incident, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, tc.TenantID, incidentID)
}

// List pages over incidents matching f, clamping and defaulting Limit
// per the defaultListLimit/maxListLimit bounds.
func (s *Service) List(ctx context.Context, tc tenant.Context, f Filter) ([]*Incident, string, bool, error) {
	if err := tc.Validate(); err != nil {
		return nil, "", false, err
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.repo.List(ctx, tc.TenantID, f)
}

// Timeline returns the full ordered timeline for an incident.
func (s *Service) Timeline(ctx context.Context, tc tenant.Context, incidentID string) ([]*TimelineEvent, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return s.timeline.ListByIncident(ctx, tc.TenantID, incidentID)
}

// UploadAttachment validates and stores attachment metadata, then
// enqueues a SCAN_ATTACHMENT job in the same transaction. The file
// bytes themselves are placed in the out-of-scope object store by the
// HTTP layer; the row's storage URL is derived from the attachment id
// so the store path is reconstructible without another lookup.
func (s *Service) UploadAttachment(ctx context.Context, tc tenant.Context, incidentID, fileName, mimeType string, size int64) (*Attachment, error) {
	if err := tc.RequireWrite(); err != nil {
		return nil, err
	}
	if size <= 0 || size > maxBodyAttachment {
		return nil, ErrAttachmentRejected
	}
	if !allowedAttachmentMIME[mimeType] {
		return nil, ErrAttachmentRejected
	}
	if _, err := s.repo.GetByID(ctx, tc.TenantID, incidentID); err != nil {
		return nil, err
	}

	attachmentID := id.NewUUIDv7()
	a := &Attachment{
		ID:         attachmentID,
		IncidentID: incidentID,
		TenantID:   tc.TenantID,
		FileName:   fileName,
		MimeType:   mimeType,
		SizeBytes:  size,
		StorageURL: fmt.Sprintf("attachments/%s/%s/%s", tc.TenantID, incidentID, attachmentID),
		ScanStatus: ScanPending,
		CreatedAt:  time.Now(),
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.attachments.Create(ctx, a); err != nil {
			return fmt.Errorf("failed to create attachment: %w", err)
		}
		if s.enqueue != nil {
			if err := s.enqueue(ctx, "SCAN_ATTACHMENT", map[string]any{"attachment_id": a.ID}); err != nil {
				return fmt.Errorf("failed to enqueue scan job: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// DeleteAttachment removes an attachment row.
func (s *Service) DeleteAttachment(ctx context.Context, tc tenant.Context, attachmentID string) error {
	if err := tc.RequireWrite(); err != nil {
		return err
	}
	return s.attachments.Delete(ctx, tc.TenantID, attachmentID)
}

// ListAttachments lists attachment metadata for an incident.
func (s *Service) ListAttachments(ctx context.Context, tc tenant.Context, incidentID string) ([]*Attachment, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return s.attachments.ListByIncident(ctx, tc.TenantID, incidentID)
}

// CreateSavedView stores a new named filter for a user.
func (s *Service) CreateSavedView(ctx context.Context, tc tenant.Context, name string, f Filter) (*SavedView, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	v := &SavedView{
		ID:        id.NewUUIDv7(),
		TenantID:  tc.TenantID,
		UserID:    tc.PrincipalUserID,
		Name:      name,
		Filters:   f,
		CreatedAt: time.Now(),
	}
	if err := s.savedViews.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to create saved view: %w", err)
	}
	return v, nil
}

// ListSavedViews lists a user's saved views.
func (s *Service) ListSavedViews(ctx context.Context, tc tenant.Context) ([]*SavedView, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return s.savedViews.ListByUser(ctx, tc.TenantID, tc.PrincipalUserID)
}

// DeleteSavedView removes a saved view. Only its owner or an ADMIN may
// delete it.
func (s *Service) DeleteSavedView(ctx context.Context, tc tenant.Context, viewID string) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	v, err := s.savedViews.GetByID(ctx, tc.TenantID, viewID)
	if err != nil {
		return err
	}
	if v.UserID != tc.PrincipalUserID && !tc.Role.CanAdmin() {
		return ErrNotOwner
	}
	return s.savedViews.Delete(ctx, tc.TenantID, viewID)
}
