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

package tenant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/opsgrid/controlplane/audit"
	"github.com/opsgrid/controlplane/internal/id"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// Service provides tenant and membership business logic.
//
// Purpose: Bootstrap and maintenance operations for tenants and
// memberships; the UI-facing provisioning ceremony that invites a user
// is an out-of-scope collaborator, so this service exposes
// the primitives that collaborator would call.
// Domain: Tenant
type Service struct {
	repo           Repository
	membershipRepo MembershipRepository
	auditLogger    audit.Logger
}

// NewService creates a new tenant service.
func NewService(repo Repository, membershipRepo MembershipRepository, auditLogger audit.Logger) *Service {
	return &Service{repo: repo, membershipRepo: membershipRepo, auditLogger: auditLogger}
}

// CreateTenant creates a new tenant.
//
// Purpose: Out-of-band provisioning primitive; exposed here so bootstrap tooling and tests can drive it.
func (s *Service) CreateTenant(ctx context.Context, slug, name, actorID string) (*Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	name = strings.TrimSpace(name)
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: slug must be url-safe", ErrInvalidTenantName)
	}
	if name == "" {
		return nil, ErrInvalidTenantName
	}

	if existing, err := s.repo.GetBySlug(ctx, slug); err == nil && existing != nil {
		return nil, ErrTenantAlreadyExists
	}

	now := time.Now()
	t := &Tenant{
		ID:        id.NewUUIDv7(),
		Slug:      slug,
		Name:      name,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeCreate,
		TenantID:   t.ID,
		ActorID:    actorID,
		EntityType: audit.EntityTenant,
		EntityID:   t.ID,
		After:      t,
	})

	return t, nil
}

// GetTenant retrieves a tenant by id.
func (s *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// GetTenantBySlug retrieves a tenant by its URL-safe slug.
func (s *Service) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// ListTenants paginates over all tenants (platform-level operation).
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	return s.repo.List(ctx, limit, offset)
}

// SetStatus flips a tenant between active and inactive.
func (s *Service) SetStatus(ctx context.Context, tenantID, status, actorID string) (*Tenant, error) {
	if status != StatusActive && status != StatusInactive {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	before := *t
	t.Status = status
	t.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeUpdate,
		TenantID:   t.ID,
		ActorID:    actorID,
		EntityType: audit.EntityTenant,
		EntityID:   t.ID,
		Before:     before,
		After:      t,
	})
	return t, nil
}

// AssignRole grants or updates a user's role within a tenant, creating
// the membership row if one does not already exist.
func (s *Service) AssignRole(ctx context.Context, tenantID, userID string, role Role, actorID string) error {
	if !role.Valid() {
		return ErrInvalidRole
	}

	existing, err := s.membershipRepo.Get(ctx, tenantID, userID)
	if err != nil && err != ErrMembershipNotFound {
		return err
	}

	if existing == nil {
		m := &Membership{
			ID:        id.NewUUIDv7(),
			TenantID:  tenantID,
			UserID:    userID,
			Role:      role,
			CreatedAt: time.Now(),
		}
		if err := s.membershipRepo.AddMember(ctx, m); err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}
	} else {
		if err := s.membershipRepo.UpdateRole(ctx, tenantID, userID, role); err != nil {
			return fmt.Errorf("failed to update member role: %w", err)
		}
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeAssign,
		TenantID:   tenantID,
		ActorID:    actorID,
		EntityType: audit.EntityMembership,
		EntityID:   userID,
		Metadata:   map[string]any{"role": string(role)},
	})
	return nil
}

// RemoveMember revokes a user's membership in a tenant.
func (s *Service) RemoveMember(ctx context.Context, tenantID, userID, actorID string) error {
	if err := s.membershipRepo.RemoveMember(ctx, tenantID, userID); err != nil {
		return err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeDelete,
		TenantID:   tenantID,
		ActorID:    actorID,
		EntityType: audit.EntityMembership,
		EntityID:   userID,
	})
	return nil
}

// GetMembership retrieves a user's membership record in a tenant, if any.
func (s *Service) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	return s.membershipRepo.Get(ctx, tenantID, userID)
}

// ListMembers lists all memberships for a tenant.
func (s *Service) ListMembers(ctx context.Context, tenantID string) ([]*Membership, error) {
	return s.membershipRepo.ListByTenant(ctx, tenantID)
}

// ListUserTenants lists every tenant a user belongs to.
func (s *Service) ListUserTenants(ctx context.Context, userID string) ([]*Membership, error) {
	return s.membershipRepo.ListByUser(ctx, userID)
}

// BuildContext resolves a tenant+principal into the Context that every
// tenant-scoped repository call requires, enforcing that the tenant is
// active and the user holds a membership in it.
func (s *Service) BuildContext(ctx context.Context, tenantID, userID string) (Context, error) {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return Context{}, ErrTenantNotFound
	}
	if t.Status != StatusActive {
		return Context{}, ErrTenantInactive
	}

	m, err := s.membershipRepo.Get(ctx, tenantID, userID)
	if err != nil {
		return Context{}, ErrMembershipNotFound
	}

	return Context{TenantID: tenantID, PrincipalUserID: userID, Role: m.Role}, nil
}
