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
	"errors"
	"time"
)

// Domain errors
var (
	ErrTenantNotFound        = errors.New("tenant not found")
	ErrTenantAlreadyExists   = errors.New("tenant already exists")
	ErrInvalidTenantName     = errors.New("invalid tenant name")
	ErrTenantInactive        = errors.New("tenant is inactive")
	ErrMembershipNotFound    = errors.New("membership not found")
	ErrMembershipExists      = errors.New("membership already exists")
	ErrInvalidRole           = errors.New("invalid role")
	ErrTenantContextMissing  = errors.New("tenant context missing")
	ErrInsufficientRole      = errors.New("principal's role is insufficient for this operation")
)

// Role is a membership's capability level within a tenant.
//
// Purpose: Coarse-grained RBAC gating reads, writes, and admin actions.
// Domain: Tenant
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleEngineer Role = "ENGINEER"
	RoleViewer   Role = "VIEWER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEngineer, RoleViewer:
		return true
	}
	return false
}

// CanWrite reports whether the role may create or mutate tenant-scoped data.
func (r Role) CanWrite() bool {
	return r == RoleAdmin || r == RoleEngineer
}

// CanAdmin reports whether the role may view audit logs or perform
// admin-only actions such as deleting another user's saved view.
func (r Role) CanAdmin() bool {
	return r == RoleAdmin
}

// Status values for a Tenant.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Tenant is an isolated organizational namespace; every tenant-scoped
// row belongs to exactly one.
//
// Purpose: Root of data isolation in the multi-tenant model.
// Domain: Tenant
// Invariants: Slug is immutable once set. Status is Active or Inactive.
type Tenant struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership binds a user to a tenant with a role.
//
// Purpose: Grants a user read/write/admin capability inside one tenant.
// Domain: Tenant
// Invariants: (UserID, TenantID) is unique. Role is one of the Role constants.
type Membership struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Context carries the tenant scope and caller identity that every
// tenant-scoped repository method requires.
//
// Purpose: Makes it impossible by construction to read or write
// tenant-scoped data without an explicit tenant and role in hand.
// Domain: Tenant
// Invariants: TenantID and PrincipalUserID non-empty; Role valid.
type Context struct {
	TenantID        string
	PrincipalUserID string
	Role            Role
}

// Validate returns ErrTenantContextMissing unless the context carries
// a tenant, a principal, and a known role. Repositories are only ever
// reached through a context that passed this check.
func (c Context) Validate() error {
	if c.TenantID == "" || c.PrincipalUserID == "" || !c.Role.Valid() {
		return ErrTenantContextMissing
	}
	return nil
}

// RequireWrite returns ErrInsufficientRole unless the context's role
// may mutate data.
func (c Context) RequireWrite() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.Role.CanWrite() {
		return ErrInsufficientRole
	}
	return nil
}

// RequireAdmin returns ErrInsufficientRole unless the context's role is ADMIN.
func (c Context) RequireAdmin() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.Role.CanAdmin() {
		return ErrInsufficientRole
	}
	return nil
}

// Repository defines tenant lifecycle persistence.
//
// Purpose: Abstraction for managing tenant storage.
// Domain: Tenant
type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)
}

// MembershipRepository defines membership lifecycle persistence.
//
// Purpose: Management of tenant membership and role assignment storage.
// Domain: Tenant
type MembershipRepository interface {
	AddMember(ctx context.Context, m *Membership) error
	UpdateRole(ctx context.Context, tenantID, userID string, role Role) error
	RemoveMember(ctx context.Context, tenantID, userID string) error
	Get(ctx context.Context, tenantID, userID string) (*Membership, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*Membership, error)
}
