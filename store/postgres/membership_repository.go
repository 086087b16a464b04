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

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opsgrid/controlplane/tenant"
)

// MembershipRepository implements tenant.MembershipRepository.
type MembershipRepository struct {
	db *DB
}

// NewMembershipRepository creates a new membership repository.
func NewMembershipRepository(db *DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// AddMember inserts a new membership record.
func (r *MembershipRepository) AddMember(ctx context.Context, m *tenant.Membership) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	_, err := r.db.querier(ctx).Exec(ctx, `
		INSERT INTO memberships (id, tenant_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, user_id) DO NOTHING
	`, m.ID, m.TenantID, m.UserID, m.Role, m.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// UpdateRole changes a member's role within a tenant.
func (r *MembershipRepository) UpdateRole(ctx context.Context, tenantID, userID string, role tenant.Role) error {
	result, err := r.db.querier(ctx).Exec(ctx, `
		UPDATE memberships SET role = $3
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID, role)

	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrMembershipNotFound
	}
	return nil
}

// RemoveMember revokes a membership record.
func (r *MembershipRepository) RemoveMember(ctx context.Context, tenantID, userID string) error {
	_, err := r.db.querier(ctx).Exec(ctx, `
		DELETE FROM memberships
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID)

	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// Get retrieves a single membership, if one exists.
func (r *MembershipRepository) Get(ctx context.Context, tenantID, userID string) (*tenant.Membership, error) {
	m := &tenant.Membership{}
	err := r.db.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, user_id, role, created_at
		FROM memberships
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.CreatedAt)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, tenant.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListByTenant retrieves all memberships for a tenant.
func (r *MembershipRepository) ListByTenant(ctx context.Context, tenantID string) ([]*tenant.Membership, error) {
	rows, err := r.db.querier(ctx).Query(ctx, `
		SELECT id, tenant_id, user_id, role, created_at
		FROM memberships
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var result []*tenant.Membership
	for rows.Next() {
		m := &tenant.Membership{}
		if err := rows.Scan(&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ListByUser retrieves every tenant membership a user holds.
func (r *MembershipRepository) ListByUser(ctx context.Context, userID string) ([]*tenant.Membership, error) {
	rows, err := r.db.querier(ctx).Query(ctx, `
		SELECT id, tenant_id, user_id, role, created_at
		FROM memberships
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user memberships: %w", err)
	}
	defer rows.Close()

	var result []*tenant.Membership
	for rows.Next() {
		m := &tenant.Membership{}
		if err := rows.Scan(&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
