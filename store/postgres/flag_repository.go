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

	"github.com/jackc/pgx/v5"
	"github.com/opsgrid/controlplane/flag"
	"github.com/opsgrid/controlplane/incident"
)

// FlagRepository implements flag.Repository.
type FlagRepository struct {
	db *DB
}

// NewFlagRepository creates a new feature-flag repository.
func NewFlagRepository(db *DB) *FlagRepository {
	return &FlagRepository{db: db}
}

// Create inserts a new feature flag.
func (r *FlagRepository) Create(ctx context.Context, f *flag.Flag) error {
	_, err := r.db.querier(ctx).Exec(ctx, `
		INSERT INTO feature_flags (id, tenant_id, key, name, description, enabled, environment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, f.ID, f.TenantID, f.Key, f.Name, f.Description, f.Enabled, f.Environment, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create flag: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant-scoped flag by ID.
func (r *FlagRepository) GetByID(ctx context.Context, tenantID, id string) (*flag.Flag, error) {
	var f flag.Flag
	err := r.db.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, key, name, description, enabled, environment, created_at, updated_at
		FROM feature_flags
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&f.ID, &f.TenantID, &f.Key, &f.Name, &f.Description, &f.Enabled, &f.Environment, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, flag.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get flag: %w", err)
	}
	return &f, nil
}

// GetByKey retrieves a flag by its unique (tenant_id, key, environment) triple.
func (r *FlagRepository) GetByKey(ctx context.Context, tenantID, key string, env incident.Environment) (*flag.Flag, error) {
	var f flag.Flag
	err := r.db.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, key, name, description, enabled, environment, created_at, updated_at
		FROM feature_flags
		WHERE tenant_id = $1 AND key = $2 AND environment = $3
	`, tenantID, key, env).Scan(&f.ID, &f.TenantID, &f.Key, &f.Name, &f.Description, &f.Enabled, &f.Environment, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, flag.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get flag by key: %w", err)
	}
	return &f, nil
}

// Update persists a flag's mutable fields, scoped to its tenant.
func (r *FlagRepository) Update(ctx context.Context, f *flag.Flag) error {
	result, err := r.db.querier(ctx).Exec(ctx, `
		UPDATE feature_flags SET name = $3, description = $4, enabled = $5, updated_at = $6
		WHERE id = $1 AND tenant_id = $2
	`, f.ID, f.TenantID, f.Name, f.Description, f.Enabled, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return flag.ErrNotFound
	}
	return nil
}

// Delete removes a flag; rules cascade at the schema level.
func (r *FlagRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.querier(ctx).Exec(ctx, `
		DELETE FROM feature_flags WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return flag.ErrNotFound
	}
	return nil
}

// List lists every flag for the tenant.
func (r *FlagRepository) List(ctx context.Context, tenantID string) ([]*flag.Flag, error) {
	rows, err := r.db.querier(ctx).Query(ctx, `
		SELECT id, tenant_id, key, name, description, enabled, environment, created_at, updated_at
		FROM feature_flags
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	defer rows.Close()

	var items []*flag.Flag
	for rows.Next() {
		var f flag.Flag
		if err := rows.Scan(&f.ID, &f.TenantID, &f.Key, &f.Name, &f.Description, &f.Enabled, &f.Environment, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flag: %w", err)
		}
		items = append(items, &f)
	}
	return items, rows.Err()
}
