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
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opsgrid/controlplane/incident"
)

// SavedViewRepository implements incident.SavedViewRepository.
type SavedViewRepository struct {
	db *DB
}

// NewSavedViewRepository creates a new saved-view repository.
func NewSavedViewRepository(db *DB) *SavedViewRepository {
	return &SavedViewRepository{db: db}
}

// Create inserts a new saved view.
func (r *SavedViewRepository) Create(ctx context.Context, v *incident.SavedView) error {
	filters, err := json.Marshal(v.Filters)
	if err != nil {
		return fmt.Errorf("failed to marshal saved view filters: %w", err)
	}

	_, err = r.db.querier(ctx).Exec(ctx, `
		INSERT INTO saved_views (id, tenant_id, user_id, name, filters, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, v.ID, v.TenantID, v.UserID, v.Name, filters, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create saved view: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant-scoped saved view.
func (r *SavedViewRepository) GetByID(ctx context.Context, tenantID, id string) (*incident.SavedView, error) {
	var v incident.SavedView
	var filters []byte
	err := r.db.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, user_id, name, filters, created_at
		FROM saved_views
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&v.ID, &v.TenantID, &v.UserID, &v.Name, &filters, &v.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, incident.ErrSavedViewNotFound
		}
		return nil, fmt.Errorf("failed to get saved view: %w", err)
	}
	if err := json.Unmarshal(filters, &v.Filters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal saved view filters: %w", err)
	}
	return &v, nil
}

// Delete removes a saved view, tenant-scoped.
func (r *SavedViewRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.querier(ctx).Exec(ctx, `
		DELETE FROM saved_views WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete saved view: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incident.ErrSavedViewNotFound
	}
	return nil
}

// ListByUser lists every saved view owned by userID within the tenant.
func (r *SavedViewRepository) ListByUser(ctx context.Context, tenantID, userID string) ([]*incident.SavedView, error) {
	rows, err := r.db.querier(ctx).Query(ctx, `
		SELECT id, tenant_id, user_id, name, filters, created_at
		FROM saved_views
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY created_at ASC
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved views: %w", err)
	}
	defer rows.Close()

	var items []*incident.SavedView
	for rows.Next() {
		var v incident.SavedView
		var filters []byte
		if err := rows.Scan(&v.ID, &v.TenantID, &v.UserID, &v.Name, &filters, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan saved view: %w", err)
		}
		if err := json.Unmarshal(filters, &v.Filters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal saved view filters: %w", err)
		}
		items = append(items, &v)
	}
	return items, rows.Err()
}
