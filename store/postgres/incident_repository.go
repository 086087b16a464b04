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
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opsgrid/controlplane/incident"
)

// IncidentRepository implements incident.Repository.
type IncidentRepository struct {
	db *DB
}

// NewIncidentRepository creates a new incident repository.
func NewIncidentRepository(db *DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// Create inserts a new incident row.
func (r *IncidentRepository) Create(ctx context.Context, i *incident.Incident) error {
	tags, err := json.Marshal(i.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = r.db.querier(ctx).Exec(ctx, `
		INSERT INTO incidents (
			id, tenant_id, title, severity, status, service, environment, tags,
			created_by_id, assignee_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, i.ID, i.TenantID, i.Title, i.Severity, i.Status, i.Service, i.Environment, tags,
		i.CreatedByID, i.AssigneeID, i.CreatedAt, i.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant-scoped incident by ID.
func (r *IncidentRepository) GetByID(ctx context.Context, tenantID, id string) (*incident.Incident, error) {
	var i incident.Incident
	var tags []byte

	err := r.db.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, title, severity, status, service, environment, tags,
			created_by_id, assignee_id, created_at, updated_at
		FROM incidents
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(
		&i.ID, &i.TenantID, &i.Title, &i.Severity, &i.Status, &i.Service, &i.Environment, &tags,
		&i.CreatedByID, &i.AssigneeID, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, incident.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	if err := json.Unmarshal(tags, &i.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	return &i, nil
}

// Update persists an incident's mutable fields, scoped to its tenant.
func (r *IncidentRepository) Update(ctx context.Context, i *incident.Incident) error {
	tags, err := json.Marshal(i.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	result, err := r.db.querier(ctx).Exec(ctx, `
		UPDATE incidents SET
			title = $3, severity = $4, status = $5, service = $6, environment = $7,
			tags = $8, assignee_id = $9, updated_at = $10
		WHERE id = $1 AND tenant_id = $2
	`, i.ID, i.TenantID, i.Title, i.Severity, i.Status, i.Service, i.Environment,
		tags, i.AssigneeID, i.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incident.ErrNotFound
	}
	return nil
}

// List pages over incidents matching f, newest first,
// fetching limit+1 rows to detect hasMore without a second query.
func (r *IncidentRepository) List(ctx context.Context, tenantID string, f incident.Filter) ([]*incident.Incident, string, bool, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	argIdx := 2

	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}
	if f.Severity != nil {
		where = append(where, fmt.Sprintf("severity = $%d", argIdx))
		args = append(args, *f.Severity)
		argIdx++
	}
	if f.Environment != nil {
		where = append(where, fmt.Sprintf("environment = $%d", argIdx))
		args = append(args, *f.Environment)
		argIdx++
	}
	if f.Service != nil {
		where = append(where, fmt.Sprintf("service ILIKE $%d", argIdx))
		args = append(args, "%"+*f.Service+"%")
		argIdx++
	}
	if f.Tag != nil {
		where = append(where, fmt.Sprintf("tags @> $%d", argIdx))
		tagJSON, _ := json.Marshal([]string{*f.Tag})
		args = append(args, tagJSON)
		argIdx++
	}
	if f.Assignee != nil {
		where = append(where, fmt.Sprintf("assignee_id = $%d", argIdx))
		args = append(args, *f.Assignee)
		argIdx++
	}
	if f.Search != nil {
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR service ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+*f.Search+"%")
		argIdx++
	}
	if f.Cursor != nil && *f.Cursor != "" {
		where = append(where, fmt.Sprintf("id < $%d", argIdx))
		args = append(args, *f.Cursor)
		argIdx++
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit+1)

	query := `
		SELECT id, tenant_id, title, severity, status, service, environment, tags,
			created_by_id, assignee_id, created_at, updated_at
		FROM incidents
		WHERE ` + strings.Join(where, " AND ") + fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIdx)

	rows, err := r.db.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var items []*incident.Incident
	for rows.Next() {
		var i incident.Incident
		var tags []byte
		if err := rows.Scan(
			&i.ID, &i.TenantID, &i.Title, &i.Severity, &i.Status, &i.Service, &i.Environment, &tags,
			&i.CreatedByID, &i.AssigneeID, &i.CreatedAt, &i.UpdatedAt,
		); err != nil {
			return nil, "", false, fmt.Errorf("failed to scan incident: %w", err)
		}
		if err := json.Unmarshal(tags, &i.Tags); err != nil {
			return nil, "", false, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
		items = append(items, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, "", false, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	nextCursor := ""
	if hasMore && len(items) > 0 {
		nextCursor = items[len(items)-1].ID
	}

	return items, nextCursor, hasMore, nil
}

// CountSince reports an incident's current updated_at, used by the
// realtime stream to detect whether it has advanced since the last
// observed value.
func (r *IncidentRepository) CountSince(ctx context.Context, tenantID, id string, since time.Time) (time.Time, bool, error) {
	var updatedAt time.Time
	err := r.db.querier(ctx).QueryRow(ctx, `
		SELECT updated_at FROM incidents WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&updatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to check incident freshness: %w", err)
	}
	return updatedAt, true, nil
}
