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

	"github.com/opsgrid/controlplane/audit"
)

// AuditRepository implements audit.Repository.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Log persists an event. Before/After are stored as JSON snapshots.
func (r *AuditRepository) Log(ctx context.Context, event audit.Event) error {
	before, err := marshalSnapshot(event.Before)
	if err != nil {
		return fmt.Errorf("failed to marshal before snapshot: %w", err)
	}
	after, err := marshalSnapshot(event.After)
	if err != nil {
		return fmt.Errorf("failed to marshal after snapshot: %w", err)
	}

	_, err = r.db.querier(ctx).Exec(ctx, `
		INSERT INTO audit_events (
			id, type, tenant_id, actor_id, entity_type, entity_id, before_snapshot, after_snapshot, metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`,
		event.ID,
		event.Type,
		event.TenantID,
		event.ActorID,
		event.EntityType,
		event.EntityID,
		before,
		after,
		event.Metadata,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}
	return nil
}

// List retrieves events matching filter, newest first, cursor-paginated
// on id.
func (r *AuditRepository) List(ctx context.Context, filter audit.Filter) ([]audit.Event, string, bool, error) {
	whereClauses := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.EntityType != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("entity_type = $%d", argIdx))
		args = append(args, *filter.EntityType)
		argIdx++
	}
	if filter.EntityID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("entity_id = $%d", argIdx))
		args = append(args, *filter.EntityID)
		argIdx++
	}
	if filter.ActorID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("actor_id = $%d", argIdx))
		args = append(args, *filter.ActorID)
		argIdx++
	}
	if filter.Action != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *filter.Action)
		argIdx++
	}
	if filter.StartDate != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *filter.StartDate)
		argIdx++
	}
	if filter.EndDate != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *filter.EndDate)
		argIdx++
	}
	if filter.Cursor != nil && *filter.Cursor != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("id < $%d", argIdx))
		args = append(args, *filter.Cursor)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit+1)

	query := `
		SELECT id, type, tenant_id, actor_id, entity_type, entity_id, before_snapshot, after_snapshot, metadata, created_at
		FROM audit_events
		WHERE ` + strings.Join(whereClauses, " AND ") + fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", argIdx)

	rows, err := r.db.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		var before, after []byte
		if err := rows.Scan(
			&e.ID, &e.Type, &e.TenantID, &e.ActorID, &e.EntityType, &e.EntityID,
			&before, &after, &e.Metadata, &e.Timestamp,
		); err != nil {
			return nil, "", false, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Before = unmarshalSnapshot(before)
		e.After = unmarshalSnapshot(after)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", false, err
	}

	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}

	nextCursor := ""
	if hasMore && len(events) > 0 {
		nextCursor = events[len(events)-1].ID
	}

	return events, nextCursor, hasMore, nil
}

func marshalSnapshot(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalSnapshot(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
