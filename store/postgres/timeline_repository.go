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

	"github.com/opsgrid/controlplane/incident"
)

// TimelineRepository implements incident.TimelineRepository.
type TimelineRepository struct {
	db *DB
}

// NewTimelineRepository creates a new timeline repository.
func NewTimelineRepository(db *DB) *TimelineRepository {
	return &TimelineRepository{db: db}
}

// Append inserts a new, immutable timeline event.
func (r *TimelineRepository) Append(ctx context.Context, e *incident.TimelineEvent) error {
	var data []byte
	if e.Data != nil {
		var err error
		data, err = json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
	}

	_, err := r.db.querier(ctx).Exec(ctx, `
		INSERT INTO timeline_events (id, incident_id, tenant_id, type, message, data, created_by_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.IncidentID, e.TenantID, e.Type, e.Message, data, e.CreatedByID, e.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append timeline event: %w", err)
	}
	return nil
}

// ListByIncident returns every event for an incident, oldest first.
func (r *TimelineRepository) ListByIncident(ctx context.Context, tenantID, incidentID string) ([]*incident.TimelineEvent, error) {
	rows, err := r.db.querier(ctx).Query(ctx, `
		SELECT id, incident_id, tenant_id, type, message, data, created_by_id, created_at
		FROM timeline_events
		WHERE tenant_id = $1 AND incident_id = $2
		ORDER BY created_at ASC
	`, tenantID, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeline events: %w", err)
	}
	defer rows.Close()

	return scanTimelineEvents(rows)
}

// CountByIncident reports how many events an incident currently has,
// used by the realtime stream to detect new events.
func (r *TimelineRepository) CountByIncident(ctx context.Context, tenantID, incidentID string) (int, error) {
	var count int
	err := r.db.querier(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM timeline_events WHERE tenant_id = $1 AND incident_id = $2
	`, tenantID, incidentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count timeline events: %w", err)
	}
	return count, nil
}

// ListSince returns events past the afterCount-th row (0-indexed by
// insertion order), newest last, so callers can deliver exactly the
// delta since their last observed count.
func (r *TimelineRepository) ListSince(ctx context.Context, tenantID, incidentID string, afterCount int) ([]*incident.TimelineEvent, error) {
	rows, err := r.db.querier(ctx).Query(ctx, `
		SELECT id, incident_id, tenant_id, type, message, data, created_by_id, created_at
		FROM timeline_events
		WHERE tenant_id = $1 AND incident_id = $2
		ORDER BY created_at ASC
		OFFSET $3
	`, tenantID, incidentID, afterCount)
	if err != nil {
		return nil, fmt.Errorf("failed to list new timeline events: %w", err)
	}
	defer rows.Close()

	return scanTimelineEvents(rows)
}

func scanTimelineEvents(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]*incident.TimelineEvent, error) {
	var events []*incident.TimelineEvent
	for rows.Next() {
		var e incident.TimelineEvent
		var data []byte
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.TenantID, &e.Type, &e.Message, &data, &e.CreatedByID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan timeline event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
