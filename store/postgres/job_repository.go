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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opsgrid/controlplane/job"
)

// JobRepository implements job.Repository.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new PENDING job.
func (r *JobRepository) Create(ctx context.Context, j *job.Job) error {
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	_, err = r.db.querier(ctx).Exec(ctx, `
		INSERT INTO jobs (id, tenant_id, type, payload, status, retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, j.ID, j.TenantID, j.Type, payload, j.Status, j.Retries, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by its id, not tenant-scoped: the worker acts
// as a system collaborator that operates across tenants by design.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*job.Job, error) {
	j, err := r.scanOne(r.db.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, type, payload, status, result, error, retries, leased_until, created_at, updated_at, processed_at
		FROM jobs WHERE id = $1
	`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// FetchPending atomically claims up to batchSize jobs that are either
// PENDING or PROCESSING with an expired lease, ordered by created_at
// ascending. FOR UPDATE SKIP
// LOCKED lets multiple worker processes share one queue without
// double-claiming a row.
func (r *JobRepository) FetchPending(ctx context.Context, batchSize int, leaseDuration time.Duration) ([]*job.Job, error) {
	now := time.Now()
	rows, err := r.db.querier(ctx).Query(ctx, `
		UPDATE jobs SET status = 'PROCESSING', leased_until = $1, updated_at = $1
		WHERE id IN (
			SELECT id FROM jobs
			WHERE (status = 'PENDING') OR (status = 'PROCESSING' AND leased_until < $2)
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, type, payload, status, result, error, retries, leased_until, created_at, updated_at, processed_at
	`, now.Add(leaseDuration), now, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending jobs: %w", err)
	}
	defer rows.Close()

	var items []*job.Job
	for rows.Next() {
		j, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		items = append(items, j)
	}
	return items, rows.Err()
}

// Complete transitions a job to COMPLETED with its result payload.
func (r *JobRepository) Complete(ctx context.Context, id string, result map[string]any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal job result: %w", err)
	}
	now := time.Now()
	_, err = r.db.querier(ctx).Exec(ctx, `
		UPDATE jobs SET status = 'COMPLETED', result = $2, leased_until = NULL, processed_at = $3, updated_at = $3
		WHERE id = $1
	`, id, resultJSON, now)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Fail records a handler error: errMsg and the caller's retries count
// are stored as given. If requeue is true the job returns to PENDING;
// otherwise it transitions to FAILED.
func (r *JobRepository) Fail(ctx context.Context, id string, errMsg string, retries int, requeue bool) error {
	status := job.StatusFailed
	if requeue {
		status = job.StatusPending
	}
	now := time.Now()
	_, err := r.db.querier(ctx).Exec(ctx, `
		UPDATE jobs SET status = $2, error = $3, retries = $4, leased_until = NULL, updated_at = $5
		WHERE id = $1
	`, id, status, errMsg, retries, now)
	if err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}
	return nil
}

func (r *JobRepository) scanOne(row interface{ Scan(...any) error }) (*job.Job, error) {
	var j job.Job
	var payload, result []byte
	if err := row.Scan(
		&j.ID, &j.TenantID, &j.Type, &payload, &j.Status, &result, &j.Error, &j.Retries,
		&j.LeasedUntil, &j.CreatedAt, &j.UpdatedAt, &j.ProcessedAt,
	); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &j.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
		}
	}
	return &j, nil
}
