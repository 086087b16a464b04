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

// Package job implements the durable job queue: enqueue inside the
// triggering transaction, worker polling with bounded retries, and
// at-least-once delivery.
package job

import (
	"context"
	"errors"
	"time"
)

// Domain errors.
var (
	ErrNotFound      = errors.New("job not found")
	ErrAlreadyLeased = errors.New("job already leased by another worker")
)

// Status is a job's position in its lifecycle.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Recognized job types. Handlers beyond the state
// transition itself may stub their payload side effects.
const (
	TypeScanAttachment   = "SCAN_ATTACHMENT"
	TypeSendNotification = "SEND_NOTIFICATION"
	TypeIncidentSummary  = "INCIDENT_SUMMARY"
)

// MaxRetries is the bounded retry budget before a job is marked FAILED.
const MaxRetries = 3

// Job is a persistent record of background work, subject to retry.
//
// Purpose: At-least-once work unit; handlers must be idempotent or use
// ID as a dedup key.
// Domain: Jobs
// Invariants: Retries starts at 0 and increments only on failure;
// LeasedUntil is set only while Status == PROCESSING.
type Job struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Status      Status         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Retries     int            `json:"retries"`
	LeasedUntil *time.Time     `json:"leased_until,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
}

// Repository defines tenant-scoped job persistence.
//
// Purpose: Abstraction consumed by both the enqueuing services and the
// worker's polling loop.
// Domain: Jobs
type Repository interface {
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	// FetchPending claims up to batchSize PENDING or lease-expired
	// PROCESSING jobs, ordered by created_at ASC, transitioning each to
	// PROCESSING with a new lease in the same statement.
	FetchPending(ctx context.Context, batchSize int, leaseDuration time.Duration) ([]*Job, error)
	Complete(ctx context.Context, id string, result map[string]any) error
	Fail(ctx context.Context, id string, errMsg string, retries int, requeue bool) error
}
