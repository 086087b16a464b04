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

package job

import (
	"context"
	"fmt"
	"time"

	"github.com/opsgrid/controlplane/internal/id"
)

// Service enqueues jobs. It carries no transaction of its own: callers
// invoke Enqueue from inside the triggering mutation's transaction so
// that a rollback discards the job too.
//
// Purpose: Thin, reusable enqueue primitive shared by every domain
// service that schedules background work.
// Domain: Jobs
type Service struct {
	repo Repository
}

// NewService creates a new job service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Enqueue inserts a new PENDING job with zero retries.
func (s *Service) Enqueue(ctx context.Context, tenantID, jobType string, payload map[string]any) error {
	now := time.Now()
	j := &Job{
		ID:        id.NewUUIDv7(),
		TenantID:  tenantID,
		Type:      jobType,
		Payload:   payload,
		Status:    StatusPending,
		Retries:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, j); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Get retrieves a single job by id, for test and debugging use.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.GetByID(ctx, id)
}
