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
	"log/slog"
	"time"
)

// Handler executes the side effect for one job type and returns the
// result payload to persist, or an error to drive the retry budget.
type Handler func(ctx context.Context, j *Job) (map[string]any, error)

// defaultLeaseDuration bounds how long a claimed job may sit in
// PROCESSING before another worker may reclaim it.
const defaultLeaseDuration = 30 * time.Second

// Worker polls Repository for pending jobs and dispatches them to a
// registered Handler by job type.
//
// Purpose: Background execution loop; one Worker may run per process,
// and many processes may share one Repository safely because claiming
// a job is an atomic UPDATE ... WHERE status = 'PENDING' (or
// lease-expired) at the storage layer.
// Domain: Jobs
type Worker struct {
	repo          Repository
	handlers      map[string]Handler
	pollInterval  time.Duration
	batchSize     int
	leaseDuration time.Duration
}

// NewWorker creates a worker with the given poll interval and batch size.
func NewWorker(repo Repository, pollInterval time.Duration, batchSize int) *Worker {
	return &Worker{
		repo:          repo,
		handlers:      make(map[string]Handler),
		pollInterval:  pollInterval,
		batchSize:     batchSize,
		leaseDuration: defaultLeaseDuration,
	}
}

// Register binds a Handler to a job type.
func (w *Worker) Register(jobType string, h Handler) {
	w.handlers[jobType] = h
}

// Run blocks, polling every pollInterval until ctx is cancelled.
//
// Purpose: The worker's top-level loop; cancellation is cooperative and
// deterministic: the in-flight poll finishes, then Run returns.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

// pollOnce fetches and processes a single batch of jobs.
func (w *Worker) pollOnce(ctx context.Context) {
	jobs, err := w.repo.FetchPending(ctx, w.batchSize, w.leaseDuration)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch pending jobs", "error", err)
		return
	}
	for _, j := range jobs {
		w.process(ctx, j)
	}
}

// process executes one job's handler and transitions it according to
// the retry budget.
func (w *Worker) process(ctx context.Context, j *Job) {
	h, ok := w.handlers[j.Type]
	if !ok {
		slog.WarnContext(ctx, "no handler registered for job type", "job_id", j.ID, "job_type", j.Type)
		_ = w.repo.Fail(ctx, j.ID, "no handler registered for job type "+j.Type, j.Retries, false)
		return
	}

	result, err := h(ctx, j)
	if err != nil {
		requeue := j.Retries < MaxRetries
		if ferr := w.repo.Fail(ctx, j.ID, err.Error(), j.Retries+1, requeue); ferr != nil {
			slog.ErrorContext(ctx, "failed to record job failure", "job_id", j.ID, "error", ferr)
		}
		slog.ErrorContext(ctx, "job handler failed", "job_id", j.ID, "job_type", j.Type, "retries", j.Retries, "requeued", requeue, "error", err)
		return
	}

	if cerr := w.repo.Complete(ctx, j.ID, result); cerr != nil {
		slog.ErrorContext(ctx, "failed to mark job complete", "job_id", j.ID, "error", cerr)
	}
}
