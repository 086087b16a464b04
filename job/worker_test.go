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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepository is an in-memory Repository for worker unit tests.
type fakeRepository struct {
	jobs map[string]*Job
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{jobs: make(map[string]*Job)}
}

func (f *fakeRepository) Create(_ context.Context, j *Job) error {
	f.jobs[j.ID] = j
	return nil
}

func (f *fakeRepository) GetByID(_ context.Context, id string) (*Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j, nil
}

func (f *fakeRepository) FetchPending(_ context.Context, batchSize int, leaseDuration time.Duration) ([]*Job, error) {
	var out []*Job
	now := time.Now()
	for _, j := range f.jobs {
		if len(out) >= batchSize {
			break
		}
		expired := j.LeasedUntil != nil && j.LeasedUntil.Before(now)
		if j.Status == StatusPending || (j.Status == StatusProcessing && expired) {
			j.Status = StatusProcessing
			until := now.Add(leaseDuration)
			j.LeasedUntil = &until
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeRepository) Complete(_ context.Context, id string, result map[string]any) error {
	j, ok := f.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.Status = StatusCompleted
	j.Result = result
	j.LeasedUntil = nil
	return nil
}

func (f *fakeRepository) Fail(_ context.Context, id string, errMsg string, retries int, requeue bool) error {
	j, ok := f.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.Error = errMsg
	j.Retries = retries
	j.LeasedUntil = nil
	if requeue {
		j.Status = StatusPending
	} else {
		j.Status = StatusFailed
	}
	return nil
}

func TestWorker_ProcessSuccess(t *testing.T) {
	repo := newFakeRepository()
	j := &Job{ID: "job-1", Type: "NOOP", Status: StatusPending}
	repo.jobs[j.ID] = j

	w := NewWorker(repo, time.Millisecond, 10)
	w.Register("NOOP", func(_ context.Context, j *Job) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})
	w.pollOnce(context.Background())

	assert.Equal(t, StatusCompleted, repo.jobs["job-1"].Status)
}

func TestWorker_RequeuesUnderRetryBudget(t *testing.T) {
	repo := newFakeRepository()
	j := &Job{ID: "job-1", Type: "FLAKY", Status: StatusPending, Retries: 0}
	repo.jobs[j.ID] = j

	w := NewWorker(repo, time.Millisecond, 10)
	w.Register("FLAKY", func(_ context.Context, j *Job) (map[string]any, error) {
		return nil, errors.New("transient failure")
	})
	w.pollOnce(context.Background())

	got := repo.jobs["job-1"]
	require.Equal(t, StatusPending, got.Status, "requeued while under MaxRetries")
	assert.Equal(t, 1, got.Retries)
}

func TestWorker_FailsPermanentlyAtRetryBudget(t *testing.T) {
	repo := newFakeRepository()
	j := &Job{ID: "job-1", Type: "FLAKY", Status: StatusPending, Retries: MaxRetries}
	repo.jobs[j.ID] = j

	w := NewWorker(repo, time.Millisecond, 10)
	w.Register("FLAKY", func(_ context.Context, j *Job) (map[string]any, error) {
		return nil, errors.New("still failing")
	})
	w.pollOnce(context.Background())

	assert.Equal(t, StatusFailed, repo.jobs["job-1"].Status)
}

func TestWorker_UnregisteredTypeFailsWithoutRequeue(t *testing.T) {
	repo := newFakeRepository()
	j := &Job{ID: "job-1", Type: "UNKNOWN", Status: StatusPending}
	repo.jobs[j.ID] = j

	w := NewWorker(repo, time.Millisecond, 10)
	w.pollOnce(context.Background())

	assert.Equal(t, StatusFailed, repo.jobs["job-1"].Status)
}

func TestWorker_ReclaimsExpiredLease(t *testing.T) {
	repo := newFakeRepository()
	past := time.Now().Add(-time.Hour)
	j := &Job{ID: "job-1", Type: "NOOP", Status: StatusProcessing, LeasedUntil: &past}
	repo.jobs[j.ID] = j

	w := NewWorker(repo, time.Millisecond, 10)
	w.Register("NOOP", func(_ context.Context, j *Job) (map[string]any, error) {
		return map[string]any{}, nil
	})
	w.pollOnce(context.Background())

	assert.Equal(t, StatusCompleted, repo.jobs["job-1"].Status, "an expired lease should be reclaimed and processed")
}
