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

package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgrid/controlplane/incident"
	"github.com/opsgrid/controlplane/tenant"
)

// fakeIncidentRepo is a minimal, mutable incident.Repository for tests.
type fakeIncidentRepo struct {
	mu   sync.Mutex
	inc  *incident.Incident
	gone bool
}

func (f *fakeIncidentRepo) Create(context.Context, *incident.Incident) error { return nil }

func (f *fakeIncidentRepo) GetByID(_ context.Context, _, _ string) (*incident.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone {
		return nil, incident.ErrNotFound
	}
	cp := *f.inc
	return &cp, nil
}

func (f *fakeIncidentRepo) Update(context.Context, *incident.Incident) error { return nil }

func (f *fakeIncidentRepo) List(context.Context, string, incident.Filter) ([]*incident.Incident, string, bool, error) {
	return nil, "", false, nil
}

func (f *fakeIncidentRepo) CountSince(_ context.Context, _, _ string, _ time.Time) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone {
		return time.Time{}, false, nil
	}
	return f.inc.UpdatedAt, true, nil
}

// fakeTimelineRepo is a minimal, mutable incident.TimelineRepository.
type fakeTimelineRepo struct {
	mu     sync.Mutex
	events []*incident.TimelineEvent
}

func (f *fakeTimelineRepo) Append(_ context.Context, e *incident.TimelineEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeTimelineRepo) ListByIncident(_ context.Context, _, _ string) ([]*incident.TimelineEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*incident.TimelineEvent{}, f.events...), nil
}

func (f *fakeTimelineRepo) CountByIncident(_ context.Context, _, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events), nil
}

func (f *fakeTimelineRepo) ListSince(_ context.Context, _, _ string, afterCount int) ([]*incident.TimelineEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if afterCount >= len(f.events) {
		return nil, nil
	}
	return append([]*incident.TimelineEvent{}, f.events[afterCount:]...), nil
}

// fakeSink records every frame sent to it.
type fakeSink struct {
	mu         sync.Mutex
	events     []string
	heartbeats int
}

func (s *fakeSink) Send(event string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) Heartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats++
	return nil
}

func (s *fakeSink) seen(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == event {
			n++
		}
	}
	return n
}

func TestStream_NotFoundBeforeAnyEvent(t *testing.T) {
	repo := &fakeIncidentRepo{gone: true}
	timeline := &fakeTimelineRepo{}
	s := NewStream(repo, timeline, time.Millisecond)

	sink := &fakeSink{}
	err := s.Run(context.Background(), tenant.Context{TenantID: "t1"}, "inc-1", sink)
	assert.ErrorIs(t, err, ErrIncidentNotFound)
	assert.Empty(t, sink.events)
}

func TestStream_SendsConnectedThenUpdates(t *testing.T) {
	now := time.Now()
	repo := &fakeIncidentRepo{inc: &incident.Incident{ID: "inc-1", Status: incident.StatusOpen, UpdatedAt: now}}
	timeline := &fakeTimelineRepo{}
	s := NewStream(repo, timeline, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	sink := &fakeSink{}
	go func() {
		time.Sleep(10 * time.Millisecond)
		repo.mu.Lock()
		repo.inc.UpdatedAt = now.Add(time.Second)
		repo.inc.Status = incident.StatusMitigated
		repo.mu.Unlock()
	}()

	err := s.Run(ctx, tenant.Context{TenantID: "t1"}, "inc-1", sink)
	require.NoError(t, err)
	assert.Equal(t, 1, sink.seen(EventConnected))
	assert.Equal(t, 1, sink.seen(EventIncidentUpdated))
}

func TestStream_DeletedClosesStream(t *testing.T) {
	repo := &fakeIncidentRepo{inc: &incident.Incident{ID: "inc-1", UpdatedAt: time.Now()}}
	timeline := &fakeTimelineRepo{}
	s := NewStream(repo, timeline, 5*time.Millisecond)

	sink := &fakeSink{}
	done := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go func() { done <- s.Run(ctx, tenant.Context{TenantID: "t1"}, "inc-1", sink) }()

	time.Sleep(10 * time.Millisecond)
	repo.mu.Lock()
	repo.gone = true
	repo.mu.Unlock()

	err := <-done
	require.NoError(t, err)
	assert.Equal(t, 1, sink.seen(EventDeleted))
}
