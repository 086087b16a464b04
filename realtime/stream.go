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

// Package realtime implements the per-incident change stream: an
// authenticated, tenant-scoped, polling-diff SSE feed.
package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/opsgrid/controlplane/incident"
	"github.com/opsgrid/controlplane/tenant"
)

// ErrIncidentNotFound is returned by Run before any event is sent when
// the incident is missing or belongs to a different tenant.
var ErrIncidentNotFound = errors.New("incident not found")

// Event names emitted on the stream.
const (
	EventConnected       = "connected"
	EventIncidentUpdated = "incident_updated"
	EventTimelineUpdated = "timeline_updated"
	EventDeleted         = "deleted"
)

// Sink receives frames produced by a Stream. Implementations translate
// Send into a "data: <json>\n\n" frame and Heartbeat into a comment
// line; this package has no dependency on net/http so it
// can be unit tested without a live connection.
type Sink interface {
	Send(event string, payload map[string]any) error
	Heartbeat() error
}

// Stream polls the store for one incident's changes and emits events
// through a Sink until the incident disappears or the context is
// cancelled.
//
// Purpose: Observation model for the realtime subsystem: no in-process
// pub/sub, just a tight poll loop per connection.
// Domain: Realtime
type Stream struct {
	repo         incident.Repository
	timeline     incident.TimelineRepository
	pollInterval time.Duration
}

// NewStream creates a Stream that polls every pollInterval.
func NewStream(repo incident.Repository, timeline incident.TimelineRepository, pollInterval time.Duration) *Stream {
	return &Stream{repo: repo, timeline: timeline, pollInterval: pollInterval}
}

// Run opens a stream for incidentID scoped to tc's tenant. It resolves
// the incident once up front: if it is missing or foreign, Run returns
// ErrIncidentNotFound immediately without sending anything. Otherwise it
// sends `connected`, then polls every pollInterval until ctx is
// cancelled, the incident disappears (emitting `deleted` and
// returning), or sink.Send/Heartbeat errors (connection gone).
func (s *Stream) Run(ctx context.Context, tc tenant.Context, incidentID string, sink Sink) error {
	inc, err := s.repo.GetByID(ctx, tc.TenantID, incidentID)
	if err != nil {
		return ErrIncidentNotFound
	}

	if err := sink.Send(EventConnected, map[string]any{"incidentId": incidentID}); err != nil {
		return err
	}

	lastUpdatedAt := inc.UpdatedAt
	lastEventCount, err := s.timeline.CountByIncident(ctx, tc.TenantID, incidentID)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			done, err := s.pollOnce(ctx, tc, incidentID, &lastUpdatedAt, &lastEventCount, sink)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// pollOnce runs one polling iteration, returning done=true once the
// stream should close (incident deleted).
func (s *Stream) pollOnce(ctx context.Context, tc tenant.Context, incidentID string, lastUpdatedAt *time.Time, lastEventCount *int, sink Sink) (bool, error) {
	updatedAt, found, err := s.repo.CountSince(ctx, tc.TenantID, incidentID, *lastUpdatedAt)
	if err != nil {
		return false, err
	}
	if !found {
		if err := sink.Send(EventDeleted, map[string]any{}); err != nil {
			return false, err
		}
		return true, nil
	}

	if updatedAt.After(*lastUpdatedAt) {
		inc, err := s.repo.GetByID(ctx, tc.TenantID, incidentID)
		if err != nil {
			return false, err
		}
		if err := sink.Send(EventIncidentUpdated, map[string]any{
			"status":     string(inc.Status),
			"severity":   string(inc.Severity),
			"assignee":   inc.AssigneeID,
			"updated_at": inc.UpdatedAt,
		}); err != nil {
			return false, err
		}
		*lastUpdatedAt = updatedAt
	}

	count, err := s.timeline.CountByIncident(ctx, tc.TenantID, incidentID)
	if err != nil {
		return false, err
	}
	if count > *lastEventCount {
		newEvents, err := s.timeline.ListSince(ctx, tc.TenantID, incidentID, *lastEventCount)
		if err != nil {
			return false, err
		}
		// Delta only, newest first.
		payload := make([]*incident.TimelineEvent, 0, len(newEvents))
		for i := len(newEvents) - 1; i >= 0; i-- {
			payload = append(payload, newEvents[i])
		}
		if err := sink.Send(EventTimelineUpdated, map[string]any{"newEvents": payload}); err != nil {
			return false, err
		}
		*lastEventCount = count
	}

	return false, sink.Heartbeat()
}
