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

	"github.com/opsgrid/controlplane/crypto"
	"github.com/opsgrid/controlplane/incident"
)

// infectedBucketCeiling is the stable-hash threshold below which the
// attachment scan stub reports INFECTED. A deterministic stand-in for
// the out-of-scope antivirus integration, so job idempotence stays
// testable without wiring an actual scanner.
const infectedBucketCeiling = 2

// ScanAttachmentHandler updates an attachment's scan_status to CLEAN or
// INFECTED, deterministically per attachment id so repeated processing
// of the same job id is idempotent.
func ScanAttachmentHandler(attachments incident.AttachmentRepository) Handler {
	return func(ctx context.Context, j *Job) (map[string]any, error) {
		attachmentID, _ := j.Payload["attachment_id"].(string)
		if attachmentID == "" {
			return nil, fmt.Errorf("job %s: missing attachment_id payload", j.ID)
		}

		status := incident.ScanClean
		if crypto.StableBucket(attachmentID, "scan") < infectedBucketCeiling {
			status = incident.ScanInfected
		}

		if err := attachments.UpdateScanStatus(ctx, attachmentID, status); err != nil {
			return nil, fmt.Errorf("failed to update scan status: %w", err)
		}
		return map[string]any{"scan_status": string(status)}, nil
	}
}

// SendNotificationHandler is a stub: the delivery transport (email/SMS)
// is an external collaborator, so this handler only records that it ran.
func SendNotificationHandler() Handler {
	return func(ctx context.Context, j *Job) (map[string]any, error) {
		userID, _ := j.Payload["user_id"].(string)
		kind, _ := j.Payload["kind"].(string)
		return map[string]any{"delivered_to": userID, "kind": kind}, nil
	}
}

// IncidentSummaryHandler reads the incident's timeline head for the
// worker's convenience; it does not itself send anything.
func IncidentSummaryHandler(timeline incident.TimelineRepository) Handler {
	return func(ctx context.Context, j *Job) (map[string]any, error) {
		incidentID, _ := j.Payload["incident_id"].(string)
		if incidentID == "" {
			return nil, fmt.Errorf("job %s: missing incident_id payload", j.ID)
		}

		events, err := timeline.ListByIncident(ctx, j.TenantID, incidentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load timeline: %w", err)
		}

		headLen := len(events)
		if headLen > 5 {
			headLen = 5
		}
		summaries := make([]string, 0, headLen)
		for _, e := range events[:headLen] {
			summaries = append(summaries, string(e.Type)+": "+e.Message)
		}

		recipients, _ := j.Payload["recipient_ids"].([]any)
		return map[string]any{
			"incident_id":     incidentID,
			"event_count":     len(events),
			"head":            summaries,
			"recipient_count": len(recipients),
		}, nil
	}
}
