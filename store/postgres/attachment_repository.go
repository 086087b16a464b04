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
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opsgrid/controlplane/incident"
)

// AttachmentRepository implements incident.AttachmentRepository.
type AttachmentRepository struct {
	db *DB
}

// NewAttachmentRepository creates a new attachment repository.
func NewAttachmentRepository(db *DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create inserts attachment metadata.
func (r *AttachmentRepository) Create(ctx context.Context, a *incident.Attachment) error {
	_, err := r.db.querier(ctx).Exec(ctx, `
		INSERT INTO attachments (id, incident_id, tenant_id, file_name, mime_type, size_bytes, storage_url, scan_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.IncidentID, a.TenantID, a.FileName, a.MimeType, a.SizeBytes, a.StorageURL, a.ScanStatus, a.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant-scoped attachment by ID.
func (r *AttachmentRepository) GetByID(ctx context.Context, tenantID, id string) (*incident.Attachment, error) {
	var a incident.Attachment
	err := r.db.querier(ctx).QueryRow(ctx, `
		SELECT id, incident_id, tenant_id, file_name, mime_type, size_bytes, storage_url, scan_status, created_at
		FROM attachments
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&a.ID, &a.IncidentID, &a.TenantID, &a.FileName, &a.MimeType, &a.SizeBytes, &a.StorageURL, &a.ScanStatus, &a.CreatedAt)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, incident.ErrAttachmentNotFound
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &a, nil
}

// Delete removes an attachment row, tenant-scoped.
func (r *AttachmentRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.querier(ctx).Exec(ctx, `
		DELETE FROM attachments WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incident.ErrAttachmentNotFound
	}
	return nil
}

// ListByIncident lists every attachment on an incident.
func (r *AttachmentRepository) ListByIncident(ctx context.Context, tenantID, incidentID string) ([]*incident.Attachment, error) {
	rows, err := r.db.querier(ctx).Query(ctx, `
		SELECT id, incident_id, tenant_id, file_name, mime_type, size_bytes, storage_url, scan_status, created_at
		FROM attachments
		WHERE tenant_id = $1 AND incident_id = $2
		ORDER BY created_at ASC
	`, tenantID, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var items []*incident.Attachment
	for rows.Next() {
		var a incident.Attachment
		if err := rows.Scan(&a.ID, &a.IncidentID, &a.TenantID, &a.FileName, &a.MimeType, &a.SizeBytes, &a.StorageURL, &a.ScanStatus, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}

// UpdateScanStatus is called by the SCAN_ATTACHMENT job handler only.
func (r *AttachmentRepository) UpdateScanStatus(ctx context.Context, id string, status incident.ScanStatus) error {
	result, err := r.db.querier(ctx).Exec(ctx, `
		UPDATE attachments SET scan_status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update scan status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incident.ErrAttachmentNotFound
	}
	return nil
}
