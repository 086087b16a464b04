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

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/opsgrid/controlplane/incident"
)

func listIncidentsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		q := r.URL.Query()

		f := incident.Filter{}
		if v := q.Get("status"); v != "" {
			s := incident.Status(v)
			f.Status = &s
		}
		if v := q.Get("severity"); v != "" {
			s := incident.Severity(v)
			f.Severity = &s
		}
		if v := q.Get("environment"); v != "" {
			e := incident.Environment(v)
			f.Environment = &e
		}
		if v := q.Get("service"); v != "" {
			f.Service = &v
		}
		if v := q.Get("tag"); v != "" {
			f.Tag = &v
		}
		if v := q.Get("assignee"); v != "" {
			f.Assignee = &v
		}
		if v := q.Get("search"); v != "" {
			f.Search = &v
		}
		if v := q.Get("cursor"); v != "" {
			f.Cursor = &v
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				f.Limit = n
			}
		}

		items, next, hasMore, err := d.Incidents.List(r.Context(), tc, f)
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"incidents":  items,
			"nextCursor": next,
			"hasMore":    hasMore,
		})
	}
}

func createIncidentHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		var body struct {
			Title       string               `json:"title"`
			Severity    incident.Severity    `json:"severity"`
			Service     string               `json:"service"`
			Environment incident.Environment `json:"environment"`
			Tags        []string             `json:"tags"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		inc, err := d.Incidents.Create(r.Context(), tc, incident.CreateInput{
			Title:       body.Title,
			Severity:    body.Severity,
			Service:     body.Service,
			Environment: body.Environment,
			Tags:        body.Tags,
		})
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusCreated, inc)
	}
}

// incidentDetail inlines the incident's fields next to its timeline
// and attachments for the detail endpoint.
type incidentDetail struct {
	*incident.Incident
	Timeline    []*incident.TimelineEvent `json:"timeline"`
	Attachments []*incident.Attachment    `json:"attachments"`
}

func getIncidentHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		incidentID := urlParam(r, "incidentID")

		inc, err := d.Incidents.Get(r.Context(), tc, incidentID)
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		timeline, err := d.Incidents.Timeline(r.Context(), tc, incidentID)
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		attachments, err := d.Incidents.ListAttachments(r.Context(), tc, incidentID)
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, incidentDetail{Incident: inc, Timeline: timeline, Attachments: attachments})
	}
}

func changeStatusHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		var body struct {
			Status     *incident.Status `json:"status"`
			Message    string           `json:"message"`
			AssigneeID *string          `json:"assigneeId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		incidentID := urlParam(r, "incidentID")

		if body.Status != nil {
			inc, err := d.Incidents.ChangeStatus(r.Context(), tc, incidentID, *body.Status, body.Message)
			if err != nil {
				writeError(w, r, err, d.DevMode)
				return
			}
			writeJSON(w, http.StatusOK, inc)
			return
		}

		inc, err := d.Incidents.Assign(r.Context(), tc, incidentID, body.AssigneeID)
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, inc)
	}
}

func addTimelineEventHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		var body struct {
			Type    incident.TimelineEventType `json:"type"`
			Message string                     `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		e, err := d.Incidents.AddTimelineEvent(r.Context(), tc, urlParam(r, "incidentID"), body.Type, body.Message)
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func bulkActionHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		var body struct {
			Action      string          `json:"action"`
			IncidentIDs []string        `json:"incidentIds"`
			AssigneeID  string          `json:"assigneeId"`
			Status      incident.Status `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		var count int
		var err error
		switch body.Action {
		case "ASSIGN":
			count, err = d.Incidents.BulkAssignEngineer(r.Context(), tc, body.IncidentIDs, body.AssigneeID)
		case "CHANGE_STATUS":
			count, err = d.Incidents.BulkChangeStatus(r.Context(), tc, body.IncidentIDs, body.Status)
		default:
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown bulk action"})
			return
		}
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"updatedCount": count})
	}
}

// maxUploadBytes bounds the whole multipart body: the 10 MiB file cap
// plus headroom for part boundaries and headers.
const maxUploadBytes = 10<<20 + 64<<10

func uploadAttachmentHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, incident.ErrAttachmentRejected, d.DevMode)
			return
		}
		defer file.Close()

		mimeType := header.Header.Get("Content-Type")
		a, err := d.Incidents.UploadAttachment(r.Context(), tc, urlParam(r, "incidentID"), header.Filename, mimeType, header.Size)
		if err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}

		// The file bytes go to the out-of-scope object store; the core's
		// contract ends at the metadata row, the storage path, and the
		// scan job. Drain the part so the connection can be reused.
		_, _ = io.Copy(io.Discard, file)

		writeJSON(w, http.StatusCreated, a)
	}
}

func deleteAttachmentHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		if err := d.Incidents.DeleteAttachment(r.Context(), tc, urlParam(r, "attachmentID")); err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
