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
	"errors"
	"fmt"
	"net/http"

	"github.com/opsgrid/controlplane/realtime"
)

// sseSink adapts an http.ResponseWriter into a realtime.Sink. Every
// frame is a bare "data: <json>" line with the event name carried
// inside the JSON, so consumers only need the default onmessage path.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(event string, payload map[string]any) error {
	frame := make(map[string]any, len(payload)+1)
	frame["type"] = event
	for k, v := range payload {
		frame[k] = v
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Heartbeat() error {
	if _, err := fmt.Fprint(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func streamHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenantContextFrom(r.Context())
		incidentID := urlParam(r, "incidentID")

		// Resolved once ahead of the stream so a missing or foreign
		// incident gets a normal 404 instead of a mid-stream close.
		if _, err := d.Incidents.Get(r.Context(), tc, incidentID); err != nil {
			writeError(w, r, err, d.DevMode)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache, no-transform")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sink := &sseSink{w: w, flusher: flusher}
		if err := d.Stream.Run(r.Context(), tc, incidentID, sink); err != nil && !errors.Is(err, realtime.ErrIncidentNotFound) {
			return
		}
	}
}
