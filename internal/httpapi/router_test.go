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
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgrid/controlplane/audit"
	"github.com/opsgrid/controlplane/flag"
	"github.com/opsgrid/controlplane/incident"
	"github.com/opsgrid/controlplane/internal/authsession"
	"github.com/opsgrid/controlplane/ratelimit"
	"github.com/opsgrid/controlplane/realtime"
	"github.com/opsgrid/controlplane/tenant"
)

// The fakes below satisfy only what the routed handlers reach; every
// map is keyed the way the postgres repositories scope their queries.

type memTenants struct{ byID map[string]*tenant.Tenant }

func (m *memTenants) Create(_ context.Context, t *tenant.Tenant) error { m.byID[t.ID] = t; return nil }
func (m *memTenants) GetByID(_ context.Context, id string) (*tenant.Tenant, error) {
	t, ok := m.byID[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return t, nil
}
func (m *memTenants) GetBySlug(_ context.Context, slug string) (*tenant.Tenant, error) {
	for _, t := range m.byID {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}
func (m *memTenants) Update(_ context.Context, t *tenant.Tenant) error { m.byID[t.ID] = t; return nil }
func (m *memTenants) List(context.Context, int, int) ([]*tenant.Tenant, error) {
	return nil, nil
}

type memMemberships struct{ byKey map[string]*tenant.Membership }

func key(tenantID, userID string) string { return tenantID + "/" + userID }

func (m *memMemberships) AddMember(_ context.Context, mb *tenant.Membership) error {
	m.byKey[key(mb.TenantID, mb.UserID)] = mb
	return nil
}
func (m *memMemberships) UpdateRole(_ context.Context, tenantID, userID string, role tenant.Role) error {
	mb, ok := m.byKey[key(tenantID, userID)]
	if !ok {
		return tenant.ErrMembershipNotFound
	}
	mb.Role = role
	return nil
}
func (m *memMemberships) RemoveMember(_ context.Context, tenantID, userID string) error {
	delete(m.byKey, key(tenantID, userID))
	return nil
}
func (m *memMemberships) Get(_ context.Context, tenantID, userID string) (*tenant.Membership, error) {
	mb, ok := m.byKey[key(tenantID, userID)]
	if !ok {
		return nil, tenant.ErrMembershipNotFound
	}
	return mb, nil
}
func (m *memMemberships) ListByTenant(context.Context, string) ([]*tenant.Membership, error) {
	return nil, nil
}
func (m *memMemberships) ListByUser(context.Context, string) ([]*tenant.Membership, error) {
	return nil, nil
}

type memIncidents struct{ byID map[string]*incident.Incident }

func (m *memIncidents) Create(_ context.Context, i *incident.Incident) error {
	cp := *i
	m.byID[i.ID] = &cp
	return nil
}
func (m *memIncidents) GetByID(_ context.Context, tenantID, id string) (*incident.Incident, error) {
	i, ok := m.byID[id]
	if !ok || i.TenantID != tenantID {
		return nil, incident.ErrNotFound
	}
	cp := *i
	return &cp, nil
}
func (m *memIncidents) Update(_ context.Context, i *incident.Incident) error {
	existing, ok := m.byID[i.ID]
	if !ok || existing.TenantID != i.TenantID {
		return incident.ErrNotFound
	}
	cp := *i
	m.byID[i.ID] = &cp
	return nil
}
func (m *memIncidents) List(_ context.Context, tenantID string, _ incident.Filter) ([]*incident.Incident, string, bool, error) {
	var out []*incident.Incident
	for _, i := range m.byID {
		if i.TenantID == tenantID {
			out = append(out, i)
		}
	}
	return out, "", false, nil
}
func (m *memIncidents) CountSince(_ context.Context, tenantID, id string, _ time.Time) (time.Time, bool, error) {
	i, ok := m.byID[id]
	if !ok || i.TenantID != tenantID {
		return time.Time{}, false, nil
	}
	return i.UpdatedAt, true, nil
}

type memTimeline struct{ byIncident map[string][]*incident.TimelineEvent }

func (m *memTimeline) Append(_ context.Context, e *incident.TimelineEvent) error {
	m.byIncident[e.IncidentID] = append(m.byIncident[e.IncidentID], e)
	return nil
}
func (m *memTimeline) ListByIncident(_ context.Context, _, incidentID string) ([]*incident.TimelineEvent, error) {
	return m.byIncident[incidentID], nil
}
func (m *memTimeline) CountByIncident(_ context.Context, _, incidentID string) (int, error) {
	return len(m.byIncident[incidentID]), nil
}
func (m *memTimeline) ListSince(_ context.Context, _, incidentID string, afterCount int) ([]*incident.TimelineEvent, error) {
	all := m.byIncident[incidentID]
	if afterCount >= len(all) {
		return nil, nil
	}
	return all[afterCount:], nil
}

type memAttachments struct{ byID map[string]*incident.Attachment }

func (m *memAttachments) Create(_ context.Context, a *incident.Attachment) error {
	m.byID[a.ID] = a
	return nil
}
func (m *memAttachments) GetByID(_ context.Context, tenantID, id string) (*incident.Attachment, error) {
	a, ok := m.byID[id]
	if !ok || a.TenantID != tenantID {
		return nil, incident.ErrAttachmentNotFound
	}
	return a, nil
}
func (m *memAttachments) Delete(_ context.Context, tenantID, id string) error {
	a, ok := m.byID[id]
	if !ok || a.TenantID != tenantID {
		return incident.ErrAttachmentNotFound
	}
	delete(m.byID, id)
	return nil
}
func (m *memAttachments) ListByIncident(context.Context, string, string) ([]*incident.Attachment, error) {
	return nil, nil
}
func (m *memAttachments) UpdateScanStatus(_ context.Context, id string, s incident.ScanStatus) error {
	a, ok := m.byID[id]
	if !ok {
		return incident.ErrAttachmentNotFound
	}
	a.ScanStatus = s
	return nil
}

type memSavedViews struct{ byID map[string]*incident.SavedView }

func (m *memSavedViews) Create(_ context.Context, v *incident.SavedView) error {
	m.byID[v.ID] = v
	return nil
}
func (m *memSavedViews) GetByID(_ context.Context, tenantID, id string) (*incident.SavedView, error) {
	v, ok := m.byID[id]
	if !ok || v.TenantID != tenantID {
		return nil, incident.ErrSavedViewNotFound
	}
	return v, nil
}
func (m *memSavedViews) Delete(_ context.Context, tenantID, id string) error {
	if _, err := m.GetByID(context.Background(), tenantID, id); err != nil {
		return err
	}
	delete(m.byID, id)
	return nil
}
func (m *memSavedViews) ListByUser(context.Context, string, string) ([]*incident.SavedView, error) {
	return nil, nil
}

type memFlags struct{ byID map[string]*flag.Flag }

func (m *memFlags) Create(_ context.Context, f *flag.Flag) error { m.byID[f.ID] = f; return nil }
func (m *memFlags) GetByID(_ context.Context, tenantID, id string) (*flag.Flag, error) {
	f, ok := m.byID[id]
	if !ok || f.TenantID != tenantID {
		return nil, flag.ErrNotFound
	}
	return f, nil
}
func (m *memFlags) GetByKey(_ context.Context, tenantID, key string, env incident.Environment) (*flag.Flag, error) {
	for _, f := range m.byID {
		if f.TenantID == tenantID && f.Key == key && f.Environment == env {
			return f, nil
		}
	}
	return nil, flag.ErrNotFound
}
func (m *memFlags) Update(_ context.Context, f *flag.Flag) error { m.byID[f.ID] = f; return nil }
func (m *memFlags) Delete(_ context.Context, _, id string) error { delete(m.byID, id); return nil }
func (m *memFlags) List(_ context.Context, tenantID string) ([]*flag.Flag, error) {
	var out []*flag.Flag
	for _, f := range m.byID {
		if f.TenantID == tenantID {
			out = append(out, f)
		}
	}
	return out, nil
}

type memRules struct{ byFlag map[string][]*flag.Rule }

func (m *memRules) Create(_ context.Context, r *flag.Rule) error {
	m.byFlag[r.FlagID] = append(m.byFlag[r.FlagID], r)
	return nil
}
func (m *memRules) Delete(_ context.Context, _, flagID, ruleID string) error {
	rules := m.byFlag[flagID]
	for i, r := range rules {
		if r.ID == ruleID {
			m.byFlag[flagID] = append(rules[:i], rules[i+1:]...)
			return nil
		}
	}
	return flag.ErrRuleNotFound
}
func (m *memRules) ListByFlag(_ context.Context, _, flagID string) ([]*flag.Rule, error) {
	return m.byFlag[flagID], nil
}

type memAudit struct{ events []audit.Event }

func (m *memAudit) Log(_ context.Context, e audit.Event) error {
	m.events = append(m.events, e)
	return nil
}
func (m *memAudit) List(_ context.Context, f audit.Filter) ([]audit.Event, string, bool, error) {
	var out []audit.Event
	for _, e := range m.events {
		if e.TenantID == f.TenantID {
			out = append(out, e)
		}
	}
	return out, "", false, nil
}

type passRunner struct{}

func (passRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

const (
	testTenantID = "t-1"
	engineerID   = "u-engineer"
	adminID      = "u-admin"
	viewerID     = "u-viewer"
	testSecret   = "0123456789abcdef0123456789abcdef"
)

type fixture struct {
	router   http.Handler
	sessions *authsession.Manager
	audit    *memAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tenants := &memTenants{byID: map[string]*tenant.Tenant{
		testTenantID: {ID: testTenantID, Slug: "acme", Name: "Acme", Status: tenant.StatusActive},
	}}
	memberships := &memMemberships{byKey: map[string]*tenant.Membership{
		key(testTenantID, engineerID): {TenantID: testTenantID, UserID: engineerID, Role: tenant.RoleEngineer},
		key(testTenantID, adminID):    {TenantID: testTenantID, UserID: adminID, Role: tenant.RoleAdmin},
		key(testTenantID, viewerID):   {TenantID: testTenantID, UserID: viewerID, Role: tenant.RoleViewer},
	}}

	auditRepo := &memAudit{}
	auditLogger := audit.NewRepositoryLogger(auditRepo)

	incidents := &memIncidents{byID: map[string]*incident.Incident{}}
	timeline := &memTimeline{byIncident: map[string][]*incident.TimelineEvent{}}
	attachments := &memAttachments{byID: map[string]*incident.Attachment{}}
	savedViews := &memSavedViews{byID: map[string]*incident.SavedView{}}

	incidentSvc := incident.NewService(incidents, timeline, attachments, savedViews, memberships, auditLogger, passRunner{}, nil)
	flagSvc := flag.NewService(&memFlags{byID: map[string]*flag.Flag{}}, &memRules{byFlag: map[string][]*flag.Rule{}}, auditLogger, passRunner{})
	tenantSvc := tenant.NewService(tenants, memberships, auditLogger)

	sessions := authsession.NewManager(testSecret, false)

	router := NewRouter(Deps{
		Sessions:  sessions,
		Tenants:   tenantSvc,
		Incidents: incidentSvc,
		Flags:     flagSvc,
		AuditLogs: auditRepo,
		Stream:    realtime.NewStream(incidents, timeline, 10*time.Millisecond),
		Limiter:   ratelimit.NewLimiter(),
		DevMode:   true,
	})

	return &fixture{router: router, sessions: sessions, audit: auditRepo}
}

// request performs an authenticated, CSRF-passing request as userID.
func (f *fixture) request(t *testing.T, userID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Requested-With", "fetch")

	if userID != "" {
		issue := httptest.NewRecorder()
		require.NoError(t, f.sessions.Issue(issue, userID, userID+"@example.com", userID, testTenantID, "acme"))
		for _, c := range (&http.Response{Header: issue.Header()}).Cookies() {
			r.AddCookie(c)
		}
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func TestRouter_UnauthenticatedRequestsGet401(t *testing.T) {
	f := newFixture(t)
	w := f.request(t, "", http.MethodGet, "/api/incidents", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_CrossOriginWriteRejectedBeforeAuth(t *testing.T) {
	f := newFixture(t)

	r := httptest.NewRequest(http.MethodPost, "/api/incidents", strings.NewReader(`{}`))
	r.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_IncidentLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, engineerID, http.MethodPost, "/api/incidents",
		`{"title":"Shopping Cart Checkout Failure","severity":"SEV1","service":"Payment Gateway","environment":"PROD","tags":["payments"]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "OPEN", created.Status)
	require.Len(t, f.audit.events, 1)

	w = f.request(t, engineerID, http.MethodPatch, "/api/incidents/"+created.ID,
		`{"status":"MITIGATED","message":"cache flushed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var patched struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &patched))
	assert.Equal(t, "MITIGATED", patched.Status)
	require.Len(t, f.audit.events, 2)

	// Illegal transition: carries the legal next states, adds no audit row.
	w = f.request(t, engineerID, http.MethodPatch, "/api/incidents/"+created.ID, `{"status":"OPEN"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var failure struct {
		Error     string   `json:"error"`
		LegalNext []string `json:"legalNextStates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failure))
	assert.Equal(t, []string{"RESOLVED"}, failure.LegalNext)
	assert.Len(t, f.audit.events, 2)
}

func TestRouter_ViewerCannotMutate(t *testing.T) {
	f := newFixture(t)
	w := f.request(t, viewerID, http.MethodPost, "/api/incidents",
		`{"title":"Viewer Should Not Create","severity":"SEV3","service":"svc","environment":"DEV"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_AuditLogsAdminOnly(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, engineerID, http.MethodGet, "/api/audit-logs", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.request(t, adminID, http.MethodGet, "/api/audit-logs", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_FlagCreateAndEvaluate(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, engineerID, http.MethodPost, "/api/feature-flags",
		`{"key":"new_checkout_flow","name":"New checkout","enabled":true,"environment":"PROD"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// Duplicate key in the same environment conflicts.
	w = f.request(t, engineerID, http.MethodPost, "/api/feature-flags",
		`{"key":"new_checkout_flow","name":"Again","enabled":true,"environment":"PROD"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.request(t, engineerID, http.MethodPost, "/api/feature-flags/"+created.ID+"/rules",
		`{"type":"ALLOWLIST","condition":{"userIds":["u1","u2"]},"order":0}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.request(t, engineerID, http.MethodPost, "/api/feature-flags/"+created.ID+"/evaluate",
		`{"userId":"u1","environment":"PROD"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Enabled bool     `json:"enabled"`
		Reason  string   `json:"reason"`
		Trace   []string `json:"trace"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Enabled)
	assert.NotEmpty(t, result.Trace)

	w = f.request(t, engineerID, http.MethodPost, "/api/feature-flags/"+created.ID+"/evaluate",
		`{"userId":"u3","environment":"PROD"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Enabled)
	assert.Equal(t, "no rules matched", result.Reason)
}

func TestRouter_RateLimitHeadersPresent(t *testing.T) {
	f := newFixture(t)
	w := f.request(t, engineerID, http.MethodGet, "/api/incidents", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestRouter_ForeignTenantLooksAbsent(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, engineerID, http.MethodPost, "/api/incidents",
		`{"title":"Tenant A Private Incident","severity":"SEV2","service":"svc","environment":"PROD"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// A principal with no membership in the tenant can't even resolve a
	// tenant scope; the incident is indistinguishable from absent.
	w = f.request(t, "outsider", http.MethodGet, "/api/incidents/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
func TestRouter_AttachmentUploadMultipart(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, engineerID, http.MethodPost, "/api/incidents",
		`{"title":"Incident With Evidence","severity":"SEV2","service":"svc","environment":"PROD"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="evidence.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0x89}, 1024))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/incidents/"+created.ID+"/attachments", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.Header.Set("X-Requested-With", "fetch")
	issue := httptest.NewRecorder()
	require.NoError(t, f.sessions.Issue(issue, engineerID, "e@example.com", "Eng", testTenantID, "acme"))
	for _, c := range (&http.Response{Header: issue.Header()}).Cookies() {
		r.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	require.Equal(t, http.StatusCreated, rec.Code)

	var attachment struct {
		FileName   string `json:"file_name"`
		MimeType   string `json:"mime_type"`
		SizeBytes  int64  `json:"size_bytes"`
		ScanStatus string `json:"scan_status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attachment))
	assert.Equal(t, "evidence.png", attachment.FileName)
	assert.Equal(t, "image/png", attachment.MimeType)
	assert.Equal(t, int64(1024), attachment.SizeBytes)
	assert.Equal(t, "PENDING", attachment.ScanStatus)
}
