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

package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgrid/controlplane/audit"
)

// fakeRepository is an in-memory Repository for service unit tests.
type fakeRepository struct {
	byID map[string]*Tenant
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{byID: make(map[string]*Tenant)}
}

func (f *fakeRepository) Create(_ context.Context, t *Tenant) error {
	cp := *t
	f.byID[t.ID] = &cp
	return nil
}

func (f *fakeRepository) GetByID(_ context.Context, id string) (*Tenant, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

func (f *fakeRepository) GetBySlug(_ context.Context, slug string) (*Tenant, error) {
	for _, t := range f.byID {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, ErrTenantNotFound
}

func (f *fakeRepository) Update(_ context.Context, t *Tenant) error {
	if _, ok := f.byID[t.ID]; !ok {
		return ErrTenantNotFound
	}
	cp := *t
	f.byID[t.ID] = &cp
	return nil
}

func (f *fakeRepository) List(_ context.Context, limit, offset int) ([]*Tenant, error) {
	var out []*Tenant
	for _, t := range f.byID {
		out = append(out, t)
	}
	return out, nil
}

// fakeMembershipRepository is an in-memory MembershipRepository.
type fakeMembershipRepository struct {
	byTenant map[string]map[string]*Membership
}

func newFakeMembershipRepository() *fakeMembershipRepository {
	return &fakeMembershipRepository{byTenant: make(map[string]map[string]*Membership)}
}

func (f *fakeMembershipRepository) AddMember(_ context.Context, m *Membership) error {
	if f.byTenant[m.TenantID] == nil {
		f.byTenant[m.TenantID] = make(map[string]*Membership)
	}
	f.byTenant[m.TenantID][m.UserID] = m
	return nil
}

func (f *fakeMembershipRepository) UpdateRole(_ context.Context, tenantID, userID string, role Role) error {
	m, ok := f.byTenant[tenantID][userID]
	if !ok {
		return ErrMembershipNotFound
	}
	m.Role = role
	return nil
}

func (f *fakeMembershipRepository) RemoveMember(_ context.Context, tenantID, userID string) error {
	delete(f.byTenant[tenantID], userID)
	return nil
}

func (f *fakeMembershipRepository) Get(_ context.Context, tenantID, userID string) (*Membership, error) {
	m, ok := f.byTenant[tenantID][userID]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	return m, nil
}

func (f *fakeMembershipRepository) ListByTenant(_ context.Context, tenantID string) ([]*Membership, error) {
	var out []*Membership
	for _, m := range f.byTenant[tenantID] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMembershipRepository) ListByUser(_ context.Context, userID string) ([]*Membership, error) {
	var out []*Membership
	for _, byUser := range f.byTenant {
		if m, ok := byUser[userID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// fakeAuditLogger discards events; only used because NewService requires one.
type fakeAuditLogger struct{}

func (fakeAuditLogger) Log(context.Context, audit.Event) {}

func newTestService() (*Service, *fakeRepository, *fakeMembershipRepository) {
	repo := newFakeRepository()
	members := newFakeMembershipRepository()
	return NewService(repo, members, fakeAuditLogger{}), repo, members
}

func TestService_CreateTenant_RejectsBadSlug(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateTenant(context.Background(), "Not A Slug!", "Acme", "actor-1")
	assert.ErrorIs(t, err, ErrInvalidTenantName)
}

func TestService_CreateTenant_RejectsDuplicateSlug(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateTenant(ctx, "acme", "Acme", "actor-1")
	require.NoError(t, err)

	_, err = svc.CreateTenant(ctx, "acme", "Acme Again", "actor-1")
	assert.ErrorIs(t, err, ErrTenantAlreadyExists)
}

func TestService_BuildContext_Success(t *testing.T) {
	svc, _, members := newTestService()
	ctx := context.Background()
	tn, err := svc.CreateTenant(ctx, "acme", "Acme", "actor-1")
	require.NoError(t, err)

	require.NoError(t, members.AddMember(ctx, &Membership{ID: "m1", TenantID: tn.ID, UserID: "user-1", Role: RoleEngineer, CreatedAt: time.Now()}))

	tc, err := svc.BuildContext(ctx, tn.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, tn.ID, tc.TenantID)
	assert.Equal(t, RoleEngineer, tc.Role)
}

func TestService_BuildContext_RejectsUnknownTenant(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.BuildContext(context.Background(), "no-such-tenant", "user-1")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestService_BuildContext_RejectsInactiveTenant(t *testing.T) {
	svc, _, members := newTestService()
	ctx := context.Background()
	tn, err := svc.CreateTenant(ctx, "acme", "Acme", "actor-1")
	require.NoError(t, err)
	require.NoError(t, members.AddMember(ctx, &Membership{ID: "m1", TenantID: tn.ID, UserID: "user-1", Role: RoleAdmin, CreatedAt: time.Now()}))

	_, err = svc.SetStatus(ctx, tn.ID, StatusInactive, "actor-1")
	require.NoError(t, err)

	_, err = svc.BuildContext(ctx, tn.ID, "user-1")
	assert.ErrorIs(t, err, ErrTenantInactive)
}

func TestService_BuildContext_RejectsNonMember(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	tn, err := svc.CreateTenant(ctx, "acme", "Acme", "actor-1")
	require.NoError(t, err)

	_, err = svc.BuildContext(ctx, tn.ID, "stranger")
	assert.ErrorIs(t, err, ErrMembershipNotFound)
}

func TestService_AssignRole_CreatesMembershipIfAbsent(t *testing.T) {
	svc, _, members := newTestService()
	ctx := context.Background()
	tn, err := svc.CreateTenant(ctx, "acme", "Acme", "actor-1")
	require.NoError(t, err)

	err = svc.AssignRole(ctx, tn.ID, "user-1", RoleViewer, "actor-1")
	require.NoError(t, err)

	m, err := members.Get(ctx, tn.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, m.Role)

	err = svc.AssignRole(ctx, tn.ID, "user-1", RoleAdmin, "actor-1")
	require.NoError(t, err)
	m, err = members.Get(ctx, tn.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, m.Role, "re-assigning updates the existing membership's role")
}

func TestService_AssignRole_RejectsInvalidRole(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.AssignRole(context.Background(), "t1", "u1", Role("BOGUS"), "actor-1")
	assert.ErrorIs(t, err, ErrInvalidRole)
}
