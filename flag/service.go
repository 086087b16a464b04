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

package flag

import (
	"context"
	"fmt"
	"time"

	"github.com/opsgrid/controlplane/audit"
	"github.com/opsgrid/controlplane/incident"
	"github.com/opsgrid/controlplane/internal/id"
	"github.com/opsgrid/controlplane/internal/txn"
	"github.com/opsgrid/controlplane/tenant"
)

// Service implements feature-flag and rule mutation plus evaluation
// lookups.
//
// Purpose: Enforces write-time rule validation and emits one audit row
// per mutation, the same transactional shape incident.Service uses.
// Domain: Flags
type Service struct {
	repo        Repository
	rules       RuleRepository
	auditLogger audit.Logger
	runner      txn.Runner
}

// NewService creates a new flag service.
func NewService(repo Repository, rules RuleRepository, auditLogger audit.Logger, runner txn.Runner) *Service {
	return &Service{repo: repo, rules: rules, auditLogger: auditLogger, runner: runner}
}

// CreateInput carries the fields needed to define a new flag.
type CreateInput struct {
	Key         string
	Name        string
	Description string
	Enabled     bool
	Environment incident.Environment
}

// Create defines a new feature flag, scoped to tenant and environment.
func (s *Service) Create(ctx context.Context, tc tenant.Context, in CreateInput) (*Flag, error) {
	if err := tc.RequireWrite(); err != nil {
		return nil, err
	}
	if !ValidateKey(in.Key) {
		return nil, ErrInvalidKey
	}
	if in.Name == "" {
		return nil, ErrInvalidName
	}
	if !in.Environment.Valid() {
		return nil, incident.ErrInvalidEnvironment
	}
	if existing, err := s.repo.GetByKey(ctx, tc.TenantID, in.Key, in.Environment); err == nil && existing != nil {
		return nil, ErrDuplicateKey
	}

	now := time.Now()
	f := &Flag{
		ID:          id.NewUUIDv7(),
		TenantID:    tc.TenantID,
		Key:         in.Key,
		Name:        in.Name,
		Description: in.Description,
		Enabled:     in.Enabled,
		Environment: in.Environment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, f); err != nil {
			return fmt.Errorf("failed to create flag: %w", err)
		}
		s.auditLogger.Log(ctx, audit.Event{
			ID:         id.NewUUIDv7(),
			Type:       audit.TypeCreate,
			TenantID:   tc.TenantID,
			ActorID:    tc.PrincipalUserID,
			EntityType: audit.EntityFlag,
			EntityID:   f.ID,
			After:      f,
			Timestamp:  now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// UpdateInput carries the mutable fields of a flag update. Nil fields
// are left unchanged.
type UpdateInput struct {
	Name        *string
	Description *string
	Enabled     *bool
}

// Update mutates a flag's name, description, and/or enabled state.
func (s *Service) Update(ctx context.Context, tc tenant.Context, flagID string, in UpdateInput) (*Flag, error) {
	if err := tc.RequireWrite(); err != nil {
		return nil, err
	}

	var result *Flag
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		f, err := s.repo.GetByID(ctx, tc.TenantID, flagID)
		if err != nil {
			return err
		}
		before := *f
		if in.Name != nil {
			if *in.Name == "" {
				return ErrInvalidName
			}
			f.Name = *in.Name
		}
		if in.Description != nil {
			f.Description = *in.Description
		}
		if in.Enabled != nil {
			f.Enabled = *in.Enabled
		}
		f.UpdatedAt = time.Now()

		if err := s.repo.Update(ctx, f); err != nil {
			return fmt.Errorf("failed to update flag: %w", err)
		}
		s.auditLogger.Log(ctx, audit.Event{
			ID:         id.NewUUIDv7(),
			Type:       audit.TypeUpdate,
			TenantID:   tc.TenantID,
			ActorID:    tc.PrincipalUserID,
			EntityType: audit.EntityFlag,
			EntityID:   f.ID,
			Before:     before,
			After:      f,
			Timestamp:  f.UpdatedAt,
		})
		result = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a flag and, by cascade at the storage layer, its rules.
func (s *Service) Delete(ctx context.Context, tc tenant.Context, flagID string) error {
	if err := tc.RequireWrite(); err != nil {
		return err
	}
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		f, err := s.repo.GetByID(ctx, tc.TenantID, flagID)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tc.TenantID, flagID); err != nil {
			return fmt.Errorf("failed to delete flag: %w", err)
		}
		s.auditLogger.Log(ctx, audit.Event{
			ID:         id.NewUUIDv7(),
			Type:       audit.TypeDelete,
			TenantID:   tc.TenantID,
			ActorID:    tc.PrincipalUserID,
			EntityType: audit.EntityFlag,
			EntityID:   f.ID,
			Before:     f,
			Timestamp:  time.Now(),
		})
		return nil
	})
	return err
}

// Get retrieves a single flag.
func (s *Service) Get(ctx context.Context, tc tenant.Context, flagID string) (*Flag, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, tc.TenantID, flagID)
}

// List lists every flag for the tenant.
func (s *Service) List(ctx context.Context, tc tenant.Context) ([]*Flag, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, tc.TenantID)
}

// AddRule validates and appends a new rule to a flag.
func (s *Service) AddRule(ctx context.Context, tc tenant.Context, flagID string, ruleType RuleType, cond Condition, order int) (*Rule, error) {
	if err := tc.RequireWrite(); err != nil {
		return nil, err
	}
	if !ruleType.Valid() {
		return nil, ErrInvalidRuleType
	}
	body := RuleBody{Type: ruleType, Condition: cond}
	if err := ValidateRuleBody(body, 0); err != nil {
		return nil, err
	}

	r := &Rule{
		ID:        id.NewUUIDv7(),
		FlagID:    flagID,
		TenantID:  tc.TenantID,
		Type:      ruleType,
		Condition: cond,
		Order:     order,
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		f, err := s.repo.GetByID(ctx, tc.TenantID, flagID)
		if err != nil {
			return err
		}
		if err := s.rules.Create(ctx, r); err != nil {
			return fmt.Errorf("failed to create rule: %w", err)
		}
		s.auditLogger.Log(ctx, audit.Event{
			ID:         id.NewUUIDv7(),
			Type:       audit.TypeCreate,
			TenantID:   tc.TenantID,
			ActorID:    tc.PrincipalUserID,
			EntityType: audit.EntityRule,
			EntityID:   r.ID,
			After:      r,
			Metadata:   map[string]any{"flag_key": f.Key},
			Timestamp:  time.Now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RemoveRule deletes a rule owned by flagID.
func (s *Service) RemoveRule(ctx context.Context, tc tenant.Context, flagID, ruleID string) error {
	if err := tc.RequireWrite(); err != nil {
		return err
	}
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.rules.Delete(ctx, tc.TenantID, flagID, ruleID); err != nil {
			return fmt.Errorf("failed to delete rule: %w", err)
		}
		s.auditLogger.Log(ctx, audit.Event{
			ID:         id.NewUUIDv7(),
			Type:       audit.TypeDelete,
			TenantID:   tc.TenantID,
			ActorID:    tc.PrincipalUserID,
			EntityType: audit.EntityRule,
			EntityID:   ruleID,
			Timestamp:  time.Now(),
		})
		return nil
	})
}

// Evaluate resolves a flag by id and runs it against ec, reading its
// rules fresh so the result always reflects the latest write.
func (s *Service) Evaluate(ctx context.Context, tc tenant.Context, flagID string, ec EvalContext) (Result, error) {
	if err := tc.Validate(); err != nil {
		return Result{}, err
	}
	f, err := s.repo.GetByID(ctx, tc.TenantID, flagID)
	if err != nil {
		return Result{}, err
	}
	rules, err := s.rules.ListByFlag(ctx, tc.TenantID, flagID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load rules: %w", err)
	}
	return Evaluate(f, rules, ec), nil
}
