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

// Package flag implements the feature-flag evaluator: rule grammar,
// validation, and deterministic percentage-rollout hashing.
package flag

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/opsgrid/controlplane/incident"
)

// Domain errors.
var (
	ErrNotFound          = errors.New("feature flag not found")
	ErrRuleNotFound      = errors.New("rule not found")
	ErrInvalidKey        = errors.New("flag key must be lowercase letters, digits, '-' or '_'")
	ErrInvalidName       = errors.New("flag name must not be empty")
	ErrDuplicateKey      = errors.New("flag key already exists for this tenant and environment")
	ErrInvalidRuleType   = errors.New("invalid rule type")
	ErrInvalidPercentage = errors.New("percentage must be an integer in [0, 100]")
	ErrEmptyAllowlist    = errors.New("allowlist must name at least one user")
	ErrEmptyChildren     = errors.New("AND/OR rules require at least one child")
	ErrRuleTooDeep       = errors.New("rule nesting exceeds the maximum depth")
)

// maxRuleDepth bounds AND/OR nesting to prevent evaluator abuse.
const maxRuleDepth = 16

var keyPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// RuleType names a node in the rule grammar.
type RuleType string

const (
	RuleAllowlist RuleType = "ALLOWLIST"
	RulePercent   RuleType = "PERCENT_ROLLOUT"
	RuleAnd       RuleType = "AND"
	RuleOr        RuleType = "OR"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleAllowlist, RulePercent, RuleAnd, RuleOr:
		return true
	}
	return false
}

// Flag is a named boolean switch scoped to a tenant and environment.
//
// Purpose: Root entity of the evaluator; rules attach to it by FlagID.
// Domain: Flags
// Invariants: (TenantID, Key, Environment) is unique.
type Flag struct {
	ID          string               `json:"id"`
	TenantID    string               `json:"tenant_id"`
	Key         string               `json:"key"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Enabled     bool                 `json:"enabled"`
	Environment incident.Environment `json:"environment"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Condition is the opaque payload a Rule carries. Its shape depends on
// Type: ALLOWLIST uses UserIDs, PERCENT_ROLLOUT uses Percentage, AND/OR
// use Children.
type Condition struct {
	UserIDs    []string   `json:"userIds,omitempty"`
	Percentage *int       `json:"percentage,omitempty"`
	Children   []RuleBody `json:"rules,omitempty"`
}

// RuleBody is the self-referential shape of a rule used both for
// nested AND/OR children and for the stored Rule.Condition.
type RuleBody struct {
	Type      RuleType  `json:"type"`
	Condition Condition `json:"condition"`
}

// Rule is a stored node owned by a Flag; top-level rules are evaluated
// in ascending Order.
//
// Purpose: Persisted unit of the evaluation tree.
// Domain: Flags
// Invariants: Condition validated at write time per Type's grammar.
type Rule struct {
	ID        string    `json:"id"`
	FlagID    string    `json:"flag_id"`
	TenantID  string    `json:"tenant_id"`
	Type      RuleType  `json:"type"`
	Condition Condition `json:"condition"`
	Order     int       `json:"order"`
}

// Body returns the rule as a RuleBody for recursive evaluation/validation.
func (r Rule) Body() RuleBody {
	return RuleBody{Type: r.Type, Condition: r.Condition}
}

// ValidateKey reports whether a flag key matches the allowed charset.
func ValidateKey(key string) bool {
	return key != "" && keyPattern.MatchString(key)
}

// ValidateRuleBody recursively validates a rule tree against the
// rule grammar, bounding nesting depth at maxRuleDepth.
func ValidateRuleBody(b RuleBody, depth int) error {
	if depth > maxRuleDepth {
		return ErrRuleTooDeep
	}
	switch b.Type {
	case RuleAllowlist:
		if len(b.Condition.UserIDs) == 0 {
			return ErrEmptyAllowlist
		}
	case RulePercent:
		if b.Condition.Percentage == nil || *b.Condition.Percentage < 0 || *b.Condition.Percentage > 100 {
			return ErrInvalidPercentage
		}
	case RuleAnd, RuleOr:
		if len(b.Condition.Children) == 0 {
			return ErrEmptyChildren
		}
		for _, child := range b.Condition.Children {
			if err := ValidateRuleBody(child, depth+1); err != nil {
				return err
			}
		}
	default:
		return ErrInvalidRuleType
	}
	return nil
}

// EvalContext carries the inputs an evaluation needs.
type EvalContext struct {
	UserID      string
	Environment incident.Environment
	Service     string
}

// Result is the outcome of one evaluation, with a human-readable trace
// suitable for debugging a rollout decision.
type Result struct {
	Enabled bool     `json:"enabled"`
	Reason  string   `json:"reason"`
	Trace   []string `json:"trace"`
}

// Repository defines tenant-scoped feature-flag persistence.
//
// Purpose: Abstraction consumed by Service; every method is
// tenant-scoped.
// Domain: Flags
type Repository interface {
	Create(ctx context.Context, f *Flag) error
	GetByID(ctx context.Context, tenantID, id string) (*Flag, error)
	GetByKey(ctx context.Context, tenantID, key string, env incident.Environment) (*Flag, error)
	Update(ctx context.Context, f *Flag) error
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID string) ([]*Flag, error)
}

// RuleRepository defines rule persistence, owned by their flag.
//
// Purpose: Abstraction for rule storage; cascade-deleted with their flag.
// Domain: Flags
type RuleRepository interface {
	Create(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, tenantID, flagID, ruleID string) error
	ListByFlag(ctx context.Context, tenantID, flagID string) ([]*Rule, error)
}
