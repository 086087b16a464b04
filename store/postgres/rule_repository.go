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
	"encoding/json"
	"fmt"

	"github.com/opsgrid/controlplane/flag"
)

// RuleRepository implements flag.RuleRepository.
type RuleRepository struct {
	db *DB
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(db *DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// Create inserts a new rule owned by its flag.
func (r *RuleRepository) Create(ctx context.Context, rule *flag.Rule) error {
	cond, err := json.Marshal(rule.Condition)
	if err != nil {
		return fmt.Errorf("failed to marshal rule condition: %w", err)
	}

	_, err = r.db.querier(ctx).Exec(ctx, `
		INSERT INTO rules (id, flag_id, type, condition, order_index)
		VALUES ($1, $2, $3, $4, $5)
	`, rule.ID, rule.FlagID, rule.Type, cond, rule.Order)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// Delete removes a rule, scoped to its owning tenant and flag via a join.
func (r *RuleRepository) Delete(ctx context.Context, tenantID, flagID, ruleID string) error {
	result, err := r.db.querier(ctx).Exec(ctx, `
		DELETE FROM rules
		USING feature_flags
		WHERE rules.id = $1
		  AND rules.flag_id = $2
		  AND rules.flag_id = feature_flags.id
		  AND feature_flags.tenant_id = $3
	`, ruleID, flagID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return flag.ErrRuleNotFound
	}
	return nil
}

// ListByFlag lists every rule owned by flagID, scoped to tenantID via a
// join against feature_flags, in ascending evaluation order.
func (r *RuleRepository) ListByFlag(ctx context.Context, tenantID, flagID string) ([]*flag.Rule, error) {
	rows, err := r.db.querier(ctx).Query(ctx, `
		SELECT rules.id, rules.flag_id, rules.type, rules.condition, rules.order_index
		FROM rules
		JOIN feature_flags ON feature_flags.id = rules.flag_id
		WHERE rules.flag_id = $1 AND feature_flags.tenant_id = $2
		ORDER BY rules.order_index ASC
	`, flagID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var items []*flag.Rule
	for rows.Next() {
		var rule flag.Rule
		var cond []byte
		if err := rows.Scan(&rule.ID, &rule.FlagID, &rule.Type, &cond, &rule.Order); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if err := json.Unmarshal(cond, &rule.Condition); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule condition: %w", err)
		}
		rule.TenantID = tenantID
		items = append(items, &rule)
	}
	return items, rows.Err()
}
