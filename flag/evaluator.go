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
	"fmt"

	"github.com/opsgrid/controlplane/crypto"
)

// Evaluate runs flag's rules against ec and returns a deterministic
// result with a human-readable trace.
//
// Evaluation order: a disabled flag short-circuits first, then an
// environment mismatch, then "no rules means enabled for everyone",
// then rules in ascending Order with first-match-wins semantics.
func Evaluate(f *Flag, rules []*Rule, ec EvalContext) Result {
	var trace []string

	if !f.Enabled {
		return Result{Enabled: false, Reason: "globally disabled", Trace: append(trace, "flag disabled")}
	}
	if f.Environment != ec.Environment {
		return Result{
			Enabled: false,
			Reason:  "environment mismatch",
			Trace:   append(trace, fmt.Sprintf("flag environment %s != context environment %s", f.Environment, ec.Environment)),
		}
	}
	if len(rules) == 0 {
		return Result{Enabled: true, Reason: "no rules, enabled for all", Trace: append(trace, "no rules defined")}
	}

	for i, r := range rules {
		matched, subtrace := evalBody(r.Body(), ec, f.Key)
		trace = append(trace, fmt.Sprintf("rule %d (%s): %s", i, r.Type, subtrace))
		if matched {
			return Result{Enabled: true, Reason: fmt.Sprintf("matched rule %d", i), Trace: trace}
		}
	}
	return Result{Enabled: false, Reason: "no rules matched", Trace: trace}
}

// evalBody recursively evaluates a single rule body, returning whether
// it matched and a short description of why for the trace.
func evalBody(b RuleBody, ec EvalContext, flagKey string) (bool, string) {
	switch b.Type {
	case RuleAllowlist:
		for _, u := range b.Condition.UserIDs {
			if u == ec.UserID {
				return true, fmt.Sprintf("user %q is in allowlist", ec.UserID)
			}
		}
		return false, fmt.Sprintf("user %q not in allowlist", ec.UserID)

	case RulePercent:
		pct := 0
		if b.Condition.Percentage != nil {
			pct = *b.Condition.Percentage
		}
		bucket := StableHash(ec.UserID, flagKey)
		if bucket < pct {
			return true, fmt.Sprintf("bucket %d < %d%%", bucket, pct)
		}
		return false, fmt.Sprintf("bucket %d >= %d%%", bucket, pct)

	case RuleAnd:
		for i, child := range b.Condition.Children {
			matched, sub := evalBody(child, ec, flagKey)
			if !matched {
				return false, fmt.Sprintf("AND short-circuited at child %d: %s", i, sub)
			}
		}
		return true, "AND: every child matched"

	case RuleOr:
		for i, child := range b.Condition.Children {
			matched, sub := evalBody(child, ec, flagKey)
			if matched {
				return true, fmt.Sprintf("OR short-circuited at child %d: %s", i, sub)
			}
		}
		return false, "OR: no child matched"

	default:
		// An unparseable stored rule is treated as non-matching rather
		// than failing the whole evaluation.
		return false, fmt.Sprintf("unrecognized rule type %q, treated as non-matching", b.Type)
	}
}

// StableHash maps (userId, flagKey) to a deterministic bucket in
// [0, 100) using the first 32 bits of SHA-256 over "userId:flagKey".
// It must produce identical results across any conforming
// implementation, which is why it delegates to crypto.StableBucket
// rather than any keyed or salted scheme.
func StableHash(userID, flagKey string) int {
	return crypto.StableBucket(userID, flagKey)
}
