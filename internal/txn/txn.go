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

// Package txn defines the transaction-boundary abstraction that domain
// services use without importing the storage driver directly.
package txn

import "context"

// Runner executes fn inside a single transaction, committing on a nil
// return and rolling back otherwise. Repository calls made with the
// ctx passed to fn are expected to participate in that transaction.
//
// Purpose: Lets the incident state machine and flag mutation paths
// express "insert the row, append the timeline event, and write the
// audit row atomically" without depending on pgx.
// Domain: Platform (Infrastructure)
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
