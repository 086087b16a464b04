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

// Package id generates the identifiers used by every domain entity.
package id

import "github.com/google/uuid"

// NewUUIDv7 returns a new time-ordered UUID (RFC 9562).
//
// Purpose: Primary-key generator shared by every repository so that
// ordering by id and ordering by created_at agree.
// Domain: Platform (Infrastructure)
func NewUUIDv7() string {
	u, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the system entropy source is broken;
		// fall back to a random v4 rather than panic the caller.
		return uuid.NewString()
	}
	return u.String()
}
