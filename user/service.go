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

package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opsgrid/controlplane/internal/id"
	"github.com/opsgrid/controlplane/password"
)

// Service provides identity business logic.
//
// Purpose: Thin wrapper over Repository that owns validation and
// password hashing; authentication itself is an out-of-scope collaborator.
// Domain: Identity
type Service struct {
	repo   Repository
	hasher *password.Hasher
}

// NewService creates a new identity service.
func NewService(repo Repository, hasher *password.Hasher) *Service {
	return &Service{repo: repo, hasher: hasher}
}

// Provision creates a new user identity with an optional initial password.
func (s *Service) Provision(ctx context.Context, email, name, initialPassword string) (*User, error) {
	email = normalizeEmail(email)
	if !looksLikeEmail(email) {
		return nil, ErrInvalidEmail
	}

	if existing, err := s.repo.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrUserAlreadyExists
	}

	var hash string
	if initialPassword != "" {
		h, err := s.hasher.Hash(initialPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		hash = h
	}

	now := time.Now()
	u := &User{
		ID:           id.NewUUIDv7(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by id.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByEmail retrieves a user by normalized email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, normalizeEmail(email))
}

// SetPassword hashes and stores a new password for a user.
func (s *Service) SetPassword(ctx context.Context, userID, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, userID, hash)
}

// VerifyPassword checks a plaintext password against the stored hash.
// Hashes carried over from a pre-Argon2id system are dispatched to the
// bcrypt verifier; new and rotated passwords are always Argon2id.
func (s *Service) VerifyPassword(ctx context.Context, userID, candidate string) (bool, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.PasswordHash == "" {
		return false, nil
	}
	if password.IsBcryptHash(u.PasswordHash) {
		return password.VerifyLegacyBcrypt(candidate, u.PasswordHash), nil
	}
	return s.hasher.Verify(candidate, u.PasswordHash)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func looksLikeEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.Contains(email[at+1:], " ")
}
