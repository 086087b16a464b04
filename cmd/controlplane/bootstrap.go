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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opsgrid/controlplane/audit"
	"github.com/opsgrid/controlplane/internal/config"
	"github.com/opsgrid/controlplane/password"
	"github.com/opsgrid/controlplane/store/postgres"
	"github.com/opsgrid/controlplane/tenant"
	"github.com/opsgrid/controlplane/user"
)

// newBootstrapCommand provisions a tenant and its first ADMIN user.
// Tenants are otherwise created out-of-band, so this is the one door
// into an empty database.
func newBootstrapCommand() *cobra.Command {
	var (
		tenantSlug    string
		tenantName    string
		adminEmail    string
		adminName     string
		adminPassword string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Provision a tenant with an initial admin user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBootstrap(cmd.Context(), tenantSlug, tenantName, adminEmail, adminName, adminPassword)
		},
	}

	cmd.Flags().StringVar(&tenantSlug, "tenant-slug", "", "URL-safe tenant slug (required)")
	cmd.Flags().StringVar(&tenantName, "tenant-name", "", "display name for the tenant (required)")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "email for the initial admin user (required)")
	cmd.Flags().StringVar(&adminName, "admin-name", "", "display name for the initial admin user")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "initial password for the admin user")
	_ = cmd.MarkFlagRequired("tenant-slug")
	_ = cmd.MarkFlagRequired("tenant-name")
	_ = cmd.MarkFlagRequired("admin-email")

	return cmd
}

func runBootstrap(ctx context.Context, tenantSlug, tenantName, adminEmail, adminName, adminPassword string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	auditLogger := audit.NewRepositoryLogger(postgres.NewAuditRepository(db))
	tenantSvc := tenant.NewService(postgres.NewTenantRepository(db), postgres.NewMembershipRepository(db), auditLogger)
	userSvc := user.NewService(postgres.NewUserRepository(db), password.NewHasher())

	t, err := tenantSvc.CreateTenant(ctx, tenantSlug, tenantName, "bootstrap")
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	u, err := userSvc.GetByEmail(ctx, adminEmail)
	if errors.Is(err, user.ErrUserNotFound) {
		u, err = userSvc.Provision(ctx, adminEmail, adminName, adminPassword)
		if err != nil {
			return fmt.Errorf("failed to provision admin user: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}

	if err := tenantSvc.AssignRole(ctx, t.ID, u.ID, tenant.RoleAdmin, "bootstrap"); err != nil {
		return fmt.Errorf("failed to grant admin role: %w", err)
	}

	slog.Info("tenant bootstrapped", "tenant_id", t.ID, "slug", t.Slug, "admin_user_id", u.ID)
	return nil
}
