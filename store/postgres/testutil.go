// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
)

// tablesInDependencyOrder lists every table truncated between test runs,
// ordered so that TRUNCATE ... CASCADE only needs to walk forward once.
var tablesInDependencyOrder = []string{
	"audit_events",
	"jobs",
	"rules",
	"feature_flags",
	"saved_views",
	"attachments",
	"timeline_events",
	"incidents",
	"memberships",
	"users",
	"tenants",
}

// SetupTestDB creates a connection to the test database and runs migrations.
//
// Purpose: Shared fixture for every store/postgres test. TEST_DB_HOST
// and TEST_DB_PORT override the default localhost:5434; the tests are
// not skipped when they are unset, and a failed connection fails the test.
func SetupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("TEST_DB_PORT")
	if port == "" {
		port = "5434"
	}

	cfg := Config{
		Host:         host,
		Port:         port,
		User:         "controlplane",
		Password:     "controlplane_test_password",
		Database:     "controlplane_test",
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 10,
	}

	ctx := context.Background()
	db, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	for _, table := range tablesInDependencyOrder {
		_, _ = db.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}

	if err := db.Migrate(ctx, InitialSchema); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanup := func() {
		for _, table := range tablesInDependencyOrder {
			_, _ = db.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		}
		db.Close()
	}

	return db, cleanup
}
