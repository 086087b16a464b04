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
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsgrid/controlplane/internal/config"
	"github.com/opsgrid/controlplane/internal/httpapi"
	"github.com/opsgrid/controlplane/store/postgres"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	deps := httpapi.NewDeps(db, httpapi.WireOptions{
		SessionSecret: cfg.SessionSecret,
		CookieSecure:  cfg.CookieSecureFlag,
		DevMode:       cfg.Mode != "production",
		CORSOrigins:   corsOrigins(cfg.Mode),
		RealtimePoll:  cfg.RealtimePollInterval(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the SSE stream endpoint writes indefinitely
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("controlplane listening", "addr", srv.Addr, "mode", cfg.Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("controlplane shutting down")
		return srv.Shutdown(shutdownCtx)
	}
	return nil
}

// corsOrigins returns the allowed browser origins for the given mode.
// Production origins are out-of-band infrastructure configuration
// beyond this repository's scope, so only local development defaults
// are built in.
func corsOrigins(mode string) []string {
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		return strings.Split(v, ",")
	}
	if mode == "production" {
		return nil
	}
	return []string{"http://localhost:3000"}
}
