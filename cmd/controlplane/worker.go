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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opsgrid/controlplane/internal/config"
	"github.com/opsgrid/controlplane/job"
	"github.com/opsgrid/controlplane/store/postgres"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background job worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	jobRepo := postgres.NewJobRepository(db)
	attachmentRepo := postgres.NewAttachmentRepository(db)
	timelineRepo := postgres.NewTimelineRepository(db)

	w := job.NewWorker(jobRepo, cfg.WorkerPollInterval(), cfg.WorkerBatchSize)
	w.Register(job.TypeScanAttachment, job.ScanAttachmentHandler(attachmentRepo))
	w.Register(job.TypeSendNotification, job.SendNotificationHandler())
	w.Register(job.TypeIncidentSummary, job.IncidentSummaryHandler(timelineRepo))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("controlplane worker started", "poll_interval", cfg.WorkerPollInterval(), "batch_size", cfg.WorkerBatchSize)
	w.Run(ctx)
	slog.Info("controlplane worker stopped")
	return nil
}
