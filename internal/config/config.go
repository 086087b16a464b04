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

// Package config loads the control plane's runtime configuration from
// the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the process-wide configuration.
//
// Purpose: Central, validated view of every environment variable the
// control plane reads.
// Domain: Platform (Infrastructure)
type Config struct {
	DatabaseURL      string
	SessionSecret    string
	Mode             string // "development" or "production"
	Port             string
	WorkerPollMS     int
	RealtimePollMS   int
	WorkerBatchSize  int
	CookieSecureFlag bool
}

// Load reads and validates configuration from the environment.
//
// Purpose: Fail fast at startup rather than deep inside a request path.
// Domain: Platform (Infrastructure)
// Errors: missing/invalid required variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SessionSecret:   os.Getenv("NEXTAUTH_SECRET"),
		Mode:            envOr("NODE_ENV", "development"),
		Port:            envOr("PORT", "8080"),
		WorkerPollMS:    envInt("WORKER_POLL_MS", 5000),
		RealtimePollMS:  envInt("REALTIME_POLL_MS", 2000),
		WorkerBatchSize: envInt("WORKER_BATCH_SIZE", 20),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("NEXTAUTH_SECRET is required and must be at least 32 bytes")
	}

	cfg.CookieSecureFlag = cfg.Mode == "production"

	return cfg, nil
}

// WorkerPollInterval returns the worker poll interval as a Duration.
func (c *Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.WorkerPollMS) * time.Millisecond
}

// RealtimePollInterval returns the realtime stream poll interval as a Duration.
func (c *Config) RealtimePollInterval() time.Duration {
	return time.Duration(c.RealtimePollMS) * time.Millisecond
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
