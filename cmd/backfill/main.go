// Copyright (c) 2026 John Earle
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

// Purchase-order intake: one-shot backfill
//
// Runs a single intake pass over a configurable lookback window and exits.
// Useful for catching up after downtime or for previewing what the service
// would upload.
//
// Usage:
//
//	go run ./cmd/backfill/ [--since 168h] [--dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/salehjamaljad/gmail-fetcher/internal/app"
	"github.com/salehjamaljad/gmail-fetcher/internal/config"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	sinceFlag := flag.String("since", "1h", "Lookback duration (e.g. 24h, 168h for 1 week)")
	dryRun := flag.Bool("dry-run", false, "Classify and log records without uploading or marking messages")
	flag.Parse()

	sinceDuration, err := time.ParseDuration(*sinceFlag)
	if err != nil || sinceDuration <= 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q\n", *sinceFlag)
		os.Exit(1)
	}

	slog.Info("starting backfill",
		"since", sinceDuration,
		"dry_run", *dryRun,
	)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := app.Build(ctx, cfg, app.Options{DryRun: *dryRun})
	if err != nil {
		slog.Error("failed to initialise intake", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// --- Run ---
	summary, err := a.Runner.Run(ctx, time.Now().UTC().Add(-sinceDuration))
	if err != nil {
		slog.Error("backfill failed", "error", err)
		a.Close()
		os.Exit(1)
	}

	// --- Summary ---
	slog.Info("backfill complete",
		"listed", summary.Listed,
		"duplicates", summary.Duplicates,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"records", summary.Records,
		"dry_run", summary.DryRun,
		"elapsed", summary.Elapsed,
	)

	if summary.Failed > 0 {
		a.Close()
		os.Exit(2)
	}
}
