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

// Purchase-order intake service
//
// Entry point for the long-running intake service. It:
//  1. Loads configuration from config.yaml
//  2. Connects the mailbox, the upload sink and (optionally) Redis
//  3. Polls the mailbox on a fixed interval and uploads order records
//  4. Serves /health and /metrics
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/salehjamaljad/gmail-fetcher/internal/app"
	"github.com/salehjamaljad/gmail-fetcher/internal/config"
	"github.com/salehjamaljad/gmail-fetcher/internal/intake"
	"github.com/salehjamaljad/gmail-fetcher/internal/metrics"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting purchase-order intake service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"mailbox", cfg.Mailbox.Provider,
		"sink", cfg.Upload.Sink,
		"redis", cfg.RedisURL != "",
		"timezone", cfg.Location.String(),
		"poll_interval", cfg.PollInterval,
		"poll_lookback", cfg.PollLookback,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Wire backends ---
	a, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		slog.Error("failed to initialise intake", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// --- Poller ---
	poller := intake.NewPoller(a.Runner, cfg.PollInterval, cfg.PollLookback)
	pollDone := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(pollDone)
	}()

	// --- Health and Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{"status": "healthy"}
		if last := poller.LastSummary(); last != nil {
			resp["last_run"] = map[string]any{
				"listed":    last.Listed,
				"succeeded": last.Succeeded,
				"failed":    last.Failed,
				"skipped":   last.Skipped,
				"records":   last.Records,
			}
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.Handle("/metrics", metrics.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop the poller between emails
		<-pollDone

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("intake service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("intake service stopped")
}
