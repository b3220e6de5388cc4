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

// Package app wires configuration into a ready intake runner. Both the
// service and the backfill command build their dependencies here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/salehjamaljad/gmail-fetcher/internal/classifier"
	"github.com/salehjamaljad/gmail-fetcher/internal/config"
	"github.com/salehjamaljad/gmail-fetcher/internal/dates"
	"github.com/salehjamaljad/gmail-fetcher/internal/dedup"
	"github.com/salehjamaljad/gmail-fetcher/internal/gmail"
	"github.com/salehjamaljad/gmail-fetcher/internal/imapbox"
	"github.com/salehjamaljad/gmail-fetcher/internal/intake"
	"github.com/salehjamaljad/gmail-fetcher/internal/models"
	"github.com/salehjamaljad/gmail-fetcher/internal/queue"
	"github.com/salehjamaljad/gmail-fetcher/internal/store"
	"github.com/salehjamaljad/gmail-fetcher/internal/supabase"
)

// App holds the wired runner and the connections behind it.
type App struct {
	Runner *intake.Runner

	pgPool *pgxpool.Pool
	rdb    *redis.Client
}

// Options adjust how the runner is built.
type Options struct {
	DryRun bool
	// Clock overrides the system clock in cfg.Location.
	Clock dates.Clock
}

// Build connects every configured backend and returns the wired app.
// Callers must Close it.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{}

	contacts := Contacts(cfg.Partners)
	terms := contacts.SearchTerms()
	if cfg.Mailbox.SearchAll {
		terms = models.SearchTerms{}
	}

	mailbox, err := buildMailbox(ctx, cfg.Mailbox, terms)
	if err != nil {
		return nil, err
	}

	uploader, err := a.buildUploader(ctx, cfg.Upload)
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		filter    intake.Dedup
		publisher intake.Publisher
	)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.rdb = redis.NewClient(opt)
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to Redis: %w", err)
		}
		slog.Info("connected to Redis")

		filter = dedup.NewFilter(a.rdb, cfg.DedupTTL)
		if cfg.OrdersQueue != "" {
			publisher = queue.NewPublisher(a.rdb, cfg.OrdersQueue)
		}
	}

	clock := opts.Clock
	if clock == nil {
		clock = dates.SystemClock(cfg.Location)
	}

	a.Runner = intake.NewRunner(intake.RunnerConfig{
		Mailbox:    mailbox,
		Classifier: classifier.New(classifier.Profiles(contacts), clock),
		Uploader:   uploader,
		Dedup:      filter,
		Publisher:  publisher,
		DryRun:     opts.DryRun,
	})
	return a, nil
}

// Contacts converts partner configuration into classifier contacts. Unset
// Talabat signals keep their built-in defaults.
func Contacts(p config.PartnerConfig) classifier.Contacts {
	c := classifier.DefaultContacts()
	c.BreadfastSender = p.BreadfastSender
	c.GoodsMartSender = p.GoodsMartSender
	c.HalanSender = p.HalanSender
	if p.HalanMarker != "" {
		c.HalanMarker = p.HalanMarker
	}
	if p.TalabatSender != "" {
		c.TalabatSender = p.TalabatSender
	}
	if p.TalabatMissingDate != "" {
		c.TalabatMissingDate = p.TalabatMissingDate
	}
	return c
}

func buildMailbox(ctx context.Context, cfg config.MailboxConfig, terms models.SearchTerms) (intake.Mailbox, error) {
	switch cfg.Provider {
	case config.ProviderIMAP:
		slog.Info("using IMAP mailbox", "host", cfg.IMAP.Host, "mailbox", cfg.IMAP.Mailbox)
		return imapbox.New(imapbox.Config{
			Host:     cfg.IMAP.Host,
			Port:     cfg.IMAP.Port,
			Username: cfg.IMAP.Username,
			Password: cfg.IMAP.Password,
			Mailbox:  cfg.IMAP.Mailbox,
			StartTLS: cfg.IMAP.StartTLS,
			Terms:    terms,
		}), nil

	case config.ProviderGmail:
		creds := gmail.Credentials{
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: cfg.Gmail.ClientSecret,
			RefreshToken: cfg.Gmail.RefreshToken,
		}
		if cfg.Gmail.TokenFile != "" {
			loaded, err := gmail.LoadCredentials(cfg.Gmail.TokenFile)
			if err != nil {
				return nil, err
			}
			creds = loaded
		}
		httpClient, err := gmail.NewHTTPClient(ctx, creds)
		if err != nil {
			return nil, fmt.Errorf("gmail auth: %w", err)
		}
		slog.Info("using Gmail mailbox", "user", cfg.Gmail.UserID, "label", cfg.Label)
		return gmail.NewClient(gmail.ClientConfig{
			HTTPClient: httpClient,
			BaseURL:    cfg.Gmail.BaseURL,
			UserID:     cfg.Gmail.UserID,
			Label:      cfg.Label,
			Terms:      terms,
		}), nil
	}
	return nil, fmt.Errorf("unknown mailbox provider %q", cfg.Provider)
}

func (a *App) buildUploader(ctx context.Context, cfg config.UploadConfig) (intake.Uploader, error) {
	switch cfg.Sink {
	case config.SinkSupabase:
		up, err := supabase.NewUploader(supabase.Config{
			URL:    cfg.SupabaseURL,
			Key:    cfg.SupabaseKey,
			Bucket: cfg.SupabaseBucket,
			Table:  cfg.SupabaseTable,
			Upsert: cfg.Upsert,
		})
		if err != nil {
			return nil, err
		}
		return up, nil

	case config.SinkPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create Postgres pool: %w", err)
		}
		a.pgPool = pool
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		slog.Info("connected to PostgreSQL")
		st, err := store.NewStore(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("initialise order store: %w", err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown upload sink %q", cfg.Sink)
}

// Health pings every connected backend.
func (a *App) Health(ctx context.Context) error {
	if a.rdb != nil {
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}
	if a.pgPool != nil {
		if err := a.pgPool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres unhealthy: %w", err)
		}
	}
	return nil
}

// Close releases connections.
func (a *App) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
}
