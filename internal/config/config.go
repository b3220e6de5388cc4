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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // partner zones must resolve in scratch images

	"gopkg.in/yaml.v3"

	"github.com/salehjamaljad/gmail-fetcher/internal/dates"
)

// Mailbox providers.
const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// Upload sinks.
const (
	SinkSupabase = "supabase"
	SinkPostgres = "postgres"
)

// GmailConfig holds Gmail API credentials. Either TokenFile or the three
// inline fields must be set.
type GmailConfig struct {
	TokenFile    string
	ClientID     string
	ClientSecret string
	RefreshToken string
	UserID       string
	BaseURL      string
}

// IMAPConfig holds IMAP connection settings.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string
	StartTLS bool
}

// MailboxConfig selects and configures the mailbox reader.
type MailboxConfig struct {
	Provider string
	Label    string
	// SearchAll lists every message in the window instead of only those
	// matching a partner subject or sender.
	SearchAll bool
	Gmail     GmailConfig
	IMAP      IMAPConfig
}

// UploadConfig selects and configures the upload sink.
type UploadConfig struct {
	Sink           string
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
	SupabaseTable  string
	Upsert         bool
	DatabaseURL    string
}

// PartnerConfig holds per-deployment partner signals.
type PartnerConfig struct {
	BreadfastSender    string
	GoodsMartSender    string
	HalanSender        string
	HalanMarker        string
	TalabatSender      string
	TalabatMissingDate dates.MissingPolicy
}

// Config holds all configuration for the intake service.
type Config struct {
	Location *time.Location

	Mailbox  MailboxConfig
	Upload   UploadConfig
	Partners PartnerConfig

	// Redis is optional; without it there is no dedup and no order events.
	RedisURL    string
	DedupTTL    time.Duration
	OrdersQueue string

	PollInterval time.Duration
	PollLookback time.Duration

	// Server (health and metrics only)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Timezone string `yaml:"timezone"`
	Mailbox  struct {
		Provider  string `yaml:"provider"`
		Label     string `yaml:"label"`
		SearchAll bool   `yaml:"search_all"`
		Gmail     struct {
			TokenFile    string `yaml:"token_file"`
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
			RefreshToken string `yaml:"refresh_token"`
			UserID       string `yaml:"user_id"`
			BaseURL      string `yaml:"base_url"`
		} `yaml:"gmail"`
		IMAP struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			Mailbox  string `yaml:"mailbox"`
			StartTLS bool   `yaml:"starttls"`
		} `yaml:"imap"`
	} `yaml:"mailbox"`
	Upload struct {
		Sink     string `yaml:"sink"`
		Supabase struct {
			URL    string `yaml:"url"`
			Key    string `yaml:"key"`
			Bucket string `yaml:"bucket"`
			Table  string `yaml:"table"`
			Upsert *bool  `yaml:"upsert"`
		} `yaml:"supabase"`
		Postgres struct {
			URL string `yaml:"url"`
		} `yaml:"postgres"`
	} `yaml:"upload"`
	Partners struct {
		BreadfastSender    string `yaml:"breadfast_sender"`
		GoodsMartSender    string `yaml:"goodsmart_sender"`
		HalanSender        string `yaml:"halan_sender"`
		HalanMarker        string `yaml:"halan_marker"`
		TalabatSender      string `yaml:"talabat_sender"`
		TalabatMissingDate string `yaml:"talabat_missing_date"`
	} `yaml:"partners"`
	Redis struct {
		URL      string `yaml:"url"`
		DedupTTL string `yaml:"dedup_ttl"`
		Queues   struct {
			Orders string `yaml:"orders"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Poll struct {
		Interval string `yaml:"interval"`
		Lookback string `yaml:"lookback"`
	} `yaml:"poll"`
}

// Load reads the file named by CONFIG_PATH.
func Load() (*Config, error) {
	return LoadFile(envOrDefault("CONFIG_PATH", "/app/config/config.yaml"))
}

// LoadFile reads configuration from path (with env var expansion) and
// environment variables for non-YAML settings.
func LoadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	loc, err := time.LoadLocation(firstNonEmpty(raw.Timezone, envOrDefault("TIMEZONE", "Africa/Cairo")))
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	missing, err := dates.ParseMissingPolicy(raw.Partners.TalabatMissingDate)
	if err != nil {
		return nil, fmt.Errorf("partners.talabat_missing_date: %w", err)
	}

	dedupTTL, err := parseDuration("redis.dedup_ttl", raw.Redis.DedupTTL, 0)
	if err != nil {
		return nil, err
	}
	interval, err := parseDuration("poll.interval", raw.Poll.Interval, envOrDefaultDuration("POLL_INTERVAL", 15*time.Minute))
	if err != nil {
		return nil, err
	}
	lookback, err := parseDuration("poll.lookback", raw.Poll.Lookback, envOrDefaultDuration("POLL_LOOKBACK", time.Hour))
	if err != nil {
		return nil, err
	}

	upsert := true
	if raw.Upload.Supabase.Upsert != nil {
		upsert = *raw.Upload.Supabase.Upsert
	}

	cfg := &Config{
		Location: loc,
		Mailbox: MailboxConfig{
			Provider:  strings.ToLower(firstNonEmpty(raw.Mailbox.Provider, ProviderGmail)),
			Label:     raw.Mailbox.Label,
			SearchAll: raw.Mailbox.SearchAll,
			Gmail: GmailConfig{
				TokenFile:    firstNonEmpty(raw.Mailbox.Gmail.TokenFile, os.Getenv("GMAIL_TOKEN_FILE")),
				ClientID:     raw.Mailbox.Gmail.ClientID,
				ClientSecret: raw.Mailbox.Gmail.ClientSecret,
				RefreshToken: raw.Mailbox.Gmail.RefreshToken,
				UserID:       raw.Mailbox.Gmail.UserID,
				BaseURL:      raw.Mailbox.Gmail.BaseURL,
			},
			IMAP: IMAPConfig{
				Host:     raw.Mailbox.IMAP.Host,
				Port:     raw.Mailbox.IMAP.Port,
				Username: raw.Mailbox.IMAP.Username,
				Password: raw.Mailbox.IMAP.Password,
				Mailbox:  raw.Mailbox.IMAP.Mailbox,
				StartTLS: raw.Mailbox.IMAP.StartTLS,
			},
		},
		Upload: UploadConfig{
			Sink:           strings.ToLower(firstNonEmpty(raw.Upload.Sink, SinkSupabase)),
			SupabaseURL:    firstNonEmpty(raw.Upload.Supabase.URL, os.Getenv("SUPABASE_URL")),
			SupabaseKey:    firstNonEmpty(raw.Upload.Supabase.Key, os.Getenv("SUPABASE_KEY")),
			SupabaseBucket: raw.Upload.Supabase.Bucket,
			SupabaseTable:  raw.Upload.Supabase.Table,
			Upsert:         upsert,
			DatabaseURL:    firstNonEmpty(raw.Upload.Postgres.URL, os.Getenv("DATABASE_URL")),
		},
		Partners: PartnerConfig{
			BreadfastSender:    raw.Partners.BreadfastSender,
			GoodsMartSender:    raw.Partners.GoodsMartSender,
			HalanSender:        raw.Partners.HalanSender,
			HalanMarker:        raw.Partners.HalanMarker,
			TalabatSender:      raw.Partners.TalabatSender,
			TalabatMissingDate: missing,
		},
		RedisURL:     firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		DedupTTL:     dedupTTL,
		OrdersQueue:  firstNonEmpty(raw.Redis.Queues.Orders, os.Getenv("ORDERS_QUEUE")),
		PollInterval: interval,
		PollLookback: lookback,
		Port:         envOrDefaultInt("PORT", 8080),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.Mailbox.Provider {
	case ProviderGmail:
		g := c.Mailbox.Gmail
		if g.TokenFile == "" && (g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "") {
			errs = append(errs, errors.New("mailbox.gmail: token_file or client_id/client_secret/refresh_token required"))
		}
	case ProviderIMAP:
		if c.Mailbox.IMAP.Host == "" || c.Mailbox.IMAP.Username == "" {
			errs = append(errs, errors.New("mailbox.imap: host and username required"))
		}
	default:
		errs = append(errs, fmt.Errorf("mailbox.provider: unknown provider %q", c.Mailbox.Provider))
	}

	switch c.Upload.Sink {
	case SinkSupabase:
		if c.Upload.SupabaseURL == "" || c.Upload.SupabaseKey == "" {
			errs = append(errs, errors.New("upload.supabase: url and key required (or SUPABASE_URL / SUPABASE_KEY)"))
		}
	case SinkPostgres:
		if c.Upload.DatabaseURL == "" {
			errs = append(errs, errors.New("upload.postgres: url required (or DATABASE_URL)"))
		}
	default:
		errs = append(errs, fmt.Errorf("upload.sink: unknown sink %q", c.Upload.Sink))
	}

	if c.OrdersQueue != "" && c.RedisURL == "" {
		errs = append(errs, errors.New("redis.queues.orders requires redis.url"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll.interval must be positive"))
	}

	return errors.Join(errs...)
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
