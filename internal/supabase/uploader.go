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

// Package supabase uploads order payloads to Supabase Storage and records
// their metadata through the PostgREST endpoint.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

const (
	DefaultBucket = "orders"
	DefaultTable  = "purchase_orders"
)

// Uploader stores one OrderRecord per call.
type Uploader struct {
	httpClient *http.Client
	baseURL    string
	key        string
	bucket     string
	table      string
	upsert     bool
}

// Config holds Supabase project settings.
type Config struct {
	URL    string
	Key    string
	Bucket string
	Table  string
	// Upsert overwrites an existing object with the same name, which makes
	// re-processing an email idempotent at the storage layer.
	Upsert     bool
	HTTPClient *http.Client
}

// NewUploader validates cfg and creates an uploader.
func NewUploader(cfg Config) (*Uploader, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, errors.New("supabase: url and key are required")
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Uploader{
		httpClient: hc,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		key:        cfg.Key,
		bucket:     bucket,
		table:      table,
		upsert:     cfg.Upsert,
	}, nil
}

// Upload stores the payload under rec.PayloadFilename, then inserts the
// metadata row, and returns the new row's id. A failed insert leaves the
// stored object in place.
func (u *Uploader) Upload(ctx context.Context, rec models.OrderRecord) (string, error) {
	if rec.PayloadFilename == "" {
		return "", errors.New("supabase: record has no payload filename")
	}
	if err := u.putObject(ctx, rec.PayloadFilename, rec.Payload); err != nil {
		return "", err
	}
	id, err := u.insertRow(ctx, rec)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (u *Uploader) putObject(ctx context.Context, name string, data []byte) error {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", u.baseURL, url.PathEscape(u.bucket), url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build storage request: %w", err)
	}
	u.authorize(req)
	req.Header.Set("Content-Type", "application/octet-stream")
	if u.upsert {
		req.Header.Set("x-upsert", "true")
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("storage upload failed: HTTP %d: %s", resp.StatusCode, readBody(resp.Body))
	}
	return nil
}

func (u *Uploader) insertRow(ctx context.Context, rec models.OrderRecord) (string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", u.baseURL, url.PathEscape(u.table))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build insert request: %w", err)
	}
	u.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("metadata insert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("metadata insert failed: HTTP %d: %s", resp.StatusCode, readBody(resp.Body))
	}

	var rows []map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return "", fmt.Errorf("decode insert response: %w", err)
	}
	if len(rows) == 0 || rows[0]["id"] == nil {
		return "", errors.New("metadata insert returned no id")
	}
	return fmt.Sprint(rows[0]["id"]), nil
}

func (u *Uploader) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+u.key)
	req.Header.Set("apikey", u.key)
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 2048))
	return strings.TrimSpace(string(b))
}
