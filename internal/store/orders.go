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

// Package store provides a self-hosted Postgres sink for order records,
// keeping payload bytes and metadata in a single table.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Order is a stored purchase order row.
type Order struct {
	ID           int64
	MessageID    string
	Client       string
	OrderType    string
	OrderDate    time.Time
	DeliveryDate time.Time
	Status       string
	City         string
	PONumber     string
	FilePath     string
	Payload      []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store writes order records to Postgres.
type Store struct {
	db DB
}

// NewStore creates an order store and ensures the purchase_orders table
// exists.
func NewStore(ctx context.Context, db DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure order schema: %w", err)
	}
	slog.Info("order store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS purchase_orders (
			id            BIGSERIAL PRIMARY KEY,
			message_id    TEXT NOT NULL,
			client        TEXT NOT NULL,
			order_type    TEXT NOT NULL,
			order_date    DATE NOT NULL,
			delivery_date DATE NOT NULL,
			status        TEXT NOT NULL DEFAULT 'Pending',
			city          TEXT DEFAULT '',
			po_number     TEXT DEFAULT '',
			file_path     TEXT NOT NULL UNIQUE,
			payload       BYTEA NOT NULL,
			created_at    TIMESTAMPTZ DEFAULT NOW(),
			updated_at    TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_orders_client ON purchase_orders(client);
		CREATE INDEX IF NOT EXISTS idx_orders_delivery ON purchase_orders(delivery_date);
	`)
	return err
}

// Upload inserts rec keyed on its payload filename and returns the row id.
// Re-uploading the same filename replaces the payload and metadata, so
// re-processing an email does not create duplicate rows.
func (s *Store) Upload(ctx context.Context, rec models.OrderRecord) (string, error) {
	orderDate, err := time.Parse(time.DateOnly, rec.OrderDate)
	if err != nil {
		return "", fmt.Errorf("parse order date: %w", err)
	}
	deliveryDate, err := time.Parse(time.DateOnly, rec.DeliveryDate)
	if err != nil {
		return "", fmt.Errorf("parse delivery date: %w", err)
	}

	var id int64
	err = s.db.QueryRow(ctx, `
		INSERT INTO purchase_orders
			(message_id, client, order_type, order_date, delivery_date, status, city, po_number, file_path, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (file_path) DO UPDATE SET
			client        = EXCLUDED.client,
			order_type    = EXCLUDED.order_type,
			order_date    = EXCLUDED.order_date,
			delivery_date = EXCLUDED.delivery_date,
			status        = EXCLUDED.status,
			city          = EXCLUDED.city,
			po_number     = EXCLUDED.po_number,
			payload       = EXCLUDED.payload,
			updated_at    = NOW()
		RETURNING id
	`, rec.MessageID, string(rec.Client), rec.OrderType, orderDate, deliveryDate,
		rec.Status, rec.City, rec.PONumber, rec.PayloadFilename, rec.Payload,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert purchase order: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// GetByFilePath retrieves a stored order, or nil when none exists.
func (s *Store) GetByFilePath(ctx context.Context, filePath string) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, message_id, client, order_type, order_date, delivery_date,
		       status, city, po_number, file_path, payload, created_at, updated_at
		FROM purchase_orders
		WHERE file_path = $1
	`, filePath)
	return scanOrder(row)
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.MessageID, &o.Client, &o.OrderType, &o.OrderDate, &o.DeliveryDate,
		&o.Status, &o.City, &o.PONumber, &o.FilePath, &o.Payload, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
