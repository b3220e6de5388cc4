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

// Package queue announces uploaded purchase orders on Redis as
// Celery-compatible tasks, so downstream order workers can pick them up.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

// OrderSubmittedTask is the Celery task name consumers register.
const OrderSubmittedTask = "orders.tasks.process_purchase_order"

// OrderSubmitted describes one uploaded order record.
type OrderSubmitted struct {
	RecordID     string `json:"record_id"`
	MessageID    string `json:"message_id"`
	Client       string `json:"client"`
	OrderType    string `json:"order_type"`
	OrderDate    string `json:"order_date"`
	DeliveryDate string `json:"delivery_date"`
	City         string `json:"city,omitempty"`
	PONumber     string `json:"po_number,omitempty"`
	FilePath     string `json:"file_path"`
	SubmittedAt  string `json:"submitted_at"`
}

// NewOrderSubmitted builds the event for rec stored under recordID.
func NewOrderSubmitted(recordID string, rec models.OrderRecord, at time.Time) OrderSubmitted {
	return OrderSubmitted{
		RecordID:     recordID,
		MessageID:    rec.MessageID,
		Client:       string(rec.Client),
		OrderType:    rec.OrderType,
		OrderDate:    rec.OrderDate,
		DeliveryDate: rec.DeliveryDate,
		City:         rec.City,
		PONumber:     rec.PONumber,
		FilePath:     rec.PayloadFilename,
		SubmittedAt:  at.UTC().Format(time.RFC3339),
	}
}

// Publisher sends order events to Redis in Celery task format.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// celeryTask represents a Celery-compatible task message.
type celeryTask struct {
	ID      string         `json:"id"`
	Task    string         `json:"task"`
	Args    []any          `json:"args"`
	Kwargs  map[string]any `json:"kwargs"`
	Retries int            `json:"retries"`
	ETA     *string        `json:"eta"`
}

// celeryMessage wraps a task for Redis transport.
type celeryMessage struct {
	Body            string         `json:"body"`
	ContentEncoding string         `json:"content-encoding"`
	ContentType     string         `json:"content-type"`
	Headers         map[string]any `json:"headers"`
	Properties      map[string]any `json:"properties"`
}

// PublishOrderSubmitted pushes ev onto the queue and returns the task ID.
func (p *Publisher) PublishOrderSubmitted(ctx context.Context, ev OrderSubmitted) (string, error) {
	taskID := uuid.New().String()

	msg, err := encodeTask(taskID, OrderSubmittedTask, p.queueName, ev)
	if err != nil {
		return "", err
	}

	// Celery consumes with BRPOP, so producers LPUSH.
	if err := p.rdb.LPush(ctx, p.queueName, msg).Err(); err != nil {
		return "", fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published order event to queue",
		"task_id", taskID,
		"record_id", ev.RecordID,
		"client", ev.Client,
		"queue", p.queueName,
	)
	return taskID, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

// encodeTask renders the Celery envelope around payload.
func encodeTask(taskID, taskName, queueName string, payload any) (string, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	taskBody, err := json.Marshal(celeryTask{
		ID:     taskID,
		Task:   taskName,
		Args:   []any{string(payloadJSON)},
		Kwargs: map[string]any{},
	})
	if err != nil {
		return "", fmt.Errorf("marshal celery task: %w", err)
	}

	msg := celeryMessage{
		Body:            string(taskBody),
		ContentEncoding: "utf-8",
		ContentType:     "application/json",
		Headers: map[string]any{
			"lang":    "py",
			"task":    taskName,
			"id":      taskID,
			"retries": 0,
		},
		Properties: map[string]any{
			"correlation_id": taskID,
			"delivery_mode":  2,
			"delivery_tag":   taskID,
			"body_encoding":  "utf-8",
			"exchange":       queueName,
			"routing_key":    queueName,
			"delivery_info": map[string]string{
				"exchange":    queueName,
				"routing_key": queueName,
			},
		},
	}

	out, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal celery message: %w", err)
	}
	return string(out), nil
}
