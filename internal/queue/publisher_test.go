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

package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

func TestEncodeTask_CeleryEnvelope(t *testing.T) {
	rec := models.OrderRecord{
		MessageID:       "msg-1",
		Client:          models.ClientBreadfast,
		OrderType:       models.OrderTypePurchaseOrder,
		OrderDate:       "2024-04-15",
		DeliveryDate:    "2024-04-18",
		City:            "Alexandria",
		PayloadFilename: "breadfast_abc.pdf",
	}
	ev := NewOrderSubmitted("57", rec, time.Date(2024, 4, 15, 8, 0, 0, 0, time.UTC))

	raw, err := encodeTask("task-1", OrderSubmittedTask, "orders", ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var msg celeryMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("envelope is not JSON: %v", err)
	}
	if msg.Headers["task"] != OrderSubmittedTask || msg.Headers["id"] != "task-1" {
		t.Errorf("headers = %v", msg.Headers)
	}
	if msg.Properties["routing_key"] != "orders" {
		t.Errorf("routing_key = %v", msg.Properties["routing_key"])
	}

	var task celeryTask
	if err := json.Unmarshal([]byte(msg.Body), &task); err != nil {
		t.Fatalf("body is not a task: %v", err)
	}
	if task.ID != "task-1" || len(task.Args) != 1 {
		t.Fatalf("task = %+v", task)
	}

	var got OrderSubmitted
	if err := json.Unmarshal([]byte(task.Args[0].(string)), &got); err != nil {
		t.Fatalf("arg is not an event: %v", err)
	}
	if got.RecordID != "57" || got.Client != "Breadfast" || got.City != "Alexandria" || got.FilePath != "breadfast_abc.pdf" {
		t.Errorf("event = %+v", got)
	}
	if got.SubmittedAt != "2024-04-15T08:00:00Z" {
		t.Errorf("submitted_at = %q", got.SubmittedAt)
	}
}
