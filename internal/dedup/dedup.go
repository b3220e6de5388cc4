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

// Package dedup remembers which mailbox messages were already uploaded, so
// overlapping poll windows do not upload the same order twice.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a processed message ID is remembered. It must
	// exceed the longest lookback a backfill is expected to use.
	DefaultTTL = 30 * 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "po-intake:seen:"
)

// Filter tracks processed message IDs in Redis.
//
// Unlike a SETNX claim, Seen and Mark are separate so a message is only
// remembered after every record uploaded; a failed email is retried on the
// next poll.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter. A zero ttl uses DefaultTTL.
func NewFilter(rdb *redis.Client, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{rdb: rdb, ttl: ttl}
}

// Seen reports whether messageID was marked before.
func (f *Filter) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := f.rdb.Exists(ctx, key(messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup EXISTS: %w", err)
	}
	return n > 0, nil
}

// Mark records messageID as processed.
func (f *Filter) Mark(ctx context.Context, messageID string) error {
	if err := f.rdb.Set(ctx, key(messageID), time.Now().UTC().Format(time.RFC3339), f.ttl).Err(); err != nil {
		return fmt.Errorf("dedup SET: %w", err)
	}
	return nil
}

func key(messageID string) string {
	return keyPrefix + messageID
}
