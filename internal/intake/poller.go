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

package intake

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poller runs the intake on a fixed interval.
type Poller struct {
	runner   *Runner
	interval time.Duration
	lookback time.Duration
	now      func() time.Time

	mu   sync.RWMutex
	last *Summary
}

// NewPoller creates a poller. lookback should exceed interval so that
// consecutive windows overlap; the dedup filter absorbs the overlap.
func NewPoller(runner *Runner, interval, lookback time.Duration) *Poller {
	if lookback < interval {
		lookback = interval
	}
	return &Poller{
		runner:   runner,
		interval: interval,
		lookback: lookback,
		now:      time.Now,
	}
}

// Run polls immediately and then on every tick. It blocks until the
// context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("intake poller starting",
		"interval", p.interval,
		"lookback", p.lookback,
	)

	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("intake poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// LastSummary returns the summary of the most recent completed run, or nil.
func (p *Poller) LastSummary() *Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

func (p *Poller) poll(ctx context.Context) {
	since := p.now().UTC().Add(-p.lookback)

	summary, err := p.runner.Run(ctx, since)
	if err != nil {
		// The next tick retries the same window.
		slog.Error("intake run failed", "error", err)
		return
	}

	p.mu.Lock()
	p.last = summary
	p.mu.Unlock()
}
