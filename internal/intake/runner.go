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

// Package intake drives one pass over the mailbox: list candidates, classify
// each email, upload its order records and report what happened.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/salehjamaljad/gmail-fetcher/internal/classifier"
	"github.com/salehjamaljad/gmail-fetcher/internal/metrics"
	"github.com/salehjamaljad/gmail-fetcher/internal/models"
	"github.com/salehjamaljad/gmail-fetcher/internal/queue"
)

// Mailbox lists and fetches candidate emails.
type Mailbox interface {
	List(ctx context.Context, since time.Time) ([]string, error)
	// Fetch returns (nil, nil) when the message no longer exists.
	Fetch(ctx context.Context, id string) (*models.InboundEmail, error)
}

// Uploader stores one record and returns its id.
type Uploader interface {
	Upload(ctx context.Context, rec models.OrderRecord) (string, error)
}

// Dedup remembers processed message IDs.
type Dedup interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	Mark(ctx context.Context, messageID string) error
}

// Publisher announces uploaded records.
type Publisher interface {
	PublishOrderSubmitted(ctx context.Context, ev queue.OrderSubmitted) (string, error)
}

// Summary counts the outcome of one run. Listed = Duplicates + Processed
// and Processed = Succeeded + Failed + Skipped.
type Summary struct {
	Listed     int
	Duplicates int
	Processed  int
	Succeeded  int
	Failed     int
	Skipped    int
	Records    int
	DryRun     bool
	Elapsed    time.Duration
}

// Runner performs intake runs. Dedup and Publisher are optional.
type Runner struct {
	mailbox    Mailbox
	classifier *classifier.Classifier
	uploader   Uploader
	dedup      Dedup
	publisher  Publisher
	dryRun     bool
}

// RunnerConfig holds dependencies for the intake runner.
type RunnerConfig struct {
	Mailbox    Mailbox
	Classifier *classifier.Classifier
	Uploader   Uploader
	Dedup      Dedup
	Publisher  Publisher
	// DryRun classifies and logs records without uploading, marking or
	// publishing anything.
	DryRun bool
}

// NewRunner creates an intake runner.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{
		mailbox:    cfg.Mailbox,
		classifier: cfg.Classifier,
		uploader:   cfg.Uploader,
		dedup:      cfg.Dedup,
		publisher:  cfg.Publisher,
		dryRun:     cfg.DryRun,
	}
}

// outcome of a single email.
type outcome struct {
	label   string
	profile string
	records int
}

// Run processes every candidate received since the given time. A listing
// failure aborts the run; per-email failures are logged and counted.
func (r *Runner) Run(ctx context.Context, since time.Time) (*Summary, error) {
	start := time.Now()
	summary := &Summary{DryRun: r.dryRun}

	slog.Info("starting intake run",
		"since", since.UTC().Format(time.RFC3339),
		"dry_run", r.dryRun,
	)

	ids, err := r.mailbox.List(ctx, since)
	if err != nil {
		metrics.RecordRun(time.Since(start), false)
		return nil, fmt.Errorf("list mailbox: %w", err)
	}
	summary.Listed = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			r.finish(summary, start, false)
			return summary, err
		}

		out := r.processEmail(ctx, id)
		metrics.RecordEmail(out.profile, out.label)

		if out.label == metrics.OutcomeDuplicate {
			summary.Duplicates++
			continue
		}
		summary.Processed++
		switch out.label {
		case metrics.OutcomeSucceeded:
			summary.Succeeded++
		case metrics.OutcomeFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
		summary.Records += out.records
	}

	r.finish(summary, start, true)
	return summary, nil
}

// finish records the run duration and logs the summary. An interrupted run
// is logged with its partial counts.
func (r *Runner) finish(summary *Summary, start time.Time, completed bool) {
	summary.Elapsed = time.Since(start)
	metrics.RecordRun(summary.Elapsed, completed)

	slog.Info("intake run complete",
		"listed", summary.Listed,
		"duplicates", summary.Duplicates,
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"records", summary.Records,
		"dry_run", summary.DryRun,
		"interrupted", !completed,
		"elapsed", summary.Elapsed,
	)
}

// processEmail handles one message ID end to end.
func (r *Runner) processEmail(ctx context.Context, id string) outcome {
	out := outcome{profile: "none"}

	if r.dedup != nil {
		seen, err := r.dedup.Seen(ctx, id)
		if err != nil {
			slog.Warn("dedup check failed", "message_id", id, "error", err)
		} else if seen {
			slog.Debug("message already processed", "message_id", id)
			out.label = metrics.OutcomeDuplicate
			return out
		}
	}

	email, err := r.mailbox.Fetch(ctx, id)
	if err != nil {
		slog.Warn("fetch message failed", "message_id", id, "error", err)
		out.label = metrics.OutcomeFailed
		return out
	}
	if email == nil {
		out.label = metrics.OutcomeSkipped
		return out
	}

	res, err := r.classifier.Classify(ctx, email)
	if errors.Is(err, classifier.ErrSkipped) {
		slog.Info("email skipped",
			"message_id", id,
			"subject", email.Subject,
			"reason", err.Error(),
		)
		r.mark(ctx, id)
		out.label = metrics.OutcomeSkipped
		return out
	}
	if err != nil {
		slog.Warn("classification failed",
			"message_id", id,
			"subject", email.Subject,
			"error", err,
		)
		out.label = metrics.OutcomeFailed
		return out
	}

	out.profile = string(res.Profile)
	if res.Degraded {
		metrics.RecordFallback(string(r.classifier.Match(email).Client))
	}

	logEmail := func(result string, uploaded int) {
		slog.Info("email processed",
			"message_id", id,
			"subject", email.Subject,
			"sender", email.Sender,
			"profile", res.Profile,
			"client", res.Client,
			"order_date", res.Dates.OrderISO(),
			"delivery_date", res.Dates.DeliveryISO(),
			"date_source", res.Dates.Source,
			"degraded", res.Degraded,
			"records", len(res.Records),
			"uploaded", uploaded,
			"outcome", result,
		)
	}

	if len(res.Records) == 0 {
		logEmail(metrics.OutcomeEmpty, 0)
		r.mark(ctx, id)
		out.label = metrics.OutcomeEmpty
		return out
	}

	if r.dryRun {
		for _, rec := range res.Records {
			slog.Info("dry run: would upload record",
				"message_id", id,
				"client", rec.Client,
				"file_path", rec.PayloadFilename,
				"bytes", len(rec.Payload),
			)
		}
		logEmail(metrics.OutcomeSucceeded, 0)
		out.label = metrics.OutcomeSucceeded
		out.records = len(res.Records)
		return out
	}

	uploaded := 0
	for _, rec := range res.Records {
		if r.uploadRecord(ctx, rec) {
			uploaded++
		}
	}
	out.records = uploaded

	if uploaded < len(res.Records) {
		logEmail(metrics.OutcomeFailed, uploaded)
		out.label = metrics.OutcomeFailed
		return out
	}

	logEmail(metrics.OutcomeSucceeded, uploaded)
	r.mark(ctx, id)
	out.label = metrics.OutcomeSucceeded
	return out
}

// uploadRecord uploads one record and announces it. It reports whether the
// upload succeeded; a failed announcement does not fail the record.
func (r *Runner) uploadRecord(ctx context.Context, rec models.OrderRecord) bool {
	recordID, err := r.uploader.Upload(ctx, rec)
	metrics.RecordUpload(string(rec.Client), err)
	if err != nil {
		slog.Warn("upload failed",
			"message_id", rec.MessageID,
			"client", rec.Client,
			"file_path", rec.PayloadFilename,
			"error", err,
		)
		return false
	}

	slog.Info("record uploaded",
		"message_id", rec.MessageID,
		"client", rec.Client,
		"record_id", recordID,
		"file_path", rec.PayloadFilename,
	)

	if r.publisher != nil {
		if _, err := r.publisher.PublishOrderSubmitted(ctx, queue.NewOrderSubmitted(recordID, rec, time.Now())); err != nil {
			slog.Warn("publish order event failed",
				"record_id", recordID,
				"error", err,
			)
		}
	}
	return true
}

func (r *Runner) mark(ctx context.Context, id string) {
	if r.dedup == nil || r.dryRun {
		return
	}
	if err := r.dedup.Mark(ctx, id); err != nil {
		slog.Warn("dedup mark failed", "message_id", id, "error", err)
	}
}
