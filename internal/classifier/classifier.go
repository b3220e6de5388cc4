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

// Package classifier decides which trading partner sent a purchase-order
// email and turns it into order records ready for upload.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/salehjamaljad/gmail-fetcher/internal/attachments"
	"github.com/salehjamaljad/gmail-fetcher/internal/dates"
	"github.com/salehjamaljad/gmail-fetcher/internal/filename"
	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

// ErrSkipped marks an email that a profile deliberately declined, such as a
// Talabat email without a subject date under the skip policy.
var ErrSkipped = errors.New("email skipped")

// Result is the outcome of classifying one email.
type Result struct {
	// Profile is the client of the profile that produced the records.
	// It differs from Client only for the generic profile after inspection.
	Profile  models.Client
	Client   models.Client
	Dates    dates.Resolved
	Records  []models.OrderRecord
	Degraded bool
}

// Classifier holds the ordered profile list. It has no mutable state and is
// safe for concurrent use.
type Classifier struct {
	profiles []Profile
	generic  Profile
	clock    dates.Clock
}

// New creates a classifier over profiles (in priority order) with the
// generic fallback appended implicitly.
func New(profiles []Profile, clock dates.Clock) *Classifier {
	return &Classifier{
		profiles: profiles,
		generic:  GenericProfile(),
		clock:    clock,
	}
}

// Match returns the first profile whose predicate accepts the email, or the
// generic profile.
func (c *Classifier) Match(email *models.InboundEmail) Profile {
	for _, p := range c.profiles {
		if p.Match(email.Subject, email.Sender) {
			return p
		}
	}
	return c.generic
}

// Classify builds the order records for one email.
//
// A failing partner profile degrades to the generic profile instead of
// dropping the email. The returned error is ErrSkipped (wrapped) for a
// deliberate skip, or an attachment loading error from the generic path.
// A Result with no records means there was nothing eligible to upload.
func (c *Classifier) Classify(ctx context.Context, email *models.InboundEmail) (*Result, error) {
	p := c.Match(email)

	res, err := c.extract(ctx, p, email)
	if err == nil {
		return res, nil
	}

	if errors.Is(err, dates.ErrNoDate) {
		return nil, fmt.Errorf("%w: %s: %v", ErrSkipped, p.Client, err)
	}

	if p.Client == c.generic.Client {
		return nil, err
	}

	slog.Warn("partner extraction failed, falling back to generic profile",
		"message_id", email.MessageID,
		"client", p.Client,
		"error", err,
	)

	res, err = c.extract(ctx, c.generic, email)
	if err != nil {
		return nil, fmt.Errorf("generic extraction: %w", err)
	}
	res.Degraded = true
	return res, nil
}

func (c *Classifier) extract(ctx context.Context, p Profile, email *models.InboundEmail) (*Result, error) {
	resolved, err := p.Dates.Resolve(dates.Input{Subject: email.Subject, Snippet: email.Snippet}, c.clock)
	if err != nil {
		return nil, fmt.Errorf("resolve dates: %w", err)
	}

	files, err := attachments.Select(ctx, email.Attachments, p.Allow)
	if err != nil {
		return nil, err
	}

	client := p.Client
	if p.Inspect {
		client = inspectClient(email.MessageID, files, client)
	}

	res := &Result{
		Profile: p.Client,
		Client:  client,
		Dates:   resolved,
	}
	if len(files) == 0 {
		return res, nil
	}

	var md Metadata
	if p.Extract != nil {
		md = p.Extract(email)
	}

	base := models.OrderRecord{
		MessageID:    email.MessageID,
		Client:       client,
		OrderType:    models.OrderTypePurchaseOrder,
		OrderDate:    resolved.OrderISO(),
		DeliveryDate: resolved.DeliveryISO(),
		Status:       models.StatusPending,
		City:         md.City,
		PONumber:     md.PONumber,
	}

	switch p.Mode {
	case attachments.ModeBundle:
		archive, err := attachments.Bundle(files)
		if err != nil {
			return nil, fmt.Errorf("bundle attachments: %w", err)
		}
		rec := base
		rec.PayloadFilename = filename.ForClient(client.Slug(), email.MessageID+".zip")
		rec.Payload = archive
		res.Records = []models.OrderRecord{rec}

	default:
		res.Records = make([]models.OrderRecord, 0, len(files))
		for i, f := range files {
			rec := base
			// Index keeps two same-named parts of one email apart.
			key := email.MessageID + "/" + strconv.Itoa(i) + "/" + f.Filename
			rec.PayloadFilename = filename.ForClient(client.Slug(), key)
			rec.Payload = f.Data
			res.Records = append(res.Records, rec)
		}
	}

	return res, nil
}

// inspectClient upgrades an unknown sender to Khateer or Rabbit using the
// first spreadsheet among the selected files.
func inspectClient(messageID string, files []attachments.File, fallback models.Client) models.Client {
	for _, f := range files {
		if !attachments.IsSpreadsheet(f.Ext) {
			continue
		}
		client, err := attachments.Inspect(f.Data)
		if err != nil {
			slog.Warn("spreadsheet inspection failed, defaulting to Rabbit",
				"message_id", messageID,
				"attachment", f.Filename,
				"error", err,
			)
		}
		return client
	}
	return fallback
}
