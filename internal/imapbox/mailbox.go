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

// Package imapbox reads purchase-order emails from any IMAP server. It is
// the alternative to the Gmail REST client for mailboxes without API access.
package imapbox

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"

	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

// Config holds IMAP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Mailbox defaults to INBOX.
	Mailbox string
	// StartTLS upgrades a plain connection instead of dialing TLS directly.
	StartTLS bool
	Terms    models.SearchTerms
}

// Mailbox lists and fetches messages over IMAP. Each call opens its own
// connection, so a Mailbox is safe for concurrent use.
type Mailbox struct {
	addr     string
	username string
	password string
	mailbox  string
	startTLS bool
	terms    models.SearchTerms
}

// New creates an IMAP mailbox reader.
func New(cfg Config) *Mailbox {
	port := cfg.Port
	if port == 0 {
		port = 993
	}
	name := cfg.Mailbox
	if name == "" {
		name = "INBOX"
	}
	return &Mailbox{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		username: cfg.Username,
		password: cfg.Password,
		mailbox:  name,
		startTLS: cfg.StartTLS,
		terms:    cfg.Terms,
	}
}

func (m *Mailbox) connect() (*imapclient.Client, error) {
	opts := &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	var (
		client *imapclient.Client
		err    error
	)
	if m.startTLS {
		client, err = imapclient.DialStartTLS(m.addr, opts)
	} else {
		client, err = imapclient.DialTLS(m.addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to IMAP %s: %w", m.addr, err)
	}

	if err := client.Login(m.username, m.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("IMAP login as %s: %w", m.username, err)
	}
	return client, nil
}

// session connects, selects the mailbox read-only and runs fn. The
// connection is closed when the context is cancelled.
func (m *Mailbox) session(ctx context.Context, fn func(c *imapclient.Client, uidValidity uint32) error) error {
	client, err := m.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	sel, err := client.Select(m.mailbox, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return fmt.Errorf("select %s: %w", m.mailbox, err)
	}
	return fn(client, sel.UIDValidity)
}

// List returns message IDs of the form "<uidvalidity>:<uid>" for candidate
// messages received on or after since's date.
func (m *Mailbox) List(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	err := m.session(ctx, func(c *imapclient.Client, uidValidity uint32) error {
		data, err := c.UIDSearch(BuildCriteria(since, m.terms), nil).Wait()
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		for _, uid := range data.AllUIDs() {
			ids = append(ids, formatID(uidValidity, uid))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("imap search complete", "mailbox", m.mailbox, "messages", len(ids))
	return ids, nil
}

// Fetch reads the envelope, body structure and plain-text part of one
// message. Attachment payloads are fetched part by part, only when loaded.
// It returns (nil, nil) when the message is gone or the mailbox was
// recreated since List.
func (m *Mailbox) Fetch(ctx context.Context, id string) (*models.InboundEmail, error) {
	uidValidity, uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var email *models.InboundEmail
	err = m.session(ctx, func(c *imapclient.Client, current uint32) error {
		if current != uidValidity {
			slog.Warn("mailbox UIDVALIDITY changed, skipping message",
				"message_id", id,
				"uidvalidity", current,
			)
			return nil
		}

		buf, err := fetchOne(c, uid, &imap.FetchOptions{
			UID:           true,
			Envelope:      true,
			InternalDate:  true,
			BodyStructure: &imap.FetchItemBodyStructure{Extended: true},
		})
		if err != nil {
			return err
		}
		if buf == nil {
			slog.Warn("message not found (may have been deleted)", "message_id", id)
			return nil
		}

		var text *partRef
		email, text = buildEmail(id, buf.Envelope, buf.InternalDate, buf.BodyStructure,
			func(ref partRef) models.PayloadLoader {
				return m.partLoader(uidValidity, uid, ref)
			})

		if text != nil {
			body, err := fetchPart(c, uid, *text)
			if err != nil {
				slog.Warn("read text part failed", "message_id", id, "error", err)
			} else {
				email.Snippet = snippet(string(body))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", id, err)
	}
	return email, nil
}

// partLoader fetches one body part over a fresh session.
func (m *Mailbox) partLoader(uidValidity uint32, uid imap.UID, ref partRef) models.PayloadLoader {
	return func(ctx context.Context) ([]byte, error) {
		var data []byte
		err := m.session(ctx, func(c *imapclient.Client, current uint32) error {
			if current != uidValidity {
				return fmt.Errorf("mailbox UIDVALIDITY changed from %d to %d", uidValidity, current)
			}
			var err error
			data, err = fetchPart(c, uid, ref)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("load attachment %q: %w", ref.part.Filename(), err)
		}
		return data, nil
	}
}

// fetchOne runs a single-message UID FETCH. It returns nil when the
// message does not exist.
func fetchOne(c *imapclient.Client, uid imap.UID, opts *imap.FetchOptions) (*imapclient.FetchMessageBuffer, error) {
	cmd := c.Fetch(imap.UIDSetNum(uid), opts)
	defer cmd.Close()

	msg := cmd.Next()
	if msg == nil {
		return nil, cmd.Close()
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collect message: %w", err)
	}
	return buf, cmd.Close()
}

// fetchPart downloads and decodes one body part.
func fetchPart(c *imapclient.Client, uid imap.UID, ref partRef) ([]byte, error) {
	section := &imap.FetchItemBodySection{Part: ref.path, Peek: true}
	buf, err := fetchOne(c, uid, &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, fmt.Errorf("message uid %d no longer exists", uid)
	}
	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("part %v has no body", ref.path)
	}
	return decodePart(ref.part, raw)
}

// BuildCriteria ANDs the date window with an OR over every subject and
// sender term. IMAP SINCE has day granularity.
func BuildCriteria(since time.Time, terms models.SearchTerms) *imap.SearchCriteria {
	var leaves []imap.SearchCriteria
	for _, s := range terms.Subjects {
		leaves = append(leaves, imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: s}},
		})
	}
	for _, s := range terms.Senders {
		leaves = append(leaves, imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{{Key: "From", Value: s}},
		})
	}

	criteria := orOf(leaves)
	criteria.Since = since
	return &criteria
}

func orOf(leaves []imap.SearchCriteria) imap.SearchCriteria {
	switch len(leaves) {
	case 0:
		return imap.SearchCriteria{}
	case 1:
		return leaves[0]
	}
	return imap.SearchCriteria{
		Or: [][2]imap.SearchCriteria{{leaves[0], orOf(leaves[1:])}},
	}
}

func formatID(uidValidity uint32, uid imap.UID) string {
	return fmt.Sprintf("%d:%d", uidValidity, uid)
}

func parseID(id string) (uint32, imap.UID, error) {
	v, u, ok := strings.Cut(id, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed IMAP message id %q", id)
	}
	validity, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed IMAP message id %q: %w", id, err)
	}
	uid, err := strconv.ParseUint(u, 10, 32)
	if err != nil || uid == 0 {
		return 0, 0, fmt.Errorf("malformed IMAP message id %q", id)
	}
	return uint32(validity), imap.UID(uid), nil
}
