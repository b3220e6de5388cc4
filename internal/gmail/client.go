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

// Package gmail lists and fetches purchase-order emails through the Gmail
// REST API. Attachment bytes are only downloaded when the classifier asks
// for them.
package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

// DefaultBaseURL is the public Gmail API root.
const DefaultBaseURL = "https://gmail.googleapis.com"

// StatusError is returned when the Gmail API answers with a non-success code.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gmail %s returned HTTP %d: %s", e.Op, e.Code, e.Body)
}

// Client talks to one Gmail mailbox.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userID     string
	label      string
	terms      models.SearchTerms
}

// ClientConfig holds the dependencies of a Gmail client. HTTPClient must
// already carry authorization (see NewHTTPClient).
type ClientConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	UserID     string
	Label      string
	Terms      models.SearchTerms
}

// NewClient creates a Gmail client. BaseURL defaults to DefaultBaseURL and
// UserID to "me".
func NewClient(cfg ClientConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	user := cfg.UserID
	if user == "" {
		user = "me"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		httpClient: hc,
		baseURL:    base,
		userID:     user,
		label:      cfg.Label,
		terms:      cfg.Terms,
	}
}

// listResponse is one page of users.messages.list.
type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

// List returns the IDs of candidate messages received after since,
// following every result page.
func (c *Client) List(ctx context.Context, since time.Time) ([]string, error) {
	params := url.Values{}
	params.Set("q", BuildQuery(since, c.terms, c.label))
	params.Set("maxResults", "100")

	var ids []string
	for page := 0; ; page++ {
		var resp listResponse
		if err := c.getJSON(ctx, "list", c.userURL("/messages")+"?"+params.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("list messages page %d: %w", page, err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.ID)
		}

		slog.Debug("gmail list page fetched",
			"page", page,
			"messages", len(resp.Messages),
		)

		if resp.NextPageToken == "" {
			return ids, nil
		}
		params.Set("pageToken", resp.NextPageToken)
	}
}

// Fetch retrieves one message in full format. It returns (nil, nil) when
// the message no longer exists.
func (c *Client) Fetch(ctx context.Context, id string) (*models.InboundEmail, error) {
	endpoint := c.userURL("/messages/"+url.PathEscape(id)) + "?format=full"

	var msg gmailMessage
	err := c.getJSON(ctx, "get", endpoint, &msg)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		slog.Warn("message not found (may have been deleted)", "message_id", id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}

	email, err := parseMessage(&msg, func(attachmentID string) models.PayloadLoader {
		return func(ctx context.Context) ([]byte, error) {
			return c.fetchAttachment(ctx, id, attachmentID)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("parse message %s: %w", id, err)
	}
	return email, nil
}

// fetchAttachment downloads and decodes one attachment body.
func (c *Client) fetchAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	endpoint := c.userURL("/messages/" + url.PathEscape(messageID) + "/attachments/" + url.PathEscape(attachmentID))

	var body messageBody
	if err := c.getJSON(ctx, "attachments.get", endpoint, &body); err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	data, err := decodeBase64URL(body.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	return data, nil
}

func (c *Client) userURL(path string) string {
	return fmt.Sprintf("%s/gmail/v1/users/%s%s", c.baseURL, url.PathEscape(c.userID), path)
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmail %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// BuildQuery renders a Gmail search expression such as
//
//	after:1712570400 (subject:"TMart Purchase Orders" OR from:a@b.com) label:orders
func BuildQuery(since time.Time, terms models.SearchTerms, label string) string {
	parts := []string{fmt.Sprintf("after:%d", since.Unix())}

	var or []string
	for _, s := range terms.Subjects {
		or = append(or, fmt.Sprintf("subject:%q", s))
	}
	for _, s := range terms.Senders {
		or = append(or, "from:"+s)
	}
	if len(or) > 0 {
		parts = append(parts, "("+strings.Join(or, " OR ")+")")
	}

	if label != "" {
		parts = append(parts, "label:"+label)
	}
	return strings.Join(parts, " ")
}
