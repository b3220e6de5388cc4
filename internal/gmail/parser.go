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

package gmail

import (
	"encoding/base64"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

// gmailMessage represents the relevant fields of a format=full message.
type gmailMessage struct {
	ID           string      `json:"id"`
	Snippet      string      `json:"snippet"`
	InternalDate string      `json:"internalDate"`
	Payload      messagePart `json:"payload"`
}

type messagePart struct {
	PartID   string `json:"partId"`
	MIMEType string `json:"mimeType"`
	Filename string `json:"filename"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body  messageBody   `json:"body"`
	Parts []messagePart `json:"parts"`
}

type messageBody struct {
	AttachmentID string `json:"attachmentId"`
	Size         int    `json:"size"`
	Data         string `json:"data"`
}

// loaderFor builds the lazy loader for a remote attachment body.
type loaderFor func(attachmentID string) models.PayloadLoader

// parseMessage converts a Gmail message into an InboundEmail. Attachment
// parts are collected depth-first in document order.
func parseMessage(msg *gmailMessage, remote loaderFor) (*models.InboundEmail, error) {
	email := &models.InboundEmail{
		MessageID: msg.ID,
		Subject:   msg.Payload.header("Subject"),
		Sender:    msg.Payload.header("From"),
		Snippet:   html.UnescapeString(msg.Snippet),
	}

	if msg.InternalDate != "" {
		ms, err := strconv.ParseInt(msg.InternalDate, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse internalDate %q: %w", msg.InternalDate, err)
		}
		email.ReceivedAt = time.UnixMilli(ms).UTC()
	}

	var walk func(p *messagePart) error
	walk = func(p *messagePart) error {
		if p.Filename != "" {
			part, err := attachmentPart(p, remote)
			if err != nil {
				return err
			}
			email.Attachments = append(email.Attachments, part)
		}
		for i := range p.Parts {
			if err := walk(&p.Parts[i]); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(&msg.Payload); err != nil {
		return nil, err
	}

	return email, nil
}

// attachmentPart uses the inline body when Gmail included it and a remote
// loader otherwise.
func attachmentPart(p *messagePart, remote loaderFor) (models.AttachmentPart, error) {
	if p.Body.AttachmentID != "" {
		return models.NewAttachmentPart(p.Filename, p.MIMEType, p.Body.Size, remote(p.Body.AttachmentID)), nil
	}
	data, err := decodeBase64URL(p.Body.Data)
	if err != nil {
		return models.AttachmentPart{}, fmt.Errorf("decode inline part %q: %w", p.Filename, err)
	}
	return models.StaticAttachment(p.Filename, p.MIMEType, data), nil
}

func (p *messagePart) header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// decodeBase64URL accepts Gmail's URL-safe base64 with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
