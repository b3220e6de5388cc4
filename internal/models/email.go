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

// Package models defines the data structures shared across the intake service.
package models

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// PayloadLoader returns the decoded bytes of an attachment. It is called
// lazily, only for parts that are eligible for upload.
type PayloadLoader func(ctx context.Context) ([]byte, error)

// AttachmentPart is a single MIME part of an inbound email.
type AttachmentPart struct {
	Filename string
	MIMEType string
	Size     int

	load PayloadLoader
}

// NewAttachmentPart builds a part whose payload is fetched on demand.
func NewAttachmentPart(filename, mimeType string, size int, load PayloadLoader) AttachmentPart {
	return AttachmentPart{
		Filename: filename,
		MIMEType: mimeType,
		Size:     size,
		load:     load,
	}
}

// StaticAttachment builds a part around bytes that are already in memory.
func StaticAttachment(filename, mimeType string, data []byte) AttachmentPart {
	return NewAttachmentPart(filename, mimeType, len(data), func(context.Context) ([]byte, error) {
		return data, nil
	})
}

// Extension returns the lowercase filename extension without the dot,
// or "" when the part has no filename or no extension.
func (p AttachmentPart) Extension() string {
	if p.Filename == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(p.Filename), "."))
}

// Bytes loads the part payload.
func (p AttachmentPart) Bytes(ctx context.Context) ([]byte, error) {
	if p.load == nil {
		return nil, fmt.Errorf("attachment %q has no payload loader", p.Filename)
	}
	return p.load(ctx)
}

// InboundEmail is the normalised view of a candidate purchase-order email.
// Subject, Sender and Snippet may be empty but are always set.
type InboundEmail struct {
	MessageID   string
	Subject     string
	Sender      string
	Snippet     string
	ReceivedAt  time.Time
	Attachments []AttachmentPart
}
