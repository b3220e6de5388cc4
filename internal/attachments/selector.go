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

// Package attachments filters an email's parts down to the files worth
// uploading, bundles them when a partner wants a single archive, and
// inspects spreadsheets to tell partners apart.
package attachments

import (
	"context"
	"fmt"
	"strings"

	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

// Mode is how a profile packages its eligible attachments.
type Mode int

const (
	// ModeSingle emits one record per eligible attachment.
	ModeSingle Mode = iota
	// ModeBundle zips every eligible attachment into one record.
	ModeBundle
)

func (m Mode) String() string {
	if m == ModeBundle {
		return "bundle"
	}
	return "single"
}

// Allowlist is a set of lowercase extensions without the dot.
type Allowlist map[string]bool

// NewAllowlist builds an allowlist from extensions in any case, with or
// without a leading dot.
func NewAllowlist(exts ...string) Allowlist {
	a := make(Allowlist, len(exts))
	for _, e := range exts {
		a[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return a
}

// DefaultAllowlist is the widest set any profile accepts.
var DefaultAllowlist = NewAllowlist("pdf", "xls", "xlsx", "csv", "zip")

// Eligible reports whether p has a filename with an allowed extension.
func (a Allowlist) Eligible(p models.AttachmentPart) bool {
	if p.Filename == "" {
		return false
	}
	return a[p.Extension()]
}

// File is an eligible attachment with its payload loaded.
type File struct {
	Filename string
	Ext      string
	Data     []byte
}

// Select loads the payloads of the eligible parts, preserving email order.
// Ineligible parts are never loaded.
func Select(ctx context.Context, parts []models.AttachmentPart, allow Allowlist) ([]File, error) {
	var files []File
	for _, p := range parts {
		if !allow.Eligible(p) {
			continue
		}
		data, err := p.Bytes(ctx)
		if err != nil {
			return nil, fmt.Errorf("load attachment %q: %w", p.Filename, err)
		}
		files = append(files, File{
			Filename: p.Filename,
			Ext:      p.Extension(),
			Data:     data,
		})
	}
	return files, nil
}
