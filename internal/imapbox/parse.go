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

package imapbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message"

	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

// snippetLimit matches the length of the snippet Gmail computes server-side.
const snippetLimit = 200

// partRef locates one leaf body part by its IMAP section path.
type partRef struct {
	path []int
	part *imap.BodyStructureSinglePart
}

// buildEmail assembles an InboundEmail from envelope and body structure
// alone. Every part with a filename becomes an attachment whose payload is
// fetched by load only when asked for. The returned ref, if any, is the
// first plain-text part to read the snippet from.
func buildEmail(id string, env *imap.Envelope, received time.Time, bs imap.BodyStructure, load func(partRef) models.PayloadLoader) (*models.InboundEmail, *partRef) {
	email := &models.InboundEmail{
		MessageID:  id,
		ReceivedAt: received,
	}
	if env != nil {
		email.Subject = env.Subject
		email.Sender = sender(env.From)
		if email.ReceivedAt.IsZero() {
			email.ReceivedAt = env.Date
		}
	}

	text, files := walkParts(bs)
	for _, ref := range files {
		email.Attachments = append(email.Attachments, models.NewAttachmentPart(
			ref.part.Filename(),
			ref.part.MediaType(),
			int(ref.part.Size),
			load(ref),
		))
	}
	return email, text
}

// walkParts returns the first plain-text part without a filename and every
// part with one, in message order.
func walkParts(bs imap.BodyStructure) (*partRef, []partRef) {
	if bs == nil {
		return nil, nil
	}

	var (
		text  *partRef
		files []partRef
	)
	bs.Walk(func(path []int, p imap.BodyStructure) bool {
		single, ok := p.(*imap.BodyStructureSinglePart)
		if !ok {
			return true
		}
		// Walk reuses path between calls.
		ref := partRef{path: append([]int(nil), path...), part: single}
		switch {
		case single.Filename() != "":
			files = append(files, ref)
		case text == nil && strings.EqualFold(single.MediaType(), "text/plain"):
			text = &ref
		}
		return true
	})
	return text, files
}

// decodePart undoes the part's transfer encoding (and charset for text).
func decodePart(part *imap.BodyStructureSinglePart, raw []byte) ([]byte, error) {
	var h message.Header
	h.SetContentType(part.MediaType(), part.Params)
	if part.Encoding != "" {
		h.Set("Content-Transfer-Encoding", part.Encoding)
	}

	entity, err := message.New(h, bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("decode part: %w", err)
	}
	data, err := io.ReadAll(entity.Body)
	if err != nil {
		return nil, fmt.Errorf("decode part: %w", err)
	}
	return data, nil
}

func sender(from []imap.Address) string {
	if len(from) == 0 {
		return ""
	}
	a := from[0]
	addr := a.Addr()
	if a.Name == "" {
		return addr
	}
	return a.Name + " <" + addr + ">"
}

// snippet collapses whitespace and truncates to snippetLimit runes.
func snippet(body string) string {
	s := strings.Join(strings.Fields(body), " ")
	r := []rune(s)
	if len(r) > snippetLimit {
		r = r[:snippetLimit]
	}
	return string(r)
}
