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

package classifier

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/salehjamaljad/gmail-fetcher/internal/attachments"
	"github.com/salehjamaljad/gmail-fetcher/internal/dates"
	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

// Contacts holds the per-deployment partner signals.
// An empty sender disables sender matching for that partner.
type Contacts struct {
	BreadfastSender string
	GoodsMartSender string
	HalanSender     string
	HalanMarker     string
	TalabatSender   string

	// TalabatMissingDate decides whether a Talabat email without a
	// "[YYYY-MM-DD]" subject token is skipped or dated today.
	TalabatMissingDate dates.MissingPolicy
}

// DefaultContacts returns the signals known without any configuration.
func DefaultContacts() Contacts {
	return Contacts{
		TalabatSender:      "sherif.hossam@talabat.com",
		HalanMarker:        "أمر شراء",
		TalabatMissingDate: dates.MissingSkip,
	}
}

const (
	breadfastSubjectPrefix = "khodar po - delivery date"
	goodsMartSubjectPhrase = "khodar.com po - goodsmart"
	talabatSubjectPrefix   = "tmart purchase orders"

	talabatDeliveryOffsetDays = 2
)

// SearchTerms returns the mailbox query terms for the known partners:
// every subject phrase plus every configured sender address.
func (c Contacts) SearchTerms() models.SearchTerms {
	terms := models.SearchTerms{
		Subjects: []string{
			"Khodar PO - Delivery Date",
			"Khodar.com PO - GoodsMart",
			"TMart Purchase Orders",
		},
	}
	if c.HalanMarker != "" {
		terms.Subjects = append(terms.Subjects, c.HalanMarker)
	}
	for _, s := range []string{c.BreadfastSender, c.GoodsMartSender, c.HalanSender, c.TalabatSender} {
		if s = strings.TrimSpace(s); s != "" {
			terms.Senders = append(terms.Senders, s)
		}
	}
	return terms
}

// Metadata is the optional per-partner data beyond dates.
type Metadata struct {
	City     string
	PONumber string
}

// Profile is one partner's rule bundle. Profiles are evaluated in slice
// order and the first match wins.
type Profile struct {
	Client  models.Client
	Match   func(subject, sender string) bool
	Dates   dates.Strategy
	Allow   attachments.Allowlist
	Mode    attachments.Mode
	Extract func(email *models.InboundEmail) Metadata

	// Inspect lets spreadsheet content decide the client (generic only).
	Inspect bool
}

// Profiles returns the partner profiles in priority order: Breadfast,
// GoodsMart, Halan, Talabat. The generic fallback is not part of the list.
func Profiles(c Contacts) []Profile {
	return []Profile{
		{
			Client: models.ClientBreadfast,
			Match: func(subject, sender string) bool {
				return hasPrefixFold(subject, breadfastSubjectPrefix) || containsFold(sender, c.BreadfastSender)
			},
			Dates:   dates.ExplicitToken{Fallback: dates.WeekdayFallback{}},
			Allow:   attachments.NewAllowlist("pdf"),
			Mode:    attachments.ModeSingle,
			Extract: breadfastMetadata,
		},
		{
			Client: models.ClientGoodsMart,
			Match: func(subject, sender string) bool {
				return containsFold(sender, c.GoodsMartSender) || containsFold(subject, goodsMartSubjectPhrase)
			},
			Dates:   dates.SnippetPattern{Fallback: dates.WeekdayFallback{}},
			Allow:   attachments.NewAllowlist("xlsx"),
			Mode:    attachments.ModeSingle,
			Extract: goodsMartMetadata,
		},
		{
			Client: models.ClientHalan,
			Match: func(subject, sender string) bool {
				// Sender comparison is case-sensitive for Halan only.
				return containsNonEmpty(subject, c.HalanMarker) || containsNonEmpty(sender, c.HalanSender)
			},
			Dates: dates.NearestWeekday{},
			Allow: attachments.NewAllowlist("xlsx"),
			Mode:  attachments.ModeSingle,
		},
		{
			Client: models.ClientTalabat,
			Match: func(subject, sender string) bool {
				return hasPrefixFold(subject, talabatSubjectPrefix) || containsFold(sender, c.TalabatSender)
			},
			Dates: dates.SubjectToken{
				OnMissing:          c.TalabatMissingDate,
				DeliveryOffsetDays: talabatDeliveryOffsetDays,
			},
			Allow: attachments.DefaultAllowlist,
			Mode:  attachments.ModeBundle,
		},
	}
}

// GenericProfile is applied when no partner profile matches, and when a
// partner's extraction fails.
func GenericProfile() Profile {
	return Profile{
		Client:  models.ClientUnknown,
		Match:   func(string, string) bool { return true },
		Dates:   dates.WeekdayFallback{},
		Allow:   attachments.DefaultAllowlist,
		Mode:    attachments.ModeBundle,
		Inspect: true,
	}
}

var (
	poNumber  = regexp.MustCompile(`(?i)\bPO\s*No\.?\s*:?\s*#?\s*(\d+)`)
	hasDigits = regexp.MustCompile(`\d`)
)

func goodsMartMetadata(email *models.InboundEmail) Metadata {
	var md Metadata
	if m := poNumber.FindStringSubmatch(email.Snippet); m != nil {
		md.PONumber = m[1]
	}
	return md
}

// breadfastMetadata reads the city from a trailing subject segment, as in
// "Khodar PO - Delivery Date 18/4/2024 - Alexandria".
func breadfastMetadata(email *models.InboundEmail) Metadata {
	segments := strings.Split(email.Subject, " - ")
	if len(segments) < 3 {
		return Metadata{}
	}
	last := strings.TrimSpace(segments[len(segments)-1])
	if last == "" || hasDigits.MatchString(last) || !startsWithLetter(last) {
		return Metadata{}
	}
	return Metadata{City: last}
}

func startsWithLetter(s string) bool {
	for _, r := range s {
		return unicode.IsLetter(r)
	}
	return false
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), prefix)
}

func containsFold(s, substr string) bool {
	if substr == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func containsNonEmpty(s, substr string) bool {
	return substr != "" && strings.Contains(s, substr)
}
