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
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/salehjamaljad/gmail-fetcher/internal/dates"
	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

// Monday 15 April 2024, mid-morning in Cairo.
var monday = time.Date(2024, time.April, 15, 10, 0, 0, 0, time.FixedZone("EET", 2*60*60))

func testContacts() Contacts {
	c := DefaultContacts()
	c.BreadfastSender = "orders@breadfast.com"
	c.GoodsMartSender = "purchasing@goodsmart.com.eg"
	c.HalanSender = "po@halan.com"
	return c
}

func newTestClassifier(c Contacts, now time.Time) *Classifier {
	return New(Profiles(c), dates.FixedClock(now))
}

func workbook(t *testing.T, d10 string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetCellValue("Sheet1", "D10", d10); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("payload is not a zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestMatch_Precedence(t *testing.T) {
	c := newTestClassifier(testContacts(), monday)

	tests := []struct {
		name    string
		subject string
		sender  string
		want    models.Client
	}{
		{"breadfast subject", "Khodar PO - Delivery Date 18/4/2024", "someone@example.com", models.ClientBreadfast},
		{"breadfast subject any case", "KHODAR PO - DELIVERY DATE 18/4/2024", "", models.ClientBreadfast},
		{"breadfast sender beats talabat subject", "TMart Purchase Orders [2024-03-10]", "Ops <Orders@Breadfast.com>", models.ClientBreadfast},
		{"goodsmart subject", "Khodar.com PO - GoodsMart #77", "noreply@example.com", models.ClientGoodsMart},
		{"goodsmart sender", "PO attached", "purchasing@goodsmart.com.eg", models.ClientGoodsMart},
		{"goodsmart beats talabat sender", "Khodar.com PO - GoodsMart", "sherif.hossam@talabat.com", models.ClientGoodsMart},
		{"halan marker", "أمر شراء رقم 55", "ops@example.com", models.ClientHalan},
		{"halan sender exact case", "weekly order", "Halan <po@halan.com>", models.ClientHalan},
		{"halan sender bare address", "weekly order", "po@halan.com", models.ClientHalan},
		{"halan sender other case is not halan", "weekly order", "PO@HALAN.COM", models.ClientUnknown},
		{"halan beats talabat", "TMart Purchase Orders أمر شراء", "", models.ClientHalan},
		{"talabat subject", "TMart Purchase Orders [2024-03-10]", "", models.ClientTalabat},
		{"talabat sender any case", "orders", "Sherif.Hossam@Talabat.com", models.ClientTalabat},
		{"talabat prefix only", "Re: TMart Purchase Orders", "", models.ClientUnknown},
		{"unknown", "Hello", "friend@example.com", models.ClientUnknown},
		{"empty", "", "", models.ClientUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Match(&models.InboundEmail{Subject: tt.subject, Sender: tt.sender})
			if got.Client != tt.want {
				t.Errorf("Match(%q, %q) = %s, want %s", tt.subject, tt.sender, got.Client, tt.want)
			}
		})
	}
}

func TestMatch_EmptySenderConfigNeverMatches(t *testing.T) {
	c := newTestClassifier(Contacts{TalabatMissingDate: dates.MissingSkip}, monday)
	got := c.Match(&models.InboundEmail{Subject: "hello", Sender: "anyone@example.com"})
	if got.Client != models.ClientUnknown {
		t.Errorf("client = %s, want Unknown", got.Client)
	}
}

func TestClassify_BreadfastOneRecordPerPDF(t *testing.T) {
	c := newTestClassifier(testContacts(), monday)
	email := &models.InboundEmail{
		MessageID: "msg-bf",
		Subject:   "Khodar PO - Delivery Date 18/4/2024 - Alexandria",
		Sender:    "orders@breadfast.com",
		Attachments: []models.AttachmentPart{
			models.StaticAttachment("PO-1.pdf", "application/pdf", []byte("pdf-1")),
			models.StaticAttachment("lines.xlsx", "", []byte("xlsx")),
			models.StaticAttachment("PO-2.PDF", "application/pdf", []byte("pdf-2")),
		},
	}

	res, err := c.Classify(context.Background(), email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}
	for i, want := range []string{"pdf-1", "pdf-2"} {
		r := res.Records[i]
		if r.Client != models.ClientBreadfast {
			t.Errorf("record %d client = %s", i, r.Client)
		}
		if string(r.Payload) != want {
			t.Errorf("record %d payload = %q, want %q (never bundled)", i, r.Payload, want)
		}
		if r.OrderDate != "2024-04-15" || r.DeliveryDate != "2024-04-18" {
			t.Errorf("record %d dates = %s/%s", i, r.OrderDate, r.DeliveryDate)
		}
		if r.City != "Alexandria" {
			t.Errorf("record %d city = %q, want Alexandria", i, r.City)
		}
		if r.OrderType != models.OrderTypePurchaseOrder || r.Status != models.StatusPending {
			t.Errorf("record %d type/status = %q/%q", i, r.OrderType, r.Status)
		}
	}
	if res.Records[0].PayloadFilename == res.Records[1].PayloadFilename {
		t.Error("per-PDF records must have distinct filenames")
	}
}

func TestClassify_TalabatSubjectDate(t *testing.T) {
	c := newTestClassifier(testContacts(), monday)
	email := &models.InboundEmail{
		MessageID: "msg-tm",
		Subject:   "TMart Purchase Orders [2024-03-10]",
		Attachments: []models.AttachmentPart{
			models.StaticAttachment("a.pdf", "", []byte("a")),
			models.StaticAttachment("b.csv", "", []byte("b")),
			models.StaticAttachment("image001.png", "", []byte("png")),
		},
	}

	res, err := c.Classify(context.Background(), email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 bundled record, got %d", len(res.Records))
	}

	r := res.Records[0]
	if r.Client != models.ClientTalabat {
		t.Errorf("client = %s, want Talabat", r.Client)
	}
	if r.OrderDate != "2024-03-10" || r.DeliveryDate != "2024-03-12" {
		t.Errorf("dates = %s/%s, want 2024-03-10/2024-03-12", r.OrderDate, r.DeliveryDate)
	}
	if names := zipNames(t, r.Payload); !reflect.DeepEqual(names, []string{"a.pdf", "b.csv"}) {
		t.Errorf("zip entries = %v", names)
	}
}

func TestClassify_TalabatMissingDatePolicy(t *testing.T) {
	email := &models.InboundEmail{
		MessageID:   "msg-tm2",
		Subject:     "TMart Purchase Orders",
		Attachments: []models.AttachmentPart{models.StaticAttachment("a.pdf", "", []byte("a"))},
	}

	skip := newTestClassifier(testContacts(), monday)
	if _, err := skip.Classify(context.Background(), email); !errors.Is(err, ErrSkipped) {
		t.Fatalf("skip policy: err = %v, want ErrSkipped", err)
	}

	contacts := testContacts()
	contacts.TalabatMissingDate = dates.MissingToday
	today := newTestClassifier(contacts, monday)
	res, err := today.Classify(context.Background(), email)
	if err != nil {
		t.Fatalf("today policy: unexpected error: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].OrderDate != "2024-04-15" || res.Records[0].DeliveryDate != "2024-04-17" {
		t.Errorf("today policy records = %+v", res.Records)
	}
}

func TestClassify_GoodsMartSnippet(t *testing.T) {
	c := newTestClassifier(testContacts(), monday)
	email := &models.InboundEmail{
		MessageID: "msg-gm",
		Subject:   "Khodar.com PO - GoodsMart",
		Snippet:   "Please supply the attached PO No 4821 Expected Delivery Date: 15/4/2024 Thanks",
		Attachments: []models.AttachmentPart{
			models.StaticAttachment("po.pdf", "", []byte("pdf")),
			models.StaticAttachment("po.xlsx", "", []byte("xlsx")),
		},
	}

	res, err := c.Classify(context.Background(), email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record (xlsx only), got %d", len(res.Records))
	}
	r := res.Records[0]
	if r.DeliveryDate != "2024-04-15" {
		t.Errorf("delivery = %s, want 2024-04-15", r.DeliveryDate)
	}
	if r.PONumber != "4821" {
		t.Errorf("po_number = %q, want 4821", r.PONumber)
	}
	if string(r.Payload) != "xlsx" {
		t.Errorf("payload = %q, want raw xlsx", r.Payload)
	}
}

func TestClassify_HalanNeverToday(t *testing.T) {
	email := &models.InboundEmail{
		MessageID:   "msg-hl",
		Subject:     "أمر شراء",
		Attachments: []models.AttachmentPart{models.StaticAttachment("order.xlsx", "", []byte("x"))},
	}

	for day := 13; day <= 19; day++ {
		now := time.Date(2024, time.April, day, 8, 0, 0, 0, time.UTC)
		c := newTestClassifier(testContacts(), now)
		res, err := c.Classify(context.Background(), email)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		r := res.Records[0]
		if r.DeliveryDate <= r.OrderDate {
			t.Errorf("today %s: delivery %s is not after today", r.OrderDate, r.DeliveryDate)
		}
		wd := res.Dates.Delivery.Weekday()
		if wd != time.Wednesday && wd != time.Saturday {
			t.Errorf("today %s: delivery weekday %s", r.OrderDate, wd)
		}
		if res.Dates.Delivery.Sub(res.Dates.Order) > 7*24*time.Hour {
			t.Errorf("today %s: delivery %s more than a week away", r.OrderDate, r.DeliveryDate)
		}
	}
}

func TestClassify_GenericKhateerBundle(t *testing.T) {
	c := newTestClassifier(testContacts(), monday)
	email := &models.InboundEmail{
		MessageID: "msg-kh",
		Subject:   "Order for tomorrow",
		Sender:    "buyer@example.com",
		Attachments: []models.AttachmentPart{
			models.StaticAttachment("order.pdf", "", []byte("pdf")),
			models.StaticAttachment("order.xlsx", "", workbook(t, "Khateer Trading")),
		},
	}

	res, err := c.Classify(context.Background(), email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(res.Records))
	}
	r := res.Records[0]
	if r.Client != models.ClientKhateer {
		t.Errorf("client = %s, want Khateer", r.Client)
	}
	if res.Profile != models.ClientUnknown {
		t.Errorf("profile = %s, want Unknown", res.Profile)
	}
	names := zipNames(t, r.Payload)
	sort.Strings(names)
	if !reflect.DeepEqual(names, []string{"order.pdf", "order.xlsx"}) {
		t.Errorf("zip entries = %v", names)
	}
	// Monday: tomorrow is Tuesday.
	if r.DeliveryDate != "2024-04-16" {
		t.Errorf("delivery = %s, want 2024-04-16", r.DeliveryDate)
	}
}

func TestClassify_GenericClients(t *testing.T) {
	tests := []struct {
		name  string
		parts []models.AttachmentPart
		want  models.Client
	}{
		{
			name:  "rabbit sheet",
			parts: []models.AttachmentPart{models.StaticAttachment("r.xlsx", "", workbook(t, "Rabbit"))},
			want:  models.ClientRabbit,
		},
		{
			name:  "corrupt sheet defaults to rabbit",
			parts: []models.AttachmentPart{models.StaticAttachment("r.xlsx", "", []byte("garbage"))},
			want:  models.ClientRabbit,
		},
		{
			name:  "no sheet stays unknown",
			parts: []models.AttachmentPart{models.StaticAttachment("r.pdf", "", []byte("pdf"))},
			want:  models.ClientUnknown,
		},
	}

	c := newTestClassifier(testContacts(), monday)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Classify(context.Background(), &models.InboundEmail{MessageID: "m", Attachments: tt.parts})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Records) != 1 {
				t.Fatalf("expected 1 record, got %d", len(res.Records))
			}
			if res.Records[0].Client != tt.want {
				t.Errorf("client = %s, want %s", res.Records[0].Client, tt.want)
			}
		})
	}
}

func TestClassify_NoEligibleAttachments(t *testing.T) {
	c := newTestClassifier(testContacts(), monday)
	email := &models.InboundEmail{
		MessageID:   "msg-none",
		Subject:     "TMart Purchase Orders [2024-03-10]",
		Attachments: []models.AttachmentPart{models.StaticAttachment("logo.png", "", []byte("png"))},
	}

	res, err := c.Classify(context.Background(), email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("expected no records, got %d", len(res.Records))
	}
}

func TestClassify_Idempotent(t *testing.T) {
	c := newTestClassifier(testContacts(), monday)
	email := &models.InboundEmail{
		MessageID: "msg-idem",
		Subject:   "TMart Purchase Orders [2024-03-10]",
		Attachments: []models.AttachmentPart{
			models.StaticAttachment("a.pdf", "", []byte("a")),
			models.StaticAttachment("b.xlsx", "", []byte("b")),
		},
	}

	first, err := c.Classify(context.Background(), email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.Classify(context.Background(), email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first.Records, second.Records) {
		t.Error("re-classifying the same email produced different records")
	}
}

func TestClassify_DegradesToGeneric(t *testing.T) {
	calls := 0
	flaky := models.NewAttachmentPart("po.pdf", "application/pdf", 3, func(context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient fetch error")
		}
		return []byte("pdf"), nil
	})

	c := newTestClassifier(testContacts(), monday)
	res, err := c.Classify(context.Background(), &models.InboundEmail{
		MessageID:   "msg-deg",
		Subject:     "Khodar PO - Delivery Date 18/4/2024",
		Attachments: []models.AttachmentPart{flaky},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Degraded {
		t.Error("expected Degraded result")
	}
	if len(res.Records) != 1 || res.Records[0].Client != models.ClientUnknown {
		t.Errorf("records = %+v, want one Unknown bundle", res.Records)
	}
}

func TestClassify_GenericLoadFailure(t *testing.T) {
	broken := models.NewAttachmentPart("po.pdf", "", 3, func(context.Context) ([]byte, error) {
		return nil, errors.New("gone")
	})

	c := newTestClassifier(testContacts(), monday)
	_, err := c.Classify(context.Background(), &models.InboundEmail{
		MessageID:   "msg-broken",
		Attachments: []models.AttachmentPart{broken},
	})
	if err == nil {
		t.Fatal("expected error when the generic path cannot load attachments")
	}
	if errors.Is(err, ErrSkipped) {
		t.Error("load failure must not be reported as a skip")
	}
}
