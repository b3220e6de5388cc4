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

package dates

import (
	"errors"
	"testing"
	"time"
)

// at pins the clock to 10:30 local Cairo time on the given date.
func at(t *testing.T, iso string) Clock {
	t.Helper()
	loc := time.FixedZone("EET", 2*60*60)
	d, err := time.ParseInLocation(isoLayout, iso, loc)
	if err != nil {
		t.Fatalf("bad test date %q: %v", iso, err)
	}
	return FixedClock(d.Add(10*time.Hour + 30*time.Minute))
}

func TestSubjectToken(t *testing.T) {
	tests := []struct {
		name         string
		subject      string
		policy       MissingPolicy
		wantOrder    string
		wantDelivery string
		wantErr      bool
	}{
		{
			name:         "bracketed date",
			subject:      "TMart Purchase Orders [2024-03-10]",
			policy:       MissingSkip,
			wantOrder:    "2024-03-10",
			wantDelivery: "2024-03-12",
		},
		{
			name:         "month rollover",
			subject:      "TMart Purchase Orders [2024-02-28]",
			policy:       MissingSkip,
			wantOrder:    "2024-02-28",
			wantDelivery: "2024-03-01",
		},
		{
			name:    "missing date skips",
			subject: "TMart Purchase Orders",
			policy:  MissingSkip,
			wantErr: true,
		},
		{
			name:    "malformed date skips",
			subject: "TMart Purchase Orders [2024-13-45]",
			policy:  MissingSkip,
			wantErr: true,
		},
		{
			name:         "missing date uses today",
			subject:      "TMart Purchase Orders",
			policy:       MissingToday,
			wantOrder:    "2024-04-15",
			wantDelivery: "2024-04-17",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SubjectToken{OnMissing: tt.policy, DeliveryOffsetDays: 2}
			got, err := s.Resolve(Input{Subject: tt.subject}, at(t, "2024-04-15"))
			if tt.wantErr {
				if !errors.Is(err, ErrNoDate) {
					t.Fatalf("err = %v, want ErrNoDate", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.OrderISO() != tt.wantOrder {
				t.Errorf("order = %s, want %s", got.OrderISO(), tt.wantOrder)
			}
			if got.DeliveryISO() != tt.wantDelivery {
				t.Errorf("delivery = %s, want %s", got.DeliveryISO(), tt.wantDelivery)
			}
		})
	}
}

func TestExplicitToken(t *testing.T) {
	s := ExplicitToken{Fallback: WeekdayFallback{}}

	got, err := s.Resolve(Input{Subject: "Khodar PO - Delivery Date 18/4/2024"}, at(t, "2024-04-15"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OrderISO() != "2024-04-15" || got.DeliveryISO() != "2024-04-18" {
		t.Errorf("got %s/%s, want 2024-04-15/2024-04-18", got.OrderISO(), got.DeliveryISO())
	}
	if got.Source != "explicit_token" {
		t.Errorf("source = %q, want explicit_token", got.Source)
	}

	// Thursday with no token: tomorrow is Friday, so Saturday.
	got, err = s.Resolve(Input{Subject: "Khodar PO - Delivery Date TBD"}, at(t, "2024-04-11"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DeliveryISO() != "2024-04-13" {
		t.Errorf("fallback delivery = %s, want 2024-04-13", got.DeliveryISO())
	}
	if got.Source != "weekday_fallback" {
		t.Errorf("source = %q, want weekday_fallback", got.Source)
	}

	// 31/2 matches the pattern but is not a date.
	got, err = s.Resolve(Input{Subject: "Khodar PO - Delivery Date 31/2/2024"}, at(t, "2024-04-15"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DeliveryISO() != "2024-04-16" {
		t.Errorf("malformed token delivery = %s, want 2024-04-16", got.DeliveryISO())
	}
}

func TestSnippetPattern(t *testing.T) {
	s := SnippetPattern{Fallback: WeekdayFallback{}}
	snippet := "Dear Khodar, please find attached PO No 4821. Expected Delivery Date: 15/4/2024 Regards"

	got, err := s.Resolve(Input{Snippet: snippet}, at(t, "2024-04-13"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DeliveryISO() != "2024-04-15" {
		t.Errorf("delivery = %s, want 2024-04-15", got.DeliveryISO())
	}
	if got.OrderISO() != "2024-04-13" {
		t.Errorf("order = %s, want 2024-04-13", got.OrderISO())
	}

	got, err = s.Resolve(Input{Snippet: "no date here"}, at(t, "2024-04-13"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DeliveryISO() != "2024-04-14" {
		t.Errorf("fallback delivery = %s, want 2024-04-14", got.DeliveryISO())
	}
}

func TestWeekdayFallback_NeverFriday(t *testing.T) {
	for day := 13; day <= 19; day++ {
		clock := FixedClock(time.Date(2024, time.April, day, 9, 0, 0, 0, time.UTC))
		got, err := WeekdayFallback{}.Resolve(Input{}, clock)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Delivery.Weekday() == time.Friday {
			t.Errorf("today %s: delivery landed on Friday", got.OrderISO())
		}
		if !got.Delivery.After(got.Order) {
			t.Errorf("today %s: delivery %s not after order", got.OrderISO(), got.DeliveryISO())
		}
	}
}

func TestNearestWeekday(t *testing.T) {
	tests := []struct {
		today string
		want  string
	}{
		{"2024-04-13", "2024-04-17"}, // Sat -> Wed
		{"2024-04-14", "2024-04-17"}, // Sun -> Wed
		{"2024-04-15", "2024-04-17"}, // Mon -> Wed
		{"2024-04-16", "2024-04-17"}, // Tue -> Wed
		{"2024-04-17", "2024-04-20"}, // Wed -> Sat
		{"2024-04-18", "2024-04-20"}, // Thu -> Sat
		{"2024-04-19", "2024-04-20"}, // Fri -> Sat
	}

	for _, tt := range tests {
		t.Run(tt.today, func(t *testing.T) {
			got, err := NearestWeekday{}.Resolve(Input{}, at(t, tt.today))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.DeliveryISO() != tt.want {
				t.Errorf("delivery = %s, want %s", got.DeliveryISO(), tt.want)
			}
			if got.DeliveryISO() == tt.today {
				t.Error("delivery must never equal today")
			}
			wd := got.Delivery.Weekday()
			if wd != time.Wednesday && wd != time.Saturday {
				t.Errorf("delivery weekday = %s, want Wednesday or Saturday", wd)
			}
		})
	}
}

func TestToday_UsesClockLocation(t *testing.T) {
	// 23:30 UTC on the 14th is already the 15th in Cairo.
	loc := time.FixedZone("EET", 2*60*60)
	clock := FixedClock(time.Date(2024, time.April, 14, 23, 30, 0, 0, time.UTC).In(loc))
	if got := ISO(Today(clock)); got != "2024-04-15" {
		t.Errorf("Today = %s, want 2024-04-15", got)
	}
}

func TestParseMissingPolicy(t *testing.T) {
	if p, err := ParseMissingPolicy(""); err != nil || p != MissingSkip {
		t.Errorf("empty policy = %q, %v; want skip", p, err)
	}
	if p, err := ParseMissingPolicy("today"); err != nil || p != MissingToday {
		t.Errorf("today policy = %q, %v", p, err)
	}
	if _, err := ParseMissingPolicy("guess"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
