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

// Package dates resolves order and delivery dates for a purchase-order email.
//
// Each partner profile picks one Strategy. Strategies form a closed set
// (SubjectToken, ExplicitToken, SnippetPattern, WeekdayFallback,
// NearestWeekday); the ones that parse text declare their fallback
// explicitly instead of returning "maybe a date".
package dates

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	isoLayout = "2006-01-02"
	dmyLayout = "2/1/2006"
)

// ErrNoDate is returned by SubjectToken under the skip policy when the
// subject carries no usable date.
var ErrNoDate = errors.New("no usable date token")

// Input is the part of an email the strategies look at.
type Input struct {
	Subject string
	Snippet string
}

// Resolved holds the computed dates and the name of the strategy that
// actually produced them (after any fallback).
type Resolved struct {
	Order    time.Time
	Delivery time.Time
	Source   string
}

// OrderISO returns the order date as YYYY-MM-DD.
func (r Resolved) OrderISO() string { return ISO(r.Order) }

// DeliveryISO returns the delivery date as YYYY-MM-DD.
func (r Resolved) DeliveryISO() string { return ISO(r.Delivery) }

// Strategy computes dates for one email. The unexported method seals the set.
type Strategy interface {
	Resolve(in Input, clock Clock) (Resolved, error)
	Name() string
	strategy()
}

// MissingPolicy decides what SubjectToken does when the subject has no
// parseable date.
type MissingPolicy string

const (
	MissingSkip  MissingPolicy = "skip"
	MissingToday MissingPolicy = "today"
)

// ParseMissingPolicy validates a configured policy value.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch MissingPolicy(s) {
	case MissingSkip, MissingToday:
		return MissingPolicy(s), nil
	case "":
		return MissingSkip, nil
	}
	return "", fmt.Errorf("unknown missing-date policy %q (want %q or %q)", s, MissingSkip, MissingToday)
}

var (
	bracketedISO = regexp.MustCompile(`\[(\d{4}-\d{2}-\d{2})\]`)
	dayMonthYear = regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\b`)
	expectedDate = regexp.MustCompile(`(?i)expected\s+delivery\s+date\s*:\s*(\d{1,2}/\d{1,2}/\d{4})`)
)

// SubjectToken reads "[YYYY-MM-DD]" from the subject as the order date.
// Delivery is the order date plus DeliveryOffsetDays, with no weekend rule.
type SubjectToken struct {
	OnMissing          MissingPolicy
	DeliveryOffsetDays int
}

func (SubjectToken) strategy()    {}
func (SubjectToken) Name() string { return "subject_token" }

func (s SubjectToken) Resolve(in Input, clock Clock) (Resolved, error) {
	order, ok := findDate(bracketedISO, in.Subject, isoLayout)
	if !ok {
		if s.OnMissing != MissingToday {
			return Resolved{}, fmt.Errorf("subject %q: %w", in.Subject, ErrNoDate)
		}
		order = Today(clock)
	}
	return Resolved{
		Order:    order,
		Delivery: order.AddDate(0, 0, s.DeliveryOffsetDays),
		Source:   s.Name(),
	}, nil
}

// ExplicitToken reads a "D/M/YYYY" delivery date from the subject. The order
// date is always today. Without a valid token it defers to Fallback.
type ExplicitToken struct {
	Fallback Strategy
}

func (ExplicitToken) strategy()    {}
func (ExplicitToken) Name() string { return "explicit_token" }

func (s ExplicitToken) Resolve(in Input, clock Clock) (Resolved, error) {
	if delivery, ok := findDate(dayMonthYear, in.Subject, dmyLayout); ok {
		return Resolved{Order: Today(clock), Delivery: delivery, Source: s.Name()}, nil
	}
	return resolveFallback(s.Fallback, in, clock)
}

// SnippetPattern reads "Expected Delivery Date: D/M/YYYY" from the body
// snippet. The order date is always today. Without a valid token it defers
// to Fallback.
type SnippetPattern struct {
	Fallback Strategy
}

func (SnippetPattern) strategy()    {}
func (SnippetPattern) Name() string { return "snippet_pattern" }

func (s SnippetPattern) Resolve(in Input, clock Clock) (Resolved, error) {
	if delivery, ok := findDate(expectedDate, in.Snippet, dmyLayout); ok {
		return Resolved{Order: Today(clock), Delivery: delivery, Source: s.Name()}, nil
	}
	return resolveFallback(s.Fallback, in, clock)
}

// WeekdayFallback delivers tomorrow, except that a Friday delivery moves
// to Saturday.
type WeekdayFallback struct{}

func (WeekdayFallback) strategy()    {}
func (WeekdayFallback) Name() string { return "weekday_fallback" }

func (s WeekdayFallback) Resolve(_ Input, clock Clock) (Resolved, error) {
	today := Today(clock)
	delivery := today.AddDate(0, 0, 1)
	if delivery.Weekday() == time.Friday {
		delivery = delivery.AddDate(0, 0, 1)
	}
	return Resolved{Order: today, Delivery: delivery, Source: s.Name()}, nil
}

// NearestWeekday delivers on the next Wednesday when today is Saturday
// through Tuesday, and on the next Saturday when today is Wednesday through
// Friday. The result is always strictly after today.
type NearestWeekday struct{}

func (NearestWeekday) strategy()    {}
func (NearestWeekday) Name() string { return "nearest_weekday" }

func (s NearestWeekday) Resolve(_ Input, clock Clock) (Resolved, error) {
	today := Today(clock)

	target := time.Wednesday
	switch today.Weekday() {
	case time.Wednesday, time.Thursday, time.Friday:
		target = time.Saturday
	}

	ahead := (int(target) - int(today.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}

	return Resolved{Order: today, Delivery: today.AddDate(0, 0, ahead), Source: s.Name()}, nil
}

func resolveFallback(fallback Strategy, in Input, clock Clock) (Resolved, error) {
	if fallback == nil {
		fallback = WeekdayFallback{}
	}
	return fallback.Resolve(in, clock)
}

// findDate returns the first match of re in text parsed with layout.
// A token that matches the pattern but is not a real calendar date
// (e.g. 2024-13-45, 31/2/2024) counts as absent.
func findDate(re *regexp.Regexp, text, layout string) (time.Time, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(layout, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return civil(t.Year(), t.Month(), t.Day()), true
}
