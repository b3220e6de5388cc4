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

import "time"

// Clock supplies the current instant. Strategies only ever read "today"
// through a Clock so tests can pin it.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns wall-clock time in loc. A nil loc means time.Local.
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return ClockFunc(func() time.Time { return time.Now().In(loc) })
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// Today returns the calendar date of clock.Now() as midnight UTC, which keeps
// day arithmetic free of DST shifts.
func Today(clock Clock) time.Time {
	now := clock.Now()
	return civil(now.Year(), now.Month(), now.Day())
}

func civil(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ISO formats a calendar date as YYYY-MM-DD.
func ISO(t time.Time) string {
	return t.Format(isoLayout)
}
