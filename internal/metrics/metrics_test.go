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

package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestRecordUpload_Labels(t *testing.T) {
	RecordUpload("Talabat", errors.New("boom"))
	RecordUpload("Khateer", nil)

	out := scrape(t)
	for _, line := range []string{
		`po_intake_records_uploaded_total{client="Talabat",status="error"} 1`,
		`po_intake_records_uploaded_total{client="Khateer",status="ok"} 1`,
	} {
		if !strings.Contains(out, line) {
			t.Errorf("metrics output missing %q", line)
		}
	}
}

func TestHandler_ExposesCounters(t *testing.T) {
	RecordEmail("Halan", OutcomeSucceeded)
	RecordRun(time.Second, true)

	body := scrape(t)
	for _, name := range []string{
		"po_intake_emails_processed_total",
		"po_intake_run_duration_seconds",
		"po_intake_last_successful_run_timestamp_seconds",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
