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

// Package metrics exposes Prometheus counters for the intake pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Email outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeEmpty     = "empty"
	OutcomeDuplicate = "duplicate"
)

var (
	EmailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "po_intake_emails_processed_total",
			Help: "Emails processed, by matched profile and outcome",
		},
		[]string{"profile", "outcome"},
	)

	RecordsUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "po_intake_records_uploaded_total",
			Help: "Order records uploaded, by client and status",
		},
		[]string{"client", "status"}, // status: ok, error
	)

	ProfileFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "po_intake_profile_fallbacks_total",
			Help: "Partner extractions that degraded to the generic profile",
		},
		[]string{"profile"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "po_intake_run_duration_seconds",
			Help:    "Duration of one intake run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		},
	)

	LastSuccessfulRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "po_intake_last_successful_run_timestamp_seconds",
			Help: "Unix time of the last run that listed the mailbox successfully",
		},
	)
)

// RecordEmail counts one processed email.
func RecordEmail(profile, outcome string) {
	EmailsProcessed.WithLabelValues(profile, outcome).Inc()
}

// RecordUpload counts one upload attempt.
func RecordUpload(client string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	RecordsUploaded.WithLabelValues(client, status).Inc()
}

// RecordFallback counts a degrade to the generic profile.
func RecordFallback(profile string) {
	ProfileFallbacks.WithLabelValues(profile).Inc()
}

// RecordRun observes a completed run.
func RecordRun(d time.Duration, ok bool) {
	RunDuration.Observe(d.Seconds())
	if ok {
		LastSuccessfulRun.SetToCurrentTime()
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
