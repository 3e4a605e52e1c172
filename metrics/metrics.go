// Copyright 2025 Poiesic Systems
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

// Package metrics provides Prometheus collectors for search and ingestion.
//
// A nil *Metrics is valid and records nothing, so components take one as
// an optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventscout"

// Search modes.
const (
	ModeScan     = "scan"
	ModeSemantic = "semantic"
)

// Outcome labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Candidate drop stages.
const (
	StageFilter    = "filter"
	StageThreshold = "threshold"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	SearchTotal         *prometheus.CounterVec
	SearchDuration      *prometheus.HistogramVec
	SearchResults       *prometheus.HistogramVec
	CandidatesFetched   *prometheus.CounterVec
	CandidatesDropped   *prometheus.CounterVec
	SearchWidenings     prometheus.Counter
	FilterOptionLoads   *prometheus.CounterVec
	IngestRunsTotal     *prometheus.CounterVec
	IngestRecords       *prometheus.CounterVec
	IngestBatchDuration prometheus.Histogram
	ReembedDocuments    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		SearchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "requests_total",
				Help:      "Total number of search requests",
			},
			[]string{"mode", "status"},
		),
		SearchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "duration_seconds",
				Help:      "Search duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"mode"},
		),
		SearchResults: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "results",
				Help:      "Number of results returned per search",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"mode"},
		),
		CandidatesFetched: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "candidates_fetched_total",
				Help:      "Total number of candidates fetched from the index",
			},
			[]string{"mode"},
		),
		CandidatesDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "candidates_dropped_total",
				Help:      "Total number of candidates discarded after retrieval",
			},
			[]string{"stage"},
		),
		SearchWidenings: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "widenings_total",
				Help:      "Total number of semantic fetch windows widened after filtering attrition",
			},
		),
		FilterOptionLoads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "filter_options",
				Name:      "loads_total",
				Help:      "Total number of filter option loads from the index",
			},
			[]string{"status"},
		),
		IngestRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "runs_total",
				Help:      "Total number of ingestion runs",
			},
			[]string{"status"},
		),
		IngestRecords: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "records_total",
				Help:      "Records seen by ingestion, by stage",
			},
			[]string{"stage"}, // rows, untitled, excluded, entities, indexed
		),
		IngestBatchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "batch_duration_seconds",
				Help:      "Time to embed and write one batch",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		ReembedDocuments: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reembed",
				Name:      "documents_total",
				Help:      "Documents processed by re-embedding",
			},
			[]string{"status"},
		),
	}
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(mode string, err error, elapsed time.Duration, results int) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.SearchTotal.WithLabelValues(mode, status).Inc()
	m.SearchDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if err == nil {
		m.SearchResults.WithLabelValues(mode).Observe(float64(results))
	}
}

// AddFetched records candidates returned by the index.
func (m *Metrics) AddFetched(mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CandidatesFetched.WithLabelValues(mode).Add(float64(n))
}

// AddDropped records candidates discarded at stage.
func (m *Metrics) AddDropped(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CandidatesDropped.WithLabelValues(stage).Add(float64(n))
}

// IncWidening records one widened semantic fetch.
func (m *Metrics) IncWidening() {
	if m == nil {
		return
	}
	m.SearchWidenings.Inc()
}

// IncFilterOptionLoad records one filter option load.
func (m *Metrics) IncFilterOptionLoad(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.FilterOptionLoads.WithLabelValues(status).Inc()
}

// ObserveIngestRun records the outcome of one ingestion run.
func (m *Metrics) ObserveIngestRun(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.IngestRunsTotal.WithLabelValues(status).Inc()
}

// AddIngestRecords adds n to the ingestion counter for stage.
func (m *Metrics) AddIngestRecords(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.IngestRecords.WithLabelValues(stage).Add(float64(n))
}

// ObserveBatch records the time taken by one ingestion batch.
func (m *Metrics) ObserveBatch(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.IngestBatchDuration.Observe(elapsed.Seconds())
}

// AddReembedded records re-embedded documents.
func (m *Metrics) AddReembedded(err error, n int) {
	if m == nil || n <= 0 {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.ReembedDocuments.WithLabelValues(status).Add(float64(n))
}
