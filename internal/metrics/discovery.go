// Package metrics provides prometheus collectors for discovery runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeNoNew     = "no_new_spots"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Candidate classifications.
const (
	ClassNew            = "new"
	ClassStale          = "stale"
	ClassFreshDuplicate = "fresh_duplicate"
)

// DiscoveryMetrics holds the collectors updated by the discovery orchestrator.
// All Record methods are safe on a nil receiver.
type DiscoveryMetrics struct {
	runsTotal          *prometheus.CounterVec
	runDuration        prometheus.Histogram
	candidatesTotal    *prometheus.CounterVec
	searchFailures     *prometheus.CounterVec
	enrichBatchesTotal *prometheus.CounterVec
	recordsWritten     *prometheus.CounterVec
}

// NewDiscoveryMetrics creates the collectors and registers them on registry.
func NewDiscoveryMetrics(registry prometheus.Registerer) (*DiscoveryMetrics, error) {
	m := &DiscoveryMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DiscoveryMetrics) initMetrics() {
	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotfinder_discovery_runs_total",
			Help: "Total number of discovery runs by outcome",
		},
		[]string{"outcome"},
	)

	m.runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "spotfinder_discovery_duration_seconds",
			Help: "Wall time of a discovery run",
			// 0.25s .. ~2min
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	m.candidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotfinder_candidates_total",
			Help: "Search candidates by classification",
		},
		[]string{"classification"},
	)

	m.searchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotfinder_search_failures_total",
			Help: "Category searches that failed and were skipped",
		},
		[]string{"category"},
	)

	m.enrichBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotfinder_enrichment_batches_total",
			Help: "Enrichment batches by outcome",
		},
		[]string{"outcome"}, // success, defaulted
	)

	m.recordsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotfinder_records_written_total",
			Help: "Place records written to the store",
		},
		[]string{"operation"}, // insert, update, skip
	)
}

// Describe implements the Collector interface
func (m *DiscoveryMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.runsTotal.Describe(ch)
	m.runDuration.Describe(ch)
	m.candidatesTotal.Describe(ch)
	m.searchFailures.Describe(ch)
	m.enrichBatchesTotal.Describe(ch)
	m.recordsWritten.Describe(ch)
}

// Collect implements the Collector interface
func (m *DiscoveryMetrics) Collect(ch chan<- prometheus.Metric) {
	m.runsTotal.Collect(ch)
	m.runDuration.Collect(ch)
	m.candidatesTotal.Collect(ch)
	m.searchFailures.Collect(ch)
	m.enrichBatchesTotal.Collect(ch)
	m.recordsWritten.Collect(ch)
}

// RecordRun records the outcome and duration of one run.
func (m *DiscoveryMetrics) RecordRun(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(seconds)
}

// RecordCandidate counts a classified search candidate.
func (m *DiscoveryMetrics) RecordCandidate(classification string) {
	if m == nil {
		return
	}
	m.candidatesTotal.WithLabelValues(classification).Inc()
}

// RecordSearchFailure counts a skipped category search.
func (m *DiscoveryMetrics) RecordSearchFailure(category string) {
	if m == nil {
		return
	}
	m.searchFailures.WithLabelValues(category).Inc()
}

// RecordEnrichBatch counts an enrichment batch; defaulted is true when the batch fell back to defaults.
func (m *DiscoveryMetrics) RecordEnrichBatch(defaulted bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if defaulted {
		outcome = "defaulted"
	}
	m.enrichBatchesTotal.WithLabelValues(outcome).Inc()
}

// RecordWrites counts the rows a save inserted, updated and skipped.
func (m *DiscoveryMetrics) RecordWrites(inserted, updated, skipped int) {
	if m == nil {
		return
	}
	m.recordsWritten.WithLabelValues("insert").Add(float64(inserted))
	m.recordsWritten.WithLabelValues("update").Add(float64(updated))
	m.recordsWritten.WithLabelValues("skip").Add(float64(skipped))
}
