// Package metrics records per-run counters for the catalog extractor and can
// export them in the Prometheus text format for node_exporter's textfile
// collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons used as label values on CoursesSkipped.
const (
	ReasonMissingField = "missing_field"
	ReasonInvalidCode  = "invalid_code"
	ReasonInvalidField = "invalid_field"
	ReasonTimeParse    = "time_parse"
	ReasonTermFormat   = "term_format"
	ReasonOther        = "other"
)

// Metrics holds the collectors for one run on a private registry, so
// concurrent runs (and tests) never share counters.
type Metrics struct {
	registry *prometheus.Registry

	DepartmentsFetched prometheus.Counter
	CoursesSeen        *prometheus.CounterVec
	CoursesKept        *prometheus.CounterVec
	CoursesFiltered    *prometheus.CounterVec
	CoursesSkipped     *prometheus.CounterVec
	OfferingsEmitted   prometheus.Counter
	FetchDuration      prometheus.Histogram
	LastRunTimestamp   prometheus.Gauge
}

// New creates and registers a fresh set of collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		DepartmentsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_departments_fetched_total",
			Help: "Department queries fetched from the catalog API.",
		}),
		CoursesSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_courses_seen_total",
			Help: "Course entries read from the catalog feed, by department.",
		}, []string{"department"}),
		CoursesKept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_courses_kept_total",
			Help: "Courses normalized and written, by department.",
		}, []string{"department"}),
		CoursesFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_courses_filtered_total",
			Help: "Courses dropped by the allow-list, by department.",
		}, []string{"department"}),
		CoursesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_courses_skipped_total",
			Help: "Courses skipped because they could not be processed, by reason.",
		}, []string{"reason"}),
		OfferingsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_offerings_emitted_total",
			Help: "Offering records emitted, including next-year duplicates.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_fetch_duration_seconds",
			Help:    "Time spent fetching and parsing one department query.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_last_run_timestamp_seconds",
			Help: "Unix time at which the last run completed.",
		}),
	}

	m.registry.MustRegister(
		m.DepartmentsFetched,
		m.CoursesSeen,
		m.CoursesKept,
		m.CoursesFiltered,
		m.CoursesSkipped,
		m.OfferingsEmitted,
		m.FetchDuration,
		m.LastRunTimestamp,
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFetch records the duration of a department fetch that started at start.
func (m *Metrics) ObserveFetch(start time.Time) {
	m.FetchDuration.Observe(time.Since(start).Seconds())
}

// MarkRunComplete sets the last-run gauge to now.
func (m *Metrics) MarkRunComplete() {
	m.LastRunTimestamp.SetToCurrentTime()
}

// WriteTextfile writes all collectors to path in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
