// Package metrics holds the Prometheus collectors of the harvest pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace prefixes every metric name
	Namespace = "factharvest"

	// Subsystem groups the pipeline metrics
	Subsystem = "pipeline"
)

// Metrics holds all pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	StageFailuresTotal *prometheus.CounterVec
	RunDurationSeconds prometheus.Histogram
	LastSuccessUnix    prometheus.Gauge

	RecordsHarvested prometheus.Counter
	RecordsDegraded  prometheus.Counter
	RecordsAppended  prometheus.Counter
	Duplicates       prometheus.Counter
	CorpusSize       prometheus.Gauge

	FetchErrorsTotal *prometheus.CounterVec
}

// New creates and registers the collectors on reg, or on the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal state and trigger",
		},
		[]string{"state", "trigger"},
	)
	m.StageFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "stage_failures_total",
			Help:      "Failed runs by the stage that failed",
		},
		[]string{"stage"},
	)
	m.RunDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "run_duration_seconds",
		Help:      "Wall time of pipeline runs",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	m.LastSuccessUnix = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run",
	})

	m.RecordsHarvested = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "records_harvested_total",
		Help:      "Records produced by harvests, degraded ones included",
	})
	m.RecordsDegraded = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "records_degraded_total",
		Help:      "Records with every extracted field absent",
	})
	m.RecordsAppended = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "records_appended_total",
		Help:      "Records appended to the historical corpus",
	})
	m.Duplicates = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "duplicates_total",
		Help:      "Harvested records suppressed as duplicates",
	})
	m.CorpusSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "corpus_rows",
		Help:      "Rows in the historical corpus after the last successful run",
	})

	m.FetchErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Detail page fetch failures by reason",
		},
		[]string{"reason"},
	)

	return m
}

// ObserveFetchError counts a failed detail fetch
func (m *Metrics) ObserveFetchError(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "other"
	}
	m.FetchErrorsTotal.WithLabelValues(reason).Inc()
}

// ObserveHarvest counts the records of a harvested batch
func (m *Metrics) ObserveHarvest(harvested, degraded int) {
	if m == nil {
		return
	}
	m.RecordsHarvested.Add(float64(harvested))
	m.RecordsDegraded.Add(float64(degraded))
}

// ObserveMerge records the outcome of a merge that was persisted
func (m *Metrics) ObserveMerge(appended, duplicates, corpusSize int) {
	if m == nil {
		return
	}
	m.RecordsAppended.Add(float64(appended))
	m.Duplicates.Add(float64(duplicates))
	m.CorpusSize.Set(float64(corpusSize))
}

// ObserveRun records a finished run. stage is empty on success.
func (m *Metrics) ObserveRun(state, trigger, stage string, duration time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(state, trigger).Inc()
	m.RunDurationSeconds.Observe(duration.Seconds())
	if stage != "" {
		m.StageFailuresTotal.WithLabelValues(stage).Inc()
		return
	}
	m.LastSuccessUnix.Set(float64(finishedAt.Unix()))
}
