package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ETLMetrics holds the collectors of the rates ETL.
type ETLMetrics struct {
	// Extraction
	ObservationsFetched *prometheus.CounterVec
	FetchDuration       *prometheus.HistogramVec

	// Load
	RowsWritten *prometheus.CounterVec

	// Runs
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	LastSuccessful prometheus.Gauge
}

// NewETLMetrics registers the collectors on reg.
func NewETLMetrics(reg prometheus.Registerer) *ETLMetrics {
	factory := promauto.With(reg)

	return &ETLMetrics{
		ObservationsFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fx_etl_observations_fetched_total",
				Help: "Rate observations received from the upstream provider",
			},
			[]string{"provider", "currency"},
		),

		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fx_etl_fetch_duration_seconds",
				Help:    "Time spent fetching one currency series",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"provider"},
		),

		RowsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fx_etl_rows_written_total",
				Help: "Ledger rows upserted into the rates table",
			},
			[]string{"table"},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fx_etl_runs_total",
				Help: "ETL runs by outcome; failed runs are labelled with the failing stage",
			},
			[]string{"status", "stage"},
		),

		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fx_etl_run_duration_seconds",
				Help:    "Duration of a full extract-transform-load run",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),

		LastSuccessful: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fx_etl_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
		),
	}
}

func (m *ETLMetrics) RecordFetch(provider, currency string, observations int, took time.Duration) {
	m.ObservationsFetched.WithLabelValues(provider, currency).Add(float64(observations))
	m.FetchDuration.WithLabelValues(provider).Observe(took.Seconds())
}

func (m *ETLMetrics) RecordRows(table string, rows int64) {
	m.RowsWritten.WithLabelValues(table).Add(float64(rows))
}

func (m *ETLMetrics) RecordSuccess(took time.Duration) {
	m.RunsTotal.WithLabelValues("success", "").Inc()
	m.RunDuration.Observe(took.Seconds())
	m.LastSuccessful.SetToCurrentTime()
}

func (m *ETLMetrics) RecordFailure(stage string, took time.Duration) {
	m.RunsTotal.WithLabelValues("failure", stage).Inc()
	m.RunDuration.Observe(took.Seconds())
}
