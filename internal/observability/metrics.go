package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nwp_ingest"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion service.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec // labels: outcome={success,error}
	CycleDuration prometheus.Histogram
	CycleRunning  prometheus.Gauge
	LastSuccess   prometheus.Gauge

	// Run availability and archive download metrics.
	Runs             *prometheus.CounterVec // labels: outcome={fetched,unavailable,failed}
	ArchiveBytes     prometheus.Counter
	ArchiveDuration  prometheus.Histogram
	ArchiveMembers   prometheus.Counter
	DecodeDuration   prometheus.Histogram
	RowsInserted     *prometheus.CounterVec // labels: table
	RowsDeduplicated *prometheus.CounterVec // labels: table

	// Location registry metrics.
	ResolveRequests    *prometheus.CounterVec // labels: outcome={success,error}
	LocationsMonitored prometheus.Gauge
	LocationCollisions prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Ingestion cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete ingestion cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		CycleRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle_running",
			Help:      "1 while an ingestion cycle is executing, 0 otherwise.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that completed without error.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Model runs considered by outcome.",
		}, []string{"outcome"}),
		ArchiveBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_bytes_total",
			Help:      "Total bytes of run archives downloaded.",
		}),
		ArchiveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_download_duration_seconds",
			Help:      "Run archive download duration in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ArchiveMembers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_members_total",
			Help:      "Total archive members decoded.",
		}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Duration of decoding and normalizing one run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RowsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      "Rows appended to the store by table.",
		}, []string{"table"}),
		RowsDeduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_deduplicated_total",
			Help:      "Matched rows dropped as already stored or overlapping, by table.",
		}, []string{"table"}),
		ResolveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_requests_total",
			Help:      "Location metadata lookups by outcome.",
		}, []string{"outcome"}),
		LocationsMonitored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locations_monitored",
			Help:      "Locations with known coordinates in the current cycle.",
		}),
		LocationCollisions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "location_collisions",
			Help:      "Locations excluded because another location owns their grid cell.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CyclesTotal,
		m.CycleDuration,
		m.CycleRunning,
		m.LastSuccess,
		m.Runs,
		m.ArchiveBytes,
		m.ArchiveDuration,
		m.ArchiveMembers,
		m.DecodeDuration,
		m.RowsInserted,
		m.RowsDeduplicated,
		m.ResolveRequests,
		m.LocationsMonitored,
		m.LocationCollisions,
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
