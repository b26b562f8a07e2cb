package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for one scrape run. All methods are
// safe on a nil receiver.
type Metrics struct {
	Registry     *prometheus.Registry
	PagesTotal   *prometheus.CounterVec
	PageDuration prometheus.Histogram
	RecordsTotal prometheus.Counter
	RowsSkipped  *prometheus.CounterVec
	AssetsTotal  *prometheus.CounterVec
	AssetRetries prometheus.Counter
	ErrorsTotal  *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_pages_total",
			Help: "Listing pages visited, by outcome.",
		},
		[]string{"outcome"},
	)
	pageDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "library_page_duration_seconds",
			Help:    "Time spent loading and extracting one listing page.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "library_records_total",
			Help: "Records appended to the run's record list.",
		},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_rows_skipped_total",
			Help: "Listing rows that yielded no record, by reason.",
		},
		[]string{"reason"},
	)
	assets := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_assets_total",
			Help: "Cover image fetches, by outcome.",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "library_asset_retries_total",
			Help: "Cover image download attempts after the first.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_errors_total",
			Help: "Errors by category.",
		},
		[]string{"category"},
	)

	registry.MustRegister(pages, pageDuration, records, skipped, assets, retries, errorsTotal)

	return &Metrics{
		Registry:     registry,
		PagesTotal:   pages,
		PageDuration: pageDuration,
		RecordsTotal: records,
		RowsSkipped:  skipped,
		AssetsTotal:  assets,
		AssetRetries: retries,
		ErrorsTotal:  errorsTotal,
	}
}

func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePage(d time.Duration) {
	if m == nil {
		return
	}
	m.PageDuration.Observe(d.Seconds())
}

func (m *Metrics) AddRecords(n int) {
	if m == nil {
		return
	}
	m.RecordsTotal.Add(float64(n))
}

func (m *Metrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.RowsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncAsset(outcome string) {
	if m == nil {
		return
	}
	m.AssetsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.AssetRetries.Inc()
}

func (m *Metrics) IncError(category string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(category).Inc()
}
