// Package metrics exposes pipeline and library observability through
// Prometheus. All recorders are nil-safe: components constructed without
// metrics pay no overhead and need no conditionals.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every instrument the indexer records.
type Metrics struct {
	registry *prometheus.Registry

	stageProcessed *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	queueDepth     *prometheus.GaugeVec
	photosTotal    prometheus.Gauge
	scansTotal     *prometheus.CounterVec
	filesHashed    prometheus.Counter
	wsClients      prometheus.Gauge
}

// New builds a Metrics instance with its own registry, pre-populated with
// the standard Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,
		stageProcessed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "photarc_stage_processed_total",
				Help: "Stage executions by stage name and outcome",
			},
			[]string{"stage", "status"}, // status: done, failed, skipped
		),
		stageDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "photarc_stage_duration_seconds",
				Help:    "Stage execution latency by stage name",
				Buckets: prometheus.ExponentialBuckets(0.005, 2.5, 12),
			},
			[]string{"stage"},
		),
		queueDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "photarc_queue_depth",
				Help: "Items waiting in each stage queue",
			},
			[]string{"stage"},
		),
		photosTotal: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "photarc_photos_total",
				Help: "Photos currently in the catalog",
			},
		),
		scansTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "photarc_scans_total",
				Help: "Completed scans by outcome",
			},
			[]string{"outcome"}, // completed, cancelled, failed
		),
		filesHashed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "photarc_files_hashed_total",
				Help: "Files whose bytes were read and content-hashed",
			},
		),
		wsClients: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "photarc_websocket_clients",
				Help: "Connected progress subscribers",
			},
		),
	}
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordStage records one stage execution with its outcome and duration in
// seconds.
func (m *Metrics) RecordStage(stage, status string, seconds float64) {
	if m == nil {
		return
	}
	m.stageProcessed.WithLabelValues(stage, status).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// SetQueueDepth records the current backlog of one stage queue.
func (m *Metrics) SetQueueDepth(stage string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(stage).Set(float64(depth))
}

// SetPhotosTotal records the catalog size.
func (m *Metrics) SetPhotosTotal(n int64) {
	if m == nil {
		return
	}
	m.photosTotal.Set(float64(n))
}

// RecordScan records a finished scan.
func (m *Metrics) RecordScan(outcome string) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(outcome).Inc()
}

// RecordFileHashed counts one content-hash computation.
func (m *Metrics) RecordFileHashed() {
	if m == nil {
		return
	}
	m.filesHashed.Inc()
}

// WebsocketClientConnected and WebsocketClientDisconnected track subscriber
// count.
func (m *Metrics) WebsocketClientConnected() {
	if m == nil {
		return
	}
	m.wsClients.Inc()
}

func (m *Metrics) WebsocketClientDisconnected() {
	if m == nil {
		return
	}
	m.wsClients.Dec()
}
