package monitoring

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/spectra/internal/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spectra"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Queue metrics, sampled by the watchdog
	QueueTimeouts    *prometheus.CounterVec
	QueueHold        *prometheus.GaugeVec
	QueueLength      *prometheus.GaugeVec
	WatchdogWarnings *prometheus.CounterVec

	// Stage metrics
	StageDrops      *prometheus.CounterVec
	StageInit       *prometheus.HistogramVec
	CaptureOverruns prometheus.Counter

	// Stream metrics
	StreamClients prometheus.Gauge
	StreamFrames  prometheus.Counter

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	drops    atomic.Uint64
	overruns atomic.Uint64
	warnings atomic.Uint64

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests    int64   `json:"total_requests"`
	TotalErrors      int64   `json:"total_errors"`
	TotalDuration    float64 `json:"-"`
	RequestCount     int64   `json:"-"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	Drops            uint64  `json:"drops"`
	Overruns         uint64  `json:"overruns"`
	WatchdogWarnings uint64  `json:"watchdog_warnings"`
	StreamClients    int64   `json:"stream_clients"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector backed by its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Queue metrics
		QueueTimeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_producer_timeouts_total",
				Help:      "Allocations that found the buffer pool exhausted",
			},
			[]string{"queue"},
		),
		QueueHold: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_hold_seconds",
				Help:      "Longest time a buffer waited in the queue during the last poll",
			},
			[]string{"queue"},
		),
		QueueLength: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_length",
				Help:      "Buffers awaiting consumption at the last poll",
			},
			[]string{"queue"},
		),
		WatchdogWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watchdog_warnings_total",
				Help:      "Polls in which a queue consumer was too slow",
			},
			[]string{"queue"},
		),

		// Stage metrics
		StageDrops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_drops_total",
				Help:      "Input units dropped because no output buffer was available",
			},
			[]string{"stage"},
		),
		StageInit: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_init_duration_seconds",
				Help:      "Stage initialization duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"stage", "status"},
		),
		CaptureOverruns: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capture_overruns_total",
				Help:      "Overruns reported by the capture device",
			},
		),

		// Stream metrics
		StreamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_clients",
				Help:      "Number of connected spectrum stream clients",
			},
		),
		StreamFrames: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_frames_total",
				Help:      "Spectrum frames sent to stream clients",
			},
		),
	}

	// System metrics
	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry every metric is registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// ObserveQueue records one watchdog sample.
func (m *Metrics) ObserveQueue(label string, s queue.Stats, warned bool) {
	m.QueueTimeouts.WithLabelValues(label).Add(float64(s.Timeouts))
	m.QueueHold.WithLabelValues(label).Set(s.MaxHoldTime.Seconds())
	m.QueueLength.WithLabelValues(label).Set(float64(s.Length))
	if warned {
		m.WatchdogWarnings.WithLabelValues(label).Inc()
		m.warnings.Add(1)
	}
}

// RecordStageInit records how long a stage took to initialize
func (m *Metrics) RecordStageInit(stage, status string, duration time.Duration) {
	m.StageInit.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// Counter is the part of a Prometheus counter the stages increment.
type Counter interface {
	Inc()
}

type trackedCounter struct {
	prometheus.Counter
	total *atomic.Uint64
}

func (c trackedCounter) Inc() {
	c.Counter.Inc()
	c.total.Add(1)
}

// Drops returns the drop counter of a stage.
func (m *Metrics) Drops(stage string) Counter {
	return trackedCounter{Counter: m.StageDrops.WithLabelValues(stage), total: &m.drops}
}

// Overruns returns the capture overrun counter.
func (m *Metrics) Overruns() Counter {
	return trackedCounter{Counter: m.CaptureOverruns, total: &m.overruns}
}

// IncStreamClients increments connected stream clients
func (m *Metrics) IncStreamClients() {
	m.StreamClients.Inc()
	m.mu.Lock()
	m.snapshot.StreamClients++
	m.mu.Unlock()
}

// DecStreamClients decrements connected stream clients
func (m *Metrics) DecStreamClients() {
	m.StreamClients.Dec()
	m.mu.Lock()
	m.snapshot.StreamClients--
	m.mu.Unlock()
}

// IncStreamFrames counts one frame sent to a stream client
func (m *Metrics) IncStreamFrames() {
	m.StreamFrames.Inc()
}

// Snapshot returns the current values for the JSON API.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	if s.RequestCount > 0 {
		s.AverageLatencyMs = s.TotalDuration / float64(s.RequestCount) * 1000
	}
	s.Drops = m.drops.Load()
	s.Overruns = m.overruns.Load()
	s.WatchdogWarnings = m.warnings.Load()
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
