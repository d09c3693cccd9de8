package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Transport metrics
	MessagesTotal   *prometheus.CounterVec
	AppCallDuration *prometheus.HistogramVec
	AppCallErrors   *prometheus.CounterVec
	Connected       prometheus.Gauge

	// Arranger metrics
	RunningState    prometheus.Gauge
	WindowsObserved prometheus.Gauge
	SnapshotsSaved  *prometheus.CounterVec
	LockWait        *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	AppCalls        int64   `json:"app_calls"`
	AppCallFailures int64   `json:"app_call_failures"`
	SnapshotsSaved  int64   `json:"snapshots_saved"`
	WindowsObserved int64   `json:"windows_observed"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector registered on reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arranger_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arranger_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Transport metrics
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arranger_app_messages_total",
				Help: "Messages exchanged with the arranging app",
			},
			[]string{"direction", "type"},
		),
		AppCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arranger_app_call_duration_seconds",
				Help:    "Correlated request round-trip time in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"type"},
		),
		AppCallErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arranger_app_call_errors_total",
				Help: "Failed correlated requests",
			},
			[]string{"type", "reason"},
		),
		Connected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "arranger_app_connected",
				Help: "1 while a connection to the arranging app is open",
			},
		),

		// Arranger metrics
		RunningState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "arranger_running_state",
				Help: "Orchestrator state (0 not running, 1 starting, 2 running, 3 stopping)",
			},
		),
		WindowsObserved: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "arranger_windows_observed",
				Help: "Number of windows in the current arrangement",
			},
		),
		SnapshotsSaved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arranger_snapshots_saved_total",
				Help: "Arrangement snapshots written, by slot",
			},
			[]string{"slot"},
		),
		LockWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arranger_lock_wait_seconds",
				Help:    "Time spent waiting for the orchestrator lock",
				Buckets: []float64{.0001, .001, .01, .1, .5, 1, 5, 30},
			},
			[]string{"op"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "arranger_ws_connections",
				Help: "Number of active event WebSocket connections",
			},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "arranger_uptime_seconds",
				Help: "Daemon uptime in seconds",
			},
		),
	}

	return m
}

// Run updates the uptime gauge every second until stop is closed.
func (m *Metrics) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		}
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordMessage records a message sent to or received from the app
func (m *Metrics) RecordMessage(direction, msgType string) {
	m.MessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// RecordAppCall records a completed correlated request
func (m *Metrics) RecordAppCall(msgType string, duration time.Duration) {
	m.AppCallDuration.WithLabelValues(msgType).Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.AppCalls++
	m.mu.Unlock()
}

// RecordAppCallError records a failed correlated request
func (m *Metrics) RecordAppCallError(msgType, reason string) {
	m.AppCallErrors.WithLabelValues(msgType, reason).Inc()
	m.mu.Lock()
	m.snapshot.AppCalls++
	m.snapshot.AppCallFailures++
	m.mu.Unlock()
}

// SetConnected marks the app connection as open or closed
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.Connected.Set(1)
		return
	}
	m.Connected.Set(0)
}

// SetRunningState records the orchestrator state
func (m *Metrics) SetRunningState(state int) {
	m.RunningState.Set(float64(state))
}

// SetWindowsObserved sets the number of windows in the current arrangement
func (m *Metrics) SetWindowsObserved(count int) {
	m.WindowsObserved.Set(float64(count))
	m.mu.Lock()
	m.snapshot.WindowsObserved = int64(count)
	m.mu.Unlock()
}

// IncSnapshotsSaved increments the saved snapshot counter for a slot
func (m *Metrics) IncSnapshotsSaved(slot string) {
	m.SnapshotsSaved.WithLabelValues(slot).Inc()
	m.mu.Lock()
	m.snapshot.SnapshotsSaved++
	m.mu.Unlock()
}

// ObserveLockWait records time spent waiting for the orchestrator lock
func (m *Metrics) ObserveLockWait(op string, wait time.Duration) {
	m.LockWait.WithLabelValues(op).Observe(wait.Seconds())
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
