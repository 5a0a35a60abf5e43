package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bridge's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Exchange metrics
	ExchangesTotal   *prometheus.CounterVec
	ExchangeDuration *prometheus.HistogramVec

	// State fabric metrics
	SnapshotPublishes prometheus.Counter
	SnapshotTasks     prometheus.Gauge
	SignalsEmitted    *prometheus.CounterVec
	SignalsDelivered  *prometheus.CounterVec
	NotificationModes *prometheus.CounterVec
	WidgetRenders     prometheus.Counter

	// KV metrics
	KVOperations *prometheus.CounterVec
	KVErrors     *prometheus.CounterVec

	// Relay metrics
	WSConnections prometheus.Gauge
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ExchangesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskbridge_exchanges_total",
				Help: "Total number of bridged HTTP exchanges",
			},
			[]string{"method", "status_class"},
		),
		ExchangeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskbridge_exchange_duration_seconds",
				Help:    "Bridged HTTP exchange duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),
		SnapshotPublishes: f.NewCounter(
			prometheus.CounterOpts{
				Name: "taskbridge_snapshot_publishes_total",
				Help: "Total number of task snapshots published",
			},
		),
		SnapshotTasks: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskbridge_snapshot_tasks",
				Help: "Number of tasks in the current snapshot",
			},
		),
		SignalsEmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskbridge_signals_emitted_total",
				Help: "Total number of invalidation signals emitted",
			},
			[]string{"topic"},
		),
		SignalsDelivered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskbridge_signals_delivered_total",
				Help: "Total number of invalidation signals handled by a surface",
			},
			[]string{"topic"},
		),
		NotificationModes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskbridge_notification_renders_total",
				Help: "Total number of notification renders by mode",
			},
			[]string{"mode"},
		),
		WidgetRenders: f.NewCounter(
			prometheus.CounterOpts{
				Name: "taskbridge_widget_renders_total",
				Help: "Total number of widget frames produced",
			},
		),
		KVOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskbridge_kv_operations_total",
				Help: "Total number of key-value operations",
			},
			[]string{"op"},
		),
		KVErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskbridge_kv_errors_total",
				Help: "Total number of failed key-value operations",
			},
			[]string{"op"},
		),
		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskbridge_ws_connections",
				Help: "Number of open signal stream connections",
			},
		),
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StatusClass buckets an exchange status: "2xx".."5xx" for HTTP codes and
// "local" for the negative failure sentinels.
func StatusClass(status int) string {
	if status < 100 {
		return "local"
	}
	return strconv.Itoa(status/100) + "xx"
}

// RecordExchange records one bridged exchange
func (m *Metrics) RecordExchange(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ExchangesTotal.WithLabelValues(method, StatusClass(status)).Inc()
	m.ExchangeDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordPublish records a snapshot publish
func (m *Metrics) RecordPublish(tasks int) {
	if m == nil {
		return
	}
	m.SnapshotPublishes.Inc()
	m.SnapshotTasks.Set(float64(tasks))
}

// RecordSignal records an emitted signal
func (m *Metrics) RecordSignal(topic string) {
	if m == nil {
		return
	}
	m.SignalsEmitted.WithLabelValues(topic).Inc()
}

// RecordDelivery records a signal consumed by a surface
func (m *Metrics) RecordDelivery(topic string) {
	if m == nil {
		return
	}
	m.SignalsDelivered.WithLabelValues(topic).Inc()
}

// RecordNotification records a notification render in the given mode
func (m *Metrics) RecordNotification(mode string) {
	if m == nil {
		return
	}
	m.NotificationModes.WithLabelValues(mode).Inc()
}

// RecordWidgetRender records a widget frame
func (m *Metrics) RecordWidgetRender() {
	if m == nil {
		return
	}
	m.WidgetRenders.Inc()
}

// RecordKV records a key-value operation and its outcome
func (m *Metrics) RecordKV(op string, err error) {
	if m == nil {
		return
	}
	m.KVOperations.WithLabelValues(op).Inc()
	if err != nil {
		m.KVErrors.WithLabelValues(op).Inc()
	}
}

// IncWSConnections increments open signal streams
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements open signal streams
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
