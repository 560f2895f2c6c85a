package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
	"github.com/kirillkom/edital-watch/internal/infrastructure/resilience"
)

// WatchMetrics records job watch sessions and the resilience events of the
// API client.
type WatchMetrics struct {
	service string

	sessionsActive   prometheus.Gauge
	sessionsTotal    *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	transportTotal   *prometheus.CounterVec
	fallbackTotal    *prometheus.CounterVec
	pollTotal        *prometheus.CounterVec
	pollDuration     *prometheus.HistogramVec
	statusTotal      *prometheus.CounterVec
	retryTotal       *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
}

var (
	_ ports.WatchMetrics  = (*WatchMetrics)(nil)
	_ resilience.Observer = (*WatchMetrics)(nil)
)

func NewWatchMetrics(registry prometheus.Registerer, service string) *WatchMetrics {
	m := &WatchMetrics{
		service: service,
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "watch",
			Name:        "sessions_active",
			Help:        "Number of running job watch sessions.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "sessions_total",
			Help:      "Total finished job watch sessions by end reason.",
		}, []string{"service", "reason"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "session_duration_seconds",
			Help:      "Job watch session duration in seconds by end reason.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"service", "reason"}),
		transportTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "transport_selected_total",
			Help:      "Total transport selections by transport.",
		}, []string{"service", "transport"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "stream_fallback_total",
			Help:      "Total fallbacks from the push stream to polling by reason.",
		}, []string{"service", "reason"}),
		pollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "poll_requests_total",
			Help:      "Total status poll requests by outcome.",
		}, []string{"service", "outcome"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "poll_duration_seconds",
			Help:      "Status poll request duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "outcome"}),
		statusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "status_delivered_total",
			Help:      "Total job status payloads delivered by transport and status.",
		}, []string{"service", "transport", "status"}),
		retryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "retries_total",
			Help:      "Total retried API operations.",
		}, []string{"service", "operation"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "breaker_transitions_total",
			Help:      "Total circuit breaker state transitions.",
		}, []string{"service", "operation", "from", "to"}),
	}

	registry.MustRegister(
		m.sessionsActive,
		m.sessionsTotal,
		m.sessionDuration,
		m.transportTotal,
		m.fallbackTotal,
		m.pollTotal,
		m.pollDuration,
		m.statusTotal,
		m.retryTotal,
		m.breakerTransitions,
	)
	return m
}

func (m *WatchMetrics) SessionStarted() {
	m.sessionsActive.Inc()
}

func (m *WatchMetrics) SessionEnded(reason string, duration time.Duration) {
	m.sessionsActive.Dec()
	if reason == "" {
		reason = "unknown"
	}
	m.sessionsTotal.WithLabelValues(m.service, reason).Inc()
	if duration >= 0 {
		m.sessionDuration.WithLabelValues(m.service, reason).Observe(duration.Seconds())
	}
}

func (m *WatchMetrics) TransportSelected(transport domain.Transport) {
	m.transportTotal.WithLabelValues(m.service, string(transport)).Inc()
}

func (m *WatchMetrics) StreamFallback(reason string) {
	m.fallbackTotal.WithLabelValues(m.service, reason).Inc()
}

func (m *WatchMetrics) PollCompleted(outcome string, duration time.Duration) {
	m.pollTotal.WithLabelValues(m.service, outcome).Inc()
	m.pollDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *WatchMetrics) StatusDelivered(transport domain.Transport, status domain.StatusKind) {
	m.statusTotal.WithLabelValues(m.service, string(transport), string(status)).Inc()
}

func (m *WatchMetrics) RetryAttempt(operation string) {
	m.retryTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *WatchMetrics) BreakerStateChanged(operation, from, to string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, from, to).Inc()
}
