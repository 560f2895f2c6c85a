package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TransportMetrics instruments outgoing API requests.
type TransportMetrics struct {
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
}

func NewTransportMetrics(registry prometheus.Registerer, service string) *TransportMetrics {
	m := &TransportMetrics{
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "http_client",
			Name:        "requests_total",
			Help:        "Total outgoing API requests.",
			ConstLabels: prometheus.Labels{"service": service},
		}, []string{"code", "method"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http_client",
			Name:        "request_duration_seconds",
			Help:        "Outgoing API request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"service": service},
		}, []string{"method"}),
		requestInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http_client",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight outgoing API requests.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
	}
	registry.MustRegister(m.requestTotal, m.requestDuration, m.requestInFlight)
	return m
}

// RoundTripper wraps next, or http.DefaultTransport when nil.
func (m *TransportMetrics) RoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperInFlight(m.requestInFlight,
		promhttp.InstrumentRoundTripperCounter(m.requestTotal,
			promhttp.InstrumentRoundTripperDuration(m.requestDuration, next),
		),
	)
}
