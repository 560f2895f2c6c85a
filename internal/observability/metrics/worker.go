package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

// WorkerMetrics records background tracking activity.
type WorkerMetrics struct {
	service string

	trackedActive  prometheus.Gauge
	resumedTotal   prometheus.Counter
	publishedTotal *prometheus.CounterVec
}

func NewWorkerMetrics(registry prometheus.Registerer, service string) *WorkerMetrics {
	m := &WorkerMetrics{
		service: service,
		trackedActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "tracked_jobs_active",
			Help:        "Number of jobs currently followed by the worker.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		resumedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "tracked_jobs_resumed_total",
			Help:        "Total stored jobs picked up again by the worker.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		publishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "status_events_published_total",
			Help:      "Total relayed status events by job state and result.",
		}, []string{"service", "state", "result"}),
	}
	registry.MustRegister(m.trackedActive, m.resumedTotal, m.publishedTotal)
	return m
}

func (m *WorkerMetrics) SetTrackedActive(n int) {
	m.trackedActive.Set(float64(n))
}

func (m *WorkerMetrics) AddResumed(n int) {
	if n <= 0 {
		return
	}
	m.resumedTotal.Add(float64(n))
}

// InstrumentPublisher counts every relayed event. A nil publisher stays nil.
func (m *WorkerMetrics) InstrumentPublisher(next ports.StatusPublisher) ports.StatusPublisher {
	if next == nil {
		return nil
	}
	return &countingPublisher{next: next, metrics: m}
}

type countingPublisher struct {
	next    ports.StatusPublisher
	metrics *WorkerMetrics
}

func (p *countingPublisher) PublishStatus(ctx context.Context, event domain.StatusEvent) error {
	err := p.next.PublishStatus(ctx, event)
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.metrics.publishedTotal.WithLabelValues(p.metrics.service, string(event.State), result).Inc()
	return err
}
