package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/edital-watch/internal/core/domain"
)

func TestWatchMetricsCountsSessions(t *testing.T) {
	registry := NewRegistry()
	m := NewWatchMetrics(registry, "jobwatch")

	m.SessionStarted()
	m.TransportSelected(domain.TransportSSE)
	m.StreamFallback("stream_error")
	m.PollCompleted("ok", 20*time.Millisecond)
	m.StatusDelivered(domain.TransportPoll, domain.StatusDone)
	m.SessionEnded("terminal", 3*time.Second)
	m.RetryAttempt("analysis_result")
	m.BreakerStateChanged("analysis_result", "closed", "open")

	if got := testutil.ToFloat64(m.sessionsActive); got != 0 {
		t.Fatalf("expected no active sessions, got %v", got)
	}
	if got := testutil.ToFloat64(m.sessionsTotal.WithLabelValues("jobwatch", "terminal")); got != 1 {
		t.Fatalf("expected one terminal session, got %v", got)
	}
	if got := testutil.ToFloat64(m.fallbackTotal.WithLabelValues("jobwatch", "stream_error")); got != 1 {
		t.Fatalf("expected one fallback, got %v", got)
	}
	if got := testutil.ToFloat64(m.breakerTransitions.WithLabelValues("jobwatch", "analysis_result", "closed", "open")); got != 1 {
		t.Fatalf("expected one breaker transition, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	registry := NewRegistry()
	m := NewWatchMetrics(registry, "jobwatch")
	m.PollCompleted("not_found", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "edital_watch_watch_poll_requests_total") {
		t.Fatalf("expected poll counter in output")
	}
}

func TestTransportMetricsInstrumentsRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	registry := NewRegistry()
	m := NewTransportMetrics(registry, "jobwatch")
	client := &http.Client{Transport: m.RoundTripper(nil)}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	_ = resp.Body.Close()

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("202", "get")); got != 1 {
		t.Fatalf("expected one request counted, got %v", got)
	}
}

type publisherStub struct {
	err error
}

func (p publisherStub) PublishStatus(context.Context, domain.StatusEvent) error {
	return p.err
}

func TestWorkerMetricsCountsPublishes(t *testing.T) {
	registry := NewRegistry()
	m := NewWorkerMetrics(registry, "worker")

	if m.InstrumentPublisher(nil) != nil {
		t.Fatalf("expected nil publisher to stay nil")
	}

	ok := m.InstrumentPublisher(publisherStub{})
	failing := m.InstrumentPublisher(publisherStub{err: errors.New("down")})
	_ = ok.PublishStatus(context.Background(), domain.StatusEvent{JobID: "a", State: domain.TrackDone})
	if err := failing.PublishStatus(context.Background(), domain.StatusEvent{JobID: "b", State: domain.TrackRunning}); err == nil {
		t.Fatalf("expected error to pass through")
	}
	m.SetTrackedActive(3)
	m.AddResumed(2)

	if got := testutil.ToFloat64(m.publishedTotal.WithLabelValues("worker", "done", "ok")); got != 1 {
		t.Fatalf("expected one ok publish, got %v", got)
	}
	if got := testutil.ToFloat64(m.publishedTotal.WithLabelValues("worker", "running", "error")); got != 1 {
		t.Fatalf("expected one failed publish, got %v", got)
	}
	if got := testutil.ToFloat64(m.trackedActive); got != 3 {
		t.Fatalf("expected gauge 3, got %v", got)
	}
}
