package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

var errStreamClosed = errors.New("status stream closed")

type endReason string

const (
	endCancelled endReason = "cancelled"
	endTerminal  endReason = "terminal"
	endNotFound  endReason = "not_found"
	endTimeout   endReason = "timeout"
)

type fetchResult struct {
	status *domain.JobStatus
	err    error
	took   time.Duration
}

// watchSession owns the transports of one Watch call. Everything below the
// guarded fields is touched only by the run goroutine.
type watchSession struct {
	w       *JobWatcher
	jobID   string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
	logger  *slog.Logger

	// guarded by w.mu
	last domain.Snapshot

	transport domain.Transport
	conn      ports.StreamConn
	events    <-chan domain.StreamEvent
	ticker    Ticker
	tickC     <-chan time.Time
	results   chan fetchResult
	visible   bool
	visC      <-chan bool
	visStop   func()
	deadline  Timer
	deadlineC <-chan time.Time
}

func newWatchSession(w *JobWatcher, jobID string) *watchSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &watchSession{
		w:         w,
		jobID:     jobID,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		started:   w.opts.Clock.Now(),
		logger:    w.opts.Logger.With("job_id", jobID, "session_id", uuid.NewString()),
		transport: domain.TransportNone,
		results:   make(chan fetchResult),
		visible:   true,
	}
}

func (s *watchSession) ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// stop cancels the session and waits for its goroutine to release every
// transport.
func (s *watchSession) stop() {
	s.cancel()
	<-s.done
}

func (s *watchSession) run() {
	reason := s.loop()
	s.teardown()

	s.logger.Info("job_watch_stopped", "reason", string(reason), "transport", string(s.transport))
	s.w.opts.Metrics.SessionEnded(string(reason), s.w.opts.Clock.Now().Sub(s.started))
	close(s.done)

	if reason == endNotFound && s.w.opts.OnNotFound != nil && s.w.isCurrent(s) {
		s.w.opts.OnNotFound(s.jobID)
	}
}

func (s *watchSession) loop() endReason {
	opts := s.w.opts
	if opts.MaxWait > 0 {
		s.deadline = opts.Clock.NewTimer(opts.MaxWait)
		s.deadlineC = s.deadline.C()
	}
	if opts.Visibility != nil {
		s.visC, s.visStop = opts.Visibility.Subscribe()
		s.visible = opts.Visibility.Visible()
	}

	s.connect()

	for {
		select {
		case <-s.ctx.Done():
			return endCancelled
		case ev, ok := <-s.events:
			if !ok {
				ev = domain.StreamEvent{Type: domain.StreamError, Err: errStreamClosed}
			}
			if reason, end := s.handleStreamEvent(ev); end {
				return reason
			}
		case <-s.tickC:
			s.fetch()
		case res := <-s.results:
			if reason, end := s.handleFetchResult(res); end {
				return reason
			}
		case visible, ok := <-s.visC:
			if !ok {
				s.visC = nil
				continue
			}
			s.handleVisibility(visible)
		case <-s.deadlineC:
			s.logger.Warn("job_watch_timeout", "max_wait", opts.MaxWait.String())
			werr := domain.NewWatchError(domain.WatchErrTimeout, s.jobID, nil)
			s.w.update(s, func(snap *domain.Snapshot) {
				snap.Err = werr
				snap.Connected = false
				snap.Stopped = true
			})
			return endTimeout
		}
	}
}

func (s *watchSession) connect() {
	opts := s.w.opts
	if !opts.trySSE() || opts.TokenProvider == nil || s.w.stream == nil {
		s.startPolling()
		return
	}

	conn, err := s.w.stream.Open(s.ctx, s.jobID, opts.TokenProvider.Token())
	if err != nil {
		s.logger.Warn("status_stream_open_failed", "error", err)
		opts.Metrics.StreamFallback("open_failed")
		s.startPolling()
		return
	}
	s.conn = conn
	s.events = conn.Events()
}

func (s *watchSession) handleStreamEvent(ev domain.StreamEvent) (endReason, bool) {
	switch ev.Type {
	case domain.StreamOpen:
		s.markStreamOpen()
		return "", false
	case domain.StreamMessage:
		status, ok := s.decodeStreamStatus(ev)
		if !ok {
			return "", false
		}
		s.markStreamOpen()
		return s.deliver(status, domain.TransportSSE)
	default:
		cause := ev.Err
		if cause == nil {
			cause = errStreamClosed
		}
		s.closeStream()
		s.logger.Warn("status_stream_failed", "error", cause)
		s.w.opts.Metrics.StreamFallback("stream_error")
		werr := domain.NewWatchError(domain.WatchErrTransport, s.jobID, cause)
		s.w.update(s, func(snap *domain.Snapshot) {
			snap.Err = werr
			snap.Connected = false
		})
		s.startPolling()
		return "", false
	}
}

func (s *watchSession) markStreamOpen() {
	if s.transport == domain.TransportSSE {
		return
	}
	s.transport = domain.TransportSSE
	s.w.opts.Metrics.TransportSelected(domain.TransportSSE)
	s.logger.Info("status_stream_open")
	s.w.update(s, func(snap *domain.Snapshot) {
		snap.Transport = domain.TransportSSE
		snap.Connected = true
		snap.Err = nil
	})
}

// decodeStreamStatus accepts snapshot, update, done and error events. A done
// or error event is terminal whatever its payload says.
func (s *watchSession) decodeStreamStatus(ev domain.StreamEvent) (domain.JobStatus, bool) {
	switch ev.Name {
	case "snapshot", "update", "done", "error":
	default:
		s.logger.Debug("status_stream_event_ignored", "event", ev.Name)
		return domain.JobStatus{}, false
	}

	var status domain.JobStatus
	if err := json.Unmarshal(ev.Data, &status); err != nil {
		s.logger.Debug("status_stream_payload_invalid", "event", ev.Name, "error", err)
		return domain.JobStatus{}, false
	}
	if !status.IsTerminal() {
		switch ev.Name {
		case "done":
			status.Status = domain.StatusDone
		case "error":
			status.Status = domain.StatusError
		}
	}
	return status, true
}

func (s *watchSession) deliver(status domain.JobStatus, transport domain.Transport) (endReason, bool) {
	if status.ID != "" && status.ID != s.jobID {
		s.logger.Debug("status_for_other_job_ignored", "payload_job_id", status.ID)
		return "", false
	}
	if status.ID == "" {
		status.ID = s.jobID
	}

	terminal := status.IsTerminal()
	if terminal {
		s.closeStream()
		s.stopTicker()
	}

	accepted := s.w.update(s, func(snap *domain.Snapshot) {
		snap.Status = &status
		snap.Err = nil
		snap.Transport = transport
		snap.Connected = transport == domain.TransportSSE && !terminal
		if terminal {
			snap.Stopped = true
		}
	})
	if accepted {
		s.w.opts.Metrics.StatusDelivered(transport, status.Status)
	}
	if terminal {
		s.logger.Info("job_finished", "status", string(status.Status), "transport", string(transport))
		return endTerminal, true
	}
	return "", false
}

func (s *watchSession) startPolling() {
	if s.transport == domain.TransportPoll {
		return
	}
	s.transport = domain.TransportPoll
	s.w.opts.Metrics.TransportSelected(domain.TransportPoll)
	s.logger.Info("status_polling_started", "interval", s.w.opts.PollInterval.String(), "visible", s.visible)
	s.w.update(s, func(snap *domain.Snapshot) {
		snap.Transport = domain.TransportPoll
		snap.Connected = false
	})

	if !s.visible {
		return
	}
	s.startTicker()
	s.fetch()
}

func (s *watchSession) handleVisibility(visible bool) {
	if visible == s.visible {
		return
	}
	s.visible = visible
	if s.transport != domain.TransportPoll {
		return
	}
	if !visible {
		s.stopTicker()
		s.logger.Debug("status_polling_paused")
		return
	}
	s.logger.Debug("status_polling_resumed")
	s.startTicker()
	s.fetch()
}

// fetch issues one status request without waiting for earlier ones.
func (s *watchSession) fetch() {
	clock := s.w.opts.Clock
	started := clock.Now()
	go func() {
		status, err := s.w.fetcher.FetchStatus(s.ctx, s.jobID)
		res := fetchResult{status: status, err: err, took: clock.Now().Sub(started)}
		select {
		case s.results <- res:
		case <-s.ctx.Done():
		}
	}()
}

func (s *watchSession) handleFetchResult(res fetchResult) (endReason, bool) {
	metrics := s.w.opts.Metrics
	switch {
	case res.err == nil && res.status != nil:
		metrics.PollCompleted("ok", res.took)
		return s.deliver(*res.status, domain.TransportPoll)
	case res.err == nil:
		metrics.PollCompleted("empty", res.took)
		return "", false
	case errors.Is(res.err, domain.ErrJobNotFound):
		metrics.PollCompleted("not_found", res.took)
		s.stopTicker()
		s.logger.Warn("job_not_found")
		werr := domain.NewWatchError(domain.WatchErrNotFound, s.jobID, res.err)
		s.w.update(s, func(snap *domain.Snapshot) {
			snap.Err = werr
			snap.Connected = false
			snap.Stopped = true
		})
		return endNotFound, true
	case errors.Is(res.err, domain.ErrInvalidPayload):
		metrics.PollCompleted("invalid_payload", res.took)
		s.logger.Debug("status_payload_invalid", "error", res.err)
		return "", false
	case errors.Is(res.err, context.Canceled):
		return "", false
	default:
		metrics.PollCompleted("error", res.took)
		s.logger.Warn("status_request_failed", "error", res.err)
		werr := domain.NewWatchError(domain.WatchErrTransport, s.jobID, res.err)
		s.w.update(s, func(snap *domain.Snapshot) {
			snap.Err = werr
		})
		return "", false
	}
}

func (s *watchSession) startTicker() {
	if s.ticker != nil {
		return
	}
	s.ticker = s.w.opts.Clock.NewTicker(s.w.opts.PollInterval)
	s.tickC = s.ticker.C()
}

func (s *watchSession) stopTicker() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
	s.tickC = nil
}

func (s *watchSession) closeStream() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("status_stream_close_failed", "error", err)
	}
	s.conn = nil
	s.events = nil
}

func (s *watchSession) teardown() {
	s.closeStream()
	s.stopTicker()
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
		s.deadlineC = nil
	}
	if s.visStop != nil {
		s.visStop()
		s.visStop = nil
		s.visC = nil
	}
	s.cancel()
}
