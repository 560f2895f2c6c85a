package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

// JobWatcher follows the status of one long-running server job at a time.
// It prefers the push stream and falls back to periodic status requests.
// Watching a new job id tears the previous session down before the new one
// starts, and state written by a superseded session is discarded.
type JobWatcher struct {
	stream  ports.StatusStream
	fetcher ports.StatusFetcher
	opts    WatchOptions

	// switchMu serializes Watch and Stop.
	switchMu sync.Mutex

	mu      sync.Mutex
	current *watchSession
	snap    domain.Snapshot
	subs    map[chan domain.Snapshot]struct{}
}

var _ ports.JobObserver = (*JobWatcher)(nil)

func NewJobWatcher(stream ports.StatusStream, fetcher ports.StatusFetcher, opts WatchOptions) (*JobWatcher, error) {
	if fetcher == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new job watcher", errors.New("status fetcher is required"))
	}
	normalized, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	w := &JobWatcher{
		stream:  stream,
		fetcher: fetcher,
		opts:    normalized,
		subs:    make(map[chan domain.Snapshot]struct{}),
	}
	w.snap = domain.Snapshot{Transport: domain.TransportNone, UpdatedAt: normalized.Clock.Now()}
	return w, nil
}

// PollInterval returns the effective pull period.
func (w *JobWatcher) PollInterval() time.Duration {
	return w.opts.PollInterval
}

// Watch starts following jobID. An empty id stops watching. Watching the id
// of a live session is a no-op; a stopped session for the same id restarts.
func (w *JobWatcher) Watch(jobID string) {
	jobID = strings.TrimSpace(jobID)

	w.switchMu.Lock()
	defer w.switchMu.Unlock()

	w.mu.Lock()
	prev := w.current
	if prev != nil && jobID != "" && prev.jobID == jobID && !prev.ended() {
		w.mu.Unlock()
		return
	}
	w.current = nil
	w.mu.Unlock()

	if prev != nil {
		prev.stop()
	}

	w.mu.Lock()
	now := w.opts.Clock.Now()
	if jobID == "" {
		w.snap = domain.Snapshot{Transport: domain.TransportNone, UpdatedAt: now}
		w.notifyLocked()
		w.mu.Unlock()
		return
	}

	session := newWatchSession(w, jobID)
	w.current = session
	w.snap = domain.Snapshot{JobID: jobID, Transport: domain.TransportNone, UpdatedAt: now}
	session.last = w.snap
	w.notifyLocked()
	w.mu.Unlock()

	w.opts.Metrics.SessionStarted()
	go session.run()
}

// Stop ends the current session and resets the snapshot to idle.
func (w *JobWatcher) Stop() {
	w.Watch("")
}

func (w *JobWatcher) Snapshot() domain.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneSnapshot(w.snap)
}

// Subscribe returns a channel carrying the latest snapshot. Slow readers only
// miss intermediate values. The returned function unsubscribes and closes the
// channel.
func (w *JobWatcher) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 1)

	w.mu.Lock()
	w.subs[ch] = struct{}{}
	ch <- cloneSnapshot(w.snap)
	w.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, ch)
			w.mu.Unlock()
			close(ch)
		})
	}
}

// Wait blocks until the current session stops on its own and returns the
// final snapshot. Without a session it returns the current snapshot.
func (w *JobWatcher) Wait(ctx context.Context) (domain.Snapshot, error) {
	w.mu.Lock()
	session := w.current
	snap := cloneSnapshot(w.snap)
	w.mu.Unlock()

	if session == nil {
		return snap, nil
	}

	select {
	case <-ctx.Done():
		return w.Snapshot(), ctx.Err()
	case <-session.done:
		w.mu.Lock()
		defer w.mu.Unlock()
		return cloneSnapshot(session.last), nil
	}
}

// update applies mutate to the snapshot unless the session was superseded.
func (w *JobWatcher) update(s *watchSession, mutate func(*domain.Snapshot)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current != s || s.ctx.Err() != nil {
		return false
	}
	mutate(&w.snap)
	w.snap.UpdatedAt = w.opts.Clock.Now()
	s.last = w.snap
	w.notifyLocked()
	return true
}

func (w *JobWatcher) isCurrent(s *watchSession) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current == s
}

func (w *JobWatcher) notifyLocked() {
	for ch := range w.subs {
		select {
		case <-ch:
		default:
		}
		ch <- cloneSnapshot(w.snap)
	}
}

func cloneSnapshot(s domain.Snapshot) domain.Snapshot {
	out := s
	if s.Status != nil {
		st := s.Status.Clone()
		out.Status = &st
	}
	return out
}
