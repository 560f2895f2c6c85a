package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

// WatcherFactory builds a watcher suited to a job kind.
type WatcherFactory func(kind domain.JobKind) (*JobWatcher, error)

// JobTracker follows persisted jobs in the background, one watcher per job,
// and relays every observed change to the store and the publisher.
type JobTracker struct {
	store      ports.TrackedJobStore
	publisher  ports.StatusPublisher
	newWatcher WatcherFactory
	logger     *slog.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	active map[string]context.CancelFunc
}

var errTrackerClosed = errors.New("tracker is closed")

func NewJobTracker(store ports.TrackedJobStore, publisher ports.StatusPublisher, newWatcher WatcherFactory, logger *slog.Logger) *JobTracker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobTracker{
		store:      store,
		publisher:  publisher,
		newWatcher: newWatcher,
		logger:     logger,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		active:     make(map[string]context.CancelFunc),
	}
}

// Track persists a job and starts following it.
func (t *JobTracker) Track(ctx context.Context, jobID string, kind domain.JobKind) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "track job", errors.New("job id is empty"))
	}
	if kind != domain.JobKindAnalysis && kind != domain.JobKindCatsSync {
		return domain.WrapError(domain.ErrInvalidInput, "track job", fmt.Errorf("unknown job kind %q", kind))
	}

	now := t.now().UTC()
	job := &domain.TrackedJob{
		JobID:     jobID,
		Kind:      kind,
		State:     domain.TrackRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.Track(ctx, job); err != nil {
		return fmt.Errorf("track job: %w", err)
	}
	return t.follow(*job)
}

// Resume starts following every active stored job that is not followed yet.
func (t *JobTracker) Resume(ctx context.Context) (int, error) {
	jobs, err := t.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active jobs: %w", err)
	}

	started := 0
	for _, job := range jobs {
		if t.isActive(job.JobID) {
			continue
		}
		if err := t.follow(job); err != nil {
			t.logger.Error("tracked_job_resume_failed", "job_id", job.JobID, "error", err)
			continue
		}
		started++
	}
	if started > 0 {
		t.logger.Info("tracked_jobs_resumed", "count", started)
	}
	return started, nil
}

// Active returns the ids of jobs currently followed.
func (t *JobTracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.active))
	for id := range t.active {
		out = append(out, id)
	}
	return out
}

// Close stops every watcher and waits for them to finish. Jobs tracked
// afterwards are stored but not followed.
func (t *JobTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()
	t.wg.Wait()
}

func (t *JobTracker) isActive(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[jobID]
	return ok
}

func (t *JobTracker) follow(job domain.TrackedJob) error {
	watcher, err := t.newWatcher(job.Kind)
	if err != nil {
		return fmt.Errorf("create watcher for %s: %w", job.JobID, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.WrapError(domain.ErrTemporary, "follow job", errTrackerClosed)
	}
	if _, ok := t.active[job.JobID]; ok {
		t.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(t.ctx)
	t.active[job.JobID] = cancel
	t.wg.Add(1)
	t.mu.Unlock()

	updates, unsubscribe := watcher.Subscribe()
	watcher.Watch(job.JobID)
	t.logger.Info("tracked_job_started", "job_id", job.JobID, "kind", string(job.Kind))

	go func() {
		defer t.wg.Done()
		defer func() {
			unsubscribe()
			watcher.Stop()
			cancel()
			t.mu.Lock()
			delete(t.active, job.JobID)
			t.mu.Unlock()
		}()
		t.relay(ctx, job, updates)
	}()
	return nil
}

func (t *JobTracker) relay(ctx context.Context, job domain.TrackedJob, updates <-chan domain.Snapshot) {
	var last trackedProgress
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if snap.JobID != job.JobID {
				continue
			}
			progress := progressOf(snap)
			if progress != last {
				last = progress
				t.record(ctx, job, snap, progress)
			}
			if snap.Stopped {
				t.logger.Info("tracked_job_finished", "job_id", job.JobID, "state", string(progress.state))
				return
			}
		}
	}
}

type trackedProgress struct {
	state     domain.TrackState
	transport domain.Transport
	pct       int
	phase     string
	errText   string
}

func progressOf(snap domain.Snapshot) trackedProgress {
	p := trackedProgress{state: domain.TrackStateFor(snap), transport: snap.Transport}
	if snap.Status != nil {
		p.pct = snap.Status.ProgressPct()
		p.phase = snap.Status.Phase
		p.errText = snap.Status.Error
	}
	if snap.Err != nil {
		p.errText = snap.Err.Error()
	}
	return p
}

func (t *JobTracker) record(ctx context.Context, job domain.TrackedJob, snap domain.Snapshot, p trackedProgress) {
	if err := t.store.UpdateProgress(ctx, job.JobID, p.state, p.pct, p.phase, p.errText); err != nil {
		t.logger.Error("tracked_job_update_failed", "job_id", job.JobID, "error", err)
	}
	if t.publisher == nil {
		return
	}
	if err := t.publisher.PublishStatus(ctx, domain.NewStatusEvent(job.Kind, snap)); err != nil {
		t.logger.Error("status_publish_failed", "job_id", job.JobID, "error", err)
	}
}
