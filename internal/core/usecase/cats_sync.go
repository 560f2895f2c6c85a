package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

// DefaultCatsSyncMaxWait bounds how long a CAT sync job is followed.
const DefaultCatsSyncMaxWait = 2 * time.Minute

type CatsSyncUseCase struct {
	api     ports.CatsAPI
	fetcher ports.StatusFetcher
	pending ports.CurrentJobStore
	opts    WatchOptions
}

var _ ports.CatsSynchronizer = (*CatsSyncUseCase)(nil)

// NewCatsSyncUseCase follows sync jobs over the pull transport only. The
// pending store keeps the id of a started sync until it finishes, so a later
// run resumes it instead of starting a second one. It may be nil.
func NewCatsSyncUseCase(api ports.CatsAPI, fetcher ports.StatusFetcher, pending ports.CurrentJobStore, opts WatchOptions) *CatsSyncUseCase {
	opts.TrySSE = BoolPtr(false)
	if opts.MaxWait == 0 {
		opts.MaxWait = DefaultCatsSyncMaxWait
	}
	return &CatsSyncUseCase{api: api, fetcher: fetcher, pending: pending, opts: opts}
}

// Pending returns the sync job that was started and has not finished yet.
func (uc *CatsSyncUseCase) Pending() (string, error) {
	if uc.pending == nil {
		return "", nil
	}
	jobID, err := uc.pending.Load()
	if err != nil {
		return "", fmt.Errorf("load pending cats sync: %w", err)
	}
	return strings.TrimSpace(jobID), nil
}

// Sync starts a new sync job and follows it. While another sync is pending no
// new job is started and the pending one is followed instead.
func (uc *CatsSyncUseCase) Sync(ctx context.Context, force bool, onUpdate func(domain.Snapshot)) (*domain.CatsSyncOutcome, error) {
	existing, err := uc.Pending()
	if err != nil {
		return nil, err
	}
	if existing != "" {
		uc.logger().Info("cats_sync_resumed", "job_id", existing)
		outcome, err := uc.Follow(ctx, existing, onUpdate)
		if outcome != nil {
			outcome.Resumed = true
		}
		return outcome, err
	}

	start, err := uc.api.StartCatsSync(ctx, force)
	if err != nil {
		return nil, fmt.Errorf("start cats sync: %w", err)
	}
	if start.JobID == "" {
		return &domain.CatsSyncOutcome{
			Status:    domain.StatusDone,
			Processed: processedCount(start.Result["processed"]),
		}, nil
	}
	if uc.pending != nil {
		if err := uc.pending.Save(start.JobID); err != nil {
			uc.logger().Warn("cats_sync_pending_save_failed", "job_id", start.JobID, "error", err)
		}
	}
	return uc.Follow(ctx, start.JobID, onUpdate)
}

// Follow watches an already started sync job. An empty jobID resumes the
// pending one. The pending job is forgotten once it finished or is gone; a
// timeout keeps it for the next run.
func (uc *CatsSyncUseCase) Follow(ctx context.Context, jobID string, onUpdate func(domain.Snapshot)) (*domain.CatsSyncOutcome, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		saved, err := uc.Pending()
		if err != nil {
			return nil, err
		}
		jobID = saved
	}
	if jobID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "follow cats sync", errors.New("no sync job to follow"))
	}

	watcher, err := NewJobWatcher(nil, uc.fetcher, uc.opts)
	if err != nil {
		return nil, err
	}
	snap, err := awaitJob(ctx, watcher, jobID, onUpdate)
	if err != nil {
		return nil, err
	}

	outcome := &domain.CatsSyncOutcome{JobID: jobID, Status: domain.StatusError}
	if snap.Err != nil {
		switch snap.Err.Kind {
		case domain.WatchErrTimeout:
			outcome.Failure = "Tempo esgotado consultando o job."
		case domain.WatchErrNotFound:
			uc.forget(jobID)
			outcome.Failure = "Status do job indisponível."
		default:
			outcome.Failure = "Status do job indisponível."
		}
		return outcome, snap.Err
	}
	if !snap.Terminal() {
		return nil, fmt.Errorf("cats sync %s: session ended without a final status", jobID)
	}

	uc.forget(jobID)
	outcome.Status = snap.Status.Status
	if snap.Status.Status == domain.StatusError {
		outcome.Failure = cleanErrorMessage(snap.Status.Error)
		if outcome.Failure == "" {
			outcome.Failure = "Falha na sincronização."
		}
		return outcome, nil
	}
	outcome.Processed = processedFromStatus(*snap.Status)
	return outcome, nil
}

func (uc *CatsSyncUseCase) forget(jobID string) {
	saved, err := uc.Pending()
	if err != nil || saved != jobID {
		return
	}
	if err := uc.pending.Clear(); err != nil {
		uc.logger().Warn("cats_sync_pending_clear_failed", "job_id", jobID, "error", err)
	}
}

func (uc *CatsSyncUseCase) logger() *slog.Logger {
	if uc.opts.Logger != nil {
		return uc.opts.Logger
	}
	return slog.Default()
}

func processedFromStatus(st domain.JobStatus) int {
	raw, ok := st.Extra["result"]
	if !ok {
		return 0
	}
	var result struct {
		Processed any `json:"processed"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0
	}
	return processedCount(result.Processed)
}

func processedCount(v any) int {
	switch n := v.(type) {
	case float64:
		return int(math.Round(n))
	case int:
		return n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return int(math.Round(f))
	default:
		return 0
	}
}
