package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
)

// Sweep resumes stored jobs that are not followed yet and refreshes the
// tracking gauge.
func (w *Worker) Sweep(ctx context.Context) {
	started, err := w.Tracker.Resume(ctx)
	if err != nil {
		w.Logger.Error("tracked_jobs_sweep_failed", "error", err)
	}
	w.WorkerMetrics.AddResumed(started)
	w.WorkerMetrics.SetTrackedActive(len(w.Tracker.Active()))
}

// StartScheduler runs Sweep every worker.sweep_interval until ctx ends.
func (w *Worker) StartScheduler(ctx context.Context) (*gocron.Scheduler, error) {
	interval := w.Config.Worker.SweepInterval
	if interval < time.Second {
		interval = 30 * time.Second
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	_, err := s.Every(interval).Do(func() {
		if ctx.Err() != nil {
			return
		}
		sweepCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		w.Sweep(sweepCtx)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule tracked job sweep: %w", err)
	}

	w.Logger.Info("tracked_jobs_sweep_scheduled", "interval", interval.String())
	s.StartAsync()
	return s, nil
}
