package ports

import (
	"context"

	"github.com/kirillkom/edital-watch/internal/core/domain"
)

// JobObserver is the inbound contract of a job watcher.
type JobObserver interface {
	Watch(jobID string)
	Stop()
	Snapshot() domain.Snapshot
	Subscribe() (<-chan domain.Snapshot, func())
	Wait(ctx context.Context) (domain.Snapshot, error)
}

// EditalAnalyzer runs an edital analysis from upload to final report.
type EditalAnalyzer interface {
	Start(ctx context.Context, req domain.AnalysisRequest) (string, error)
	Await(ctx context.Context, jobID string, onUpdate func(domain.Snapshot)) (*domain.AnalysisOutcome, error)
}

// CatsSynchronizer triggers and follows a CAT sync from disk.
type CatsSynchronizer interface {
	Sync(ctx context.Context, force bool, onUpdate func(domain.Snapshot)) (*domain.CatsSyncOutcome, error)
}
