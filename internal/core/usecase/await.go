package usecase

import (
	"context"

	"github.com/kirillkom/edital-watch/internal/core/domain"
)

// awaitJob watches jobID until the session stops or ctx ends. onUpdate sees
// every snapshot of the session, the final one included, and is never called
// after awaitJob returns.
func awaitJob(ctx context.Context, watcher *JobWatcher, jobID string, onUpdate func(domain.Snapshot)) (domain.Snapshot, error) {
	updates, unsubscribe := watcher.Subscribe()
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for snap := range updates {
			if onUpdate != nil && snap.JobID == jobID {
				onUpdate(snap)
			}
		}
	}()

	watcher.Watch(jobID)
	snap, err := watcher.Wait(ctx)

	unsubscribe()
	<-forwarded
	watcher.Stop()
	return snap, err
}
