package jobfile

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 150 * time.Millisecond

// Follower reports the saved job id whenever another process rewrites the
// current job file.
type Follower struct {
	store    *Store
	debounce time.Duration
	logger   *slog.Logger
	onChange func(jobID string)

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
	last  string
}

func NewFollower(store *Store, debounce time.Duration, logger *slog.Logger, onChange func(jobID string)) *Follower {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{
		store:    store,
		debounce: debounce,
		logger:   logger,
		onChange: onChange,
		stopChan: make(chan struct{}),
	}
}

// Start watches the directory holding the file, since atomic replacement
// swaps the inode and a watch on the file itself would be lost.
func (f *Follower) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	dir := filepath.Dir(f.store.Path())
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	current, err := f.store.Load()
	if err == nil {
		f.last = current
	}

	f.watcher = watcher
	f.wg.Add(1)
	go f.processEvents()
	f.logger.Info("current_job_follow_started", "path", f.store.Path())
	return nil
}

func (f *Follower) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopChan)
		if f.watcher != nil {
			_ = f.watcher.Close()
		}
		f.wg.Wait()
		f.mu.Lock()
		if f.timer != nil {
			f.timer.Stop()
		}
		f.mu.Unlock()
	})
}

func (f *Follower) processEvents() {
	defer f.wg.Done()
	target := filepath.Clean(f.store.Path())
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			f.schedule()
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("current_job_watch_error", "error", err)
		case <-f.stopChan:
			return
		}
	}
}

func (f *Follower) schedule() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.debounce, f.reload)
}

func (f *Follower) reload() {
	select {
	case <-f.stopChan:
		return
	default:
	}

	jobID, err := f.store.Load()
	if err != nil {
		f.logger.Warn("current_job_read_failed", "error", err)
		return
	}

	f.mu.Lock()
	changed := jobID != f.last
	f.last = jobID
	f.mu.Unlock()

	if changed && f.onChange != nil {
		f.onChange(jobID)
	}
}
