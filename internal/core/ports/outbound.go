package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/edital-watch/internal/core/domain"
)

// StatusStream opens the push transport for one job. A returned error means
// the stream could not be constructed at all.
type StatusStream interface {
	Open(ctx context.Context, jobID, token string) (StreamConn, error)
}

// StreamConn is an open push connection. Events is closed once the connection
// is gone; Close is idempotent.
type StreamConn interface {
	Events() <-chan domain.StreamEvent
	Close() error
}

// StatusFetcher performs one pull-transport status request. A 404-class answer
// is reported with domain.ErrJobNotFound, an undecodable body with
// domain.ErrInvalidPayload.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string) (*domain.JobStatus, error)
}

// TokenProvider returns the current bearer token or an empty string.
type TokenProvider interface {
	Token() string
}

// TokenProviderFunc adapts a plain function to TokenProvider.
type TokenProviderFunc func() string

func (f TokenProviderFunc) Token() string {
	return f()
}

// VisibilitySignal reports whether the host is in the foreground. Subscribers
// receive the latest value after every change.
type VisibilitySignal interface {
	Visible() bool
	Subscribe() (<-chan bool, func())
}

// WatchMetrics records job watch activity.
type WatchMetrics interface {
	SessionStarted()
	SessionEnded(reason string, duration time.Duration)
	TransportSelected(transport domain.Transport)
	StreamFallback(reason string)
	PollCompleted(outcome string, duration time.Duration)
	StatusDelivered(transport domain.Transport, status domain.StatusKind)
}

// StatusPublisher relays job status events to other services.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event domain.StatusEvent) error
}

// StatusSubscriber consumes relayed job status events.
type StatusSubscriber interface {
	SubscribeStatus(ctx context.Context, handler func(context.Context, domain.StatusEvent) error) error
}

// TrackedJobStore persists jobs the worker keeps following.
type TrackedJobStore interface {
	Track(ctx context.Context, job *domain.TrackedJob) error
	GetByID(ctx context.Context, jobID string) (*domain.TrackedJob, error)
	ListActive(ctx context.Context) ([]domain.TrackedJob, error)
	UpdateProgress(ctx context.Context, jobID string, state domain.TrackState, pct int, phase, errMessage string) error
}

// ObjectStorage stores downloaded reports.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// CurrentJobStore persists the job id a user is currently following.
type CurrentJobStore interface {
	Load() (string, error)
	Save(jobID string) error
	Clear() error
}

// AnalysisAPI is the remote edital analysis service.
type AnalysisAPI interface {
	StartAnalysis(ctx context.Context, req domain.AnalysisRequest) (string, error)
	GetAnalysisResult(ctx context.Context, jobID string) (*domain.AnalysisResult, error)
	DownloadPDF(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// CatsAPI is the remote CAT catalogue service.
type CatsAPI interface {
	StartCatsSync(ctx context.Context, force bool) (*domain.CatsSyncStart, error)
}
