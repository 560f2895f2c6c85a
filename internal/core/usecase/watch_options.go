package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

const (
	DefaultPollInterval = 1200 * time.Millisecond
	MinPollInterval     = 700 * time.Millisecond
)

type WatchOptions struct {
	// PollInterval is the pull transport period. Zero means
	// DefaultPollInterval; values below MinPollInterval are raised to it.
	PollInterval time.Duration
	// TrySSE defaults to true.
	TrySSE *bool
	// MaxWait ends the session with a timeout error when no terminal status
	// arrives in time. Zero disables it.
	MaxWait time.Duration

	// OnNotFound runs at most once per session, after the session stopped.
	OnNotFound func(jobID string)

	TokenProvider ports.TokenProvider
	Visibility    ports.VisibilitySignal
	Clock         Clock
	Logger        *slog.Logger
	Metrics       ports.WatchMetrics
}

// EffectivePollInterval applies the default and the floor to a configured interval.
func EffectivePollInterval(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultPollInterval
	}
	if d < MinPollInterval {
		return MinPollInterval
	}
	return d
}

func (o WatchOptions) trySSE() bool {
	if o.TrySSE == nil {
		return true
	}
	return *o.TrySSE
}

func (o WatchOptions) normalize() (WatchOptions, error) {
	if o.PollInterval < 0 {
		return o, domain.WrapError(domain.ErrInvalidInput, "watch options", fmt.Errorf("poll interval must not be negative, got %s", o.PollInterval))
	}
	if o.MaxWait < 0 {
		return o, domain.WrapError(domain.ErrInvalidInput, "watch options", fmt.Errorf("max wait must not be negative, got %s", o.MaxWait))
	}

	out := o
	out.PollInterval = EffectivePollInterval(o.PollInterval)
	if out.Clock == nil {
		out.Clock = SystemClock{}
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Metrics == nil {
		out.Metrics = noopWatchMetrics{}
	}
	return out, nil
}

// BoolPtr is a helper for optional boolean options.
func BoolPtr(v bool) *bool {
	return &v
}

type noopWatchMetrics struct{}

func (noopWatchMetrics) SessionStarted()                                   {}
func (noopWatchMetrics) SessionEnded(string, time.Duration)                {}
func (noopWatchMetrics) TransportSelected(domain.Transport)                {}
func (noopWatchMetrics) StreamFallback(string)                             {}
func (noopWatchMetrics) PollCompleted(string, time.Duration)               {}
func (noopWatchMetrics) StatusDelivered(domain.Transport, domain.StatusKind) {}
