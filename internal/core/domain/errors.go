package domain

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrTransport      = errors.New("transport failure")
	ErrWatchTimeout   = errors.New("watch timed out")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTemporary      = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// WatchErrorKind classifies conditions surfaced by a job watch session.
type WatchErrorKind string

const (
	WatchErrNotFound  WatchErrorKind = "not_found"
	WatchErrTransport WatchErrorKind = "transport"
	WatchErrTimeout   WatchErrorKind = "timeout"
)

// WatchError is the error value exposed in a Snapshot. It unwraps to both the
// sentinel matching its kind and the underlying cause.
type WatchError struct {
	Kind    WatchErrorKind
	JobID   string
	Message string
	Err     error
}

func NewWatchError(kind WatchErrorKind, jobID string, cause error) *WatchError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	switch kind {
	case WatchErrNotFound:
		msg = fmt.Sprintf("job %s not found", jobID)
	case WatchErrTimeout:
		if msg == "" {
			msg = fmt.Sprintf("job %s did not finish in time", jobID)
		}
	}
	return &WatchError{Kind: kind, JobID: jobID, Message: msg, Err: cause}
}

func (e *WatchError) Error() string {
	if e == nil {
		return "watch error"
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *WatchError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	switch e.Kind {
	case WatchErrNotFound:
		out = append(out, ErrJobNotFound)
	case WatchErrTimeout:
		out = append(out, ErrWatchTimeout)
	default:
		out = append(out, ErrTransport)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}
