package domain

import "time"

type JobKind string

const (
	JobKindAnalysis JobKind = "analysis"
	JobKindCatsSync JobKind = "cats_sync"
)

type TrackState string

const (
	TrackRunning  TrackState = "running"
	TrackDone     TrackState = "done"
	TrackFailed   TrackState = "error"
	TrackNotFound TrackState = "not_found"
	TrackTimeout  TrackState = "timeout"
)

func (s TrackState) Active() bool {
	return s == TrackRunning
}

// TrackedJob is a job followed by the worker across restarts.
type TrackedJob struct {
	JobID     string     `json:"job_id"`
	Kind      JobKind    `json:"kind"`
	State     TrackState `json:"state"`
	Pct       int        `json:"pct"`
	Phase     string     `json:"phase,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TrackStateFor maps a watch snapshot to the persisted tracking state.
func TrackStateFor(s Snapshot) TrackState {
	if s.Err != nil && s.Stopped {
		switch s.Err.Kind {
		case WatchErrNotFound:
			return TrackNotFound
		case WatchErrTimeout:
			return TrackTimeout
		}
	}
	if s.Status != nil {
		switch s.Status.Status {
		case StatusDone:
			return TrackDone
		case StatusError:
			return TrackFailed
		}
	}
	return TrackRunning
}

// StatusEvent is the message relayed to other services for each observed
// change of a watched job.
type StatusEvent struct {
	JobID     string     `json:"job_id"`
	Kind      JobKind    `json:"kind"`
	State     TrackState `json:"state"`
	Transport Transport  `json:"transport"`
	Status    *JobStatus `json:"status,omitempty"`
	Error     string     `json:"error,omitempty"`
	At        time.Time  `json:"at"`
}

func NewStatusEvent(kind JobKind, s Snapshot) StatusEvent {
	ev := StatusEvent{
		JobID:     s.JobID,
		Kind:      kind,
		State:     TrackStateFor(s),
		Transport: s.Transport,
		At:        s.UpdatedAt,
	}
	if s.Status != nil {
		st := s.Status.Clone()
		ev.Status = &st
	}
	if s.Err != nil {
		ev.Error = s.Err.Error()
	}
	return ev
}
