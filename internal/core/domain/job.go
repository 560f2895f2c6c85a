package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type StatusKind string

const (
	StatusRunning StatusKind = "running"
	StatusDone    StatusKind = "done"
	StatusError   StatusKind = "error"
)

// ParseStatusKind maps any value other than done/error to running.
func ParseStatusKind(raw string) StatusKind {
	switch StatusKind(raw) {
	case StatusDone:
		return StatusDone
	case StatusError:
		return StatusError
	default:
		return StatusRunning
	}
}

// JobStatus is the payload returned by both status transports. Fields the
// client does not know about are kept in Extra and written back on encode.
type JobStatus struct {
	ID     string     `json:"id"`
	Status StatusKind `json:"status"`
	Pct    int        `json:"pct"`
	Phase  string     `json:"phase,omitempty"`
	Error  string     `json:"error,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownStatusFields = map[string]struct{}{
	"id":     {},
	"status": {},
	"pct":    {},
	"phase":  {},
	"error":  {},
}

func (s JobStatus) IsTerminal() bool {
	return s.Status == StatusDone || s.Status == StatusError
}

// ProgressPct clamps Pct into 0..100 for display.
func (s JobStatus) ProgressPct() int {
	switch {
	case s.Pct < 0:
		return 0
	case s.Pct > 100:
		return 100
	default:
		return s.Pct
	}
}

func (s JobStatus) Clone() JobStatus {
	out := s
	if s.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("job status: expected object")
	}

	var out JobStatus
	if v, ok := raw["id"]; ok {
		id, err := decodeLooseString(v)
		if err != nil {
			return fmt.Errorf("job status id: %w", err)
		}
		out.ID = id
	}
	// A status that is not a string counts as running, like an unknown one.
	out.Status = StatusRunning
	if v, ok := raw["status"]; ok {
		var status string
		if err := json.Unmarshal(v, &status); err == nil {
			out.Status = ParseStatusKind(status)
		}
	}
	if v, ok := raw["pct"]; ok {
		out.Pct = decodeLoosePct(v)
	}
	if v, ok := raw["phase"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.Phase); err != nil {
			return fmt.Errorf("job status phase: %w", err)
		}
	}
	if v, ok := raw["error"]; ok && !isNull(v) {
		msg, err := decodeLooseString(v)
		if err != nil {
			return fmt.Errorf("job status error: %w", err)
		}
		out.Error = msg
	}

	for key, value := range raw {
		if _, known := knownStatusFields[key]; known {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[key] = append(json.RawMessage(nil), value...)
	}

	*s = out
	return nil
}

func (s JobStatus) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		if _, known := knownStatusFields[k]; known {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	status := s.Status
	if status == "" {
		status = StatusRunning
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField := func(key string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		if raw, ok := value.(json.RawMessage); ok {
			if len(raw) == 0 {
				raw = json.RawMessage("null")
			}
			buf.Write(raw)
			return nil
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(encoded)
		return nil
	}

	if err := writeField("id", s.ID); err != nil {
		return nil, err
	}
	if err := writeField("status", string(status)); err != nil {
		return nil, err
	}
	if err := writeField("pct", s.Pct); err != nil {
		return nil, err
	}
	if s.Phase != "" {
		if err := writeField("phase", s.Phase); err != nil {
			return nil, err
		}
	}
	if s.Error != "" {
		if err := writeField("error", s.Error); err != nil {
			return nil, err
		}
	}
	for _, k := range keys {
		if err := writeField(k, s.Extra[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeLooseString accepts strings and numbers; servers are not consistent
// about numeric job ids.
func decodeLooseString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// decodeLoosePct accepts a JSON number or a numeric string and yields 0 for
// anything else.
func decodeLoosePct(raw json.RawMessage) int {
	var pct float64
	if err := json.Unmarshal(raw, &pct); err == nil {
		return roundPct(pct)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0
	}
	pct, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0
	}
	return roundPct(pct)
}

func roundPct(pct float64) int {
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0
	}
	return int(math.Round(pct))
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type Transport string

const (
	TransportNone Transport = "none"
	TransportSSE  Transport = "sse"
	TransportPoll Transport = "poll"
)

// Snapshot is the consumer-facing view of a watch session.
type Snapshot struct {
	JobID     string
	Transport Transport
	Connected bool
	Status    *JobStatus
	Err       *WatchError
	Stopped   bool
	UpdatedAt time.Time
}

func (s Snapshot) Terminal() bool {
	return s.Status != nil && s.Status.IsTerminal()
}

// Idle reports whether no job is being watched.
func (s Snapshot) Idle() bool {
	return s.JobID == ""
}

type StreamEventType string

const (
	StreamOpen    StreamEventType = "open"
	StreamMessage StreamEventType = "message"
	StreamError   StreamEventType = "error"
)

// StreamEvent is one delivery from the push transport. Error events are
// connection-level failures and carry no payload; a server-sent event named
// "error" arrives as a StreamMessage.
type StreamEvent struct {
	Type StreamEventType
	Name string
	ID   string
	Data []byte
	Err  error
}
