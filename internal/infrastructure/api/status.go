package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

// AnalysisStatusFetcher reads the status of an edital analysis job.
type AnalysisStatusFetcher struct {
	client *Client
}

var _ ports.StatusFetcher = (*AnalysisStatusFetcher)(nil)

func NewAnalysisStatusFetcher(client *Client) *AnalysisStatusFetcher {
	return &AnalysisStatusFetcher{client: client}
}

func (f *AnalysisStatusFetcher) FetchStatus(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	var status domain.JobStatus
	err := f.client.doJSON(ctx, request{
		operation: opAnalysisStatus,
		method:    http.MethodGet,
		url:       f.client.ResolveURL(ExpandPath(f.client.paths.AnalysisStatus, jobID)),
	}, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// CatsSyncStatusFetcher reads CAT sync jobs, whose payload reports
// running/completed/failed and a progress field.
type CatsSyncStatusFetcher struct {
	client *Client
}

var _ ports.StatusFetcher = (*CatsSyncStatusFetcher)(nil)

func NewCatsSyncStatusFetcher(client *Client) *CatsSyncStatusFetcher {
	return &CatsSyncStatusFetcher{client: client}
}

func (f *CatsSyncStatusFetcher) FetchStatus(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	var raw map[string]json.RawMessage
	err := f.client.doJSON(ctx, request{
		operation: opCatsSyncStatus,
		method:    http.MethodGet,
		url:       f.client.ResolveURL(ExpandPath(f.client.paths.CatsSyncStatus, jobID)),
	}, &raw)
	if err != nil {
		return nil, err
	}
	return NormalizeCatsSyncStatus(raw, jobID)
}

// NormalizeCatsSyncStatus maps a CAT sync payload onto the common job status.
// Fields without a counterpart stay in Extra.
func NormalizeCatsSyncStatus(raw map[string]json.RawMessage, jobID string) (*domain.JobStatus, error) {
	if raw == nil {
		return nil, domain.WrapError(domain.ErrInvalidPayload, "normalize cats sync status", errNotAnObject)
	}

	out := make(map[string]json.RawMessage, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}

	var state string
	if v, ok := raw["status"]; ok {
		_ = json.Unmarshal(v, &state)
	}
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "completed", "done":
		out["status"] = json.RawMessage(`"done"`)
	case "failed", "error":
		out["status"] = json.RawMessage(`"error"`)
	default:
		out["status"] = json.RawMessage(`"running"`)
	}

	if v, ok := raw["progress"]; ok {
		if _, hasPct := raw["pct"]; !hasPct {
			out["pct"] = v
		}
		delete(out, "progress")
	}
	if _, ok := raw["id"]; !ok {
		if v, ok := raw["jobId"]; ok {
			out["id"] = v
			delete(out, "jobId")
		} else {
			encoded, _ := json.Marshal(jobID)
			out["id"] = encoded
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidPayload, "normalize cats sync status", err)
	}
	var status domain.JobStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidPayload, "normalize cats sync status", err)
	}
	return &status, nil
}
