package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

type CatsService struct {
	client *Client
}

var _ ports.CatsAPI = (*CatsService)(nil)

func NewCatsService(client *Client) *CatsService {
	return &CatsService{client: client}
}

// StartCatsSync asks the server to sync CATs from disk asynchronously. Servers
// without async support answer with the final result and no job id.
func (s *CatsService) StartCatsSync(ctx context.Context, force bool) (*domain.CatsSyncStart, error) {
	query := url.Values{}
	query.Set("force", "0")
	if force {
		query.Set("force", "1")
	}
	query.Set("async", "1")

	var raw map[string]json.RawMessage
	err := s.client.doJSON(ctx, request{
		operation: opStartCatsSync,
		method:    http.MethodPost,
		url:       s.client.ResolveURL(s.client.paths.CatsSyncStart) + "?" + query.Encode(),
	}, &raw)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, domain.WrapError(domain.ErrInvalidPayload, opStartCatsSync, errNotAnObject)
	}

	start := &domain.CatsSyncStart{}
	if v, ok := raw["jobId"]; ok {
		var id looseID
		if err := json.Unmarshal(v, &id); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidPayload, opStartCatsSync, err)
		}
		start.JobID = string(id)
	}
	if start.JobID == "" {
		result := make(map[string]any, len(raw))
		for k, v := range raw {
			var value any
			if err := json.Unmarshal(v, &value); err == nil {
				result[k] = value
			}
		}
		start.Result = result
	}
	return start, nil
}
