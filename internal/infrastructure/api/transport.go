package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/edital-watch/internal/core/domain"
)

type request struct {
	operation   string
	method      string
	url         string
	body        []byte
	contentType string
	accept      string
}

// doJSON runs req through the limiter and the resilience executor and decodes
// a JSON response into out.
func (c *Client) doJSON(ctx context.Context, req request, out any) error {
	if req.accept == "" {
		req.accept = "application/json"
	}
	err := c.execute(ctx, req, func(resp *http.Response) error {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.WrapError(domain.ErrInvalidPayload, "decode "+req.operation+" response", err)
		}
		return nil
	})
	return mapAPIError(req.operation, err)
}

// doStream returns the body of a successful response; the caller closes it.
func (c *Client) doStream(ctx context.Context, req request) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := c.execute(ctx, req, func(resp *http.Response) error {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read %s response: %w", req.operation, err)
		}
		body = io.NopCloser(bytes.NewReader(data))
		return nil
	})
	if err != nil {
		return nil, mapAPIError(req.operation, err)
	}
	return body, nil
}

func (c *Client) execute(ctx context.Context, req request, handle func(*http.Response) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s rate limit: %w", req.operation, err)
		}
	}

	return c.executor.Execute(ctx, req.operation, func(ctx context.Context) error {
		httpReq, err := c.newRequest(ctx, req)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("api %s request: %w", req.operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return newHTTPStatusError(req.operation, resp)
		}
		return handle(resp)
	}, classifyAPIError)
}

func (c *Client) newRequest(ctx context.Context, req request) (*http.Request, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", req.operation, err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", req.accept)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

func newHTTPStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
