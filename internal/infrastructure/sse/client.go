package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

var ErrStreamEnded = errors.New("event stream ended")

// Client opens job status streams. The bearer token travels in the token
// query parameter since event streams cannot rely on custom headers.
type Client struct {
	baseURL    string
	path       string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.StatusStream = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// New builds a client for streamPath, a template containing {jobId}.
func New(baseURL, streamPath string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		path:    streamPath,
		// No overall timeout: streams stay open for the whole job.
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StreamURL builds the stream address for jobID.
func (c *Client) StreamURL(jobID, token string) (string, error) {
	raw := c.baseURL + strings.ReplaceAll(c.path, "{jobId}", url.PathEscape(jobID))
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("parse stream url: unsupported scheme %q", u.Scheme)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Open starts connecting in the background. Only a malformed address fails
// synchronously; connection problems arrive as error events.
func (c *Client) Open(ctx context.Context, jobID, token string) (ports.StreamConn, error) {
	target, err := c.StreamURL(jobID, token)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	conn := &Conn{
		events: make(chan domain.StreamEvent, 16),
		ctx:    streamCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: c.logger.With("job_id", jobID),
	}
	go conn.run(c.httpClient, req)
	return conn, nil
}

// Conn is one open event stream.
type Conn struct {
	events chan domain.StreamEvent
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (c *Conn) Events() <-chan domain.StreamEvent {
	return c.events
}

// Close stops the stream and waits for the reader to exit.
func (c *Conn) Close() error {
	c.once.Do(c.cancel)
	<-c.done
	return nil
}

func (c *Conn) run(client *http.Client, req *http.Request) {
	defer close(c.done)
	defer close(c.events)

	resp, err := client.Do(req)
	if err != nil {
		c.fail(fmt.Errorf("connect stream: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.fail(fmt.Errorf("stream request failed: %s: %s", resp.Status, strings.TrimSpace(string(body))))
		return
	}
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mediaType != "text/event-stream" {
		c.fail(fmt.Errorf("stream content type %q is not text/event-stream", resp.Header.Get("Content-Type")))
		return
	}

	if !c.emit(domain.StreamEvent{Type: domain.StreamOpen}) {
		return
	}

	decoder := NewDecoder(resp.Body)
	for {
		ev, err := decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrStreamEnded
			}
			c.fail(err)
			return
		}
		if !c.emit(domain.StreamEvent{Type: domain.StreamMessage, Name: ev.Name, ID: ev.ID, Data: ev.Data}) {
			return
		}
	}
}

func (c *Conn) fail(err error) {
	if c.ctx.Err() != nil {
		return
	}
	c.logger.Debug("status_stream_error", "error", err)
	c.emit(domain.StreamEvent{Type: domain.StreamError, Err: err})
}

func (c *Conn) emit(ev domain.StreamEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}
