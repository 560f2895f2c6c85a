package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/edital-watch/internal/core/ports"
	"github.com/kirillkom/edital-watch/internal/infrastructure/resilience"
)

// Paths are the endpoint templates of the analysis API. {jobId} is replaced
// with the escaped job id.
type Paths struct {
	AnalysisStart  string
	AnalysisStatus string
	AnalysisStream string
	AnalysisResult string
	CatsSyncStart  string
	CatsSyncStatus string
}

func DefaultPaths() Paths {
	return Paths{
		AnalysisStart:  "/api/edital/analisar/start",
		AnalysisStatus: "/api/edital/analisar/status/{jobId}",
		AnalysisStream: "/api/edital/analisar/stream/{jobId}",
		AnalysisResult: "/api/edital/analisar/result/{jobId}",
		CatsSyncStart:  "/api/cats/sync-from-disk",
		CatsSyncStatus: "/api/cats/sync-status?jobId={jobId}",
	}
}

func (p Paths) withDefaults() Paths {
	def := DefaultPaths()
	if p.AnalysisStart == "" {
		p.AnalysisStart = def.AnalysisStart
	}
	if p.AnalysisStatus == "" {
		p.AnalysisStatus = def.AnalysisStatus
	}
	if p.AnalysisStream == "" {
		p.AnalysisStream = def.AnalysisStream
	}
	if p.AnalysisResult == "" {
		p.AnalysisResult = def.AnalysisResult
	}
	if p.CatsSyncStart == "" {
		p.CatsSyncStart = def.CatsSyncStart
	}
	if p.CatsSyncStatus == "" {
		p.CatsSyncStatus = def.CatsSyncStatus
	}
	return p
}

type Options struct {
	BaseURL string
	Paths   Paths
	Timeout time.Duration
	Tokens  ports.TokenProvider

	// RequestsPerSecond limits outgoing calls; zero disables the limiter.
	RequestsPerSecond float64
	Burst             int

	Executor  *resilience.Executor
	Transport http.RoundTripper
	Logger    *slog.Logger
}

type Client struct {
	baseURL    string
	paths      Paths
	httpClient *http.Client
	tokens     ports.TokenProvider
	limiter    *rate.Limiter
	executor   *resilience.Executor
	logger     *slog.Logger
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	executor := opts.Executor
	if executor == nil {
		executor = resilience.NewExecutor(DefaultResilienceConfig())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:    base,
		paths:      opts.Paths.withDefaults(),
		httpClient: &http.Client{Timeout: timeout, Transport: opts.Transport},
		tokens:     opts.Tokens,
		limiter:    limiter,
		executor:   executor,
		logger:     logger,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Paths() Paths {
	return c.paths
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	return strings.TrimSpace(c.tokens.Token())
}

// ResolveURL turns an API-relative path into an absolute URL. Absolute http(s)
// URLs are returned unchanged.
func (c *Client) ResolveURL(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return c.baseURL + raw
}

// ExpandPath substitutes {jobId} in a path template. The id is path-escaped in
// the path part and query-escaped after '?'.
func ExpandPath(template, jobID string) string {
	const placeholder = "{jobId}"
	query := strings.IndexByte(template, '?')
	var b strings.Builder
	rest := template
	offset := 0
	for {
		i := strings.Index(rest, placeholder)
		if i < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:i])
		if query >= 0 && offset+i > query {
			b.WriteString(url.QueryEscape(jobID))
		} else {
			b.WriteString(url.PathEscape(jobID))
		}
		rest = rest[i+len(placeholder):]
		offset += i + len(placeholder)
	}
}
