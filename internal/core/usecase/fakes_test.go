package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{period: d, next: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and fires due tickers and timers.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		if t.stopped.Load() {
			continue
		}
		for !t.next.After(c.now) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.period)
		}
	}
	for _, t := range c.timers {
		if t.stopped.Load() || t.fired || t.at.After(c.now) {
			continue
		}
		t.fired = true
		t.ch <- t.at
	}
}

func (c *fakeClock) ActiveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped.Load() {
			n++
		}
	}
	return n
}

func (c *fakeClock) TickerPeriods() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.tickers))
	for _, t := range c.tickers {
		out = append(out, t.period)
	}
	return out
}

type fakeTicker struct {
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

type fakeTimer struct {
	at      time.Time
	ch      chan time.Time
	fired   bool
	stopped atomic.Bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }
func (t *fakeTimer) Stop() bool          { return !t.stopped.Swap(true) }

type fakeConn struct {
	jobID  string
	token  string
	events chan domain.StreamEvent
	closed atomic.Bool
}

func (c *fakeConn) Events() <-chan domain.StreamEvent { return c.events }

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) send(ev domain.StreamEvent) {
	c.events <- ev
}

func (c *fakeConn) message(name, data string) {
	c.send(domain.StreamEvent{Type: domain.StreamMessage, Name: name, Data: []byte(data)})
}

type fakeStream struct {
	mu      sync.Mutex
	openErr error
	conns   []*fakeConn
}

func (f *fakeStream) Open(_ context.Context, jobID, token string) (ports.StreamConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	conn := &fakeConn{jobID: jobID, token: token, events: make(chan domain.StreamEvent, 8)}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeStream) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeStream) Conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.conns) {
		return nil
	}
	return f.conns[i]
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	handler func(ctx context.Context, jobID string, call int) (*domain.JobStatus, error)
}

func (f *fakeFetcher) FetchStatus(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	f.mu.Lock()
	f.calls = append(f.calls, jobID)
	n := len(f.calls)
	handler := f.handler
	f.mu.Unlock()

	if handler == nil {
		return &domain.JobStatus{ID: jobID, Status: domain.StatusRunning}, nil
	}
	return handler(ctx, jobID, n)
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) CallsFor(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.calls {
		if id == jobID {
			n++
		}
	}
	return n
}

type fakeVisibility struct {
	mu      sync.Mutex
	visible bool
	subs    map[chan bool]struct{}
}

func newFakeVisibility(visible bool) *fakeVisibility {
	return &fakeVisibility{visible: visible, subs: make(map[chan bool]struct{})}
}

func (v *fakeVisibility) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

func (v *fakeVisibility) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)
	v.mu.Lock()
	v.subs[ch] = struct{}{}
	v.mu.Unlock()
	return ch, func() {
		v.mu.Lock()
		delete(v.subs, ch)
		v.mu.Unlock()
	}
}

func (v *fakeVisibility) Set(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible = visible
	for ch := range v.subs {
		select {
		case <-ch:
		default:
		}
		ch <- visible
	}
}

func (v *fakeVisibility) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

func staticToken(token string) ports.TokenProvider {
	return ports.TokenProviderFunc(func() string { return token })
}

type analysisAPIFake struct {
	mu          sync.Mutex
	startJobID  string
	startErr    error
	started     []domain.AnalysisRequest
	result      *domain.AnalysisResult
	resultErr   error
	resultCalls int
	pdf         string
	pdfErr      error
	pdfURLs     []string
}

func (f *analysisAPIFake) StartAnalysis(_ context.Context, req domain.AnalysisRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, req)
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.startJobID, nil
}

func (f *analysisAPIFake) GetAnalysisResult(_ context.Context, jobID string) (*domain.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCalls++
	if f.resultErr != nil {
		return nil, f.resultErr
	}
	out := *f.result
	out.JobID = jobID
	return &out, nil
}

func (f *analysisAPIFake) DownloadPDF(_ context.Context, rawURL string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pdfURLs = append(f.pdfURLs, rawURL)
	if f.pdfErr != nil {
		return nil, f.pdfErr
	}
	return io.NopCloser(strings.NewReader(f.pdf)), nil
}

type currentJobFake struct {
	mu      sync.Mutex
	jobID   string
	saves   []string
	cleared int
	loadErr error
}

func (f *currentJobFake) Load() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return "", f.loadErr
	}
	return f.jobID, nil
}

func (f *currentJobFake) Save(jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobID = jobID
	f.saves = append(f.saves, jobID)
	return nil
}

func (f *currentJobFake) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobID = ""
	f.cleared++
	return nil
}

type storageFake struct {
	mu    sync.Mutex
	files map[string]string
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (string, error) {
	body, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files == nil {
		f.files = make(map[string]string)
	}
	f.files[key] = string(body)
	return "/reports/" + key, nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.files[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}
