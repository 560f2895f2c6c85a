package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/edital-watch/internal/config"
	"github.com/kirillkom/edital-watch/internal/core/domain"
)

func testApp(t *testing.T, baseURL string) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		API: config.APIConfig{Base: baseURL, Token: "secret-token"},
		Watch: config.WatchConfig{
			PollInterval:    700 * time.Millisecond,
			TrySSE:          true,
			CatsSyncMaxWait: 2 * time.Minute,
			CurrentJobFile:  filepath.Join(dir, "current-job"),
		},
		HTTP:     config.HTTPConfig{Timeout: 2 * time.Second},
		Breaker:  config.BreakerConfig{Enabled: false},
		Log:      config.LogConfig{Level: "error", Format: "text"},
		Postgres: config.PostgresConfig{DSN: "postgres://app:hunter2@db:5432/edital"},
		Storage:  config.StorageConfig{Path: filepath.Join(dir, "reports")},
		Worker:   config.WorkerConfig{SweepInterval: 30 * time.Second},
	}

	app := New()
	app.loadConfig = func(string) (config.Config, error) { return cfg, nil }
	var out bytes.Buffer
	app.SetOutput(&out, &bytes.Buffer{})
	return app, &out
}

func execute(t *testing.T, app *App, args ...string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.rootCmd.SetArgs(args)
	return app.rootCmd.ExecuteContext(ctx)
}

func TestWatchPollsUntilDoneAndPrintsReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/edital/analisar/status/job-7":
			_, _ = w.Write([]byte(`{"id":"job-7","status":"done","pct":100,"phase":"Finalizado"}`))
		case "/api/edital/analisar/result/job-7":
			_, _ = w.Write([]byte(`{"report":"Viável com ressalvas","pdf":{"url":"/files/r.pdf","filename":"r.pdf"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	app, out := testApp(t, server.URL)
	require.NoError(t, execute(t, app, "watch", "job-7", "--no-sse"))

	output := out.String()
	assert.Contains(t, output, "job-7")
	assert.Contains(t, output, "100%")
	assert.Contains(t, output, "Análise concluída.")
	assert.Contains(t, output, "Viável com ressalvas")
}

func TestWatchWithoutJobFails(t *testing.T) {
	app, _ := testApp(t, "http://127.0.0.1:1")
	err := execute(t, app, "watch", "--no-sse")
	require.Error(t, err)
}

func TestWatchRejectsUnknownKind(t *testing.T) {
	app, _ := testApp(t, "http://127.0.0.1:1")
	err := execute(t, app, "watch", "job-1", "--kind", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job kind")
}

func TestCatsSyncLegacyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/cats/sync-from-disk", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("force"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processed":3}`))
	}))
	defer server.Close()

	app, out := testApp(t, server.URL)
	require.NoError(t, execute(t, app, "cats", "sync", "--force"))
	assert.Contains(t, out.String(), "3 CATs processadas")
}

func catsSyncJobFile(t *testing.T, app *App) string {
	t.Helper()
	cfg, err := app.loadConfig("")
	require.NoError(t, err)
	return filepath.Join(filepath.Dir(cfg.Watch.CurrentJobFile), "cats-sync-job")
}

func TestCatsSyncResumesPendingJob(t *testing.T) {
	var started atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/cats/sync-from-disk":
			started.Store(true)
			_, _ = w.Write([]byte(`{"jobId":"sync-new"}`))
		case "/api/cats/sync-status":
			assert.Equal(t, "sync-3", r.URL.Query().Get("jobId"))
			_, _ = w.Write([]byte(`{"status":"completed","progress":100,"result":{"processed":5}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	app, out := testApp(t, server.URL)
	pending := catsSyncJobFile(t, app)
	require.NoError(t, os.WriteFile(pending, []byte("sync-3\n"), 0o600))

	require.NoError(t, execute(t, app, "cats", "sync"))
	assert.False(t, started.Load(), "a pending sync must not start another one")
	assert.Contains(t, out.String(), "sync-3 já estava em andamento")
	assert.Contains(t, out.String(), "5 CATs processadas")

	_, err := os.Stat(pending)
	assert.True(t, errors.Is(err, os.ErrNotExist), "finished sync must be forgotten")
}

func TestWatchCatsWithoutIDUsesPendingSync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/api/cats/sync-status" || r.URL.Query().Get("jobId") != "sync-4" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"status":"failed","error":"pasta vazia"}`))
	}))
	defer server.Close()

	app, out := testApp(t, server.URL)
	pending := catsSyncJobFile(t, app)
	require.NoError(t, os.WriteFile(pending, []byte("sync-4"), 0o600))

	require.NoError(t, execute(t, app, "watch", "--kind", "cats"))
	assert.Contains(t, out.String(), "pasta vazia")

	_, err := os.Stat(pending)
	assert.True(t, errors.Is(err, os.ErrNotExist), "failed sync must be forgotten")
}

func TestWatchCatsWithoutPendingSyncFails(t *testing.T) {
	app, _ := testApp(t, "http://127.0.0.1:1")
	err := execute(t, app, "watch", "--kind", "cats")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRunTUIReturnsWhenUserQuits(t *testing.T) {
	app, _ := testApp(t, "http://127.0.0.1:1")
	app.in = strings.NewReader("q")

	done := make(chan error, 1)
	go func() {
		done <- app.runTUI(context.Background(), nil, func(ctx context.Context, _ func(domain.Snapshot)) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runTUI kept waiting for the job after the user quit")
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	app, out := testApp(t, "https://edital.example.com")
	require.NoError(t, execute(t, app, "config", "show"))

	output := out.String()
	assert.Contains(t, output, "base: https://edital.example.com")
	assert.Contains(t, output, "****")
	assert.Contains(t, output, "app:****@db:5432")
	assert.NotContains(t, output, "secret-token")
	assert.NotContains(t, output, "hunter2")
}

func TestVersionCommand(t *testing.T) {
	app, out := testApp(t, "http://127.0.0.1:1")
	app.SetVersion("1.2.3", "abc", "2025-01-01")
	require.NoError(t, execute(t, app, "version"))
	assert.True(t, strings.HasPrefix(out.String(), "jobwatch 1.2.3"))
}

func TestAnalyzeAttachRequiresSuper(t *testing.T) {
	dir := t.TempDir()
	edital := filepath.Join(dir, "edital.pdf")
	require.NoError(t, writeFile(edital, "%PDF"))

	app, _ := testApp(t, "http://127.0.0.1:1")
	err := execute(t, app, "analyze", edital, "--attach", edital)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--super")
}
