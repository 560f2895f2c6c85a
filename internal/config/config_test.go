package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Watch.PollInterval != 1200*time.Millisecond {
		t.Fatalf("unexpected poll interval %s", cfg.Watch.PollInterval)
	}
	if !cfg.Watch.TrySSE {
		t.Fatalf("expected try_sse default true")
	}
	if cfg.Watch.CatsSyncMaxWait != 2*time.Minute {
		t.Fatalf("unexpected cats max wait %s", cfg.Watch.CatsSyncMaxWait)
	}
	if cfg.API.AnalysisStreamPath != "/api/edital/analisar/stream/{jobId}" {
		t.Fatalf("unexpected stream path %q", cfg.API.AnalysisStreamPath)
	}
	if cfg.Worker.SweepInterval != 30*time.Second {
		t.Fatalf("unexpected sweep interval %s", cfg.Worker.SweepInterval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("EDITAL_API_BASE", "https://edital.example.com")
	t.Setenv("EDITAL_WATCH_POLL_INTERVAL", "2s")
	t.Setenv("EDITAL_WATCH_TRY_SSE", "false")
	t.Setenv("EDITAL_HTTP_BURST", "9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Base != "https://edital.example.com" {
		t.Fatalf("unexpected base %q", cfg.API.Base)
	}
	if cfg.Watch.PollInterval != 2*time.Second || cfg.Watch.TrySSE {
		t.Fatalf("unexpected watch config %+v", cfg.Watch)
	}
	if cfg.HTTP.Burst != 9 {
		t.Fatalf("unexpected burst %d", cfg.HTTP.Burst)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	body := []byte("api:\n  base: https://file.example.com\nwatch:\n  max_wait: 10m\nlog:\n  format: json\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Base != "https://file.example.com" || cfg.Watch.MaxWait != 10*time.Minute || cfg.Log.Format != "json" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit file")
	}
}

func TestValidateRejectsNegativeDurations(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("EDITAL_WATCH_MAX_WAIT", "-1s")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestMaskedHidesSecrets(t *testing.T) {
	cfg := Config{
		API:      APIConfig{Token: "secret"},
		Postgres: PostgresConfig{DSN: "postgres://user:pass@db:5432/edital"},
	}
	masked := cfg.Masked()
	if masked.API.Token != "****" {
		t.Fatalf("token not masked: %q", masked.API.Token)
	}
	if masked.Postgres.DSN != "postgres://user:****@db:5432/edital" {
		t.Fatalf("dsn not masked: %q", masked.Postgres.DSN)
	}
	if cfg.API.Token != "secret" {
		t.Fatalf("original must stay untouched")
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	})
}
