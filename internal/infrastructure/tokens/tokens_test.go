package tokens

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStaticAndEnv(t *testing.T) {
	if got := Static("  abc \n").Token(); got != "abc" {
		t.Fatalf("unexpected static token %q", got)
	}

	t.Setenv("EDITAL_TEST_TOKEN", "from-env")
	if got := Env("EDITAL_TEST_TOKEN").Token(); got != "from-env" {
		t.Fatalf("unexpected env token %q", got)
	}
}

func TestFileRefreshesAfterInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("first\n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFile(path, time.Minute)
	f.now = func() time.Time { return now }

	if got := f.Token(); got != "first" {
		t.Fatalf("expected first, got %q", got)
	}
	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("rewrite token: %v", err)
	}
	if got := f.Token(); got != "first" {
		t.Fatalf("expected cached token, got %q", got)
	}

	now = now.Add(2 * time.Minute)
	if got := f.Token(); got != "second" {
		t.Fatalf("expected refreshed token, got %q", got)
	}
}

func TestFileMissingIsEmpty(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "missing"), 0)
	if got := f.Token(); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}

func TestFirst(t *testing.T) {
	p := First{nil, Static(""), Static("b"), Static("c")}
	if got := p.Token(); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
}
