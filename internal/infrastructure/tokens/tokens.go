// Package tokens provides bearer token sources for the API transports.
package tokens

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/edital-watch/internal/core/ports"
)

type Static string

var _ ports.TokenProvider = Static("")

func (s Static) Token() string {
	return strings.TrimSpace(string(s))
}

// Env reads the named environment variable on every call.
type Env string

func (e Env) Token() string {
	return strings.TrimSpace(os.Getenv(string(e)))
}

// File reads a token from disk, re-reading it at most once per refresh
// interval so that an external login can rotate it.
type File struct {
	path    string
	refresh time.Duration
	now     func() time.Time

	mu       sync.Mutex
	token    string
	loadedAt time.Time
}

func NewFile(path string, refresh time.Duration) *File {
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	return &File{path: path, refresh: refresh, now: time.Now}
}

func (f *File) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if !f.loadedAt.IsZero() && now.Sub(f.loadedAt) < f.refresh {
		return f.token
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		f.token = ""
	} else {
		f.token = strings.TrimSpace(string(data))
	}
	f.loadedAt = now
	return f.token
}

// First returns the first non-empty token of the given providers.
type First []ports.TokenProvider

func (p First) Token() string {
	for _, provider := range p {
		if provider == nil {
			continue
		}
		if token := provider.Token(); token != "" {
			return token
		}
	}
	return ""
}
