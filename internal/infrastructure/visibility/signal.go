// Package visibility tracks whether the user is looking at the watch output.
package visibility

import (
	"sync"

	"github.com/kirillkom/edital-watch/internal/core/ports"
)

// Signal is a foreground flag set by the host, for instance from terminal
// focus events.
type Signal struct {
	mu      sync.Mutex
	visible bool
	subs    map[chan bool]struct{}
}

var _ ports.VisibilitySignal = (*Signal)(nil)

func New(visible bool) *Signal {
	return &Signal{visible: visible, subs: make(map[chan bool]struct{})}
}

func (s *Signal) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Set records the new state and notifies subscribers when it changed.
func (s *Signal) Set(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visible == visible {
		return
	}
	s.visible = visible
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- visible
	}
}

func (s *Signal) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// AlwaysVisible never pauses polling.
type AlwaysVisible struct{}

func (AlwaysVisible) Visible() bool { return true }

func (AlwaysVisible) Subscribe() (<-chan bool, func()) {
	return nil, func() {}
}
