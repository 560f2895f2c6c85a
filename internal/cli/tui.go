package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kirillkom/edital-watch/internal/core/domain"
)

// SnapshotMsg carries a watcher snapshot into the TUI.
type SnapshotMsg domain.Snapshot

// FinishedMsg ends the TUI with a closing line.
type FinishedMsg struct {
	Summary string
	Err     error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// watchModel is the bubbletea model of `watch --tui`. Terminal focus drives
// the visibility signal so that polling pauses while the window is in the
// background.
type watchModel struct {
	styles    Styles
	setFocus  func(bool)
	snap      domain.Snapshot
	startedAt time.Time
	now       time.Time
	summary   string
	err       error
	quitting  bool
	done      bool
	focused   bool
}

func newWatchModel(styles Styles, setFocus func(bool)) *watchModel {
	now := time.Now()
	return &watchModel{
		styles:    styles,
		setFocus:  setFocus,
		startedAt: now,
		now:       now,
		focused:   true,
	}
}

func (m *watchModel) Init() tea.Cmd {
	return tickCmd()
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.FocusMsg:
		m.focused = true
		if m.setFocus != nil {
			m.setFocus(true)
		}
	case tea.BlurMsg:
		m.focused = false
		if m.setFocus != nil {
			m.setFocus(false)
		}
	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()
	case SnapshotMsg:
		m.snap = domain.Snapshot(msg)
	case FinishedMsg:
		m.done = true
		m.summary = msg.Summary
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *watchModel) View() string {
	var b strings.Builder
	elapsed := m.now.Sub(m.startedAt).Truncate(time.Second)
	b.WriteString(m.styles.Title.Render("edital-watch"))
	b.WriteString(" ")
	b.WriteString(m.styles.Muted.Render(elapsed.String()))
	if !m.focused {
		b.WriteString(" ")
		b.WriteString(m.styles.Muted.Render("(pausado)"))
	}
	b.WriteString("\n\n")
	b.WriteString(FormatSnapshot(m.styles, m.snap))
	b.WriteString("\n")
	if m.done {
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(m.styles.Failed.Render(m.err.Error()))
		} else {
			b.WriteString(m.summary)
		}
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf("%s para sair", "q")))
	b.WriteString("\n")
	return b.String()
}
