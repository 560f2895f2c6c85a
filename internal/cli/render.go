package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/kirillkom/edital-watch/internal/core/domain"
)

const waitingLabel = "Iniciando..."

// Styles are the lipgloss styles shared by the plain renderer and the TUI.
type Styles struct {
	Title    lipgloss.Style
	Running  lipgloss.Style
	Done     lipgloss.Style
	Failed   lipgloss.Style
	Muted    lipgloss.Style
	BarFull  lipgloss.Style
	BarEmpty lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Running:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Done:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Failed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		BarFull:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		BarEmpty: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// PlainStyles renders without colors, for pipes and tests.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title:    plain,
		Running:  plain,
		Done:     plain,
		Failed:   plain,
		Muted:    plain,
		BarFull:  plain,
		BarEmpty: plain,
	}
}

// DisplayPct clamps a raw percentage into 0..100. Only the display is
// clamped; the snapshot keeps the server value.
func DisplayPct(snap domain.Snapshot) int {
	if snap.Status == nil {
		return 0
	}
	return snap.Status.ProgressPct()
}

// PhaseLabel is the phase text, or the waiting label before the first status.
func PhaseLabel(snap domain.Snapshot) string {
	if snap.Status == nil {
		return waitingLabel
	}
	if phase := strings.TrimSpace(snap.Status.Phase); phase != "" {
		return phase
	}
	switch snap.Status.Status {
	case domain.StatusDone:
		return "Concluído"
	case domain.StatusError:
		return "Falhou"
	default:
		return waitingLabel
	}
}

func progressBar(styles Styles, pct, width int) string {
	if width <= 0 {
		width = 20
	}
	filled := pct * width / 100
	return styles.BarFull.Render(strings.Repeat("█", filled)) +
		styles.BarEmpty.Render(strings.Repeat("░", width-filled))
}

// FormatSnapshot renders one status line.
func FormatSnapshot(styles Styles, snap domain.Snapshot) string {
	if snap.JobID == "" {
		return styles.Muted.Render("nenhum job")
	}

	pct := DisplayPct(snap)
	state := styles.Running
	if snap.Status != nil {
		switch snap.Status.Status {
		case domain.StatusDone:
			state = styles.Done
		case domain.StatusError:
			state = styles.Failed
		}
	}

	var b strings.Builder
	b.WriteString(styles.Title.Render(snap.JobID))
	b.WriteString(" ")
	b.WriteString(progressBar(styles, pct, 20))
	b.WriteString(" ")
	b.WriteString(state.Render(fmt.Sprintf("%3d%%", pct)))
	b.WriteString(" ")
	b.WriteString(PhaseLabel(snap))
	if snap.Transport != domain.TransportNone {
		b.WriteString(" ")
		b.WriteString(styles.Muted.Render("[" + string(snap.Transport) + "]"))
	}
	if snap.Err != nil {
		b.WriteString(" ")
		b.WriteString(styles.Failed.Render(snap.Err.Error()))
	} else if snap.Status != nil && snap.Status.Status == domain.StatusError && snap.Status.Error != "" {
		b.WriteString(" ")
		b.WriteString(styles.Failed.Render(snap.Status.Error))
	}
	return b.String()
}

// LineRenderer prints a line per visible change of the snapshot.
type LineRenderer struct {
	out    io.Writer
	styles Styles

	mu   sync.Mutex
	last string
}

func NewLineRenderer(out io.Writer, styles Styles) *LineRenderer {
	return &LineRenderer{out: out, styles: styles}
}

func (r *LineRenderer) Render(snap domain.Snapshot) {
	line := FormatSnapshot(r.styles, snap)
	r.mu.Lock()
	defer r.mu.Unlock()
	if line == r.last {
		return
	}
	r.last = line
	fmt.Fprintln(r.out, line)
}
