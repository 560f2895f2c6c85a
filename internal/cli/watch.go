package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kirillkom/edital-watch/internal/bootstrap"
	"github.com/kirillkom/edital-watch/internal/config"
	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/infrastructure/jobfile"
)

type watchFlags struct {
	kind     string
	follow   bool
	tui      bool
	noSSE    bool
	interval time.Duration
	maxWait  time.Duration
}

func (f watchFlags) apply(cfg *config.Config) {
	if f.noSSE {
		cfg.Watch.TrySSE = false
	}
	if f.interval > 0 {
		cfg.Watch.PollInterval = f.interval
	}
	if f.maxWait > 0 {
		cfg.Watch.MaxWait = f.maxWait
		cfg.Watch.CatsSyncMaxWait = f.maxWait
	}
}

func (f watchFlags) jobKind() (domain.JobKind, error) {
	switch strings.ToLower(strings.TrimSpace(f.kind)) {
	case "", "analysis", "analise":
		return domain.JobKindAnalysis, nil
	case "cats", "cats_sync":
		return domain.JobKindCatsSync, nil
	default:
		return "", fmt.Errorf("unknown job kind %q (use analysis or cats)", f.kind)
	}
}

// NewWatchCmd creates the 'watch' command.
func NewWatchCmd(a *App) *cobra.Command {
	var flags watchFlags

	cmd := &cobra.Command{
		Use:   "watch [job-id]",
		Short: "Follow a job until it finishes",
		Long: `Follow a job's progress. Without a job id the job saved by the last
'analyze' is resumed, or with --kind cats the pending CAT sync. With --follow
the watcher switches to whatever job is written to that file, until
interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := flags.jobKind()
			if err != nil {
				return err
			}
			if flags.interval < 0 || flags.maxWait < 0 {
				return errors.New("--interval and --max-wait must not be negative")
			}
			app, err := a.app(flags.apply)
			if err != nil {
				return err
			}
			defer app.Close()

			jobID := ""
			if len(args) == 1 {
				jobID = strings.TrimSpace(args[0])
			}
			if flags.follow {
				return a.followCurrent(cmd.Context(), app, kind, jobID, flags.tui)
			}
			return a.watchOnce(cmd.Context(), app, kind, jobID, flags.tui)
		},
	}

	cmd.Flags().StringVar(&flags.kind, "kind", "analysis", "Job kind: analysis or cats")
	cmd.Flags().BoolVar(&flags.follow, "follow", false, "Keep following the current job file")
	cmd.Flags().BoolVar(&flags.tui, "tui", false, "Interactive view (needs a terminal)")
	cmd.Flags().BoolVar(&flags.noSSE, "no-sse", false, "Poll only, never open the status stream")
	cmd.Flags().DurationVar(&flags.interval, "interval", 0, "Poll interval (minimum 700ms)")
	cmd.Flags().DurationVar(&flags.maxWait, "max-wait", 0, "Give up after this long")

	return cmd
}

func (a *App) watchOnce(ctx context.Context, app *bootstrap.App, kind domain.JobKind, jobID string, useTUI bool) error {
	run := func(ctx context.Context, onUpdate func(domain.Snapshot)) (string, error) {
		if kind == domain.JobKindCatsSync {
			outcome, err := app.CatsUC.Follow(ctx, jobID, onUpdate)
			return catsSummary(outcome), err
		}
		outcome, err := app.AnalysisUC.Await(ctx, jobID, onUpdate)
		return analysisSummary(outcome), err
	}

	if useTUI && a.isTerminal() {
		return a.runTUI(ctx, app.Visibility.Set, run)
	}

	renderer := NewLineRenderer(a.out, a.styles())
	summary, err := run(ctx, renderer.Render)
	if summary != "" {
		fmt.Fprintln(a.out, summary)
	}
	return err
}

// runTUI drives a bubbletea program from the snapshots of run. run gets a
// context that is cancelled as soon as the program exits.
func (a *App) runTUI(ctx context.Context, setFocus func(bool), run func(context.Context, func(domain.Snapshot)) (string, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newWatchModel(DefaultStyles(), setFocus)
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithReportFocus(), tea.WithOutput(a.out)}
	if a.in != nil {
		opts = append(opts, tea.WithInput(a.in))
	}
	program := tea.NewProgram(model, opts...)

	done := make(chan error, 1)
	go func() {
		summary, err := run(ctx, func(snap domain.Snapshot) {
			program.Send(SnapshotMsg(snap))
		})
		program.Send(FinishedMsg{Summary: summary, Err: err})
		done <- err
	}()

	_, err := program.Run()
	cancel()
	runErr := <-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	if model.quitting {
		return nil
	}
	return runErr
}

// followCurrent watches the current job and switches whenever the job file
// changes.
func (a *App) followCurrent(ctx context.Context, app *bootstrap.App, kind domain.JobKind, jobID string, useTUI bool) error {
	store := app.JobStore(kind)
	if jobID == "" {
		saved, err := store.Load()
		if err != nil {
			return err
		}
		jobID = saved
	}

	watcher, err := app.NewWatcher(kind)
	if err != nil {
		return err
	}
	defer watcher.Stop()

	follower := jobfile.NewFollower(store, 0, app.Logger, func(next string) {
		watcher.Watch(next)
	})
	if err := follower.Start(); err != nil {
		return err
	}
	defer follower.Stop()

	updates, unsubscribe := watcher.Subscribe()
	defer unsubscribe()
	watcher.Watch(jobID)

	if useTUI && a.isTerminal() {
		return a.runTUI(ctx, app.Visibility.Set, func(ctx context.Context, onUpdate func(domain.Snapshot)) (string, error) {
			return "", forward(ctx, updates, onUpdate)
		})
	}

	renderer := NewLineRenderer(a.out, a.styles())
	renderer.Render(watcher.Snapshot())
	return forward(ctx, updates, renderer.Render)
}

func forward(ctx context.Context, updates <-chan domain.Snapshot, onUpdate func(domain.Snapshot)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			onUpdate(snap)
		}
	}
}

func analysisSummary(outcome *domain.AnalysisOutcome) string {
	if outcome == nil {
		return ""
	}
	if outcome.Failure != "" {
		return outcome.Failure
	}
	var b strings.Builder
	b.WriteString("Análise concluída.")
	if outcome.Result != nil {
		if report := strings.TrimSpace(outcome.Result.Report); report != "" {
			b.WriteString("\n\n")
			b.WriteString(report)
		}
		if outcome.Result.PDF != nil {
			b.WriteString("\n\nPDF: ")
			b.WriteString(outcome.Result.PDF.URL)
		}
	}
	return b.String()
}

func catsSummary(outcome *domain.CatsSyncOutcome) string {
	if outcome == nil {
		return ""
	}
	var b strings.Builder
	if outcome.Resumed {
		fmt.Fprintf(&b, "Sincronização %s já estava em andamento; nenhuma nova foi iniciada.\n", outcome.JobID)
	}
	if outcome.Failure != "" {
		b.WriteString(outcome.Failure)
		return b.String()
	}
	fmt.Fprintf(&b, "Sincronização concluída: %d CATs processadas.", outcome.Processed)
	return b.String()
}
