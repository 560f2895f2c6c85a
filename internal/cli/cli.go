// Package cli implements the jobwatch command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kirillkom/edital-watch/internal/bootstrap"
	"github.com/kirillkom/edital-watch/internal/config"
	"github.com/kirillkom/edital-watch/internal/observability/logging"
)

const serviceName = "jobwatch"

// App holds the root command and the lazily built dependencies.
type App struct {
	rootCmd *cobra.Command

	configFile string
	logLevel   string
	verbose    bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// loadConfig and build are swapped in tests.
	loadConfig func(path string) (config.Config, error)
	build      func(cfg config.Config, logger *slog.Logger) (*bootstrap.App, error)

	version string
	commit  string
	date    string
}

func New() *App {
	a := &App{
		out:        os.Stdout,
		errOut:     os.Stderr,
		loadConfig: config.Load,
		build: func(cfg config.Config, logger *slog.Logger) (*bootstrap.App, error) {
			return bootstrap.New(cfg, logger, serviceName)
		},
		version: "dev",
		commit:  "unknown",
		date:    "unknown",
	}
	a.setupRootCmd()
	return a
}

func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

func (a *App) ExecuteContext(ctx context.Context) error {
	return a.rootCmd.ExecuteContext(ctx)
}

func (a *App) SetVersion(version, commit, date string) {
	a.version = version
	a.commit = commit
	a.date = date
}

// SetOutput redirects command output, mainly for tests.
func (a *App) SetOutput(out, errOut io.Writer) {
	a.out = out
	a.errOut = errOut
	a.rootCmd.SetOut(out)
	a.rootCmd.SetErr(errOut)
}

func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "jobwatch",
		Short: "Follow edital analysis and CAT sync jobs",
		Long: `jobwatch starts edital analyses and CAT synchronisations and follows
their jobs over the server-sent status stream, falling back to polling.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a.rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file (default: jobwatch.yaml in . or the user config dir)")
	a.rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log level")
	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output")

	a.rootCmd.AddCommand(
		NewWatchCmd(a),
		NewAnalyzeCmd(a),
		NewResultCmd(a),
		NewCatsCmd(a),
		NewTailCmd(a),
		NewTrackCmd(a),
		NewConfigCmd(a),
		NewVersionCmd(a),
	)
}

// config loads the configuration and applies the global flags.
func (a *App) config() (config.Config, error) {
	cfg, err := a.loadConfig(a.configFile)
	if err != nil {
		return config.Config{}, err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func (a *App) logger(cfg config.Config) *slog.Logger {
	return logging.New(a.errOut, serviceName, cfg.Log.Level, cfg.Log.Format)
}

// app builds the wired dependencies. mutate may adjust the configuration
// from command flags first.
func (a *App) app(mutate func(*config.Config)) (*bootstrap.App, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(&cfg)
	}
	app, err := a.build(cfg, a.logger(cfg))
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return app, nil
}

func (a *App) styles() Styles {
	if f, ok := a.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return DefaultStyles()
	}
	return PlainStyles()
}

func (a *App) isTerminal() bool {
	f, ok := a.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func NewVersionCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "jobwatch %s (commit %s, built %s)\n", a.version, a.commit, a.date)
		},
	}
}
