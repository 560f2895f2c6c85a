package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/edital-watch/internal/config"
	"github.com/kirillkom/edital-watch/internal/core/domain"
)

type analyzeFlags struct {
	super    bool
	attach   []string
	wait     bool
	download bool
	noSSE    bool
}

// NewAnalyzeCmd creates the 'analyze' command.
func NewAnalyzeCmd(a *App) *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze <edital.pdf>...",
		Short: "Upload editais and start a viability analysis",
		Long: `Upload one or more edital PDFs and start an analysis. Basic mode sends
only the first edital; --super sends every edital plus the --attach files.
The job id is saved so that 'jobwatch watch' can resume it later.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := a.app(func(cfg *config.Config) {
				if flags.noSSE {
					cfg.Watch.TrySSE = false
				}
			})
			if err != nil {
				return err
			}
			defer app.Close()

			req := domain.AnalysisRequest{Mode: domain.AnalysisBasic}
			if flags.super {
				req.Mode = domain.AnalysisSuper
			}
			var closers []*os.File
			defer func() {
				for _, f := range closers {
					_ = f.Close()
				}
			}()
			open := func(path string) (domain.UploadFile, error) {
				f, err := os.Open(path)
				if err != nil {
					return domain.UploadFile{}, fmt.Errorf("open %s: %w", path, err)
				}
				closers = append(closers, f)
				return domain.UploadFile{Filename: filepath.Base(path), Body: f}, nil
			}
			for _, path := range args {
				file, err := open(path)
				if err != nil {
					return err
				}
				req.Editais = append(req.Editais, file)
			}
			if len(flags.attach) > 0 && !flags.super {
				return errors.New("--attach requires --super")
			}
			for _, path := range flags.attach {
				file, err := open(path)
				if err != nil {
					return err
				}
				req.Attachments = append(req.Attachments, file)
			}

			ctx := cmd.Context()
			jobID, err := app.AnalysisUC.Start(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Job %s iniciado.\n", jobID)
			if !flags.wait {
				return nil
			}

			renderer := NewLineRenderer(a.out, a.styles())
			outcome, err := app.AnalysisUC.Await(ctx, jobID, renderer.Render)
			if summary := analysisSummary(outcome); summary != "" {
				fmt.Fprintln(a.out, summary)
			}
			if err != nil {
				return err
			}
			if flags.download && outcome.Result != nil && outcome.Result.PDF != nil {
				path, err := app.AnalysisUC.DownloadReport(ctx, *outcome.Result.PDF)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Relatório salvo em %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.super, "super", false, "Super analysis with every edital and attachments")
	cmd.Flags().StringSliceVar(&flags.attach, "attach", nil, "Attachment files (super mode only)")
	cmd.Flags().BoolVar(&flags.wait, "wait", true, "Follow the job until it finishes")
	cmd.Flags().BoolVar(&flags.download, "download", false, "Download the report PDF when done")
	cmd.Flags().BoolVar(&flags.noSSE, "no-sse", false, "Poll only, never open the status stream")

	return cmd
}
