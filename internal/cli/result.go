package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/edital-watch/internal/infrastructure/api"
)

// NewResultCmd creates the 'result' command.
func NewResultCmd(a *App) *cobra.Command {
	var download bool

	cmd := &cobra.Command{
		Use:   "result [job-id]",
		Short: "Show the final report of a finished analysis",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := a.app(nil)
			if err != nil {
				return err
			}
			defer app.Close()

			jobID := ""
			if len(args) == 1 {
				jobID = strings.TrimSpace(args[0])
			}
			if jobID == "" {
				if jobID, err = app.CurrentJob.Load(); err != nil {
					return err
				}
			}
			if jobID == "" {
				return errors.New("no job id given and no current job saved")
			}

			ctx := cmd.Context()
			result, err := api.NewAnalysisService(app.Client).GetAnalysisResult(ctx, jobID)
			if err != nil {
				return err
			}
			if report := strings.TrimSpace(result.Report); report != "" {
				fmt.Fprintln(a.out, report)
			}
			if result.PDF == nil {
				fmt.Fprintln(a.out, "Nenhum PDF disponível.")
				return nil
			}
			fmt.Fprintf(a.out, "PDF: %s\n", result.PDF.URL)
			if !download {
				return nil
			}
			path, err := app.AnalysisUC.DownloadReport(ctx, *result.PDF)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Relatório salvo em %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&download, "download", false, "Download the report PDF")
	return cmd
}
