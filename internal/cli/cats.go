package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCatsCmd creates the 'cats' command group.
func NewCatsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cats",
		Short: "CAT catalogue operations",
	}
	cmd.AddCommand(newCatsSyncCmd(a))
	return cmd
}

func newCatsSyncCmd(a *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronise CATs from disk and wait for the job",
		Long: `Start a CAT sync from disk and follow it. The job id is kept until the
sync finishes; while it is pending, running the command again follows the
pending job instead of starting another one.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := a.app(nil)
			if err != nil {
				return err
			}
			defer app.Close()

			renderer := NewLineRenderer(a.out, a.styles())
			outcome, err := app.CatsUC.Sync(cmd.Context(), force, renderer.Render)
			if summary := catsSummary(outcome); summary != "" {
				fmt.Fprintln(a.out, summary)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reprocess CATs already in the catalogue")
	return cmd
}
