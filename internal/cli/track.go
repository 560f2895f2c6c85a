package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/edital-watch/internal/bootstrap"
	"github.com/kirillkom/edital-watch/internal/core/domain"
)

// NewTrackCmd creates the 'track' command.
func NewTrackCmd(a *App) *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "track <job-id>",
		Short: "Hand a job over to the background worker",
		Long: `Record a job in the tracking store. The worker picks it up on its next
sweep and relays its progress on the status subject ('jobwatch tail').`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := watchFlags{kind: kindFlag}.jobKind()
			if err != nil {
				return err
			}
			jobID := strings.TrimSpace(args[0])
			if jobID == "" {
				return fmt.Errorf("job id is empty")
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, closeStore, err := bootstrap.OpenTrackedStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			job := &domain.TrackedJob{JobID: jobID, Kind: kind, State: domain.TrackRunning}
			if err := store.Track(ctx, job); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Job %s registrado para acompanhamento.\n", jobID)
			return nil
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "analysis", "Job kind: analysis or cats")
	return cmd
}
