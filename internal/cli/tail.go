package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/edital-watch/internal/core/domain"
)

// NewTailCmd creates the 'tail' command.
func NewTailCmd(a *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print job status events relayed by the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := a.app(nil)
			if err != nil {
				return err
			}
			defer app.Close()

			bus, err := app.ConnectBus("")
			if err != nil {
				return err
			}
			defer bus.Close()

			styles := a.styles()
			return bus.SubscribeStatus(cmd.Context(), func(_ context.Context, event domain.StatusEvent) error {
				if asJSON {
					line, err := json.Marshal(event)
					if err != nil {
						return err
					}
					fmt.Fprintln(a.out, string(line))
					return nil
				}
				fmt.Fprintln(a.out, FormatStatusEvent(styles, event))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON events")
	return cmd
}

// FormatStatusEvent renders a relayed event like a watcher snapshot.
func FormatStatusEvent(styles Styles, event domain.StatusEvent) string {
	snap := domain.Snapshot{
		JobID:     event.JobID,
		Transport: event.Transport,
		Status:    event.Status,
		UpdatedAt: event.At,
	}
	line := styles.Muted.Render(string(event.Kind)) + " " + FormatSnapshot(styles, snap)
	if event.Error != "" && (event.Status == nil || event.Status.Error == "") {
		line += " " + styles.Failed.Render(event.Error)
	}
	return line
}
