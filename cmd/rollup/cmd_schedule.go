package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/rollup-backend/internal/app"
)

func newScheduleCmd() *cobra.Command {
	var (
		collection string
		cron       string
		remove     bool
	)
	cmd := &cobra.Command{
		Use:   "schedule <source-type>",
		Short: "Register or remove a recurring rollup run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !remove && cron == "" {
				return fmt.Errorf("--cron is required unless --remove is set")
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				if a.Clients.Scheduler == nil {
					return fmt.Errorf("TEMPORAL_ADDRESS is required to schedule runs")
				}
				if remove {
					if err := a.Clients.Scheduler.Unschedule(cmd.Context(), args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "unscheduled %s\n", args[0])
					return nil
				}
				started, err := a.Clients.Scheduler.Schedule(cmd.Context(), args[0], collection, cron)
				if err != nil {
					return err
				}
				return printJSON(cmd, started)
			})
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "Source collection (default: the source type)")
	cmd.Flags().StringVar(&cron, "cron", "", "Cron expression, e.g. \"0 2 * * *\"")
	cmd.Flags().BoolVar(&remove, "remove", false, "Cancel the recurring run instead")
	return cmd
}
