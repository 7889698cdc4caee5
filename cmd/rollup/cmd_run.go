package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/rollup-backend/internal/app"
	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

func newRunCmd() *cobra.Command {
	var sourceType, collection string
	cmd := &cobra.Command{
		Use:   "run [source-type]",
		Short: "Run the rollup pipeline once and print the summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := sourceTypeArg(sourceType, args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				summary, err := a.Services.Orchestrator.RunPipeline(cmd.Context(), st, collection)
				if perr := printJSON(cmd, summary); perr != nil {
					return perr
				}
				if err != nil {
					return fmt.Errorf("%s run failed (%s): %w", st, types.KindOf(err), err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceType, "source-type", "", "Registered source type")
	cmd.Flags().StringVar(&collection, "collection", "", "Source collection (default: the source type)")
	return cmd
}

// sourceTypeArg takes the source type from --source-type or the first argument.
func sourceTypeArg(flag string, args []string) (string, error) {
	switch {
	case flag != "" && len(args) > 0 && args[0] != flag:
		return "", fmt.Errorf("source type given twice: %q and %q", flag, args[0])
	case flag != "":
		return flag, nil
	case len(args) > 0:
		return args[0], nil
	default:
		return "", fmt.Errorf("--source-type is required")
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
