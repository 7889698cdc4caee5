package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/rollup-backend/internal/app"
	"github.com/yungbote/rollup-backend/internal/report"
)

func newExportCmd() *cobra.Command {
	var (
		out    string
		upload bool
	)
	cmd := &cobra.Command{
		Use:   "export <source-type>",
		Short: "Export stored rollup records as an xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := args[0]
			return withApp(cmd.Context(), func(a *app.App) error {
				if upload {
					uri, err := a.Services.Exporter.Upload(cmd.Context(), st)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), uri)
					return nil
				}
				path := out
				if path == "" {
					path = report.FileName(st, a.Services.Exporter.Now())
				}
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				n, err := a.Services.Exporter.Export(cmd.Context(), st, f)
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", n, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: <source-type>-<timestamp>.xlsx)")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload to GCS_EXPORT_BUCKET instead of writing a file")
	return cmd
}
