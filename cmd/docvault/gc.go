package main

import (
	"github.com/spf13/cobra"

	"docvault/internal/api"
	"docvault/internal/config"
)

func newGCCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete unreferenced and orphaned blobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GC(cmd.Context(), dryRun)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				if resp.Plan != nil {
					if err := writePlain("dry run: zero_ref=%d orphans=%d\n", len(resp.Plan.ZeroRef), len(resp.Plan.Orphans)); err != nil {
						return err
					}
					for _, entry := range resp.Plan.ZeroRef {
						if err := writePlain("  %s/%s\n", entry.Kind, entry.Hash); err != nil {
							return err
						}
					}
					for _, blob := range resp.Plan.Orphans {
						if err := writePlain("  %s/%s (orphan)\n", blob.Kind, blob.Hash); err != nil {
							return err
						}
					}
					return nil
				}
				report := resp.Report
				if report == nil {
					return writePlain("nothing reported\n")
				}
				return writePlain("deleted=%d zero_ref=%d/%d orphans=%d/%d errors=%d duration=%s\n",
					report.Deleted(),
					report.ZeroRef.Deleted, report.ZeroRef.Checked,
					report.Orphans.Deleted, report.Orphans.Checked,
					report.ZeroRef.Errors+report.Orphans.Errors,
					report.Duration)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be deleted without deleting")
	return cmd
}
