package main

import (
	"github.com/spf13/cobra"

	"docvault/internal/api"
	"docvault/internal/config"
)

func newSyncCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local document tree with the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				summary, err := client.Sync(cmd.Context(), force)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(summary)
				}
				if summary.Skipped {
					return writePlain("up to date (remote version %d)\n", summary.RemoteVersion)
				}
				return writePlain("uploads=%d downloads=%d remote_deletes=%d local_deletes=%d markers_dropped=%d conflicts=%d version=%d\n",
					summary.Uploads, summary.Downloads, summary.RemoteDeletes, summary.LocalDeletes,
					summary.MarkersDropped, summary.Conflicts, summary.RemoteVersion)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "run even when nothing changed since the last sync")
	return cmd
}
