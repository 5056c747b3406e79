package main

import (
	"sort"

	"github.com/spf13/cobra"

	"docvault/internal/api"
	"docvault/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show vault, lock and sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}

				if *jsonOutput {
					return writeJSON(resp)
				}
				if resp.Info == nil || resp.Store == nil {
					return writePlain("no info returned\n")
				}

				_ = writePlain("data_dir: %s\n", resp.DataDir)
				_ = writePlain("schema_version: %d\n", resp.Store.SchemaVersion)
				_ = writePlain("live_documents: %d\n", resp.Store.LiveDocuments)
				_ = writePlain("deleted_documents: %d\n", resp.Store.DeletedDocuments)
				_ = writePlain("locks: %d (%d stale)\n", resp.Store.Locks, resp.Store.StaleLocks)
				_ = writePlain("sessions: %d\n", resp.Store.Sessions)
				_ = writePlain("ref_entries: %d (%d at zero)\n", resp.Store.RefEntries, resp.Store.ZeroRefEntries)
				_ = writePlain("sync_enabled: %t\n", resp.SyncEnabled)
				_ = writePlain("sync_phase: %s\n", resp.SyncPhase)
				_ = writePlain("cached_version: %d\n", resp.CachedVersion)
				_ = writePlain("dirty: %t\n", resp.Dirty)

				kinds := make([]string, 0, len(resp.Blobs))
				for kind := range resp.Blobs {
					kinds = append(kinds, kind)
				}
				sort.Strings(kinds)
				for _, kind := range kinds {
					stats := resp.Blobs[kind]
					_ = writePlain("  %s: %d blobs, %d bytes\n", kind, stats.Blobs, stats.Bytes)
				}
				return nil
			})
		},
	}
	return cmd
}
