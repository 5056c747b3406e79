package main

import (
	"sort"

	"github.com/spf13/cobra"

	"docvault/internal/api"
	"docvault/internal/config"
)

func newLockCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Inspect and manage file locks",
	}
	cmd.AddCommand(
		newLockAcquireCmd(cfg, jsonOutput),
		newLockReleaseCmd(cfg, jsonOutput),
		newLockHeartbeatCmd(cfg),
		newLockListCmd(cfg, jsonOutput),
		newLockPurgeCmd(cfg, jsonOutput),
	)
	return cmd
}

func newLockAcquireCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "acquire <path>",
		Short: "Lock a document for the current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.AcquireLock(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("locked %s\n", resp.Path)
			})
		},
	}
}

func newLockReleaseCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "release <path>",
		Short: "Release a lock held by the current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ReleaseLock(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s: %s\n", resp.Path, resp.Result)
			})
		},
	}
}

func newLockHeartbeatCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat <path>",
		Short: "Refresh a lock so it does not go stale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				return client.HeartbeatLock(cmd.Context(), args[0])
			})
		},
	}
}

func newLockListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ListLocks(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				paths := make([]string, 0, len(resp.Locks))
				for path := range resp.Locks {
					paths = append(paths, path)
				}
				sort.Strings(paths)
				for _, path := range paths {
					if err := writePlain("%s\t%s\n", path, resp.Locks[path]); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newLockPurgeCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete locks that have not been refreshed within the timeout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.PurgeLocks(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("purged %d stale locks\n", resp.Purged)
			})
		},
	}
}
