package main

import (
	"github.com/spf13/cobra"

	"docvault/internal/api"
	"docvault/internal/config"
)

func newSessionCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Open and close editing sessions",
	}
	cmd.AddCommand(newSessionCreateCmd(cfg, jsonOutput), newSessionEndCmd(cfg, jsonOutput))
	return cmd
}

func newSessionCreateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "create <user>",
		Short: "Open a session and print its credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.CreateSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("export %s=%s\nexport %s=%s\n",
					sessionIDEnvKey, resp.Session.ID, sessionTokenEnvKey, resp.Token)
			})
		},
	}
}

func newSessionEndCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "end <id>",
		Short: "End a session and release its locks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.EndSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("ended %s, released %d locks\n", resp.ID, resp.LocksReleased)
			})
		},
	}
}
