package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docvault/internal/config"
	"docvault/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput   bool
		logLevel     string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:           "docvault",
		Short:         "Docvault stores documents by content, locks them per editor and syncs them to a shared remote",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			formatter, err := format.ByName(outputFormat)
			if err != nil {
				return err
			}
			outputFormatter = formatter
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "json", "structured output format used with --json (json, pretty, yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newFileCmd(cfg, &jsonOutput),
		newLockCmd(cfg, &jsonOutput),
		newSessionCmd(cfg, &jsonOutput),
		newSyncCmd(cfg, &jsonOutput),
		newGCCmd(cfg, &jsonOutput),
		newRefsCmd(cfg, &jsonOutput),
		newMigrateCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
		newInfoCmd(cfg, &jsonOutput),
	)

	return cmd
}
