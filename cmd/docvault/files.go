package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"docvault/internal/api"
	"docvault/internal/config"
)

func newFileCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Store, read and delete documents",
	}
	cmd.AddCommand(
		newFilePutCmd(cfg, jsonOutput),
		newFileGetCmd(cfg),
		newFileRmCmd(cfg),
		newFileLsCmd(cfg, jsonOutput),
	)
	return cmd
}

func newFilePutCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "put <path> [source]",
		Short: "Store a document from a local file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := "-"
			if len(args) == 2 {
				source = args[1]
			}
			content, err := readSource(source)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				doc, err := client.PutFile(cmd.Context(), args[0], kind, content)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(doc)
				}
				return writePlain("%s\n", formatDocumentLine(doc))
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "blob kind (default: derived from the extension)")
	return cmd
}

func newFileGetCmd(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Print or save the live content of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				content, _, err := client.GetFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err = os.Stdout.Write(content)
					return err
				}
				return os.WriteFile(output, content, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newFileRmCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a document, leaving a deletion marker for sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				return client.DeleteFile(cmd.Context(), args[0])
			})
		},
	}
}

func newFileLsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				docs, err := client.ListFiles(cmd.Context(), all)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(docs)
				}
				return writeDocumentList(docs)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include deleted documents")
	return cmd
}

func readSource(source string) ([]byte, error) {
	if source == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return content, nil
	}
	return os.ReadFile(source)
}
