package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"docvault/internal/config"
	"docvault/internal/gc"
	"docvault/internal/storage"
)

// The refs commands open the vault directly. Stop the server first or run
// them against a quiet vault; the reference table is rewritten wholesale.
func newRefsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refs",
		Short: "Audit and rebuild blob reference counts",
	}
	cmd.AddCommand(
		newRefsAuditCmd(cfg, jsonOutput),
		newRefsRepairCmd(cfg, jsonOutput),
		newRefsRebuildCmd(cfg, jsonOutput),
		newRefsExportCmd(cfg),
	)
	return cmd
}

func newRefsAuditCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Compare reference counts with the document records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, func(svc *storage.Service) error {
				report, err := svc.AuditRefs(cmd.Context())
				if err != nil {
					return err
				}
				return writeAudit(report, *jsonOutput)
			})
		},
	}
}

func newRefsRepairCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Rewrite reference counts from the document records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, func(svc *storage.Service) error {
				report, err := svc.RepairRefs(cmd.Context())
				if err != nil {
					return err
				}
				return writeAudit(report, *jsonOutput)
			})
		},
	}
}

func newRefsRebuildCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rewrite reference counts from a YAML document manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifestPath == "" {
				return fmt.Errorf("--manifest is required")
			}
			docs, err := loadManifest(manifestPath)
			if err != nil {
				return err
			}
			return withService(cfg, func(svc *storage.Service) error {
				report, err := svc.RebuildRefs(cmd.Context(), docs)
				if err != nil {
					return err
				}
				return writeAudit(report, *jsonOutput)
			})
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "YAML manifest of document records")
	return cmd
}

func newRefsExportCmd(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the document records as a YAML manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, func(svc *storage.Service) error {
				docs, err := svc.ListFiles(cmd.Context(), true)
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					return encodeManifest(os.Stdout, docs, time.Now())
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := encodeManifest(f, docs, time.Now()); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func withService(cfg *config.Config, fn func(*storage.Service) error) error {
	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}

func writeAudit(report *gc.AuditReport, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(report)
	}
	if err := writePlain("documents=%d entries=%d discrepancies=%d missing_blobs=%d\n",
		report.Documents, report.Entries, len(report.Discrepancies), len(report.MissingBlobs)); err != nil {
		return err
	}
	for _, d := range report.Discrepancies {
		if err := writePlain("  %s: tracked=%d expected=%d\n", d.Key, d.Tracked, d.Expected); err != nil {
			return err
		}
	}
	for _, key := range report.MissingBlobs {
		if err := writePlain("  %s: blob missing\n", key); err != nil {
			return err
		}
	}
	return nil
}
