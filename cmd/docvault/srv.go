package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"docvault/internal/config"
	"docvault/internal/metrics"
	"docvault/internal/server"
	"docvault/internal/storage"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	var maxFileBytes int64

	cmd := &cobra.Command{
		Use:   "srv",
		Short: "Run the docvault API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			logger.Info("opening vault", "data_dir", cfg.DataDir, "db", cfg.DBPath, "remote", cfg.Remote.URL != "")
			svc, err := openService(cfg, storage.WithMetrics(metrics.New(registry)))
			if err != nil {
				return err
			}
			defer svc.Close()

			srv := server.New(addr, svc, logger,
				server.WithGatherer(registry),
				server.WithMaxFileBytes(maxFileBytes),
			)
			return srv.ListenAndServe()
		},
	}

	cmd.Flags().Int64Var(&maxFileBytes, "max-file-bytes", 0, "largest accepted upload in bytes (default 256 MiB)")
	return cmd
}

// openService opens the vault in-process, for the server and for the
// offline maintenance commands.
func openService(cfg *config.Config, opts ...storage.Option) (*storage.Service, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	opts = append([]storage.Option{storage.WithLogger(slog.Default())}, opts...)
	return storage.Open(cfg.Storage(), opts...)
}
