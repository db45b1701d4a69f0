/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ssargent/kvsnap/pkg/api"
	"github.com/ssargent/kvsnap/pkg/archive"
	"github.com/ssargent/kvsnap/pkg/config"
	"github.com/ssargent/kvsnap/pkg/store"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Load the snapshot file, serve the store over HTTP and save it back
periodically and on shutdown.

Examples:
  kvsnap serve
  kvsnap serve --port 9000 --api-key mysecretkey
  KVSNAP_SAVE_INTERVAL=30s kvsnap serve --dir ./data`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServer(ctx, appConfig, logger, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind to")
	serveCmd.Flags().String("api-key", "", "API key for authentication (empty disables it)")
	serveCmd.Flags().Duration("save-interval", 0, "How often to save the snapshot (0 saves only on shutdown)")
}

// runServer serves until ctx is done. The expiry sweeper and the snapshot
// loop are stopped, and a final snapshot written, before it returns.
func runServer(ctx context.Context, cfg *config.Config, log *logrus.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) error {
	kv := store.New(store.Options{Logger: log})
	if _, err := kv.Load(ctx, cfg.SnapshotPath()); err != nil {
		return err
	}

	var archiver api.Archiver
	if cfg.Snapshot.ArchiveOnSave {
		arc, err := archive.Open(cfg.ArchivePath())
		if err != nil {
			return err
		}
		defer arc.Close()
		archiver = arc
	}

	apiKey := cfg.APIKey
	if apiKey == "auto" {
		generated, err := config.GenerateSecureKey(32)
		if err != nil {
			return err
		}
		apiKey = generated
		log.WithField("api_key", apiKey).Warn("no api key configured, generated one for this run")
	}

	server := api.NewServer(kv, archiver, api.ServerConfig{
		Port:          cfg.Port,
		Bind:          cfg.Bind,
		APIKey:        apiKey,
		SnapshotPath:  cfg.SnapshotPath(),
		Save:          saveOptions(cfg),
		ArchiveOnSave: cfg.Snapshot.ArchiveOnSave,
	}, api.NewMetrics(reg), log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sweeperDone := kv.StartExpirySweeper(ctx, cfg.Snapshot.SweepInterval)
	snapshotsDone := server.RunSnapshotLoop(ctx, cfg.Snapshot.SaveInterval)

	err := server.Start(ctx, gatherer)
	cancel()
	<-sweeperDone
	<-snapshotsDone

	if err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	log.Info("kvsnap stopped")
	return nil
}
