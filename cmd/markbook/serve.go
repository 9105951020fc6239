package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/markbook/internal/api"
	"github.com/IshaanNene/markbook/internal/config"
	"github.com/IshaanNene/markbook/internal/observability"
	"github.com/IshaanNene/markbook/internal/storage"
)

var (
	servePort int
	storeType string
	dbPath    string
)

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the collector endpoint",
		Long:  "Receive submitted collections on POST /api/bookmarks and upsert them into the configured store.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	addStoreFlags(cmd)
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (0 = config default)")

	return cmd
}

// addStoreFlags registers the flags that select a storage backend.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&storeType, "store", "", "storage backend: sqlite or mongodb")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path")
}

func applyStoreFlags(cfg *config.Config) {
	if storeType != "" {
		cfg.Storage.Type = storeType
	}
	if dbPath != "" {
		cfg.Storage.SQLitePath = dbPath
	}
}

// runServe executes the serve command.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(func(cfg *config.Config) {
		applyStoreFlags(cfg)
		if servePort > 0 {
			cfg.Server.Port = servePort
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	metrics := observability.NewMetrics(logger)
	srv := api.NewServer(cfg.Server, cfg.Metrics, store, metrics, logger)

	fmt.Println(titleStyle.Render(fmt.Sprintf("markbook collector running on http://localhost:%d", cfg.Server.Port)))
	fmt.Println(infoStyle.Render("Waiting for bookmarks..."))

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	metrics.LogSummary("collector server stopped")
	return nil
}
