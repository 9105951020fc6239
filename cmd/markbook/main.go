package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/markbook/internal/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "markbook",
		Short: "markbook: collect your X bookmarks into a local store",
		Long: `markbook scrolls your bookmarks page in a real browser, extracts every post
it sees, and sends the collection to a local collector server.

Commands:
  • collect     scroll the bookmarks feed and submit what was found
  • serve       run the collector endpoint backed by SQLite or MongoDB
  • categorize  assign a topic to stored bookmarks with an LLM
  • stats       summarize the store`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(categorizeCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration, lets apply adjust it from flags,
// validates it and builds the logger it describes.
func loadConfig(apply func(cfg *config.Config)) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if apply != nil {
		apply(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, setupLogger(cfg.Logging), nil
}

// setupLogger creates a structured logger.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("markbook %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Collector:\n")
			fmt.Printf("  Source URL:        %s\n", cfg.Collector.SourceURL)
			fmt.Printf("  Container:         %s (xpath %s)\n", cfg.Collector.ContainerSelector, cfg.Collector.ContainerXPath)
			fmt.Printf("  Scroll Pause:      %s\n", cfg.Collector.ScrollPause)
			fmt.Printf("  Stall Threshold:   %d\n", cfg.Collector.StallThreshold)
			fmt.Printf("  Scroll Step:       %v viewports\n", cfg.Collector.ScrollStep)
			fmt.Printf("  Max Cycles:        %d\n", cfg.Collector.MaxCycles)
			fmt.Printf("\nBrowser:\n")
			fmt.Printf("  Control URL:       %s\n", orNone(cfg.Browser.ControlURL))
			fmt.Printf("  Headless:          %v\n", cfg.Browser.Headless)
			fmt.Printf("  User Data Dir:     %s\n", orNone(cfg.Browser.UserDataDir))
			fmt.Printf("  Stealth:           %v\n", cfg.Browser.Stealth)
			fmt.Printf("\nSubmit:\n")
			fmt.Printf("  Endpoint:          %s\n", cfg.Submit.Endpoint)
			fmt.Printf("  Timeout:           %s\n", cfg.Submit.Timeout)
			fmt.Printf("  Compression:       %s\n", cfg.Submit.Compression)
			fmt.Printf("\nServer:\n")
			fmt.Printf("  Port:              %d\n", cfg.Server.Port)
			fmt.Printf("  Max Body Size:     %d bytes\n", cfg.Server.MaxBodySize)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			if cfg.Storage.Type == "mongodb" {
				fmt.Printf("  Database:          %s/%s\n", cfg.Storage.MongoDatabase, cfg.Storage.MongoCollection)
			} else {
				fmt.Printf("  Path:              %s\n", cfg.Storage.SQLitePath)
			}
			fmt.Printf("\nAI:\n")
			fmt.Printf("  Provider:          %s\n", cfg.AI.Provider)
			fmt.Printf("  Model:             %s\n", cfg.AI.Model)
			fmt.Printf("  Batch Size:        %d\n", cfg.AI.BatchSize)
			fmt.Printf("  API Key:           %v configured\n", cfg.AI.APIKey != "")
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Path:              %s\n", cfg.Metrics.Path)
			return nil
		},
	}
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
