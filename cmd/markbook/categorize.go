package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/markbook/internal/categorize"
	"github.com/IshaanNene/markbook/internal/config"
	"github.com/IshaanNene/markbook/internal/observability"
	"github.com/IshaanNene/markbook/internal/progress"
	"github.com/IshaanNene/markbook/internal/storage"
	"github.com/IshaanNene/markbook/internal/types"
)

var (
	aiProvider string
	aiModel    string
	aiLimit    int
	aiBatch    int
)

// categorizeCmd creates the "categorize" subcommand.
func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Assign a topic category to stored bookmarks",
		Long: `Send uncategorized bookmarks to an LLM in batches and store one category
per bookmark. Supports Ollama, OpenAI-compatible and custom endpoints; set
MARKBOOK_AI_API_KEY (or ai.api_key) when the provider needs a key.`,
		Args: cobra.NoArgs,
		RunE: runCategorize,
	}

	addStoreFlags(cmd)
	cmd.Flags().StringVar(&aiProvider, "provider", "", "LLM provider: ollama, openai or custom")
	cmd.Flags().StringVar(&aiModel, "model", "", "model name")
	cmd.Flags().IntVar(&aiLimit, "limit", 0, "maximum bookmarks to categorize (0 = config default)")
	cmd.Flags().IntVar(&aiBatch, "batch-size", 0, "bookmarks per LLM call (0 = config default)")

	return cmd
}

// runCategorize executes the categorize command.
func runCategorize(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(func(cfg *config.Config) {
		applyStoreFlags(cfg)
		if aiProvider != "" {
			cfg.AI.Provider = aiProvider
		}
		if aiModel != "" {
			cfg.AI.Model = aiModel
		}
		if aiLimit > 0 {
			cfg.AI.Limit = aiLimit
		}
		if aiBatch > 0 {
			cfg.AI.BatchSize = aiBatch
		}
	})
	if err != nil {
		return err
	}
	if cfg.AI.Provider == "openai" && cfg.AI.APIKey == "" {
		return fmt.Errorf("the openai provider needs an API key: set MARKBOOK_AI_API_KEY in your .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	reporter := progress.Func(func(ev types.Event) {
		fmt.Println(infoStyle.Render("  " + ev.Text))
	})

	c := categorize.New(
		categorize.NewLLMClient(cfg.AI, logger),
		store,
		categorize.Options{
			BatchSize:     cfg.AI.BatchSize,
			BatchInterval: cfg.AI.BatchInterval,
			Limit:         cfg.AI.Limit,
		},
		reporter,
		observability.NewMetrics(logger),
		logger,
	)

	res, err := c.Run(ctx)
	if err != nil {
		return fmt.Errorf("categorize: %w", err)
	}

	if res.Pending == 0 {
		fmt.Println(statusStyle.Render("All bookmarks are already categorized!"))
		return nil
	}
	fmt.Println(statusStyle.Render(fmt.Sprintf("Categorized %d of %d bookmarks.", res.Categorized, res.Pending)))
	if res.FailedBatches > 0 {
		fmt.Println(errorStyle.Render(fmt.Sprintf("%d batches failed; run again to retry them.", res.FailedBatches)))
	}
	return nil
}
