package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/markbook/internal/storage"
	"github.com/IshaanNene/markbook/internal/types"
)

var statsJSON bool

// statsCmd creates the "stats" subcommand.
func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the bookmark store",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	addStoreFlags(cmd)
	cmd.Flags().BoolVar(&statsJSON, "json", false, "print the stats as JSON")

	return cmd
}

// runStats executes the stats command.
func runStats(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(applyStoreFlags)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := storage.NewStore(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Println(titleStyle.Render("Bookmarks"))
	fmt.Printf("  Total:          %d\n", stats.Total)
	fmt.Printf("  Authors:        %d\n", stats.Authors)
	fmt.Printf("  Earliest:       %s\n", orNone(types.Deref(stats.Earliest)))
	fmt.Printf("  Latest:         %s\n", orNone(types.Deref(stats.Latest)))
	fmt.Printf("  Uncategorized:  %d\n", stats.Uncategorized)

	if len(stats.TopAuthors) > 0 {
		fmt.Println()
		fmt.Println(titleStyle.Render("Top authors"))
		for _, a := range stats.TopAuthors {
			handle := types.Deref(a.Handle)
			if handle == "" {
				handle = "(unknown)"
			}
			fmt.Printf("  %4d  @%s %s\n", a.Count, handle, infoStyle.Render(types.Deref(a.Name)))
		}
	}

	if len(stats.Categories) > 0 {
		fmt.Println()
		fmt.Println(titleStyle.Render("Categories"))
		for _, c := range stats.Categories {
			fmt.Printf("  %4d  %s\n", c.Count, c.Category)
		}
	}
	return nil
}
