package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/markbook/internal/storage"
	"github.com/IshaanNene/markbook/internal/types"
)

var (
	listSearch   string
	listAuthor   string
	listCategory string
	listSort     string
	listLimit    int
	listJSON     bool
)

// listCmd creates the "list" subcommand.
func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse stored bookmarks",
		Long: `Search and filter the bookmark store.

Sort orders: newest (default), oldest, liked, retweeted, discussed.`,
		Example: `  markbook list --search golang --sort liked
  markbook list --author @jack --limit 20
  markbook list --category "Tech/AI" --json`,
		Args: cobra.NoArgs,
		RunE: runList,
	}

	addStoreFlags(cmd)
	cmd.Flags().StringVarP(&listSearch, "search", "s", "", "match text, author name or handle")
	cmd.Flags().StringVar(&listAuthor, "author", "", "only bookmarks by this handle")
	cmd.Flags().StringVar(&listCategory, "category", "", "only bookmarks in this category")
	cmd.Flags().StringVar(&listSort, "sort", string(storage.SortNewest), "sort order")
	cmd.Flags().IntVarP(&listLimit, "limit", "n", storage.DefaultSearchLimit, "maximum bookmarks to show (0 = all)")
	cmd.Flags().BoolVar(&listJSON, "json", false, "print the bookmarks as JSON")

	return cmd
}

// runList executes the list command.
func runList(cmd *cobra.Command, args []string) error {
	sort, err := storage.ParseSort(listSort)
	if err != nil {
		return err
	}

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

	bookmarks, err := store.Search(ctx, storage.Query{
		Search:   listSearch,
		Author:   listAuthor,
		Category: listCategory,
		Sort:     sort,
		Limit:    listLimit,
	})
	if err != nil {
		return err
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(bookmarks)
	}

	if len(bookmarks) == 0 {
		fmt.Println(infoStyle.Render("No bookmarks match."))
		return nil
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("Showing %d bookmarks", len(bookmarks))))
	for _, b := range bookmarks {
		fmt.Println()
		fmt.Println(renderBookmark(b))
	}
	return nil
}

// renderBookmark formats one stored bookmark for the terminal.
func renderBookmark(b storage.Bookmark) string {
	author := "Unknown"
	if h := types.Deref(b.AuthorHandle); h != "" {
		author = "@" + h
	}
	header := author
	if name := types.Deref(b.AuthorName); name != "" {
		header = name + " (" + author + ")"
	}
	if date := types.Deref(b.CreatedAt); len(date) >= 10 {
		header += " · " + date[:10]
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(header))
	if c := types.Deref(b.Category); c != "" {
		sb.WriteString("  " + statusStyle.Render("["+c+"]"))
	}
	sb.WriteString("\n")
	if b.Text != "" {
		sb.WriteString(b.Text + "\n")
	}
	if len(b.MediaURLs) > 0 {
		sb.WriteString(infoStyle.Render(fmt.Sprintf("%d media", len(b.MediaURLs))) + "\n")
	}
	sb.WriteString(infoStyle.Render(fmt.Sprintf("♥ %d  ⟲ %d  ↩ %d  %s",
		b.LikeCount, b.RetweetCount, b.ReplyCount, b.URL)))
	return sb.String()
}

// deleteCmd creates the "delete" subcommand.
func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <tweet_id>...",
		Short: "Remove bookmarks from the store",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDelete,
	}

	addStoreFlags(cmd)

	return cmd
}

// runDelete executes the delete command.
func runDelete(cmd *cobra.Command, args []string) error {
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

	missing := 0
	for _, id := range args {
		deleted, err := store.Delete(ctx, id)
		if err != nil {
			return err
		}
		if deleted {
			fmt.Println(statusStyle.Render("Deleted " + id))
		} else {
			missing++
			fmt.Println(errorStyle.Render("Not found: " + id))
		}
	}
	if missing > 0 {
		return fmt.Errorf("%d of %d bookmarks not found", missing, len(args))
	}
	return nil
}
