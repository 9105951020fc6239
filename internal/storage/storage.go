// Package storage persists submitted bookmarks for the collector server
// and exports collections to files.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IshaanNene/markbook/internal/config"
	"github.com/IshaanNene/markbook/internal/types"
)

// Store is the interface for the collector server's backends.
type Store interface {
	// Upsert inserts records or refreshes the mutable fields of records
	// already stored under the same tweet_id. It returns len(records).
	Upsert(ctx context.Context, records []types.Record) (int, error)

	// Stats summarizes the stored bookmarks.
	Stats(ctx context.Context) (*Stats, error)

	// Uncategorized returns up to limit bookmarks without a category,
	// oldest first. A limit <= 0 returns all of them.
	Uncategorized(ctx context.Context, limit int) ([]Bookmark, error)

	// SetCategories assigns categories keyed by tweet_id and returns the
	// number of bookmarks updated.
	SetCategories(ctx context.Context, categories map[string]string) (int, error)

	// Search lists stored bookmarks matching q.
	Search(ctx context.Context, q Query) ([]Bookmark, error)

	// Delete removes the bookmark stored under tweetID and reports whether
	// it existed.
	Delete(ctx context.Context, tweetID string) (bool, error)

	// Close releases resources.
	Close() error

	// Name returns the backend identifier.
	Name() string
}

// Bookmark is a stored Record.
type Bookmark struct {
	types.Record
	Category   *string   `json:"category"`
	IngestedAt time.Time `json:"ingested_at"`
}

// MarshalJSON writes the record fields together with category and
// ingested_at. Without it the embedded Record's encoder would hide them.
func (b Bookmark) MarshalJSON() ([]byte, error) {
	rec, err := json.Marshal(b.Record)
	if err != nil {
		return nil, err
	}
	extra, err := json.Marshal(struct {
		Category   *string   `json:"category"`
		IngestedAt time.Time `json:"ingested_at"`
	}{b.Category, b.IngestedAt})
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(rec)+len(extra))
	out = append(out, rec[:len(rec)-1]...)
	out = append(out, ',')
	return append(out, extra[1:]...), nil
}

// AuthorCount is one row of the top-authors table.
type AuthorCount struct {
	Handle *string `json:"author_handle"`
	Name   *string `json:"author_name"`
	Count  int     `json:"count"`
}

// CategoryCount is the number of bookmarks in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Stats summarizes a store.
type Stats struct {
	Total         int             `json:"total"`
	Authors       int             `json:"authors"`
	Earliest      *string         `json:"earliest"`
	Latest        *string         `json:"latest"`
	TopAuthors    []AuthorCount   `json:"top_authors"`
	Uncategorized int             `json:"uncategorized"`
	Categories    []CategoryCount `json:"categories"`
}

// topAuthorLimit bounds Stats.TopAuthors.
const topAuthorLimit = 10

// DefaultSearchLimit is the number of bookmarks listed when no limit is
// given.
const DefaultSearchLimit = 500

// Sort orders search results.
type Sort string

const (
	SortNewest    Sort = "newest"
	SortOldest    Sort = "oldest"
	SortLiked     Sort = "liked"
	SortRetweeted Sort = "retweeted"
	SortDiscussed Sort = "discussed"
)

// Sorts lists the supported orders, default first.
var Sorts = []Sort{SortNewest, SortOldest, SortLiked, SortRetweeted, SortDiscussed}

// ParseSort validates s. An empty string selects SortNewest.
func ParseSort(s string) (Sort, error) {
	if s == "" {
		return SortNewest, nil
	}
	for _, o := range Sorts {
		if string(o) == strings.ToLower(s) {
			return o, nil
		}
	}
	return "", fmt.Errorf("unknown sort %q", s)
}

// Query filters and orders a Search.
type Query struct {
	// Search matches a substring of the text, author name or handle,
	// ignoring case.
	Search string

	// Author and Category match exactly when set.
	Author   string
	Category string

	Sort Sort

	// Limit caps the results. A limit <= 0 returns all matches.
	Limit int
}

// normalize trims the filters, drops a leading @ from Author and fills in
// the default sort.
func (q Query) normalize() (Query, error) {
	q.Search = strings.TrimSpace(q.Search)
	q.Author = strings.TrimPrefix(strings.TrimSpace(q.Author), "@")
	q.Category = strings.TrimSpace(q.Category)
	sort, err := ParseSort(string(q.Sort))
	if err != nil {
		return q, err
	}
	q.Sort = sort
	return q, nil
}

// NewStore opens the backend selected by cfg.Type.
func NewStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	case "mongodb":
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
