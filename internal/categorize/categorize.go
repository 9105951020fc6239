// Package categorize assigns one topic category to each stored bookmark
// using an LLM.
package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/IshaanNene/markbook/internal/observability"
	"github.com/IshaanNene/markbook/internal/progress"
	"github.com/IshaanNene/markbook/internal/storage"
	"github.com/IshaanNene/markbook/internal/types"
)

// Categories is the fixed set a bookmark can be assigned to.
var Categories = []string{
	"Tech/AI",
	"Business/Finance",
	"Science",
	"Politics",
	"Career/Professional",
	"Design/Creative",
	"Humor/Entertainment",
	"News/Current Events",
	"Personal Development",
	"Health/Fitness",
	"Education/Learning",
	"Other",
}

// Fallback is used for any category outside Categories.
const Fallback = "Other"

// maxTextRunes bounds how much of each post is sent.
const maxTextRunes = 300

// Generator produces a completion for a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Store is the part of storage.Store the categorizer needs.
type Store interface {
	Uncategorized(ctx context.Context, limit int) ([]storage.Bookmark, error)
	SetCategories(ctx context.Context, categories map[string]string) (int, error)
}

// Options tunes a run.
type Options struct {
	BatchSize     int
	BatchInterval time.Duration
	Limit         int
}

// Result summarizes a run.
type Result struct {
	Pending       int
	Categorized   int
	FailedBatches int
}

// Categorizer sends uncategorized bookmarks to an LLM in batches.
type Categorizer struct {
	llm      Generator
	store    Store
	opts     Options
	limiter  *rate.Limiter
	reporter progress.Reporter
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates a Categorizer. reporter and metrics may be nil.
func New(llm Generator, store Store, opts Options, reporter progress.Reporter, metrics *observability.Metrics, logger *slog.Logger) *Categorizer {
	if opts.BatchSize < 1 {
		opts.BatchSize = 20
	}
	limit := rate.Inf
	if opts.BatchInterval > 0 {
		limit = rate.Every(opts.BatchInterval)
	}
	if reporter == nil {
		reporter = progress.Discard
	}
	if metrics == nil {
		metrics = observability.NewMetrics(logger)
	}
	return &Categorizer{
		llm:      llm,
		store:    store,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
		reporter: reporter,
		metrics:  metrics,
		logger:   logger.With("component", "categorizer"),
	}
}

// Run categorizes up to Options.Limit bookmarks. A batch that fails is
// logged and skipped; only store reads and context cancellation abort.
func (c *Categorizer) Run(ctx context.Context) (*Result, error) {
	pending, err := c.store.Uncategorized(ctx, c.opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("load uncategorized: %w", err)
	}

	res := &Result{Pending: len(pending)}
	if len(pending) == 0 {
		c.logger.Info("all bookmarks are already categorized")
		return res, nil
	}

	c.logger.Info("categorizing bookmarks", "count", len(pending), "batch_size", c.opts.BatchSize)

	for start := 0; start < len(pending); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(pending))
		batch := pending[start:end]
		batchNo := start/c.opts.BatchSize + 1

		if err := c.limiter.Wait(ctx); err != nil {
			return res, err
		}

		assigned, err := c.categorizeBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.FailedBatches++
			c.logger.Warn("batch failed", "batch", batchNo, "error", err)
			continue
		}

		n, err := c.store.SetCategories(ctx, assigned)
		if err != nil {
			res.FailedBatches++
			c.logger.Warn("store categories failed", "batch", batchNo, "error", err)
			continue
		}
		res.Categorized += n
		c.metrics.RecordsCategorized.Add(int64(n))
		c.reporter.Report(types.Progress("%d/%d done", res.Categorized, len(pending)))
	}

	c.logger.Info("categorization finished",
		"categorized", res.Categorized,
		"pending", res.Pending,
		"failed_batches", res.FailedBatches,
	)
	return res, nil
}

func (c *Categorizer) categorizeBatch(ctx context.Context, batch []storage.Bookmark) (map[string]string, error) {
	reply, err := c.llm.Generate(ctx, SystemPrompt(), BatchPrompt(batch))
	if err != nil {
		return nil, err
	}

	parsed, err := ParseReply(reply)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(batch))
	for _, b := range batch {
		wanted[b.ID] = true
	}

	out := make(map[string]string, len(parsed))
	for id, category := range parsed {
		if !wanted[id] {
			c.logger.Debug("ignoring unknown id in reply", "id", id)
			continue
		}
		out[id] = Normalize(category)
	}
	return out, nil
}

// SystemPrompt lists the allowed categories and the reply format.
func SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a tweet categorizer. Given a batch of tweets, assign exactly ONE category to each tweet from this list:\n\n")
	for _, c := range Categories {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with a JSON array of objects: [{\"id\": \"<tweet_id>\", \"category\": \"<category>\"}]\n")
	b.WriteString("No explanation, just the JSON array.")
	return b.String()
}

// BatchPrompt renders one line per bookmark: [ID=<id>] @<handle>: <text>.
func BatchPrompt(batch []storage.Bookmark) string {
	lines := make([]string, 0, len(batch))
	for _, b := range batch {
		author := types.Deref(b.AuthorHandle)
		if author == "" {
			author = "unknown"
		}
		lines = append(lines, fmt.Sprintf("[ID=%s] @%s: %s", b.ID, author, truncateRunes(b.Text, maxTextRunes)))
	}
	return strings.Join(lines, "\n\n")
}

// ParseReply decodes the LLM's JSON array into id -> category. Markdown
// code fences and surrounding prose are tolerated; ids may be strings or
// numbers.
func ParseReply(reply string) (map[string]string, error) {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		if _, rest, ok := strings.Cut(text, "\n"); ok {
			text = rest
		}
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in reply")
	}

	var items []struct {
		ID       json.RawMessage `json:"id"`
		Category string          `json:"category"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}

	out := make(map[string]string, len(items))
	for _, item := range items {
		id, ok := rawID(item.ID)
		if !ok {
			continue
		}
		out[id] = item.Category
	}
	return out, nil
}

func rawID(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return n.String(), true
		}
	}
	return "", false
}

// Normalize maps category onto Categories, case-insensitively, and
// returns Fallback for anything else.
func Normalize(category string) string {
	category = strings.TrimSpace(category)
	for _, c := range Categories {
		if strings.EqualFold(c, category) {
			return c
		}
	}
	return Fallback
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
