package view

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ReplayView replays saved page snapshots, one per cycle. Scrolling
// advances to the next snapshot and the last snapshot repeats once the
// recording is exhausted, the way a fully scrolled feed stops changing.
type ReplayView struct {
	snapshots []*html.Node
	names     []string
	xpath     string
	pageURL   string
	cursor    int
	logger    *slog.Logger
}

// NewReplayView loads every *.html file in dir in lexical order.
// xpath selects the containers inside each snapshot.
func NewReplayView(dir, xpath, pageURL string, logger *slog.Logger) (*ReplayView, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no *.html snapshots in %s", dir)
	}
	sort.Strings(matches)

	v := &ReplayView{
		xpath:   xpath,
		pageURL: pageURL,
		logger:  logger.With("component", "replay_view"),
	}
	for _, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
		doc, err := htmlquery.Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
		}
		v.snapshots = append(v.snapshots, doc)
		v.names = append(v.names, filepath.Base(path))
	}

	v.logger.Info("snapshots loaded", "dir", dir, "count", len(v.snapshots))
	return v, nil
}

// NewReplayViewFromStrings builds a replay from in-memory snapshots.
func NewReplayViewFromStrings(snapshots []string, xpath, pageURL string, logger *slog.Logger) (*ReplayView, error) {
	v := &ReplayView{
		xpath:   xpath,
		pageURL: pageURL,
		logger:  logger.With("component", "replay_view"),
	}
	for i, s := range snapshots {
		doc, err := htmlquery.Parse(strings.NewReader(s))
		if err != nil {
			return nil, fmt.Errorf("parse snapshot %d: %w", i, err)
		}
		v.snapshots = append(v.snapshots, doc)
		v.names = append(v.names, fmt.Sprintf("snapshot-%d", i))
	}
	if len(v.snapshots) == 0 {
		return nil, fmt.Errorf("no snapshots")
	}
	return v, nil
}

// URL returns the page URL the recording was taken from.
func (v *ReplayView) URL(ctx context.Context) (string, error) {
	return v.pageURL, nil
}

// Containers returns the containers of the current snapshot.
func (v *ReplayView) Containers(ctx context.Context) ([]*goquery.Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nodes, err := htmlquery.QueryAll(v.snapshots[v.cursor], v.xpath)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", v.xpath, err)
	}

	containers := make([]*goquery.Selection, 0, len(nodes))
	for _, n := range nodes {
		containers = append(containers, goquery.NewDocumentFromNode(n).Selection)
	}

	v.logger.Debug("snapshot sampled", "snapshot", v.names[v.cursor], "containers", len(containers))
	return containers, nil
}

// ScrollBy moves to the next snapshot; the distance is ignored.
func (v *ReplayView) ScrollBy(ctx context.Context, viewports float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.cursor < len(v.snapshots)-1 {
		v.cursor++
	}
	return nil
}

// Len returns the number of loaded snapshots.
func (v *ReplayView) Len() int {
	return len(v.snapshots)
}
