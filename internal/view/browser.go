// Package view provides the rendered feeds a collection session samples:
// a live browser page and an offline replay of saved snapshots.
package view

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
)

// BrowserView samples containers from a live rod page.
type BrowserView struct {
	page     *rod.Page
	selector string
	logger   *slog.Logger
}

// NewBrowserView wraps page; selector matches one container per feed item.
func NewBrowserView(page *rod.Page, selector string, logger *slog.Logger) *BrowserView {
	return &BrowserView{
		page:     page,
		selector: selector,
		logger:   logger.With("component", "browser_view"),
	}
}

// URL returns the address the page is currently showing.
func (v *BrowserView) URL(ctx context.Context) (string, error) {
	info, err := v.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Containers snapshots the rendered document once and returns every
// container in it. Taking one snapshot per cycle keeps the set consistent
// even while the page keeps recycling nodes.
func (v *BrowserView) Containers(ctx context.Context) ([]*goquery.Selection, error) {
	html, err := v.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("page html: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}

	var containers []*goquery.Selection
	doc.Find(v.selector).Each(func(_ int, sel *goquery.Selection) {
		containers = append(containers, sel)
	})

	v.logger.Debug("page sampled", "containers", len(containers), "size", len(html))
	return containers, nil
}

// ScrollBy scrolls the window down by viewports × the window height.
func (v *BrowserView) ScrollBy(ctx context.Context, viewports float64) error {
	_, err := v.page.Context(ctx).Eval(`(step) => window.scrollBy(0, window.innerHeight * step)`, viewports)
	if err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}
