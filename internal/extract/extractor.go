// Package extract turns one rendered feed container into a Record.
package extract

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/markbook/internal/types"
)

// Selectors for the parts of a rendered post.
const (
	permalinkSelector = `a[href*="/status/"]`
	textSelector      = `[data-testid="tweetText"]`
	authorSelector    = `a[role="link"]`
	timeSelector      = `time`
	photoSelector     = `[data-testid="tweetPhoto"] img`
)

// Extractor extracts Records from item containers.
type Extractor struct {
	origin string
	logger *slog.Logger
}

// New creates an Extractor that resolves relative permalinks against origin.
func New(origin string, logger *slog.Logger) *Extractor {
	return &Extractor{
		origin: origin,
		logger: logger.With("component", "extractor"),
	}
}

// Extract returns the Record for container, or false when the container
// has no canonical permalink. It never panics: failures are logged and
// reported as no result.
func (e *Extractor) Extract(container *goquery.Selection) (rec types.Record, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err := &types.ExtractError{Step: "container", Err: fmt.Errorf("%v", r)}
			e.logger.Warn("failed to parse container", "error", err)
			rec, ok = types.Record{}, false
		}
	}()

	if container == nil || container.Length() == 0 {
		return types.Record{}, false
	}

	id, url, found := e.permalink(container)
	if !found {
		e.logger.Debug("container skipped", "reason", types.ErrNoResult)
		return types.Record{}, false
	}

	rec = types.Record{
		ID:        id,
		URL:       url,
		MediaURLs: mediaURLs(container),
	}

	if region := container.Find(textSelector).First(); region.Length() > 0 {
		rec.Text = InnerText(region)
	}

	rec.AuthorName, rec.AuthorHandle = author(container)

	if ts, exists := container.Find(timeSelector).First().Attr("datetime"); exists {
		rec.CreatedAt = types.StringPtr(ts)
	}

	rec.LikeCount = ReadMetric(container, "like")
	rec.RetweetCount = ReadMetric(container, "retweet")
	rec.ReplyCount = ReadMetric(container, "reply")

	return rec, true
}

// permalink scans status links and returns the first canonical one.
func (e *Extractor) permalink(container *goquery.Selection) (id, url string, found bool) {
	container.Find(permalinkSelector).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		id, url, found = ParsePermalink(href, e.origin)
		return !found
	})
	return id, url, found
}

// author returns the display name and handle of the first profile link.
func author(container *goquery.Selection) (name, handle *string) {
	container.Find(authorSelector).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		h, ok := ProfileHandle(href)
		if !ok {
			return true
		}
		handle = types.StringPtr(h)
		link.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
			t := strings.TrimSpace(InnerText(span))
			if t != "" && !strings.HasPrefix(t, "@") {
				name = types.StringPtr(t)
				return false
			}
			return true
		})
		return false
	})
	return name, handle
}

func mediaURLs(container *goquery.Selection) []string {
	urls := []string{}
	container.Find(photoSelector).Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" || strings.Contains(src, "emoji") || strings.Contains(src, "profile") {
			return
		}
		urls = append(urls, src)
	})
	return urls
}

// InnerText renders a selection roughly the way a browser's innerText
// does for inline content: text nodes verbatim, <br> as a newline and
// emoji images as their alt text.
func InnerText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}
	return b.String()
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "br":
			b.WriteByte('\n')
			return
		case "img":
			for _, a := range n.Attr {
				if a.Key == "alt" {
					b.WriteString(a.Val)
				}
			}
			return
		case "script", "style":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}
