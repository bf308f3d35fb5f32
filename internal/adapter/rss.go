package adapter

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/cleaner"
	"github.com/mediapulse/newscrawler/internal/fetch"
	"github.com/mediapulse/newscrawler/internal/pipeline"
)

const rssAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"

// RSSAdapter parses RSS and Atom feeds via gofeed.
type RSSAdapter struct {
	base
}

// FetchData fetches the feed document.
func (a *RSSAdapter) FetchData(ctx context.Context) pipeline.FetchResult {
	return a.client.Fetch(ctx, fetch.Request{
		URL:     a.cfg.URL,
		Headers: a.requestHeaders(rssAccept),
	})
}

// ParseResponse extracts items from the feed body. Structural feed
// errors yield an empty batch, never an error.
func (a *RSSAdapter) ParseResponse(result pipeline.FetchResult) []pipeline.RawItem {
	if !result.OK() {
		return nil
	}
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(result.Body))
	if err != nil {
		a.logger.Warn("feed parse failed", zap.Error(err))
		return nil
	}

	items := make([]pipeline.RawItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		item := a.itemFromEntry(entry)
		if !a.acceptItem(item) {
			continue
		}
		items = append(items, item)
	}
	return items
}

// Run composes fetch and parse.
func (a *RSSAdapter) Run(ctx context.Context) pipeline.ItemsResult {
	result := a.FetchData(ctx)
	if !result.OK() {
		return pipeline.ItemsErrorf("fetch feed %s: %s", a.cfg.URL, result.Message)
	}
	return pipeline.ItemsOK(a.ParseResponse(result))
}

func (a *RSSAdapter) itemFromEntry(entry *gofeed.Item) pipeline.RawItem {
	content := entry.Content
	if content == "" {
		content = entry.Description
	}

	item := pipeline.RawItem{
		Title:       strings.TrimSpace(entry.Title),
		URL:         strings.TrimSpace(extractFeedLink(entry)),
		Content:     cleaner.StripHTML(content),
		Description: cleaner.StripHTML(entry.Description),
		Source:      a.cfg.Name,
		Published:   feedPublished(entry),
		Tags:        append([]string(nil), entry.Categories...),
	}

	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		item.Author = entry.Authors[0].Name
	}
	for _, enc := range entry.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			item.Images = append(item.Images, enc.URL)
		}
	}
	if entry.Image != nil && entry.Image.URL != "" {
		item.Images = append(item.Images, entry.Image.URL)
	}
	return item
}

// extractFeedLink prefers the explicit link, falling back to a GUID
// that looks like an HTTP URL.
func extractFeedLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if hasHTTPScheme(entry.GUID) {
		return entry.GUID
	}
	return ""
}

func feedPublished(entry *gofeed.Item) string {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC().Format(time.RFC3339)
	}
	if entry.Published != "" {
		return entry.Published
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC().Format(time.RFC3339)
	}
	return entry.Updated
}
