package adapter

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/fetch"
	"github.com/mediapulse/newscrawler/internal/pipeline"
)

const htmlAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// HTMLAdapter extracts items from listing pages via the CSS selectors
// configured for the source.
type HTMLAdapter struct {
	base
}

// FetchData fetches the listing page.
func (a *HTMLAdapter) FetchData(ctx context.Context) pipeline.FetchResult {
	return a.client.Fetch(ctx, fetch.Request{
		URL:     a.cfg.URL,
		Headers: a.requestHeaders(htmlAccept),
	})
}

// ParseResponse extracts items from the listing page. A missing list
// selector or unparsable document yields an empty batch.
func (a *HTMLAdapter) ParseResponse(result pipeline.FetchResult) []pipeline.RawItem {
	if !result.OK() {
		return nil
	}
	selectors := a.cfg.Data.Selectors
	if selectors == nil || selectors.List == "" {
		a.logger.Warn("html source has no list selector")
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body))
	if err != nil {
		a.logger.Warn("html parse failed", zap.Error(err))
		return nil
	}

	baseURL, err := url.Parse(a.cfg.URL)
	if err != nil {
		a.logger.Warn("invalid source url", zap.Error(err))
		return nil
	}

	var items []pipeline.RawItem
	doc.Find(selectors.List).Each(func(_ int, sel *goquery.Selection) {
		item := a.itemFromSelection(sel, selectors, baseURL)
		if !a.acceptItem(item) {
			return
		}
		items = append(items, item)
	})
	return items
}

// Run composes fetch and parse, then runs the optional per-item
// detail-page fetch when a content selector is configured.
func (a *HTMLAdapter) Run(ctx context.Context) pipeline.ItemsResult {
	result := a.FetchData(ctx)
	if !result.OK() {
		return pipeline.ItemsErrorf("fetch %s: %s", a.cfg.URL, result.Message)
	}
	items := a.ParseResponse(result)
	a.fetchContent(ctx, items)
	return pipeline.ItemsOK(items)
}

func (a *HTMLAdapter) itemFromSelection(
	sel *goquery.Selection,
	selectors *pipeline.SelectorConfig,
	baseURL *url.URL,
) pipeline.RawItem {
	item := pipeline.RawItem{
		Title:       selectText(sel, selectors.Title),
		URL:         a.extractLink(sel, selectors.Link, baseURL),
		Author:      selectText(sel, selectors.Author),
		Published:   selectText(sel, selectors.Time),
		Description: selectText(sel, selectors.Summary),
		Source:      a.cfg.Name,
	}
	if selectors.Tags != "" {
		sel.Find(selectors.Tags).Each(func(_ int, tag *goquery.Selection) {
			if text := strings.TrimSpace(tag.Text()); text != "" {
				item.Tags = append(item.Tags, text)
			}
		})
	}
	if selectors.Images != "" {
		sel.Find(selectors.Images).Each(func(_ int, img *goquery.Selection) {
			if src, ok := img.Attr("src"); ok && src != "" {
				item.Images = append(item.Images, resolveRef(baseURL, src))
			}
		})
	}
	return item
}

// extractLink reads the href from the link selector, or from the list
// element itself when it is an anchor, resolving relative references
// against the source URL.
func (a *HTMLAdapter) extractLink(sel *goquery.Selection, linkSelector string, baseURL *url.URL) string {
	target := sel
	if linkSelector != "" {
		target = sel.Find(linkSelector)
	}
	href, ok := target.Attr("href")
	if !ok || href == "" {
		if nested := sel.Find("a").First(); nested.Length() > 0 {
			href, _ = nested.Attr("href")
		}
	}
	if href == "" {
		return ""
	}
	return resolveRef(baseURL, href)
}

func resolveRef(baseURL *url.URL, ref string) string {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(parsed).String()
}

// fetchContent fetches each item's detail page and extracts the body
// text via the content selector. Failures leave the item without
// content and never abort the batch.
func (a *HTMLAdapter) fetchContent(ctx context.Context, items []pipeline.RawItem) {
	selectors := a.cfg.Data.Selectors
	if selectors == nil || selectors.Content == "" {
		return
	}
	for i := range items {
		result := a.client.Fetch(ctx, fetch.Request{
			URL:     items[i].URL,
			Headers: a.requestHeaders(htmlAccept),
		})
		if !result.OK() {
			a.logger.Warn("detail page fetch failed",
				zap.String("url", items[i].URL), zap.String("message", result.Message))
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body))
		if err != nil {
			a.logger.Warn("detail page parse failed", zap.String("url", items[i].URL), zap.Error(err))
			continue
		}
		items[i].Content = strings.TrimSpace(doc.Find(selectors.Content).Text())
		items[i].Raw = result.Body
	}
}

func selectText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(sel.Find(selector).First().Text())
}
