// Package cleaner normalizes raw items into validated, plain-text
// cleaned items ready for persistence.
package cleaner

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

const derivedDescriptionRunes = 200

var whitespaceRun = regexp.MustCompile(`\s+`)

// timeLayouts are tried in order when normalizing published timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

// Cleaner normalizes and validates raw items.
type Cleaner struct {
	clock  pipeline.Clock
	logger *zap.Logger
}

// New builds a Cleaner.
func New(clock pipeline.Clock, logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{clock: clock, logger: logger}
}

// Clean normalizes one raw item. It returns nil when the item must be
// filtered: an empty title or URL after cleaning, or a URL that is not
// http(s).
func (c *Cleaner) Clean(item pipeline.RawItem) *pipeline.CleanedItem {
	title := NormalizeText(item.Title)
	url := strings.TrimSpace(item.URL)

	if title == "" || url == "" {
		c.logger.Debug("filtered item with empty title or url", zap.String("url", item.URL))
		return nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		c.logger.Debug("filtered item with non-http url", zap.String("url", url))
		return nil
	}

	content := NormalizeText(item.Content)
	description := NormalizeText(item.Description)
	if description == "" && content != "" {
		description = truncateRunes(content, derivedDescriptionRunes)
	}

	return &pipeline.CleanedItem{
		Title:       title,
		URL:         url,
		Content:     content,
		Description: description,
		Author:      NormalizeText(item.Author),
		Source:      NormalizeText(item.Source),
		Published:   c.normalizeTime(item.Published),
		Tags:        normalizeTags(item.Tags),
		Images:      dedupeNonEmpty(item.Images),
		Raw:         item.Raw,
	}
}

// normalizeTime parses the adapter-native timestamp into a canonical
// UTC time, falling back to now when it cannot be parsed.
func (c *Cleaner) normalizeTime(raw string) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t.UTC()
			}
		}
		if secs, err := strconv.ParseInt(trimmed, 10, 64); err == nil && secs > 0 {
			return time.Unix(secs, 0).UTC()
		}
		c.logger.Debug("unparsable published time, using now", zap.String("published", raw))
	}
	return c.clock.Now().UTC()
}

// StripHTML removes markup from a fragment, returning its text content
// with entities decoded. Inputs without markup pass through unchanged.
func StripHTML(s string) string {
	decoded := html.UnescapeString(s)
	if !strings.ContainsRune(decoded, '<') {
		return decoded
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(decoded))
	if err != nil {
		return decoded
	}
	return doc.Text()
}

// NormalizeText strips markup, collapses whitespace runs to single
// spaces, and trims.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(StripHTML(s), " "))
}

// normalizeTags splits comma-separated entries, trims, and drops
// empties and duplicates while preserving order.
func normalizeTags(tags []string) []string {
	var split []string
	for _, tag := range tags {
		for part := range strings.SplitSeq(tag, ",") {
			split = append(split, NormalizeText(part))
		}
	}
	return dedupeNonEmpty(split)
}

func dedupeNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
