package cleaner

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newCleaner() *Cleaner {
	return New(fixedClock{now: testNow}, zap.NewNop())
}

func TestClean_NormalizesFields(t *testing.T) {
	t.Parallel()

	item := pipeline.RawItem{
		Title:       "  Rates   <b>climb</b>\n again  ",
		URL:         " https://example.com/rates ",
		Content:     "<p>Body one.</p>\n<p>Body   two.</p>",
		Description: "  <i>teaser</i> ",
		Author:      " Jane  Doe ",
		Published:   "Mon, 02 Mar 2026 08:00:00 +0000",
		Tags:        []string{"economy, rates", "economy", ""},
		Images:      []string{"https://example.com/a.jpg", "https://example.com/a.jpg", ""},
	}

	cleaned := newCleaner().Clean(item)
	require.NotNil(t, cleaned)
	require.Equal(t, "Rates climb again", cleaned.Title)
	require.Equal(t, "https://example.com/rates", cleaned.URL)
	require.Equal(t, "Body one. Body two.", cleaned.Content)
	require.Equal(t, "teaser", cleaned.Description)
	require.Equal(t, "Jane Doe", cleaned.Author)
	require.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), cleaned.Published)
	require.Equal(t, []string{"economy", "rates"}, cleaned.Tags)
	require.Equal(t, []string{"https://example.com/a.jpg"}, cleaned.Images)
}

func TestClean_FiltersInvalidItems(t *testing.T) {
	t.Parallel()

	c := newCleaner()
	cases := []pipeline.RawItem{
		{Title: "", URL: "https://example.com/x"},
		{Title: "<b></b>", URL: "https://example.com/x"},
		{Title: "has title", URL: ""},
		{Title: "has title", URL: "ftp://example.com/x"},
		{Title: "has title", URL: "javascript:alert(1)"},
	}
	for _, item := range cases {
		require.Nil(t, c.Clean(item), "item %+v", item)
	}
}

func TestClean_DerivesDescriptionFromContent(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("abcde ", 100)
	cleaned := newCleaner().Clean(pipeline.RawItem{
		Title:   "story",
		URL:     "https://example.com/s",
		Content: long,
	})
	require.NotNil(t, cleaned)
	require.Len(t, []rune(cleaned.Description), 200)
	require.True(t, strings.HasPrefix(strings.TrimSpace(cleaned.Content), cleaned.Description[:20]))
}

func TestClean_TimeFallsBackToNow(t *testing.T) {
	t.Parallel()

	c := newCleaner()

	cleaned := c.Clean(pipeline.RawItem{Title: "s", URL: "https://example.com/s", Published: "not a date"})
	require.NotNil(t, cleaned)
	require.Equal(t, testNow, cleaned.Published)

	cleaned = c.Clean(pipeline.RawItem{Title: "s", URL: "https://example.com/s"})
	require.NotNil(t, cleaned)
	require.Equal(t, testNow, cleaned.Published)
}

func TestClean_ParsesUnixSeconds(t *testing.T) {
	t.Parallel()

	cleaned := newCleaner().Clean(pipeline.RawItem{
		Title:     "s",
		URL:       "https://example.com/s",
		Published: "1772368200",
	})
	require.NotNil(t, cleaned)
	require.Equal(t, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC), cleaned.Published)
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	require.Equal(t, "plain text", StripHTML("plain text"))
	require.Equal(t, "a < b", StripHTML("a &lt; b"))
	require.Equal(t, "linked", StripHTML(`<a href="https://example.com">linked</a>`))
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", NormalizeText(""))
	require.Equal(t, "a b c", NormalizeText("  a\t b \n c "))
	require.Equal(t, "bold move", NormalizeText("<b>bold</b>   move"))
}
