package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/cleaner"
	iduuid "github.com/mediapulse/newscrawler/internal/id/uuid"
	"github.com/mediapulse/newscrawler/internal/persist"
	"github.com/mediapulse/newscrawler/internal/pipeline"
	pubmemory "github.com/mediapulse/newscrawler/internal/publisher/memory"
	storememory "github.com/mediapulse/newscrawler/internal/store/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeAdapter struct {
	results []pipeline.ItemsResult
	calls   int
}

func (a *fakeAdapter) FetchData(context.Context) pipeline.FetchResult {
	return pipeline.FetchOK(200, nil, nil)
}

func (a *fakeAdapter) ParseResponse(pipeline.FetchResult) []pipeline.RawItem { return nil }

func (a *fakeAdapter) Run(context.Context) pipeline.ItemsResult {
	idx := a.calls
	if idx >= len(a.results) {
		idx = len(a.results) - 1
	}
	a.calls++
	return a.results[idx]
}

type harness struct {
	runner    *Runner
	configs   *storememory.ConfigStore
	tasks     *storememory.TaskStore
	articles  *storememory.ArticleStore
	publisher *pubmemory.Publisher
	sleeps    []time.Duration
}

func newHarness(t *testing.T, ad pipeline.Adapter) *harness {
	t.Helper()
	h := &harness{
		configs:   storememory.NewConfigStore(),
		tasks:     storememory.NewTaskStore(),
		articles:  storememory.NewArticleStore(),
		publisher: pubmemory.New(),
	}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cl := cleaner.New(clock, zap.NewNop())
	persister := persist.New(h.articles, nil, h.publisher, clock,
		persist.Config{Topic: "articles.saved"}, zap.NewNop())
	factory := func(pipeline.SourceConfig) (pipeline.Adapter, error) { return ad, nil }
	h.runner = New(h.configs, h.tasks, cl, persister, factory,
		clock, iduuid.NewGenerator(), zap.NewNop())
	h.runner.sleep = func(d time.Duration) { h.sleeps = append(h.sleeps, d) }
	return h
}

func enabledConfig() pipeline.SourceConfig {
	return pipeline.SourceConfig{
		ID:         "cfg-1",
		Name:       "Example Feed",
		URL:        "https://example.com/feed",
		Type:       pipeline.SourceRSS,
		Interval:   10 * time.Minute,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		Enabled:    true,
	}
}

func threeItems() []pipeline.RawItem {
	return []pipeline.RawItem{
		{Title: "First story", URL: "https://example.com/a"},
		{Title: "", URL: "https://example.com/b"},
		{Title: "Third story", URL: "https://example.com/c"},
	}
}

func TestRunner_CompletedRunCountsOutcomes(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{results: []pipeline.ItemsResult{pipeline.ItemsOK(threeItems())}}
	h := newHarness(t, ad)
	cfg := enabledConfig()
	require.NoError(t, h.configs.Save(context.Background(), cfg))

	task, err := h.runner.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, task)

	require.Equal(t, pipeline.TaskCompleted, task.Status)
	require.Equal(t, pipeline.RunSummary{Total: 3, Saved: 2, Filtered: 1}, task.Summary)
	require.NotNil(t, task.StartedAt)
	require.NotNil(t, task.FinishedAt)
	require.Zero(t, task.RetryCount)
	require.Len(t, h.articles.All(), 2)
	require.Len(t, h.publisher.Messages(), 2)

	saved, err := h.configs.Get(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.NotNil(t, saved.LastRunAt)
}

func TestRunner_SecondRunDeduplicates(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{results: []pipeline.ItemsResult{pipeline.ItemsOK(threeItems())}}
	h := newHarness(t, ad)
	cfg := enabledConfig()
	require.NoError(t, h.configs.Save(context.Background(), cfg))

	first, err := h.runner.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 2, first.Summary.Saved)

	second, err := h.runner.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, pipeline.TaskCompleted, second.Status)
	require.Equal(t, pipeline.RunSummary{Total: 3, Duplicated: 2, Filtered: 1}, second.Summary)
	require.Len(t, h.articles.All(), 2)
}

func TestRunner_DisabledConfigSkipped(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{results: []pipeline.ItemsResult{pipeline.ItemsOK(nil)}}
	h := newHarness(t, ad)
	cfg := enabledConfig()
	cfg.Enabled = false
	require.NoError(t, h.configs.Save(context.Background(), cfg))

	task, err := h.runner.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Nil(t, task)
	require.Zero(t, ad.calls)
}

func TestRunner_ActiveTaskGuard(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{results: []pipeline.ItemsResult{pipeline.ItemsOK(nil)}}
	h := newHarness(t, ad)
	cfg := enabledConfig()
	require.NoError(t, h.configs.Save(context.Background(), cfg))
	require.NoError(t, h.tasks.Create(context.Background(), pipeline.CrawlTask{
		ID:       "task-running",
		ConfigID: cfg.ID,
		Status:   pipeline.TaskRunning,
	}))

	task, err := h.runner.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Nil(t, task)
	require.Zero(t, ad.calls)
}

func TestRunner_FailureEscalation(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{results: []pipeline.ItemsResult{
		pipeline.ItemsErrorf("fetch failed: 503"),
	}}
	h := newHarness(t, ad)
	cfg := enabledConfig()
	require.NoError(t, h.configs.Save(context.Background(), cfg))

	task, err := h.runner.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, task)

	require.Equal(t, pipeline.TaskFailed, task.Status)
	require.Equal(t, 3, task.RetryCount)
	require.Equal(t, "fetch failed: 503", task.ErrorText)
	require.Equal(t, 3, ad.calls)
	// Sleeps happen between attempts only.
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, h.sleeps)

	saved, err := h.configs.Get(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.NotNil(t, saved.LastRunAt)
}

func TestRunner_RecoversOnRetry(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{results: []pipeline.ItemsResult{
		pipeline.ItemsErrorf("fetch failed: 500"),
		pipeline.ItemsOK(threeItems()),
	}}
	h := newHarness(t, ad)
	cfg := enabledConfig()
	require.NoError(t, h.configs.Save(context.Background(), cfg))

	task, err := h.runner.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, pipeline.TaskCompleted, task.Status)
	require.Equal(t, 1, task.RetryCount)
	require.Equal(t, 2, ad.calls)
}

func TestRunner_AdapterFactoryErrorFailsTask(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeAdapter{results: []pipeline.ItemsResult{pipeline.ItemsOK(nil)}})
	h.runner.adapters = func(pipeline.SourceConfig) (pipeline.Adapter, error) {
		return nil, context.DeadlineExceeded
	}
	cfg := enabledConfig()
	require.NoError(t, h.configs.Save(context.Background(), cfg))

	task, err := h.runner.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, pipeline.TaskFailed, task.Status)
	require.NotEmpty(t, task.ErrorText)
}

// cancellingTaskStore flips a task to cancelled on first read, as if an
// operator raced the runner through the API.
type cancellingTaskStore struct {
	*storememory.TaskStore
	cancelled bool
}

func (s *cancellingTaskStore) Get(ctx context.Context, id string) (pipeline.CrawlTask, error) {
	task, err := s.TaskStore.Get(ctx, id)
	if err == nil && !s.cancelled {
		s.cancelled = true
		task.Status = pipeline.TaskCancelled
		if saveErr := s.TaskStore.Save(ctx, task); saveErr != nil {
			return task, saveErr
		}
	}
	return task, nil
}

func TestRunner_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{results: []pipeline.ItemsResult{pipeline.ItemsOK(nil)}}
	h := newHarness(t, ad)
	h.runner.tasks = &cancellingTaskStore{TaskStore: h.tasks}
	cfg := enabledConfig()
	require.NoError(t, h.configs.Save(context.Background(), cfg))

	task, err := h.runner.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, pipeline.TaskCancelled, task.Status)
	require.Zero(t, ad.calls)
}
