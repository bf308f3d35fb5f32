package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/cleaner"
	iduuid "github.com/mediapulse/newscrawler/internal/id/uuid"
	"github.com/mediapulse/newscrawler/internal/persist"
	"github.com/mediapulse/newscrawler/internal/pipeline"
	"github.com/mediapulse/newscrawler/internal/runner"
	storememory "github.com/mediapulse/newscrawler/internal/store/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type countingAdapter struct {
	runs atomic.Int32
}

func (a *countingAdapter) FetchData(context.Context) pipeline.FetchResult {
	return pipeline.FetchOK(200, nil, nil)
}

func (a *countingAdapter) ParseResponse(pipeline.FetchResult) []pipeline.RawItem { return nil }

func (a *countingAdapter) Run(context.Context) pipeline.ItemsResult {
	a.runs.Add(1)
	return pipeline.ItemsOK([]pipeline.RawItem{{
		Title: "story",
		URL:   "https://example.com/story",
	}})
}

func TestScheduler_SweepRunsDueSources(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	configs := storememory.NewConfigStore()
	tasks := storememory.NewTaskStore()
	articles := storememory.NewArticleStore()
	ad := &countingAdapter{}

	cl := cleaner.New(clock, zap.NewNop())
	persister := persist.New(articles, nil, nil, clock, persist.Config{}, zap.NewNop())
	run := runner.New(configs, tasks, cl, persister,
		func(pipeline.SourceConfig) (pipeline.Adapter, error) { return ad, nil },
		clock, iduuid.NewGenerator(), zap.NewNop())

	ctx := context.Background()
	recent := clock.now.Add(-time.Minute)
	require.NoError(t, configs.Save(ctx, pipeline.SourceConfig{
		ID: "due-1", Name: "Due One", Enabled: true, Interval: 10 * time.Minute,
	}))
	require.NoError(t, configs.Save(ctx, pipeline.SourceConfig{
		ID: "due-2", Name: "Due Two", Enabled: true, Interval: 10 * time.Minute,
	}))
	require.NoError(t, configs.Save(ctx, pipeline.SourceConfig{
		ID: "fresh", Name: "Fresh", Enabled: true, Interval: 10 * time.Minute, LastRunAt: &recent,
	}))

	s := New(configs, run, clock, time.Minute, 2, zap.NewNop())
	s.Sweep(ctx)

	require.Equal(t, int32(2), ad.runs.Load())

	for _, id := range []string{"due-1", "due-2"} {
		cfg, err := configs.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, cfg.LastRunAt, "config %s", id)
	}
	fresh, err := configs.Get(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, recent, *fresh.LastRunAt)
}

func TestScheduler_StartAndStop(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	configs := storememory.NewConfigStore()
	tasks := storememory.NewTaskStore()
	cl := cleaner.New(clock, zap.NewNop())
	persister := persist.New(storememory.NewArticleStore(), nil, nil, clock, persist.Config{}, zap.NewNop())
	run := runner.New(configs, tasks, cl, persister,
		func(pipeline.SourceConfig) (pipeline.Adapter, error) { return &countingAdapter{}, nil },
		clock, iduuid.NewGenerator(), zap.NewNop())

	s := New(configs, run, clock, time.Hour, 1, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
