package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/cleaner"
	"github.com/mediapulse/newscrawler/internal/config"
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

type staticAdapter struct{}

func (staticAdapter) FetchData(context.Context) pipeline.FetchResult {
	return pipeline.FetchOK(200, nil, nil)
}

func (staticAdapter) ParseResponse(pipeline.FetchResult) []pipeline.RawItem { return nil }

func (staticAdapter) Run(context.Context) pipeline.ItemsResult {
	return pipeline.ItemsOK([]pipeline.RawItem{{Title: "story", URL: "https://example.com/story"}})
}

type fixture struct {
	server  *Server
	configs *storememory.ConfigStore
	tasks   *storememory.TaskStore
	clock   fixedClock
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	clock := fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	configs := storememory.NewConfigStore()
	tasks := storememory.NewTaskStore()
	cl := cleaner.New(clock, zap.NewNop())
	persister := persist.New(storememory.NewArticleStore(), nil, nil, clock, persist.Config{}, zap.NewNop())
	run := runner.New(configs, tasks, cl, persister,
		func(pipeline.SourceConfig) (pipeline.Adapter, error) { return staticAdapter{}, nil },
		clock, iduuid.NewGenerator(), zap.NewNop())

	return &fixture{
		server:  NewServer(context.Background(), configs, tasks, run, clock, cfg, zap.NewNop()),
		configs: configs,
		tasks:   tasks,
		clock:   clock,
	}
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	rec := f.do(http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_GetConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	require.NoError(t, f.configs.Save(context.Background(), pipeline.SourceConfig{
		ID: "cfg-1", Name: "Example Feed", Enabled: true, Interval: time.Minute,
	}))

	rec := f.do(http.MethodGet, "/v1/configs/cfg-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg pipeline.SourceConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	require.Equal(t, "Example Feed", cfg.Name)

	rec = f.do(http.MethodGet, "/v1/configs/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_TriggerRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	require.NoError(t, f.configs.Save(context.Background(), pipeline.SourceConfig{
		ID: "cfg-1", Name: "Example Feed", Enabled: true, Interval: time.Minute,
	}))

	rec := f.do(http.MethodPost, "/v1/configs/cfg-1/run")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		cfg, err := f.configs.Get(context.Background(), "cfg-1")
		return err == nil && cfg.LastRunAt != nil
	}, time.Second, 10*time.Millisecond)
}

func TestServer_TriggerRunRejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	require.NoError(t, f.configs.Save(context.Background(), pipeline.SourceConfig{
		ID: "off", Name: "Disabled", Enabled: false, Interval: time.Minute,
	}))

	require.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/v1/configs/missing/run").Code)
	require.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/v1/configs/off/run").Code)
}

func TestServer_GetTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	require.NoError(t, f.tasks.Create(context.Background(), pipeline.CrawlTask{
		ID: "task-1", ConfigID: "cfg-1", Status: pipeline.TaskCompleted,
		Summary: pipeline.RunSummary{Total: 3, Saved: 2, Filtered: 1},
	}))

	rec := f.do(http.MethodGet, "/v1/tasks/task-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var task pipeline.CrawlTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	require.Equal(t, pipeline.TaskCompleted, task.Status)
	require.Equal(t, 2, task.Summary.Saved)

	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/tasks/missing").Code)
}

func TestServer_CancelTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	require.NoError(t, f.tasks.Create(context.Background(), pipeline.CrawlTask{
		ID: "pending-task", ConfigID: "cfg-1", Status: pipeline.TaskPending,
	}))
	require.NoError(t, f.tasks.Create(context.Background(), pipeline.CrawlTask{
		ID: "running-task", ConfigID: "cfg-2", Status: pipeline.TaskRunning,
	}))

	rec := f.do(http.MethodPost, "/v1/tasks/pending-task/cancel")
	require.Equal(t, http.StatusOK, rec.Code)

	task, err := f.tasks.Get(context.Background(), "pending-task")
	require.NoError(t, err)
	require.Equal(t, pipeline.TaskCancelled, task.Status)
	require.NotNil(t, task.FinishedAt)

	// Running and terminal tasks cannot be cancelled.
	require.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/v1/tasks/running-task/cancel").Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{
		Auth: config.AuthConfig{Enabled: true, APIKey: "secret"},
	})

	rec := f.do(http.MethodGet, "/healthz")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/healthz?api_key=secret")
	require.Equal(t, http.StatusOK, rec.Code)
}
