package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func articleRow(mock pgxmock.PgxPoolIface) *pgxmock.Rows {
	return mock.NewRows([]string{
		"id", "title", "url", "content", "summary", "author", "source",
		"published_at", "config_id", "status", "valid", "raw_uri",
		"created_at", "updated_at",
	})
}

func TestArticleStore_FindByURL(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectQuery(`FROM articles WHERE url = \$1`).
		WithArgs("https://example.com/a").
		WillReturnRows(articleRow(mock).AddRow(
			"id-1", "A story", "https://example.com/a", "body", "summary",
			"Jane", "Example Feed", testNow, "cfg-1", "draft", true, "",
			testNow, testNow,
		))

	s := NewArticleStore(mock)
	record, err := s.FindByURL(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "id-1", record.ID)
	require.Equal(t, "A story", record.Title)
}

func TestArticleStore_FindByURLMissing(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectQuery(`FROM articles WHERE url = \$1`).
		WithArgs("https://example.com/missing").
		WillReturnError(pgx.ErrNoRows)

	s := NewArticleStore(mock)
	record, err := s.FindByURL(context.Background(), "https://example.com/missing")
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestArticleStore_CreateUniqueViolation(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO articles`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

	s := NewArticleStore(mock)
	_, err := s.Create(context.Background(), pipeline.ArticleRecord{
		Title: "A story", URL: "https://example.com/a",
	})
	require.ErrorIs(t, err, pipeline.ErrDuplicateURL)
}

func TestArticleStore_CreateAssignsID(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO articles`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewArticleStore(mock)
	created, err := s.Create(context.Background(), pipeline.ArticleRecord{
		Title: "A story", URL: "https://example.com/a",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
}

func TestArticleStore_UpdateValidity(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectExec(`UPDATE articles SET valid`).
		WithArgs("cfg-1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	s := NewArticleStore(mock)
	n, err := s.UpdateValidity(context.Background(), "cfg-1", false)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

func TestConfigStore_ListDue(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	rows := mock.NewRows([]string{
		"id", "name", "url", "type", "headers", "config_data",
		"interval_seconds", "max_retries", "retry_delay_seconds",
		"enabled", "last_run_time",
	}).AddRow(
		"cfg-1", "Example Feed", "https://example.com/feed", "rss",
		[]byte(`{"X-Auth":"token"}`), []byte(`{"gzip":true}`),
		int64(600), 3, int64(2), true, (*time.Time)(nil),
	)
	mock.ExpectQuery(`FROM source_configs`).
		WithArgs(testNow).
		WillReturnRows(rows)

	s := NewConfigStore(mock)
	due, err := s.ListDue(context.Background(), testNow)
	require.NoError(t, err)
	require.Len(t, due, 1)

	cfg := due[0]
	require.Equal(t, "cfg-1", cfg.ID)
	require.Equal(t, pipeline.SourceRSS, cfg.Type)
	require.Equal(t, 10*time.Minute, cfg.Interval)
	require.Equal(t, 2*time.Second, cfg.RetryDelay)
	require.Equal(t, map[string]string{"X-Auth": "token"}, cfg.Headers)
	require.True(t, cfg.Data.Gzip)
	require.Nil(t, cfg.LastRunAt)
}

func TestConfigStore_SaveUpserts(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectExec(`ON CONFLICT \(id\) DO UPDATE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewConfigStore(mock)
	err := s.Save(context.Background(), pipeline.SourceConfig{
		ID:       "cfg-1",
		Name:     "Example Feed",
		URL:      "https://example.com/feed",
		Type:     pipeline.SourceRSS,
		Interval: 10 * time.Minute,
		Enabled:  true,
	})
	require.NoError(t, err)
}

func TestTaskStore_GetDecodesSummary(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	rows := mock.NewRows([]string{
		"id", "config_id", "status", "started_at", "finished_at",
		"retry_count", "summary", "error_text", "created_at",
	}).AddRow(
		"task-1", "cfg-1", "completed", &testNow, &testNow,
		0, []byte(`{"total":3,"saved":2,"filtered":1}`), "", testNow,
	)
	mock.ExpectQuery(`FROM crawl_tasks WHERE id = \$1`).
		WithArgs("task-1").
		WillReturnRows(rows)

	s := NewTaskStore(mock)
	task, err := s.Get(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, pipeline.TaskCompleted, task.Status)
	require.Equal(t, pipeline.RunSummary{Total: 3, Saved: 2, Filtered: 1}, task.Summary)
}

func TestTaskStore_GetMissing(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectQuery(`FROM crawl_tasks WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	s := NewTaskStore(mock)
	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestTaskStore_ExistsActive(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("cfg-1").
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))

	s := NewTaskStore(mock)
	active, err := s.ExistsActive(context.Background(), "cfg-1")
	require.NoError(t, err)
	require.True(t, active)
}

func TestTaskStore_CreateAndSave(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO crawl_tasks`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE crawl_tasks SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	s := NewTaskStore(mock)
	task := pipeline.CrawlTask{ID: "task-1", ConfigID: "cfg-1", Status: pipeline.TaskPending, CreatedAt: testNow}
	require.NoError(t, s.Create(context.Background(), task))

	task.Status = pipeline.TaskRunning
	require.NoError(t, s.Save(context.Background(), task))
}
