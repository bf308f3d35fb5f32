package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

// TaskStore persists crawl tasks in the crawl_tasks table. It assumes a
// schema like:
//
//	CREATE TABLE crawl_tasks (
//		id UUID PRIMARY KEY,
//		config_id TEXT NOT NULL,
//		status TEXT NOT NULL,
//		started_at TIMESTAMPTZ,
//		finished_at TIMESTAMPTZ,
//		retry_count INT NOT NULL,
//		summary JSONB,
//		error_text TEXT,
//		created_at TIMESTAMPTZ NOT NULL
//	);
//
// Run counters are stored as a jsonb summary document.
type TaskStore struct {
	pool querier
}

// NewTaskStore wraps a pool as a TaskStore.
func NewTaskStore(pool querier) *TaskStore {
	return &TaskStore{pool: pool}
}

const taskColumns = `id, config_id, status, started_at, finished_at,
	retry_count, summary, error_text, created_at`

// Create inserts a new task.
func (s *TaskStore) Create(ctx context.Context, task pipeline.CrawlTask) error {
	return s.write(ctx, task, fmt.Sprintf(`
INSERT INTO crawl_tasks (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, taskColumns))
}

// Save overwrites an existing task.
func (s *TaskStore) Save(ctx context.Context, task pipeline.CrawlTask) error {
	return s.write(ctx, task, `
UPDATE crawl_tasks SET
	config_id = $2,
	status = $3,
	started_at = $4,
	finished_at = $5,
	retry_count = $6,
	summary = $7,
	error_text = $8,
	created_at = $9
WHERE id = $1`)
}

func (s *TaskStore) write(ctx context.Context, task pipeline.CrawlTask, query string) error {
	summary, err := json.Marshal(task.Summary)
	if err != nil {
		return fmt.Errorf("marshal task summary: %w", err)
	}
	_, err = s.pool.Exec(ctx, query,
		task.ID,
		task.ConfigID,
		string(task.Status),
		task.StartedAt,
		task.FinishedAt,
		task.RetryCount,
		summary,
		task.ErrorText,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write crawl task: %w", err)
	}
	return nil
}

// Get returns the task with the given id.
func (s *TaskStore) Get(ctx context.Context, id string) (pipeline.CrawlTask, error) {
	query := fmt.Sprintf(`SELECT %s FROM crawl_tasks WHERE id = $1`, taskColumns)

	var task pipeline.CrawlTask
	var status string
	var summaryJSON []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&task.ID,
		&task.ConfigID,
		&status,
		&task.StartedAt,
		&task.FinishedAt,
		&task.RetryCount,
		&summaryJSON,
		&task.ErrorText,
		&task.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.CrawlTask{}, pipeline.ErrNotFound
	}
	if err != nil {
		return pipeline.CrawlTask{}, fmt.Errorf("get crawl task: %w", err)
	}
	task.Status = pipeline.TaskStatus(status)
	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &task.Summary); err != nil {
			return pipeline.CrawlTask{}, fmt.Errorf("unmarshal task summary: %w", err)
		}
	}
	return task, nil
}

// ExistsActive reports whether the config has a pending or running task.
// The check-then-create window in the runner is accepted; a partial
// unique index on (config_id) WHERE status IN ('pending', 'running')
// would close it if overlapping runs ever become a problem.
func (s *TaskStore) ExistsActive(ctx context.Context, configID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM crawl_tasks
	WHERE config_id = $1 AND status IN ('pending', 'running')
)`, configID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active tasks: %w", err)
	}
	return exists, nil
}
