package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

// ConfigStore persists source configurations in the source_configs
// table. It assumes a schema like:
//
//	CREATE TABLE source_configs (
//		id TEXT PRIMARY KEY,
//		name TEXT NOT NULL,
//		url TEXT NOT NULL,
//		type TEXT NOT NULL,
//		headers JSONB,
//		config_data JSONB,
//		interval_seconds BIGINT NOT NULL,
//		max_retries INT NOT NULL,
//		retry_delay_seconds BIGINT NOT NULL,
//		enabled BOOLEAN NOT NULL,
//		last_run_time TIMESTAMPTZ
//	);
//
// Durations are stored as whole seconds.
type ConfigStore struct {
	pool querier
}

// NewConfigStore wraps a pool as a ConfigStore.
func NewConfigStore(pool querier) *ConfigStore {
	return &ConfigStore{pool: pool}
}

const configColumns = `id, name, url, type, headers, config_data,
	interval_seconds, max_retries, retry_delay_seconds, enabled, last_run_time`

// Get returns the configuration with the given id.
func (s *ConfigStore) Get(ctx context.Context, id string) (pipeline.SourceConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM source_configs WHERE id = $1`, configColumns)
	cfg, err := scanConfig(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.SourceConfig{}, pipeline.ErrNotFound
	}
	if err != nil {
		return pipeline.SourceConfig{}, fmt.Errorf("get source config: %w", err)
	}
	return cfg, nil
}

// ListDue returns enabled configurations whose interval has elapsed
// since their last run, never-run ones first.
func (s *ConfigStore) ListDue(ctx context.Context, now time.Time) ([]pipeline.SourceConfig, error) {
	query := fmt.Sprintf(`
SELECT %s FROM source_configs
WHERE enabled
  AND (last_run_time IS NULL
       OR last_run_time + make_interval(secs => interval_seconds) <= $1)
ORDER BY last_run_time ASC NULLS FIRST`, configColumns)

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list due configs: %w", err)
	}
	defer rows.Close()

	var due []pipeline.SourceConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source config: %w", err)
		}
		due = append(due, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due configs: %w", err)
	}
	return due, nil
}

// Save upserts a configuration.
func (s *ConfigStore) Save(ctx context.Context, cfg pipeline.SourceConfig) error {
	headers, err := json.Marshal(cfg.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	data, err := json.Marshal(cfg.Data)
	if err != nil {
		return fmt.Errorf("marshal config data: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO source_configs (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	url = EXCLUDED.url,
	type = EXCLUDED.type,
	headers = EXCLUDED.headers,
	config_data = EXCLUDED.config_data,
	interval_seconds = EXCLUDED.interval_seconds,
	max_retries = EXCLUDED.max_retries,
	retry_delay_seconds = EXCLUDED.retry_delay_seconds,
	enabled = EXCLUDED.enabled,
	last_run_time = EXCLUDED.last_run_time`, configColumns)

	_, err = s.pool.Exec(ctx, query,
		cfg.ID,
		cfg.Name,
		cfg.URL,
		string(cfg.Type),
		headers,
		data,
		int64(cfg.Interval/time.Second),
		cfg.MaxRetries,
		int64(cfg.RetryDelay/time.Second),
		cfg.Enabled,
		cfg.LastRunAt,
	)
	if err != nil {
		return fmt.Errorf("save source config: %w", err)
	}
	return nil
}

func scanConfig(row pgx.Row) (pipeline.SourceConfig, error) {
	var cfg pipeline.SourceConfig
	var sourceType string
	var headersJSON, dataJSON []byte
	var intervalSecs, retryDelaySecs int64
	err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.URL,
		&sourceType,
		&headersJSON,
		&dataJSON,
		&intervalSecs,
		&cfg.MaxRetries,
		&retryDelaySecs,
		&cfg.Enabled,
		&cfg.LastRunAt,
	)
	if err != nil {
		return pipeline.SourceConfig{}, err
	}
	cfg.Type = pipeline.SourceType(sourceType)
	cfg.Interval = time.Duration(intervalSecs) * time.Second
	cfg.RetryDelay = time.Duration(retryDelaySecs) * time.Second
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &cfg.Headers); err != nil {
			return pipeline.SourceConfig{}, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &cfg.Data); err != nil {
			return pipeline.SourceConfig{}, fmt.Errorf("unmarshal config data: %w", err)
		}
	}
	return cfg, nil
}
