package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

// ArticleStore persists articles in the articles table. It assumes a
// schema like:
//
//	CREATE TABLE articles (
//		id UUID PRIMARY KEY,
//		title TEXT NOT NULL,
//		url TEXT NOT NULL UNIQUE,
//		content TEXT,
//		summary TEXT,
//		author TEXT,
//		source TEXT,
//		published_at TIMESTAMPTZ,
//		config_id TEXT NOT NULL,
//		status TEXT NOT NULL,
//		valid BOOLEAN NOT NULL,
//		raw_uri TEXT,
//		created_at TIMESTAMPTZ NOT NULL,
//		updated_at TIMESTAMPTZ NOT NULL
//	);
//
// The unique index on url is the final word on deduplication.
type ArticleStore struct {
	pool querier
}

// NewArticleStore wraps a pool as an ArticleStore.
func NewArticleStore(pool querier) *ArticleStore {
	return &ArticleStore{pool: pool}
}

const articleColumns = `id, title, url, content, summary, author, source,
	published_at, config_id, status, valid, raw_uri, created_at, updated_at`

// FindByURL returns the article with the given URL, or nil when absent.
func (s *ArticleStore) FindByURL(ctx context.Context, url string) (*pipeline.ArticleRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM articles WHERE url = $1`, articleColumns)
	record, err := scanArticle(s.pool.QueryRow(ctx, query, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find article by url: %w", err)
	}
	return &record, nil
}

// Create inserts a new article. A unique violation on url maps to
// pipeline.ErrDuplicateURL so callers can treat the race as a dedupe.
func (s *ArticleStore) Create(ctx context.Context, record pipeline.ArticleRecord) (pipeline.ArticleRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	query := fmt.Sprintf(`
INSERT INTO articles (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`, articleColumns)

	_, err := s.pool.Exec(ctx, query,
		record.ID,
		record.Title,
		record.URL,
		record.Content,
		record.Summary,
		record.Author,
		record.Source,
		record.Published,
		record.ConfigID,
		record.Status,
		record.Valid,
		record.RawURI,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return pipeline.ArticleRecord{}, pipeline.ErrDuplicateURL
	}
	if err != nil {
		return pipeline.ArticleRecord{}, fmt.Errorf("insert article: %w", err)
	}
	return record, nil
}

// UpdateValidity flips the valid flag on every article of a config and
// returns the number of rows touched.
func (s *ArticleStore) UpdateValidity(ctx context.Context, configID string, valid bool) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE articles SET valid = $2, updated_at = now()
WHERE config_id = $1 AND valid <> $2`, configID, valid)
	if err != nil {
		return 0, fmt.Errorf("update article validity: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanArticle(row pgx.Row) (pipeline.ArticleRecord, error) {
	var record pipeline.ArticleRecord
	err := row.Scan(
		&record.ID,
		&record.Title,
		&record.URL,
		&record.Content,
		&record.Summary,
		&record.Author,
		&record.Source,
		&record.Published,
		&record.ConfigID,
		&record.Status,
		&record.Valid,
		&record.RawURI,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	return record, err
}
