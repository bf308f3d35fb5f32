package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateURL is returned by ArticleStore.Create when a concurrent
// insert raced ahead on the same URL. Callers treat it as a duplicate
// outcome, not a failure.
var ErrDuplicateURL = errors.New("article url already exists")

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ArticleStore persists articles. URL uniqueness is the store's
// responsibility; the persister's existence check is only a fast path.
type ArticleStore interface {
	FindByURL(ctx context.Context, url string) (*ArticleRecord, error)
	Create(ctx context.Context, record ArticleRecord) (ArticleRecord, error)
	UpdateValidity(ctx context.Context, configID string, valid bool) (int64, error)
}

// ConfigStore reads and saves source configurations.
type ConfigStore interface {
	Get(ctx context.Context, id string) (SourceConfig, error)
	ListDue(ctx context.Context, now time.Time) ([]SourceConfig, error)
	Save(ctx context.Context, cfg SourceConfig) error
}

// TaskStore persists crawl tasks.
type TaskStore interface {
	Create(ctx context.Context, task CrawlTask) error
	Save(ctx context.Context, task CrawlTask) error
	Get(ctx context.Context, id string) (CrawlTask, error)
	ExistsActive(ctx context.Context, configID string) (bool, error)
}

// Publisher pushes saved-article events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore archives raw payloads and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Adapter turns one source's native format into raw items.
type Adapter interface {
	// FetchData performs the source fetch and returns the typed result.
	FetchData(ctx context.Context) FetchResult
	// ParseResponse extracts raw items from a fetch result. It never
	// returns an error; structural problems yield an empty batch.
	ParseResponse(result FetchResult) []RawItem
	// Run composes fetch and parse, including pagination and fan-out
	// where the source configuration asks for them.
	Run(ctx context.Context) ItemsResult
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
