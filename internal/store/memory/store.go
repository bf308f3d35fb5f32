// Package memory provides in-memory store implementations for tests and
// the single-process development mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

// ArticleStore keeps articles in memory, keyed by URL.
type ArticleStore struct {
	mu    sync.Mutex
	byURL map[string]pipeline.ArticleRecord
}

// NewArticleStore creates an empty ArticleStore.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{byURL: make(map[string]pipeline.ArticleRecord)}
}

// FindByURL returns the article with the given URL, or nil.
func (s *ArticleStore) FindByURL(_ context.Context, url string) (*pipeline.ArticleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.byURL[url]; ok {
		return &record, nil
	}
	return nil, nil
}

// Create inserts a new article, enforcing URL uniqueness.
func (s *ArticleStore) Create(_ context.Context, record pipeline.ArticleRecord) (pipeline.ArticleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byURL[record.URL]; exists {
		return pipeline.ArticleRecord{}, pipeline.ErrDuplicateURL
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	s.byURL[record.URL] = record
	return record, nil
}

// UpdateValidity flips the valid flag on every article of a config and
// returns the number of articles touched.
func (s *ArticleStore) UpdateValidity(_ context.Context, configID string, valid bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for url, record := range s.byURL {
		if record.ConfigID != configID || record.Valid == valid {
			continue
		}
		record.Valid = valid
		s.byURL[url] = record
		n++
	}
	return n, nil
}

// All returns every stored article, sorted by URL for determinism.
func (s *ArticleStore) All() []pipeline.ArticleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pipeline.ArticleRecord, 0, len(s.byURL))
	for _, record := range s.byURL {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// ConfigStore keeps source configurations in memory.
type ConfigStore struct {
	mu   sync.Mutex
	byID map[string]pipeline.SourceConfig
}

// NewConfigStore creates an empty ConfigStore.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{byID: make(map[string]pipeline.SourceConfig)}
}

// Get returns the configuration with the given id.
func (s *ConfigStore) Get(_ context.Context, id string) (pipeline.SourceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.byID[id]
	if !ok {
		return pipeline.SourceConfig{}, pipeline.ErrNotFound
	}
	return cfg, nil
}

// ListDue returns enabled configurations whose interval has elapsed
// since their last run, never-run ones first.
func (s *ConfigStore) ListDue(_ context.Context, now time.Time) ([]pipeline.SourceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []pipeline.SourceConfig
	for _, cfg := range s.byID {
		if !cfg.Enabled {
			continue
		}
		if cfg.LastRunAt == nil || !cfg.LastRunAt.Add(cfg.Interval).After(now) {
			due = append(due, cfg)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i].LastRunAt, due[j].LastRunAt
		switch {
		case a == nil && b == nil:
			return due[i].ID < due[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return due, nil
}

// Save upserts a configuration.
func (s *ConfigStore) Save(_ context.Context, cfg pipeline.SourceConfig) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return pipeline.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[cfg.ID] = cfg
	return nil
}

// TaskStore keeps crawl tasks in memory.
type TaskStore struct {
	mu   sync.Mutex
	byID map[string]pipeline.CrawlTask
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{byID: make(map[string]pipeline.CrawlTask)}
}

// Create inserts a new task.
func (s *TaskStore) Create(_ context.Context, task pipeline.CrawlTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[task.ID] = task
	return nil
}

// Save overwrites an existing task.
func (s *TaskStore) Save(_ context.Context, task pipeline.CrawlTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[task.ID]; !ok {
		return pipeline.ErrNotFound
	}
	s.byID[task.ID] = task
	return nil
}

// Get returns the task with the given id.
func (s *TaskStore) Get(_ context.Context, id string) (pipeline.CrawlTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.byID[id]
	if !ok {
		return pipeline.CrawlTask{}, pipeline.ErrNotFound
	}
	return task, nil
}

// ExistsActive reports whether the config has a pending or running task.
func (s *TaskStore) ExistsActive(_ context.Context, configID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.byID {
		if task.ConfigID == configID && !task.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}
