// Package pipeline defines core types shared across the crawl subsystems.
package pipeline

import (
	"time"
)

// SourceType identifies which adapter handles a source.
type SourceType string

// Source type values stored in the config store.
const (
	SourceRSS  SourceType = "rss"
	SourceAPI  SourceType = "api"
	SourceHTML SourceType = "html"
)

// SourceConfig describes one crawlable source. It is created and edited by
// operators and read-only to the pipeline, except for LastRunAt which the
// task runner updates after every attempt.
type SourceConfig struct {
	ID         string            `json:"id" mapstructure:"id"`
	Name       string            `json:"name" mapstructure:"name"`
	URL        string            `json:"url" mapstructure:"url"`
	Type       SourceType        `json:"type" mapstructure:"type"`
	Headers    map[string]string `json:"headers" mapstructure:"headers"`
	Data       ConfigData        `json:"config_data" mapstructure:"config_data"`
	Interval   time.Duration     `json:"interval" mapstructure:"interval"`
	MaxRetries int               `json:"max_retries" mapstructure:"max_retries"`
	RetryDelay time.Duration     `json:"retry_delay" mapstructure:"retry_delay"`
	Enabled    bool              `json:"enabled" mapstructure:"enabled"`
	LastRunAt  *time.Time        `json:"last_run_at,omitempty" mapstructure:"last_run_at"`
}

// ConfigData is the per-source structured document consumed by the
// adapters. Sub-sections are optional; nil means the feature is off.
type ConfigData struct {
	Method         string             `json:"method,omitempty" mapstructure:"method"`
	Body           map[string]any     `json:"body,omitempty" mapstructure:"body"`
	DataPath       string             `json:"data_path,omitempty" mapstructure:"data_path"`
	Fields         FieldPaths         `json:"fields,omitempty" mapstructure:"fields"`
	Detail         *DetailConfig      `json:"detail,omitempty" mapstructure:"detail"`
	Pagination     *PaginationConfig  `json:"pagination,omitempty" mapstructure:"pagination"`
	Concurrency    *ConcurrencyConfig `json:"concurrency,omitempty" mapstructure:"concurrency"`
	RateLimit      *RateLimitConfig   `json:"rate_limit,omitempty" mapstructure:"rate_limit"`
	Cache          *CacheConfig       `json:"cache,omitempty" mapstructure:"cache"`
	Validation     *ValidationConfig  `json:"validation,omitempty" mapstructure:"validation"`
	Selectors      *SelectorConfig    `json:"selectors,omitempty" mapstructure:"selectors"`
	DynamicHeaders map[string]string  `json:"dynamic_headers,omitempty" mapstructure:"dynamic_headers"`
	Proxy          string             `json:"proxy,omitempty" mapstructure:"proxy"`
	Cookies        map[string]string  `json:"cookies,omitempty" mapstructure:"cookies"`
	Gzip           bool               `json:"gzip,omitempty" mapstructure:"gzip"`
	TimeoutSec     int                `json:"timeout_seconds,omitempty" mapstructure:"timeout_seconds"`
	ConnectSec     int                `json:"connect_timeout_seconds,omitempty" mapstructure:"connect_timeout_seconds"`
	Deprecated     bool               `json:"deprecated,omitempty" mapstructure:"deprecated"`
}

// FieldPaths maps RawItem fields to path expressions inside an API item.
type FieldPaths struct {
	Title       string `json:"title_path,omitempty" mapstructure:"title_path"`
	Link        string `json:"link_path,omitempty" mapstructure:"link_path"`
	Author      string `json:"author_path,omitempty" mapstructure:"author_path"`
	Published   string `json:"pub_time_path,omitempty" mapstructure:"pub_time_path"`
	Content     string `json:"content_path,omitempty" mapstructure:"content_path"`
	Description string `json:"description_path,omitempty" mapstructure:"description_path"`
}

// DetailConfig enables a secondary per-item fetch when content is not
// inline in the listing response.
type DetailConfig struct {
	URLPath     string `json:"url_path,omitempty" mapstructure:"url_path"`
	ContentPath string `json:"content_path,omitempty" mapstructure:"content_path"`
}

// PaginationConfig iterates pages 1..MaxPages, stopping early on an empty
// page or when the has-more flag reports false.
type PaginationConfig struct {
	MaxPages    int    `json:"max_pages" mapstructure:"max_pages"`
	PageParam   string `json:"page_param,omitempty" mapstructure:"page_param"`
	SizeParam   string `json:"size_param,omitempty" mapstructure:"size_param"`
	PageSize    int    `json:"page_size,omitempty" mapstructure:"page_size"`
	HasMorePath string `json:"has_more_path,omitempty" mapstructure:"has_more_path"`
}

// ConcurrencyConfig fans a logical fetch out to parallel workers, each
// identified by a worker id the server side uses as a partition key.
type ConcurrencyConfig struct {
	MaxWorkers  int    `json:"max_workers" mapstructure:"max_workers"`
	WorkerParam string `json:"worker_param,omitempty" mapstructure:"worker_param"`
}

// RateLimitConfig enforces a minimum spacing of PerSeconds/Requests
// between outbound requests issued by one client instance.
type RateLimitConfig struct {
	Requests   int     `json:"requests" mapstructure:"requests"`
	PerSeconds float64 `json:"per_seconds" mapstructure:"per_seconds"`
}

// CacheConfig enables TTL response caching in the fetch client.
type CacheConfig struct {
	Enabled bool          `json:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `json:"ttl" mapstructure:"ttl"`
}

// ValidationConfig rejects API items that are structurally incomplete.
type ValidationConfig struct {
	RequiredFields   []string `json:"required_fields,omitempty" mapstructure:"required_fields"`
	MinContentLength int      `json:"min_content_length,omitempty" mapstructure:"min_content_length"`
}

// SelectorConfig holds the CSS selectors driving the HTML adapter.
type SelectorConfig struct {
	List    string `json:"list,omitempty" mapstructure:"list"`
	Title   string `json:"title,omitempty" mapstructure:"title"`
	Link    string `json:"link,omitempty" mapstructure:"link"`
	Author  string `json:"author,omitempty" mapstructure:"author"`
	Time    string `json:"time,omitempty" mapstructure:"time"`
	Summary string `json:"summary,omitempty" mapstructure:"summary"`
	Tags    string `json:"tags,omitempty" mapstructure:"tags"`
	Images  string `json:"images,omitempty" mapstructure:"images"`
	Content string `json:"content,omitempty" mapstructure:"content"`
}

// RawItem is adapter output before cleaning. Published stays in the
// adapter-native form, possibly an unparsed string.
type RawItem struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Content     string   `json:"content,omitempty"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Source      string   `json:"source,omitempty"`
	Published   string   `json:"published,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Images      []string `json:"images,omitempty"`
	Raw         []byte   `json:"-"`
}

// CleanedItem is the DataCleaner output: plain-text fields, a validated
// URL, and a canonical timezone-aware timestamp.
type CleanedItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Content     string    `json:"content,omitempty"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	Source      string    `json:"source,omitempty"`
	Published   time.Time `json:"published"`
	Tags        []string  `json:"tags,omitempty"`
	Images      []string  `json:"images,omitempty"`
	Raw         []byte    `json:"-"`
}

// ArticleStatus values persisted with new articles.
const ArticleStatusDraft = "draft"

// ArticleRecord is the persisted article. URL is the idempotency key.
type ArticleRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Content   string    `json:"content,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Author    string    `json:"author,omitempty"`
	Source    string    `json:"source,omitempty"`
	Published time.Time `json:"published"`
	ConfigID  string    `json:"config_id"`
	Status    string    `json:"status"`
	Valid     bool      `json:"valid"`
	RawURI    string    `json:"raw_uri,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskStatus represents the lifecycle state of a crawl task.
type TaskStatus string

// Task status values; transitions are monotonic along
// pending -> running -> one terminal state.
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// RunSummary tracks per-run item counters.
type RunSummary struct {
	Total      int `json:"total"`
	Saved      int `json:"saved"`
	Duplicated int `json:"duplicated"`
	Filtered   int `json:"filtered"`
	Errors     int `json:"errors"`
}

// CrawlTask is one execution attempt of a SourceConfig. It is created by
// the task runner and immutable once terminal.
type CrawlTask struct {
	ID         string     `json:"id"`
	ConfigID   string     `json:"config_id"`
	Status     TaskStatus `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	RetryCount int        `json:"retry_count"`
	Summary    RunSummary `json:"summary"`
	ErrorText  string     `json:"error_text,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
