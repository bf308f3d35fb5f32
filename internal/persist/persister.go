// Package persist implements the dedupe-and-persist stage of the
// pipeline.
package persist

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

// Outcome classifies what happened to one cleaned item.
type Outcome string

// Persist outcomes, reported as run counters.
const (
	OutcomeSaved      Outcome = "saved"
	OutcomeDuplicated Outcome = "duplicated"
	OutcomeFiltered   Outcome = "filtered"
	OutcomeError      Outcome = "error"
)

// Config controls optional persister side channels.
type Config struct {
	// Topic for saved-article events; empty disables publishing.
	Topic string
	// BlobPrefix for raw payload archival; archival is skipped when no
	// blob store is wired.
	BlobPrefix string
}

// Persister deduplicates cleaned items against the article store and
// persists the new ones. All failure modes are reported as outcomes;
// nothing escapes this boundary.
type Persister struct {
	articles  pipeline.ArticleStore
	blobs     pipeline.BlobStore
	publisher pipeline.Publisher
	clock     pipeline.Clock
	cfg       Config
	logger    *zap.Logger
}

// New builds a Persister. blobs and publisher may be nil.
func New(
	articles pipeline.ArticleStore,
	blobs pipeline.BlobStore,
	publisher pipeline.Publisher,
	clock pipeline.Clock,
	cfg Config,
	logger *zap.Logger,
) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{
		articles:  articles,
		blobs:     blobs,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Persist checks the store for an article with the same URL and creates
// a new record when absent. The store's unique constraint is the final
// authority: a duplicate-key race on insert counts as duplicated.
func (p *Persister) Persist(ctx context.Context, item *pipeline.CleanedItem, src pipeline.SourceConfig) Outcome {
	if item == nil || strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.URL) == "" {
		return OutcomeFiltered
	}

	existing, err := p.articles.FindByURL(ctx, item.URL)
	if err != nil {
		p.logger.Error("article lookup failed", zap.String("url", item.URL), zap.Error(err))
		return OutcomeError
	}
	if existing != nil {
		return OutcomeDuplicated
	}

	now := p.clock.Now()
	record := pipeline.ArticleRecord{
		Title:     item.Title,
		URL:       item.URL,
		Content:   item.Content,
		Summary:   summaryFor(item),
		Author:    item.Author,
		Source:    sourceLabel(item, src),
		Published: item.Published,
		ConfigID:  src.ID,
		Status:    pipeline.ArticleStatusDraft,
		Valid:     true,
		RawURI:    p.archiveRaw(ctx, item, src),
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := p.articles.Create(ctx, record)
	if errors.Is(err, pipeline.ErrDuplicateURL) {
		return OutcomeDuplicated
	}
	if err != nil {
		p.logger.Error("article create failed", zap.String("url", item.URL), zap.Error(err))
		return OutcomeError
	}

	p.publishSaved(ctx, created)
	return OutcomeSaved
}

func summaryFor(item *pipeline.CleanedItem) string {
	if item.Description != "" {
		return item.Description
	}
	return ""
}

func sourceLabel(item *pipeline.CleanedItem, src pipeline.SourceConfig) string {
	if item.Source != "" {
		return item.Source
	}
	return src.Name
}

// archiveRaw stores the item's raw payload, returning its URI. Archival
// failures are logged and leave the article without a raw reference.
func (p *Persister) archiveRaw(ctx context.Context, item *pipeline.CleanedItem, src pipeline.SourceConfig) string {
	if p.blobs == nil || len(item.Raw) == 0 {
		return ""
	}
	path := p.blobPath(src.ID, item.Raw)
	uri, err := p.blobs.PutObject(ctx, path, "application/json", item.Raw)
	if err != nil {
		p.logger.Warn("raw payload archival failed", zap.String("url", item.URL), zap.Error(err))
		return ""
	}
	return uri
}

func (p *Persister) blobPath(configID string, raw []byte) string {
	digest := sha256.Sum256(raw)
	prefix := strings.Trim(p.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%x.json", configID, digest[:8])
	}
	return fmt.Sprintf("%s/%s/%x.json", prefix, configID, digest[:8])
}

func (p *Persister) publishSaved(ctx context.Context, record pipeline.ArticleRecord) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"url":       record.URL,
		"title":     record.Title,
		"source":    record.Source,
		"config_id": record.ConfigID,
		"published": record.Published.Format(time.RFC3339),
		"saved_at":  p.clock.Now().Format(time.RFC3339),
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.Topic, payload); err != nil {
		p.logger.Warn("saved-article publish failed", zap.String("url", record.URL), zap.Error(err))
	}
}
