// Package runner owns the crawl task lifecycle: it guards against
// concurrent runs of the same source, drives the adapter with retries,
// and feeds the batch through cleaning and persistence.
package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/cleaner"
	"github.com/mediapulse/newscrawler/internal/metrics"
	"github.com/mediapulse/newscrawler/internal/persist"
	"github.com/mediapulse/newscrawler/internal/pipeline"
)

// AdapterFactory builds the adapter for one source configuration.
type AdapterFactory func(cfg pipeline.SourceConfig) (pipeline.Adapter, error)

// Runner executes crawl tasks. One Runner is shared by the scheduler
// and the API trigger endpoint.
type Runner struct {
	configs   pipeline.ConfigStore
	tasks     pipeline.TaskStore
	cleaner   *cleaner.Cleaner
	persister *persist.Persister
	adapters  AdapterFactory
	clock     pipeline.Clock
	ids       pipeline.IDGenerator
	logger    *zap.Logger

	sleep func(time.Duration)
}

// New builds a Runner.
func New(
	configs pipeline.ConfigStore,
	tasks pipeline.TaskStore,
	cl *cleaner.Cleaner,
	persister *persist.Persister,
	adapters AdapterFactory,
	clock pipeline.Clock,
	ids pipeline.IDGenerator,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		configs:   configs,
		tasks:     tasks,
		cleaner:   cl,
		persister: persister,
		adapters:  adapters,
		clock:     clock,
		ids:       ids,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// RunByID loads a configuration and runs it. Used by the trigger API.
func (r *Runner) RunByID(ctx context.Context, configID string) (*pipeline.CrawlTask, error) {
	cfg, err := r.configs.Get(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configID, err)
	}
	return r.Run(ctx, cfg)
}

// Run executes one crawl of cfg. A disabled source or one with an
// active task is skipped: the returned task is nil and no error is
// reported. Otherwise the returned task carries a terminal status.
func (r *Runner) Run(ctx context.Context, cfg pipeline.SourceConfig) (*pipeline.CrawlTask, error) {
	logger := r.logger.With(zap.String("source", cfg.Name), zap.String("config_id", cfg.ID))

	if !cfg.Enabled {
		logger.Info("skipping disabled source")
		return nil, nil
	}
	active, err := r.tasks.ExistsActive(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("check active tasks for config %s: %w", cfg.ID, err)
	}
	if active {
		logger.Info("skipping source with active task")
		return nil, nil
	}

	id, err := r.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate task id: %w", err)
	}
	task := pipeline.CrawlTask{
		ID:        id,
		ConfigID:  cfg.ID,
		Status:    pipeline.TaskPending,
		CreatedAt: r.clock.Now(),
	}
	if err := r.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task for config %s: %w", cfg.ID, err)
	}

	// An operator may have cancelled the task while it sat pending.
	latest, err := r.tasks.Get(ctx, task.ID)
	if err == nil && latest.Status == pipeline.TaskCancelled {
		logger.Info("task cancelled before start", zap.String("task_id", task.ID))
		return &latest, nil
	}

	started := r.clock.Now()
	task.Status = pipeline.TaskRunning
	task.StartedAt = &started
	if err := r.tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("mark task %s running: %w", task.ID, err)
	}
	logger.Info("crawl task started", zap.String("task_id", task.ID))

	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()

	ad, err := r.adapters(cfg)
	if err != nil {
		return r.finish(ctx, logger, cfg, task, pipeline.TaskFailed, pipeline.RunSummary{}, err.Error())
	}

	result := r.runWithRetries(ctx, logger, cfg, &task, ad)
	if !result.OK() {
		return r.finish(ctx, logger, cfg, task, pipeline.TaskFailed, pipeline.RunSummary{}, result.Message)
	}

	summary := r.processItems(ctx, cfg, result.Items)
	return r.finish(ctx, logger, cfg, task, pipeline.TaskCompleted, summary, "")
}

// runWithRetries drives the adapter up to cfg.MaxRetries attempts,
// incrementing the task's retry count on every failed attempt and
// pausing for cfg.RetryDelay between attempts.
func (r *Runner) runWithRetries(
	ctx context.Context,
	logger *zap.Logger,
	cfg pipeline.SourceConfig,
	task *pipeline.CrawlTask,
	ad pipeline.Adapter,
) pipeline.ItemsResult {
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var result pipeline.ItemsResult
	for attempt := 1; attempt <= attempts; attempt++ {
		result = ad.Run(ctx)
		metrics.ObserveFetch(cfg.Name, string(result.Status))
		if result.OK() {
			return result
		}

		task.RetryCount++
		if err := r.tasks.Save(ctx, *task); err != nil {
			logger.Warn("retry count save failed", zap.Error(err))
		}
		logger.Warn("crawl attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", attempts),
			zap.String("message", result.Message),
		)
		if attempt < attempts {
			metrics.ObserveRetry(cfg.Name)
			r.sleep(cfg.RetryDelay)
		}
		if ctx.Err() != nil {
			return pipeline.ItemsErrorf("crawl aborted: %v", ctx.Err())
		}
	}
	return result
}

// processItems runs the batch through cleaning and persistence in
// adapter order, accumulating the run counters.
func (r *Runner) processItems(ctx context.Context, cfg pipeline.SourceConfig, items []pipeline.RawItem) pipeline.RunSummary {
	var summary pipeline.RunSummary
	for _, raw := range items {
		summary.Total++

		cleaned := r.cleaner.Clean(raw)
		if cleaned == nil {
			summary.Filtered++
			metrics.ObserveItem(cfg.Name, string(persist.OutcomeFiltered))
			continue
		}

		outcome := r.persister.Persist(ctx, cleaned, cfg)
		switch outcome {
		case persist.OutcomeSaved:
			summary.Saved++
		case persist.OutcomeDuplicated:
			summary.Duplicated++
		case persist.OutcomeFiltered:
			summary.Filtered++
		case persist.OutcomeError:
			summary.Errors++
		}
		metrics.ObserveItem(cfg.Name, string(outcome))
	}
	return summary
}

// finish writes the terminal task state and stamps the config's last
// run time. The last run time advances on every attempt, successful or
// not, so a broken source does not get rescheduled in a tight loop.
func (r *Runner) finish(
	ctx context.Context,
	logger *zap.Logger,
	cfg pipeline.SourceConfig,
	task pipeline.CrawlTask,
	status pipeline.TaskStatus,
	summary pipeline.RunSummary,
	errorText string,
) (*pipeline.CrawlTask, error) {
	finished := r.clock.Now()
	task.Status = status
	task.FinishedAt = &finished
	task.Summary = summary
	task.ErrorText = errorText

	if err := r.tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("save terminal task %s: %w", task.ID, err)
	}

	metrics.ObserveTask(string(status))
	if task.StartedAt != nil {
		metrics.ObserveRun(cfg.Name, finished.Sub(*task.StartedAt))
	}

	cfg.LastRunAt = &finished
	if err := r.configs.Save(ctx, cfg); err != nil {
		logger.Warn("last run time save failed", zap.Error(err))
	}

	if status == pipeline.TaskFailed {
		logger.Error("crawl task failed",
			zap.String("task_id", task.ID),
			zap.Int("retry_count", task.RetryCount),
			zap.String("error", errorText),
		)
	} else {
		logger.Info("crawl task completed",
			zap.String("task_id", task.ID),
			zap.Int("total", summary.Total),
			zap.Int("saved", summary.Saved),
			zap.Int("duplicated", summary.Duplicated),
			zap.Int("filtered", summary.Filtered),
			zap.Int("errors", summary.Errors),
		)
	}
	return &task, nil
}
