// Package scheduler periodically sweeps the config store and launches
// crawl runs for due sources.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/pipeline"
	"github.com/mediapulse/newscrawler/internal/runner"
)

// Scheduler drives periodic crawls. Each sweep lists due sources and
// runs them on a bounded pool; the runner's own active-task guard keeps
// overlapping sweeps from doubling up on a source.
type Scheduler struct {
	configs pipeline.ConfigStore
	runner  *runner.Runner
	clock   pipeline.Clock
	tick    time.Duration
	logger  *zap.Logger

	sem  chan struct{}
	cron *cron.Cron
	wg   sync.WaitGroup
}

// New builds a Scheduler sweeping every tick with at most maxConcurrent
// runs in flight.
func New(
	configs pipeline.ConfigStore,
	run *runner.Runner,
	clock pipeline.Clock,
	tick time.Duration,
	maxConcurrent int,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		configs: configs,
		runner:  run,
		clock:   clock,
		tick:    tick,
		logger:  logger,
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// Start registers the sweep schedule and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.tick)
	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("register sweep schedule: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Duration("tick", s.tick))
	return nil
}

// Stop halts the cron loop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Sweep runs one scheduling pass: every due source gets a crawl run,
// bounded by the concurrency limit. Sweep returns once all runs it
// launched have finished.
func (s *Scheduler) Sweep(ctx context.Context) {
	due, err := s.configs.ListDue(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("due config listing failed", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.Debug("sweep found due sources", zap.Int("count", len(due)))

	var sweepWG sync.WaitGroup
	for _, cfg := range due {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			sweepWG.Wait()
			return
		}
		s.wg.Add(1)
		sweepWG.Add(1)
		go func(cfg pipeline.SourceConfig) {
			defer func() {
				<-s.sem
				s.wg.Done()
				sweepWG.Done()
			}()
			if _, err := s.runner.Run(ctx, cfg); err != nil {
				s.logger.Error("scheduled run failed",
					zap.String("config_id", cfg.ID), zap.Error(err))
			}
		}(cfg)
	}
	sweepWG.Wait()
}
