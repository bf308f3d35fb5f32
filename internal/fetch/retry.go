package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

// Operation is a fetch-shaped unit of work wrapped by the retry executor.
type Operation func(ctx context.Context) pipeline.FetchResult

// Retry runs operations with a bounded attempt count and a fixed delay
// between attempts. Panics inside the operation become error results.
type Retry struct {
	sleep  func(time.Duration)
	logger *zap.Logger
}

// NewRetry builds a Retry executor.
func NewRetry(logger *zap.Logger) *Retry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retry{
		sleep:  time.Sleep,
		logger: logger,
	}
}

// Do invokes op up to maxAttempts times, sleeping delay between
// attempts, and returns the first success or the last failure. A
// maxAttempts below 1 means a single attempt.
func (r *Retry) Do(ctx context.Context, op Operation, maxAttempts int, delay time.Duration) pipeline.FetchResult {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last pipeline.FetchResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		last = r.safeCall(ctx, op)
		if last.OK() {
			return last
		}
		r.logger.Warn("operation attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.String("message", last.Message),
		)
		if attempt < maxAttempts {
			r.sleep(delay)
		}
	}
	return last
}

// DoBackoff behaves like Do but doubles the delay after every failed
// attempt, starting from baseDelay and capping at maxBackoffDelay.
func (r *Retry) DoBackoff(ctx context.Context, op Operation, maxAttempts int, baseDelay time.Duration) pipeline.FetchResult {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	delay := baseDelay
	var last pipeline.FetchResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		last = r.safeCall(ctx, op)
		if last.OK() {
			return last
		}
		r.logger.Warn("operation attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.String("message", last.Message),
		)
		if attempt < maxAttempts {
			r.sleep(delay)
			delay *= 2
			if delay > maxBackoffDelay {
				delay = maxBackoffDelay
			}
		}
	}
	return last
}

const maxBackoffDelay = 30 * time.Second

func (r *Retry) safeCall(ctx context.Context, op Operation) (result pipeline.FetchResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("operation panicked", zap.Any("panic", rec))
			result = pipeline.FetchErrorf("operation panicked: %v", rec)
		}
	}()
	return op(ctx)
}
