package fetch

import (
	"context"
	"strings"
	"sync"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

// SequentialWorker is passed to the operation when fan-out is disabled;
// the operation must not inject a partition parameter for it.
const SequentialWorker = -1

// WorkerOperation runs one partitioned fetch. worker is the partition
// key the server side uses to return disjoint pages or shards.
type WorkerOperation func(ctx context.Context, worker int) pipeline.ItemsResult

// FanOut spawns maxWorkers parallel operations and merges their output.
// A non-positive maxWorkers degrades to one sequential call. One
// worker's failure never cancels its siblings: the merged result is a
// success as long as at least one worker succeeded, and an error that
// concatenates every failure message only when all of them failed.
func FanOut(ctx context.Context, maxWorkers int, op WorkerOperation) pipeline.ItemsResult {
	if maxWorkers <= 0 {
		return safeWorker(ctx, SequentialWorker, op)
	}

	results := make([]pipeline.ItemsResult, maxWorkers)
	var wg sync.WaitGroup
	for i := range maxWorkers {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			results[worker] = safeWorker(ctx, worker, op)
		}(i)
	}
	wg.Wait()

	var (
		items    []pipeline.RawItem
		failures []string
	)
	for _, res := range results {
		if res.OK() {
			items = append(items, res.Items...)
			continue
		}
		failures = append(failures, res.Message)
	}

	if len(failures) == maxWorkers {
		return pipeline.ItemsErrorf("all %d workers failed: %s", maxWorkers, strings.Join(failures, "; "))
	}
	return pipeline.ItemsOK(items)
}

func safeWorker(ctx context.Context, worker int, op WorkerOperation) (result pipeline.ItemsResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = pipeline.ItemsErrorf("worker %d panicked: %v", worker, rec)
		}
	}()
	return op(ctx, worker)
}
