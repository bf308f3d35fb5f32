package fetch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

func TestFanOut_SequentialFallback(t *testing.T) {
	t.Parallel()

	var workers []int
	res := FanOut(context.Background(), 0, func(_ context.Context, worker int) pipeline.ItemsResult {
		workers = append(workers, worker)
		return pipeline.ItemsOK([]pipeline.RawItem{{Title: "only", URL: "https://example.com/1"}})
	})

	require.True(t, res.OK())
	require.Equal(t, []int{SequentialWorker}, workers)
	require.Len(t, res.Items, 1)
}

func TestFanOut_MergesInWorkerOrder(t *testing.T) {
	t.Parallel()

	res := FanOut(context.Background(), 3, func(_ context.Context, worker int) pipeline.ItemsResult {
		return pipeline.ItemsOK([]pipeline.RawItem{{
			Title: fmt.Sprintf("item-%d", worker),
			URL:   fmt.Sprintf("https://example.com/%d", worker),
		}})
	})

	require.True(t, res.OK())
	require.Len(t, res.Items, 3)
	for i, item := range res.Items {
		require.Equal(t, fmt.Sprintf("item-%d", i), item.Title)
	}
}

func TestFanOut_PartialFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	res := FanOut(context.Background(), 3, func(_ context.Context, worker int) pipeline.ItemsResult {
		if worker == 1 {
			return pipeline.ItemsErrorf("worker %d broke", worker)
		}
		return pipeline.ItemsOK([]pipeline.RawItem{{
			Title: fmt.Sprintf("item-%d", worker),
			URL:   fmt.Sprintf("https://example.com/%d", worker),
		}})
	})

	require.True(t, res.OK())
	require.Len(t, res.Items, 2)
}

func TestFanOut_AllFailed(t *testing.T) {
	t.Parallel()

	res := FanOut(context.Background(), 2, func(_ context.Context, worker int) pipeline.ItemsResult {
		return pipeline.ItemsErrorf("worker %d broke", worker)
	})

	require.False(t, res.OK())
	require.Contains(t, res.Message, "all 2 workers failed")
	require.Contains(t, res.Message, "worker 0 broke")
	require.Contains(t, res.Message, "worker 1 broke")
}

func TestFanOut_WorkerPanicIsIsolated(t *testing.T) {
	t.Parallel()

	res := FanOut(context.Background(), 2, func(_ context.Context, worker int) pipeline.ItemsResult {
		if worker == 0 {
			panic("kaput")
		}
		return pipeline.ItemsOK([]pipeline.RawItem{{Title: "survivor", URL: "https://example.com/s"}})
	})

	require.True(t, res.OK())
	require.Len(t, res.Items, 1)
	require.Equal(t, "survivor", res.Items[0].Title)
}
