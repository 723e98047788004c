package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echoWorker struct {
	slot int
}

func newEcho(slot int) (*echoWorker, error) {
	return &echoWorker{slot: slot}, nil
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1, Clamp(0, 5))
	assert.Equal(t, 1, Clamp(-3, 5))
	assert.Equal(t, 3, Clamp(3, 5))
	assert.Equal(t, 5, Clamp(10, 5))
	assert.Equal(t, 1, Clamp(4, 0))
}

func TestRunBatchEmpty(t *testing.T) {
	calls := 0
	results := RunBatch(context.Background(), nil, Options{Concurrency: 4},
		func(int) (*echoWorker, error) { calls++; return nil, nil },
		func(context.Context, *echoWorker, int) (int, error) { return 0, nil },
	)
	assert.Empty(t, results)
	assert.Zero(t, calls)
}

func TestRunBatchPreservesIndexOrder(t *testing.T) {
	values := []int{40, 5, 30, 1, 20, 10}
	results := RunBatch(context.Background(), Items(values), Options{Concurrency: 3}, newEcho,
		func(_ context.Context, _ *echoWorker, v int) (int, error) {
			time.Sleep(time.Duration(v) * time.Millisecond)
			return v * 2, nil
		},
	)
	require.Len(t, results, len(values))
	for i, res := range results {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, values[i]*2, res.Value)
		assert.NoError(t, res.Err)
	}
}

func TestWorkersBuiltOncePerSlotAndDealtRoundRobin(t *testing.T) {
	var built atomic.Int32
	results := RunBatch(context.Background(), Items(make([]int, 7)), Options{Concurrency: 3},
		func(slot int) (*echoWorker, error) {
			built.Add(1)
			return &echoWorker{slot: slot}, nil
		},
		func(_ context.Context, w *echoWorker, _ int) (int, error) {
			return w.slot, nil
		},
	)
	assert.Equal(t, int32(3), built.Load())
	for _, res := range results {
		assert.Equal(t, res.Index%3, res.Value)
		assert.Equal(t, res.Index%3, res.Slot)
	}
}

func TestConcurrencyNeverExceedsWorkers(t *testing.T) {
	var inFlight, peak atomic.Int32
	RunBatch(context.Background(), Items(make([]int, 12)), Options{Concurrency: 4}, newEcho,
		func(context.Context, *echoWorker, int) (int, error) {
			now := inFlight.Add(1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return 0, nil
		},
	)
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestFailureIsIsolated(t *testing.T) {
	boom := errors.New("boom")
	results := RunBatch(context.Background(), Items([]int{0, 1, 2, 3}), Options{Concurrency: 2}, newEcho,
		func(_ context.Context, _ *echoWorker, v int) (string, error) {
			if v == 1 {
				return "", boom
			}
			return fmt.Sprintf("item-%d", v), nil
		},
	)
	require.Len(t, results, 4)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, "item-0", results[0].Value)
	assert.Equal(t, "item-2", results[2].Value)
	assert.Equal(t, "item-3", results[3].Value)
	ok, failed := Summarize(results)
	assert.Equal(t, 3, ok)
	assert.Equal(t, 1, failed)
}

func TestPanicBecomesItemFailure(t *testing.T) {
	results := RunBatch(context.Background(), Items([]int{0, 1, 2}), Options{Concurrency: 3}, newEcho,
		func(_ context.Context, _ *echoWorker, v int) (int, error) {
			if v == 2 {
				panic("bad input")
			}
			return v, nil
		},
	)
	require.Len(t, results, 3)
	require.Error(t, results[2].Err)
	assert.Contains(t, results[2].Err.Error(), "panicked")
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}

func TestWorkerConstructionFailureFailsOnlyThatSlot(t *testing.T) {
	results := RunBatch(context.Background(), Items(make([]int, 6)), Options{Concurrency: 2},
		func(slot int) (*echoWorker, error) {
			if slot == 1 {
				return nil, errors.New("no credentials")
			}
			return &echoWorker{slot: slot}, nil
		},
		func(context.Context, *echoWorker, int) (int, error) { return 1, nil },
	)
	for _, res := range results {
		if res.Index%2 == 1 {
			assert.Error(t, res.Err, "index %d", res.Index)
			continue
		}
		assert.NoError(t, res.Err, "index %d", res.Index)
	}
}

func TestProgressCalledOncePerItem(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	totals := map[int]bool{}
	RunBatch(context.Background(), Items(make([]int, 5)), Options{
		Concurrency: 2,
		OnProgress: func(completed, total int) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, completed)
			totals[total] = true
		},
	}, newEcho, func(_ context.Context, _ *echoWorker, v int) (int, error) {
		if v == 0 {
			return 0, errors.New("failed items still count")
		}
		return v, nil
	})
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
	assert.Equal(t, map[int]bool{5: true}, totals)
}

func TestProgressPanicDoesNotBreakBatch(t *testing.T) {
	results := RunBatch(context.Background(), Items([]int{1, 2}), Options{
		Concurrency: 1,
		OnProgress:  func(int, int) { panic("ui gone") },
	}, newEcho, func(_ context.Context, _ *echoWorker, v int) (int, error) { return v, nil })
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}

func TestCancelledContextFailsUnstartedItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := RunBatch(ctx, Items([]int{1, 2, 3}), Options{Concurrency: 1}, newEcho,
		func(_ context.Context, _ *echoWorker, v int) (int, error) { return v, nil },
	)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
}
