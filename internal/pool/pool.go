package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Item is one unit of batch work. Index identifies the item in the caller's
// original ordering.
type Item[In any] struct {
	Index int
	Value In
}

// Result is the outcome for the item with the same Index. Exactly one of Value
// or Err is meaningful.
type Result[Out any] struct {
	Index int
	Slot  int
	Value Out
	Err   error
}

// OK reports whether the item succeeded.
func (r Result[Out]) OK() bool {
	return r.Err == nil
}

// Options configures a batch run.
type Options struct {
	// Name labels the batch in logs.
	Name string
	// Concurrency is the configured worker count before clamping.
	Concurrency int
	// OnProgress, when set, is called once per finished item with the number
	// of finished items so far and the batch size. Calls are serialized.
	OnProgress func(completed, total int)
	Logger     *zap.Logger
}

// Clamp returns max(1, min(configured, n)).
func Clamp(configured, n int) int {
	return max(1, min(configured, n))
}

// Items wraps values as work items indexed by position.
func Items[In any](values []In) []Item[In] {
	items := make([]Item[In], len(values))
	for i, v := range values {
		items[i] = Item[In]{Index: i, Value: v}
	}
	return items
}

// RunBatch builds Clamp(opts.Concurrency, len(items)) workers up front with
// makeWorker and runs fn for every item on the worker of slot i%workers, where
// i is the item's position. It waits for every item and returns one Result per
// item sorted by Index. No item is retried or cancelled by the pool; a
// cancelled ctx is reported as the failure of items that had not started.
func RunBatch[W, In, Out any](
	ctx context.Context,
	items []Item[In],
	opts Options,
	makeWorker func(slot int) (W, error),
	fn func(ctx context.Context, worker W, in In) (Out, error),
) []Result[Out] {
	total := len(items)
	if total == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("batch", opts.Name))
	workers := Clamp(opts.Concurrency, total)

	slots := make([]W, workers)
	slotErrs := make([]error, workers)
	for slot := range slots {
		w, err := buildWorker(makeWorker, slot)
		if err != nil {
			logger.Error("worker construction failed", zap.Int("slot", slot), zap.Error(err))
			slotErrs[slot] = fmt.Errorf("pool: build worker for slot %d: %w", slot, err)
			continue
		}
		slots[slot] = w
	}

	stream := make(chan Result[Out], total)
	tracker := &progressTracker{total: total, notify: opts.OnProgress}

	var g errgroup.Group
	for slot := 0; slot < workers; slot++ {
		g.Go(func() error {
			for pos := slot; pos < total; pos += workers {
				item := items[pos]
				res := Result[Out]{Index: item.Index, Slot: slot}
				switch {
				case slotErrs[slot] != nil:
					res.Err = slotErrs[slot]
				case ctx.Err() != nil:
					res.Err = fmt.Errorf("pool: item %d not started: %w", item.Index, ctx.Err())
				default:
					res.Value, res.Err = runItem(ctx, slots[slot], item, fn)
				}
				if res.Err != nil {
					logger.Warn("batch item failed",
						zap.Int("index", item.Index),
						zap.Int("slot", slot),
						zap.Error(res.Err),
					)
				}
				stream <- res
				tracker.done()
			}
			return nil
		})
	}
	_ = g.Wait()
	close(stream)

	results := make([]Result[Out], 0, total)
	for res := range stream {
		results = append(results, res)
	}
	sortByIndex(results)
	return results
}

func buildWorker[W any](makeWorker func(slot int) (W, error), slot int) (w W, err error) {
	if makeWorker == nil {
		return w, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return makeWorker(slot)
}

func runItem[W, In, Out any](ctx context.Context, worker W, item Item[In], fn func(context.Context, W, In) (Out, error)) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pool: item %d panicked: %v", item.Index, r)
		}
	}()
	return fn(ctx, worker, item.Value)
}

func sortByIndex[Out any](results []Result[Out]) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Index < results[j].Index
	})
}

type progressTracker struct {
	mu        sync.Mutex
	completed int
	total     int
	notify    func(completed, total int)
}

func (p *progressTracker) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	if p.notify == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	p.notify(p.completed, p.total)
}
