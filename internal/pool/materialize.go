package pool

import "context"

// Policy decides how failed items show up in a materialized batch.
type Policy int

const (
	// DropFailed keeps only successful values, in index order.
	DropFailed Policy = iota
	// KeepNull keeps one slot per item, nil where the item failed.
	KeepNull
)

func (p Policy) String() string {
	switch p {
	case DropFailed:
		return "drop-failed"
	case KeepNull:
		return "keep-null"
	default:
		return "unknown"
	}
}

// Materialize turns a batch's results into the caller-facing list according
// to policy. Results are ordered by Index regardless of input order.
func Materialize[Out any](results []Result[Out], policy Policy) []*Out {
	ordered := make([]Result[Out], len(results))
	copy(ordered, results)
	sortByIndex(ordered)
	out := make([]*Out, 0, len(ordered))
	for i := range ordered {
		res := ordered[i]
		if res.Err != nil {
			if policy == KeepNull {
				out = append(out, nil)
			}
			continue
		}
		value := res.Value
		out = append(out, &value)
	}
	return out
}

// Values dereferences the non-nil entries of a materialized list.
func Values[Out any](ptrs []*Out) []Out {
	values := make([]Out, 0, len(ptrs))
	for _, p := range ptrs {
		if p != nil {
			values = append(values, *p)
		}
	}
	return values
}

// Summarize counts successes and failures.
func Summarize[Out any](results []Result[Out]) (succeeded, failed int) {
	for _, res := range results {
		if res.Err != nil {
			failed++
			continue
		}
		succeeded++
	}
	return succeeded, failed
}

// Map is RunBatch followed by Materialize over plain values.
func Map[W, In, Out any](
	ctx context.Context,
	values []In,
	opts Options,
	policy Policy,
	makeWorker func(slot int) (W, error),
	fn func(ctx context.Context, worker W, in In) (Out, error),
) []*Out {
	return Materialize(RunBatch(ctx, Items(values), opts, makeWorker, fn), policy)
}
