package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/market-lattice/internal/agent"
	"github.com/kingrea/market-lattice/internal/artifact"
	"github.com/kingrea/market-lattice/internal/pool"
)

type stage1Task struct {
	index int
	stage Stage
	label string
	run   func(ctx context.Context) (any, error)
}

type stage1Result struct {
	stage   Stage
	payload any
	err     error
}

// stage1 runs vendor discovery and both factor analyses concurrently, each in
// its own budget scope, and returns once all three have finished.
func (s *Scheduler) stage1(ctx context.Context, logger *zap.Logger, run *Run, program *artifact.Program) []stage1Result {
	params := run.Params()
	factors := agent.FactorQuery{Category: params.Category, Region: params.Region}
	tasks := []stage1Task{
		{stage: StageVendor, label: "Vendor discovery", run: func(ctx context.Context) (any, error) {
			inv, err := s.agents.Vendor(program)
			if err != nil {
				return nil, err
			}
			out, err := inv.Invoke(ctx, agent.VendorQuery{
				Category: params.Category,
				Count:    params.VendorCount,
				Region:   params.Region,
			})
			if err != nil {
				return nil, err
			}
			return &out, nil
		}},
		{stage: StageFactorA, label: "PESTLE analysis", run: func(ctx context.Context) (any, error) {
			inv, err := s.agents.PESTLE()
			if err != nil {
				return nil, err
			}
			out, err := inv.Invoke(ctx, factors)
			if err != nil {
				return nil, err
			}
			return &out, nil
		}},
		{stage: StageFactorB, label: "Porter's Five Forces", run: func(ctx context.Context) (any, error) {
			inv, err := s.agents.Porters()
			if err != nil {
				return nil, err
			}
			out, err := inv.Invoke(ctx, factors)
			if err != nil {
				return nil, err
			}
			return &out, nil
		}},
	}
	started := make([]time.Time, len(tasks))
	finished := make([]time.Time, len(tasks))
	for i := range tasks {
		tasks[i].index = i
	}

	results := pool.RunBatch(ctx, pool.Items(tasks),
		pool.Options{Name: "stage1", Concurrency: stage1Workers, Logger: logger},
		func(int) (struct{}, error) { return struct{}{}, nil },
		func(ctx context.Context, _ struct{}, task stage1Task) (out any, err error) {
			started[task.index] = s.now()
			defer func() {
				finished[task.index] = s.now()
				s.bridge.Progress(progressStage1, task.label, 1)
				s.bridge.Logf("%s %s", task.label, describe(err))
			}()
			err = s.guard.Within(ctx, s.cfg.Stage1Scope, func(ctx context.Context) error {
				v, runErr := task.run(ctx)
				out = v
				return runErr
			})
			return out, err
		},
	)

	outputs := make([]stage1Result, len(tasks))
	for _, r := range results {
		task := tasks[r.Index]
		outputs[r.Index] = stage1Result{stage: task.stage, payload: r.Value, err: r.Err}
		if finished[r.Index].IsZero() {
			finished[r.Index] = s.now()
		}
		s.record(logger, run, StageOutcome{
			Stage:    task.stage,
			OK:       r.Err == nil && present(r.Value),
			Payload:  r.Value,
			Err:      r.Err,
			Started:  started[r.Index],
			Finished: finished[r.Index],
		})
	}
	return outputs
}

// present reports whether a stage 1 payload carries usable content.
func present(payload any) bool {
	switch v := payload.(type) {
	case *agent.VendorList:
		return !v.Empty()
	case *agent.PESTLEAnalysis:
		return !v.Empty()
	case *agent.PortersAnalysis:
		return !v.Empty()
	default:
		return false
	}
}

// validate binds the stage 1 outputs to their named slots. Every output is
// required; the first missing one in stage order fails the run.
func (s *Scheduler) validate(outputs []stage1Result, res *Result) *StageError {
	var first *StageError
	for _, out := range outputs {
		var err *StageError
		switch out.stage {
		case StageVendor:
			res.Vendors, _ = out.payload.(*agent.VendorList)
			switch {
			case out.err != nil:
				err = requiredMissing(out.stage, "vendor discovery failed", out.err)
			case res.Vendors.Empty():
				err = requiredMissing(out.stage, "no vendors discovered", nil)
			}
		case StageFactorA:
			res.PESTLE, _ = out.payload.(*agent.PESTLEAnalysis)
			switch {
			case out.err != nil:
				err = requiredMissing(out.stage, "PESTLE analysis failed", out.err)
			case res.PESTLE.Empty():
				err = requiredMissing(out.stage, "PESTLE analysis is empty", nil)
			}
		case StageFactorB:
			res.Porters, _ = out.payload.(*agent.PortersAnalysis)
			switch {
			case out.err != nil:
				err = requiredMissing(out.stage, "Porter's analysis failed", out.err)
			case res.Porters.Empty():
				err = requiredMissing(out.stage, "Porter's analysis is empty", nil)
			}
		}
		if err == nil {
			continue
		}
		s.bridge.Logf("Required output missing: %v", err.Err)
		if first == nil {
			first = err
		}
	}
	return first
}

// stage2 deep-dives the first min(requested, available) vendors.
func (s *Scheduler) stage2(ctx context.Context, logger *zap.Logger, run *Run, vendors []agent.Vendor, program *artifact.Program) (*DeepDiveBatch, *StageError) {
	started := s.now()
	params := run.Params()
	n := min(params.DeepDiveCount, len(vendors))
	if n <= 0 {
		err := requiredMissing(StageDeepDive, "no vendors available for deep dive", nil)
		s.record(logger, run, StageOutcome{Stage: StageDeepDive, Err: err, Started: started, Finished: s.now()})
		return nil, err
	}
	selected := append([]agent.Vendor(nil), vendors[:n]...)
	batch := &DeepDiveBatch{Selected: selected}
	workers := pool.Clamp(s.cfg.Concurrency, n)
	s.bridge.Logf("Stage 2: deep dive on %d of %d vendors with %d workers", n, len(vendors), workers)
	s.bridge.Progress(progressStage2, fmt.Sprintf("Deep dive 0/%d", n), 0)

	var cached atomic.Int32
	results := pool.RunBatch(ctx, pool.Items(selected),
		pool.Options{
			Name:        "deep-dive",
			Concurrency: s.cfg.Concurrency,
			Logger:      logger,
			OnProgress: func(completed, total int) {
				s.bridge.Progress(progressStage2, fmt.Sprintf("Deep dive %d/%d", completed, total), 1)
			},
		},
		func(slot int) (agent.Invoker[agent.DeepDiveQuery, agent.SWOTAnalysis], error) {
			return s.agents.DeepDive(program, slot)
		},
		func(ctx context.Context, inv agent.Invoker[agent.DeepDiveQuery, agent.SWOTAnalysis], v agent.Vendor) (swot agent.SWOTAnalysis, err error) {
			defer func() {
				s.bridge.Logf("Deep dive %s %s", v.Name, describe(err))
			}()
			if hit, ok := s.results.Load(v.Website); ok {
				cached.Add(1)
				return hit, nil
			}
			if inv == nil {
				return swot, fmt.Errorf("no deep-dive agent for %s", v.Name)
			}
			err = s.guard.Within(ctx, s.cfg.DeepDiveScope, func(ctx context.Context) error {
				var invokeErr error
				swot, invokeErr = inv.Invoke(ctx, agent.DeepDiveQuery{
					Vendor:   v,
					Category: params.Category,
					Region:   params.Region,
				})
				return invokeErr
			})
			if err != nil {
				return swot, err
			}
			if swot.VendorName == "" {
				swot.VendorName = v.Name
			}
			if swot.VendorWebsite == "" {
				swot.VendorWebsite = v.Website
			}
			_ = s.results.Save(v.Website, swot)
			return swot, nil
		},
	)

	for _, r := range results {
		if r.Err == nil {
			continue
		}
		batch.Failures = append(batch.Failures, &ItemError{Index: r.Index, Vendor: selected[r.Index].Name, Err: r.Err})
	}
	batch.Analyses = pool.Values(pool.Materialize(results, pool.DropFailed))
	batch.Cached = int(cached.Load())

	logger.Info("pipeline: deep dive finished",
		zap.Int("succeeded", batch.Succeeded()),
		zap.Int("failed", len(batch.Failures)),
		zap.Int("cached", batch.Cached),
	)
	s.bridge.Logf("Stage 2: %d/%d deep dives succeeded", batch.Succeeded(), batch.Total())
	s.record(logger, run, StageOutcome{
		Stage:    StageDeepDive,
		OK:       true,
		Payload:  batch,
		Started:  started,
		Finished: s.now(),
	})
	return batch, nil
}

// stage3 runs the single synthesis call over every validated output.
func (s *Scheduler) stage3(ctx context.Context, logger *zap.Logger, run *Run, res *Result) (*agent.QuestionSet, *StageError) {
	started := s.now()
	params := run.Params()
	s.bridge.Log("Stage 3: synthesizing questionnaire")
	s.bridge.Progress(progressStage3, "Synthesis", 0)

	query := agent.SynthesisQuery{
		Category:      params.Category,
		Region:        params.Region,
		QuestionCount: params.QuestionCount,
		Vendors:       res.Vendors.Vendors,
		PESTLE:        res.PESTLE,
		Porters:       res.Porters,
		SWOT:          []agent.SWOTAnalysis{},
	}
	if res.DeepDive != nil && len(res.DeepDive.Analyses) > 0 {
		query.SWOT = res.DeepDive.Analyses
	}

	var out agent.QuestionSet
	err := s.guard.Within(ctx, s.cfg.SynthesisScope, func(ctx context.Context) error {
		return recovered(func() error {
			inv, err := s.agents.Synthesis()
			if err != nil {
				return err
			}
			out, err = inv.Invoke(ctx, query)
			return err
		})
	})
	s.bridge.Progress(progressStage3, "Synthesis", 1)

	var stageErr *StageError
	switch {
	case err != nil:
		stageErr = requiredMissing(StageSynthesis, "synthesis failed", err)
	case out.Empty():
		stageErr = requiredMissing(StageSynthesis, "synthesis produced no questions", nil)
	}
	if stageErr != nil {
		s.record(logger, run, StageOutcome{Stage: StageSynthesis, Err: stageErr, Started: started, Finished: s.now()})
		return nil, stageErr
	}
	if out.TotalQuestions == 0 {
		out.TotalQuestions = out.Count()
	}
	s.bridge.Logf("Stage 3: %d questions in %d sections", out.TotalQuestions, len(out.Sections))
	s.record(logger, run, StageOutcome{Stage: StageSynthesis, OK: true, Payload: &out, Started: started, Finished: s.now()})
	return &out, nil
}

func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
