package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/market-lattice/internal/agent"
	"github.com/kingrea/market-lattice/internal/artifact"
	"github.com/kingrea/market-lattice/internal/budget"
	"github.com/kingrea/market-lattice/internal/progress"
)

// Stage 1 always runs its three tasks side by side.
const stage1Workers = 3

// Progress stage numbers reported through the bridge.
const (
	progressStage1 = 1
	progressStage2 = 2
	progressStage3 = 3
)

// Agents hands out the invokers for each step. DeepDive is called once per
// pool slot and the returned invoker is reused for every vendor on that slot.
type Agents interface {
	Vendor(program *artifact.Program) (agent.Invoker[agent.VendorQuery, agent.VendorList], error)
	PESTLE() (agent.Invoker[agent.FactorQuery, agent.PESTLEAnalysis], error)
	Porters() (agent.Invoker[agent.FactorQuery, agent.PortersAnalysis], error)
	DeepDive(program *artifact.Program, slot int) (agent.Invoker[agent.DeepDiveQuery, agent.SWOTAnalysis], error)
	Synthesis() (agent.Invoker[agent.SynthesisQuery, agent.QuestionSet], error)
}

// ReportWriter persists human-readable reports. Write failures never fail
// the run.
type ReportWriter interface {
	WriteStage(run *Run, outcome StageOutcome) error
	WriteSummary(run *Run, result *Result) error
}

// Config tunes a Scheduler.
type Config struct {
	// Concurrency is the configured stage 2 worker count before clamping.
	Concurrency int
	// Stage1Scope caps research calls per stage 1 task. Nil uses the guard's
	// default scope limit.
	Stage1Scope *int
	// DeepDiveScope caps research calls per deep-dive vendor.
	DeepDiveScope *int
	// SynthesisScope caps research calls of the synthesis step.
	SynthesisScope *int
	// VendorProgram and DeepDiveProgram describe the cached programs. A
	// recipe without a Build step means no program is bound.
	VendorProgram   artifact.Recipe
	DeepDiveProgram artifact.Recipe
}

// Scheduler runs pipeline runs.
type Scheduler struct {
	agents  Agents
	cfg     Config
	guard   *budget.Guard
	cache   *artifact.Cache
	results *artifact.ResultCache[agent.SWOTAnalysis]
	reports ReportWriter
	bridge  *progress.Bridge
	logger  *zap.Logger
	now     func() time.Time
	onState func(Transition)
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithConfig sets the scheduler configuration.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) { s.cfg = cfg }
}

// WithGuard shares the research budget.
func WithGuard(g *budget.Guard) Option {
	return func(s *Scheduler) { s.guard = g }
}

// WithCache sets the program cache.
func WithCache(c *artifact.Cache) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithResultCache enables per-vendor deep-dive result caching.
func WithResultCache(c *artifact.ResultCache[agent.SWOTAnalysis]) Option {
	return func(s *Scheduler) { s.results = c }
}

// WithReports sets the report writer.
func WithReports(w ReportWriter) Option {
	return func(s *Scheduler) { s.reports = w }
}

// WithBridge sets the progress and log sinks.
func WithBridge(b *progress.Bridge) Option {
	return func(s *Scheduler) { s.bridge = b }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for outcome timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithStateHook observes every state transition.
func WithStateHook(hook func(Transition)) Option {
	return func(s *Scheduler) { s.onState = hook }
}

// New builds a scheduler over agents.
func New(agents Agents, opts ...Option) *Scheduler {
	s := &Scheduler{
		agents: agents,
		cache:  artifact.NewCache(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes run to completion. On a fatal failure it returns the partial
// result together with a *StageError.
func (s *Scheduler) Run(ctx context.Context, run *Run) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if run == nil {
		return nil, &StageError{Stage: StageVendor, Kind: KindInvalidRun, Err: errors.New("nil run")}
	}
	if s.agents == nil {
		return nil, &StageError{Stage: StageVendor, Kind: KindInvalidRun, Err: errors.New("no agents configured")}
	}
	logger := s.logger.With(zap.String("run_id", run.ID()), zap.String("category", run.Category()))
	m := newMachine(s.now, func(t Transition) {
		logger.Info("pipeline: state", zap.String("from", string(t.From)), zap.String("to", string(t.To)))
		if s.onState != nil {
			s.onState(t)
		}
	})
	res := &Result{Run: run, State: StateInit}
	finish := func(err *StageError) (*Result, error) {
		res.State = m.current()
		res.Transitions = m.transitions()
		s.writeSummary(logger, res)
		if err != nil {
			logger.Error("pipeline: run failed", zap.String("stage", string(err.Stage)), zap.Error(err))
			s.bridge.Logf("Run failed at %s: %v", err.Stage, err.Err)
			return res, err
		}
		return res, nil
	}
	fail := func(err *StageError) (*Result, error) {
		_ = m.to(StateFailed)
		return finish(err)
	}

	s.bridge.Logf("Starting market research for %q (run %s)", run.Category(), run.ID())
	vendorProgram := s.program(ctx, logger, s.cfg.VendorProgram)

	_ = m.to(StateStage1Parallel)
	s.bridge.Log("Stage 1: vendor discovery and market analyses started")
	stage1 := s.stage1(ctx, logger, run, vendorProgram)
	s.bridge.Log("Stage 1: all analyses finished")

	_ = m.to(StateStage1Validate)
	if err := s.validate(stage1, res); err != nil {
		return fail(err)
	}

	_ = m.to(StateStage2Batch)
	deepDiveProgram := s.program(ctx, logger, s.cfg.DeepDiveProgram)
	batch, err := s.stage2(ctx, logger, run, res.Vendors.Vendors, deepDiveProgram)
	if err != nil {
		return fail(err)
	}
	res.DeepDive = batch

	_ = m.to(StateStage3Serial)
	questions, err := s.stage3(ctx, logger, run, res)
	if err != nil {
		return fail(err)
	}
	res.Questions = questions

	_ = m.to(StateDone)
	if res.Degraded() {
		s.bridge.Logf("Run complete with %d/%d deep dives", batch.Succeeded(), batch.Total())
	} else {
		s.bridge.Log("Run complete")
	}
	return finish(nil)
}

// program resolves a cached program. Any failure leaves the step unbound.
func (s *Scheduler) program(ctx context.Context, logger *zap.Logger, recipe artifact.Recipe) *artifact.Program {
	if recipe.Build == nil {
		return nil
	}
	program, origin, err := artifact.LoadOrBuild(ctx, s.cache, recipe)
	if err != nil {
		logger.Warn("pipeline: program unavailable", zap.String("program", recipe.Name), zap.Error(err))
		s.bridge.Logf("Program %s unavailable, continuing without it", recipe.Name)
		return nil
	}
	logger.Info("pipeline: program ready", zap.String("program", recipe.Name), zap.String("origin", string(origin)))
	if origin == artifact.OriginCache {
		s.bridge.Logf("Loaded cached %s", recipe.Name)
	}
	return program
}

func (s *Scheduler) record(logger *zap.Logger, run *Run, o StageOutcome) {
	run.record(o)
	fields := []zap.Field{
		zap.String("stage", string(o.Stage)),
		zap.Bool("ok", o.OK),
		zap.Duration("duration", o.Duration()),
	}
	if o.Err != nil {
		logger.Warn("pipeline: stage outcome", append(fields, zap.Error(o.Err))...)
	} else {
		logger.Info("pipeline: stage outcome", fields...)
	}
	if s.reports == nil {
		return
	}
	if err := s.reports.WriteStage(run, o); err != nil {
		logger.Warn("pipeline: stage report not written", zap.String("stage", string(o.Stage)), zap.Error(err))
	}
}

func (s *Scheduler) writeSummary(logger *zap.Logger, res *Result) {
	if s.reports == nil {
		return
	}
	if err := s.reports.WriteSummary(res.Run, res); err != nil {
		logger.Warn("pipeline: summary report not written", zap.Error(err))
	}
}

func describe(err error) string {
	if err == nil {
		return "ok"
	}
	return fmt.Sprintf("failed: %v", err)
}
