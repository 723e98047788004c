package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/market-lattice/internal/artifact"
	"github.com/kingrea/market-lattice/internal/budget"
	"github.com/kingrea/market-lattice/internal/research"
)

// Program kinds and default names.
const (
	KindVendor   = "vendor"
	KindDeepDive = "swot"

	VendorProgramName   = "vendor-program"
	DeepDiveProgramName = "swot-program"

	ProgramVersion = "1"
)

// Suite hands out the invokers for every pipeline step on top of one tool
// caller.
type Suite struct {
	caller     ToolCaller
	guard      *budget.Guard
	researcher research.Extractor
	logger     *zap.Logger
	maxIters   int
	now        func() time.Time
}

// SuiteOption customizes a Suite.
type SuiteOption func(*Suite)

// WithSuiteGuard shares the research budget with every invoker.
func WithSuiteGuard(g *budget.Guard) SuiteOption {
	return func(s *Suite) { s.guard = g }
}

// WithResearcher lets deep-dive invokers gather vendor evidence before
// calling the agent.
func WithResearcher(r research.Extractor) SuiteOption {
	return func(s *Suite) { s.researcher = r }
}

// WithSuiteLogger sets the logger.
func WithSuiteLogger(l *zap.Logger) SuiteOption {
	return func(s *Suite) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxIters sets the iteration cap recorded in freshly built programs.
func WithMaxIters(n int) SuiteOption {
	return func(s *Suite) {
		if n > 0 {
			s.maxIters = n
		}
	}
}

// WithSuiteClock overrides the clock used for program timestamps.
func WithSuiteClock(clock func() time.Time) SuiteOption {
	return func(s *Suite) { s.now = clock }
}

// NewSuite builds a suite over caller.
func NewSuite(caller ToolCaller, opts ...SuiteOption) *Suite {
	s := &Suite{
		caller:   caller,
		logger:   zap.NewNop(),
		maxIters: 50,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Suite) options(program *artifact.Program) []InvokerOption {
	return []InvokerOption{
		WithProgram(program),
		WithGuard(s.guard),
		WithInvokerLogger(s.logger),
	}
}

// Vendor returns the vendor discovery invoker bound to program.
func (s *Suite) Vendor(program *artifact.Program) (Invoker[VendorQuery, VendorList], error) {
	if s.caller == nil {
		return nil, fmt.Errorf("agent: vendor: no tool caller")
	}
	return NewMCPInvoker[VendorQuery, VendorList](s.caller, ToolDiscoverVendors, s.options(program)...), nil
}

// PESTLE returns the PESTLE analysis invoker.
func (s *Suite) PESTLE() (Invoker[FactorQuery, PESTLEAnalysis], error) {
	if s.caller == nil {
		return nil, fmt.Errorf("agent: pestle: no tool caller")
	}
	return NewMCPInvoker[FactorQuery, PESTLEAnalysis](s.caller, ToolAnalyzePESTLE, s.options(nil)...), nil
}

// Porters returns the Five Forces analysis invoker.
func (s *Suite) Porters() (Invoker[FactorQuery, PortersAnalysis], error) {
	if s.caller == nil {
		return nil, fmt.Errorf("agent: porters: no tool caller")
	}
	return NewMCPInvoker[FactorQuery, PortersAnalysis](s.caller, ToolAnalyzePorters, s.options(nil)...), nil
}

// DeepDive returns a fresh deep-dive invoker for one pool slot.
func (s *Suite) DeepDive(program *artifact.Program, slot int) (Invoker[DeepDiveQuery, SWOTAnalysis], error) {
	if s.caller == nil {
		return nil, fmt.Errorf("agent: deep-dive slot %d: no tool caller", slot)
	}
	logger := s.logger.With(zap.Int("slot", slot))
	inner := NewMCPInvoker[DeepDiveQuery, SWOTAnalysis](s.caller, ToolAnalyzeSWOT,
		WithProgram(program), WithGuard(s.guard), WithInvokerLogger(logger))
	if s.researcher == nil {
		return inner, nil
	}
	researcher := s.researcher
	return InvokerFunc[DeepDiveQuery, SWOTAnalysis](func(ctx context.Context, q DeepDiveQuery) (SWOTAnalysis, error) {
		if len(q.Evidence) == 0 && q.Vendor.Website != "" {
			pages, err := researcher.Extract(ctx, []string{q.Vendor.Website})
			switch {
			case errors.Is(err, budget.ErrBudgetExhausted):
				logger.Info("research budget exhausted, continuing without evidence",
					zap.String("vendor", q.Vendor.Name))
			case err != nil:
				logger.Warn("evidence gathering failed",
					zap.String("vendor", q.Vendor.Name), zap.Error(err))
			default:
				q.Evidence = pages
			}
		}
		return inner.Invoke(ctx, q)
	}), nil
}

// Synthesis returns the questionnaire invoker.
func (s *Suite) Synthesis() (Invoker[SynthesisQuery, QuestionSet], error) {
	if s.caller == nil {
		return nil, fmt.Errorf("agent: synthesis: no tool caller")
	}
	return NewMCPInvoker[SynthesisQuery, QuestionSet](s.caller, ToolGenerateRFP, s.options(nil)...), nil
}

// optimizeRequest is the input of the optimize_program tool.
type optimizeRequest struct {
	Program *artifact.Program `json:"program"`
}

// VendorRecipe describes how to build and optionally optimize the vendor
// discovery program cached at path.
func (s *Suite) VendorRecipe(path string, refresh, optimize bool) artifact.Recipe {
	return s.recipe(VendorProgramName, KindVendor, path, refresh, optimize)
}

// DeepDiveRecipe describes how to build and optionally optimize the SWOT
// program cached at path.
func (s *Suite) DeepDiveRecipe(path string, refresh, optimize bool) artifact.Recipe {
	return s.recipe(DeepDiveProgramName, KindDeepDive, path, refresh, optimize)
}

func (s *Suite) recipe(name, kind, path string, refresh, optimize bool) artifact.Recipe {
	recipe := artifact.Recipe{
		Name:    name,
		Path:    path,
		Refresh: refresh,
		Build: func(context.Context) (*artifact.Program, error) {
			return &artifact.Program{
				Name:       name,
				Kind:       kind,
				Version:    ProgramVersion,
				MaxIters:   s.maxIters,
				CompiledAt: s.now().UTC(),
			}, nil
		},
	}
	if optimize {
		recipe.Optimize = s.optimize
	}
	return recipe
}

func (s *Suite) optimize(ctx context.Context, program *artifact.Program) (*artifact.Program, error) {
	if s.caller == nil {
		return nil, fmt.Errorf("agent: optimize %s: no tool caller", program.Name)
	}
	inv := NewMCPInvoker[optimizeRequest, artifact.Program](s.caller, ToolOptimizeProgram,
		WithGuard(s.guard), WithInvokerLogger(s.logger))
	out, err := inv.Invoke(ctx, optimizeRequest{Program: program})
	if err != nil {
		return nil, err
	}
	if out.Name == "" {
		out.Name = program.Name
	}
	if out.Kind == "" {
		out.Kind = program.Kind
	}
	if out.CompiledAt.IsZero() {
		out.CompiledAt = s.now().UTC()
	}
	return &out, nil
}
