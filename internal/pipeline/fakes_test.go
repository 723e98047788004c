package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kingrea/market-lattice/internal/agent"
	"github.com/kingrea/market-lattice/internal/artifact"
)

var _ Agents = (*agent.Suite)(nil)

type fakeAgents struct {
	mu sync.Mutex

	vendors   []agent.Vendor
	vendorErr error
	pestle    func(ctx context.Context) (agent.PESTLEAnalysis, error)
	porters   func(ctx context.Context) (agent.PortersAnalysis, error)
	deepDive  func(ctx context.Context, slot int, q agent.DeepDiveQuery) (agent.SWOTAnalysis, error)
	synthesis func(ctx context.Context, q agent.SynthesisQuery) (agent.QuestionSet, error)

	vendorProgram   *artifact.Program
	deepDiveProgram *artifact.Program
	slotsBuilt      []int
	deepDiveCalls   []string
	synthesisQuery  agent.SynthesisQuery
	deepDiveStarted time.Time
}

func vendorsNamed(names ...string) []agent.Vendor {
	out := make([]agent.Vendor, len(names))
	for i, n := range names {
		out[i] = agent.Vendor{Name: n, Website: fmt.Sprintf("https://%s.test", n)}
	}
	return out
}

func newFakeAgents(names ...string) *fakeAgents {
	return &fakeAgents{
		vendors: vendorsNamed(names...),
		pestle: func(context.Context) (agent.PESTLEAnalysis, error) {
			return agent.PESTLEAnalysis{Category: "crm", Legal: agent.FactorSection{Points: []string{"GDPR"}}}, nil
		},
		porters: func(context.Context) (agent.PortersAnalysis, error) {
			return agent.PortersAnalysis{Category: "crm", Rivalry: agent.Force{Level: "high"}}, nil
		},
		deepDive: func(_ context.Context, _ int, q agent.DeepDiveQuery) (agent.SWOTAnalysis, error) {
			return agent.SWOTAnalysis{VendorName: q.Vendor.Name, Strengths: agent.Quadrant{Points: []string{"price"}}}, nil
		},
		synthesis: func(_ context.Context, q agent.SynthesisQuery) (agent.QuestionSet, error) {
			return agent.QuestionSet{
				Category: q.Category,
				Sections: []agent.Section{{Name: "General", Questions: []agent.Question{{Prompt: "Describe your pricing."}}}},
			}, nil
		},
	}
}

func (f *fakeAgents) Vendor(program *artifact.Program) (agent.Invoker[agent.VendorQuery, agent.VendorList], error) {
	f.mu.Lock()
	f.vendorProgram = program
	f.mu.Unlock()
	return agent.InvokerFunc[agent.VendorQuery, agent.VendorList](func(_ context.Context, q agent.VendorQuery) (agent.VendorList, error) {
		if f.vendorErr != nil {
			return agent.VendorList{}, f.vendorErr
		}
		return agent.VendorList{Vendors: f.vendors}, nil
	}), nil
}

func (f *fakeAgents) PESTLE() (agent.Invoker[agent.FactorQuery, agent.PESTLEAnalysis], error) {
	return agent.InvokerFunc[agent.FactorQuery, agent.PESTLEAnalysis](func(ctx context.Context, _ agent.FactorQuery) (agent.PESTLEAnalysis, error) {
		return f.pestle(ctx)
	}), nil
}

func (f *fakeAgents) Porters() (agent.Invoker[agent.FactorQuery, agent.PortersAnalysis], error) {
	return agent.InvokerFunc[agent.FactorQuery, agent.PortersAnalysis](func(ctx context.Context, _ agent.FactorQuery) (agent.PortersAnalysis, error) {
		return f.porters(ctx)
	}), nil
}

func (f *fakeAgents) DeepDive(program *artifact.Program, slot int) (agent.Invoker[agent.DeepDiveQuery, agent.SWOTAnalysis], error) {
	f.mu.Lock()
	f.deepDiveProgram = program
	f.slotsBuilt = append(f.slotsBuilt, slot)
	f.mu.Unlock()
	return agent.InvokerFunc[agent.DeepDiveQuery, agent.SWOTAnalysis](func(ctx context.Context, q agent.DeepDiveQuery) (agent.SWOTAnalysis, error) {
		f.mu.Lock()
		if f.deepDiveStarted.IsZero() {
			f.deepDiveStarted = time.Now()
		}
		f.deepDiveCalls = append(f.deepDiveCalls, q.Vendor.Name)
		f.mu.Unlock()
		return f.deepDive(ctx, slot, q)
	}), nil
}

func (f *fakeAgents) Synthesis() (agent.Invoker[agent.SynthesisQuery, agent.QuestionSet], error) {
	return agent.InvokerFunc[agent.SynthesisQuery, agent.QuestionSet](func(ctx context.Context, q agent.SynthesisQuery) (agent.QuestionSet, error) {
		f.mu.Lock()
		f.synthesisQuery = q
		f.mu.Unlock()
		return f.synthesis(ctx, q)
	}), nil
}

func newTestRun(t interface{ Fatalf(string, ...any) }, vendors, deepDives int) *Run {
	run, err := NewRun(Params{
		Category:      "crm",
		Region:        "EU",
		VendorCount:   vendors,
		DeepDiveCount: deepDives,
		QuestionCount: 20,
	}, WithRunID("run-test"))
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	return run
}

type recordedProgress struct {
	mu     sync.Mutex
	events []progressEvent
	lines  []string
}

type progressEvent struct {
	stage int
	label string
	delta int
}

func (r *recordedProgress) onProgress(stage int, label string, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, progressEvent{stage, label, delta})
}

func (r *recordedProgress) onLog(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recordedProgress) completed(stage int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.stage == stage {
			n += e.delta
		}
	}
	return n
}

type fakeReports struct {
	mu      sync.Mutex
	stages  []Stage
	summary int
	err     error
}

func (f *fakeReports) WriteStage(_ *Run, o StageOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, o.Stage)
	return f.err
}

func (f *fakeReports) WriteSummary(*Run, *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summary++
	return f.err
}
