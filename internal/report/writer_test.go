package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/market-lattice/internal/agent"
	"github.com/kingrea/market-lattice/internal/artifact"
	"github.com/kingrea/market-lattice/internal/pipeline"
)

type stubAgents struct {
	failVendor string
}

func (s stubAgents) Vendor(*artifact.Program) (agent.Invoker[agent.VendorQuery, agent.VendorList], error) {
	return agent.InvokerFunc[agent.VendorQuery, agent.VendorList](func(_ context.Context, q agent.VendorQuery) (agent.VendorList, error) {
		return agent.VendorList{Vendors: []agent.Vendor{
			{Name: "Acme", Website: "https://acme.example", ContactEmails: []agent.ContactEmail{{Email: "sales@acme.example"}}, CountriesServed: []string{"DE", "FR", "IT", "ES"}},
			{Name: "Globex | EU", Website: "https://globex.example"},
		}}, nil
	}), nil
}

func (s stubAgents) PESTLE() (agent.Invoker[agent.FactorQuery, agent.PESTLEAnalysis], error) {
	return agent.InvokerFunc[agent.FactorQuery, agent.PESTLEAnalysis](func(_ context.Context, q agent.FactorQuery) (agent.PESTLEAnalysis, error) {
		return agent.PESTLEAnalysis{
			Category:  q.Category,
			Political: agent.FactorSection{Summary: "Stable procurement rules", Indicators: map[string]string{"b": "2", "a": "1"}},
		}, nil
	}), nil
}

func (s stubAgents) Porters() (agent.Invoker[agent.FactorQuery, agent.PortersAnalysis], error) {
	return agent.InvokerFunc[agent.FactorQuery, agent.PortersAnalysis](func(_ context.Context, q agent.FactorQuery) (agent.PortersAnalysis, error) {
		return agent.PortersAnalysis{Category: q.Category, Rivalry: agent.Force{Level: "high"}}, nil
	}), nil
}

func (s stubAgents) DeepDive(*artifact.Program, int) (agent.Invoker[agent.DeepDiveQuery, agent.SWOTAnalysis], error) {
	return agent.InvokerFunc[agent.DeepDiveQuery, agent.SWOTAnalysis](func(_ context.Context, q agent.DeepDiveQuery) (agent.SWOTAnalysis, error) {
		if q.Vendor.Name == s.failVendor {
			return agent.SWOTAnalysis{}, errors.New("agent timeout")
		}
		return agent.SWOTAnalysis{Strengths: agent.Quadrant{Points: []string{"Strong brand"}}}, nil
	}), nil
}

func (s stubAgents) Synthesis() (agent.Invoker[agent.SynthesisQuery, agent.QuestionSet], error) {
	return agent.InvokerFunc[agent.SynthesisQuery, agent.QuestionSet](func(_ context.Context, q agent.SynthesisQuery) (agent.QuestionSet, error) {
		return agent.QuestionSet{Sections: []agent.Section{{
			Name:      "Security",
			Questions: []agent.Question{{Prompt: "Describe your SOC 2 scope.", Rationale: "Regulated data"}},
		}}}, nil
	}), nil
}

func runPipeline(t *testing.T, agents pipeline.Agents, writer *Writer) (*pipeline.Run, *pipeline.Result) {
	t.Helper()
	run, err := pipeline.NewRun(pipeline.Params{
		Category:      "crm",
		Region:        "EU",
		VendorCount:   2,
		DeepDiveCount: 2,
		QuestionCount: 1,
	}, pipeline.WithRunID("run-report"))
	require.NoError(t, err)
	result, err := pipeline.New(agents, pipeline.WithReports(writer)).Run(context.Background(), run)
	require.NoError(t, err)
	return run, result
}

func TestWriterProducesEveryReport(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(root, WithWriterClock(fixedClock))
	run, result := runPipeline(t, stubAgents{}, writer)
	require.Equal(t, pipeline.StateDone, result.State)

	dir := writer.RunDir(run)
	assert.Equal(t, filepath.Join(root, "run-report"), dir)
	store := NewStore(dir)
	for _, ref := range []Ref{VendorDoc, VendorJSON, PESTLEDoc, PortersDoc, SWOTDoc, RFPDoc, RFPJSON, SummaryDoc, CompleteDoc} {
		check, err := store.Check(ref)
		require.NoError(t, err, ref.ID)
		assert.Equal(t, StateReady, check.State, ref.ID)
		assert.Equal(t, "run-report", check.Metadata.Run, ref.ID)
	}
	assert.Len(t, writer.Written("run-report"), 9)

	vendors, err := store.Body(VendorDoc)
	require.NoError(t, err)
	assert.Contains(t, string(vendors), "| 1 | Acme | https://acme.example | sales@acme.example | DE, FR, IT (+1 more) |")
	assert.Contains(t, string(vendors), `Globex \| EU`)

	pestle, err := store.Body(PESTLEDoc)
	require.NoError(t, err)
	text := string(pestle)
	assert.Less(t, strings.Index(text, "- a: 1"), strings.Index(text, "- b: 2"))

	complete, err := store.Body(CompleteDoc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(complete), "# Complete Market Analysis"))
	assert.Zero(t, strings.Count(string(complete), "\n# "), "stage titles are demoted")
	assert.Contains(t, string(complete), "Describe your SOC 2 scope.")
}

func TestWriterListsFailedDeepDives(t *testing.T) {
	writer := NewWriter(t.TempDir(), WithWriterClock(fixedClock))
	run, result := runPipeline(t, stubAgents{failVendor: "Acme"}, writer)
	require.True(t, result.Degraded())

	store := NewStore(writer.RunDir(run))
	swot, err := store.Body(SWOTDoc)
	require.NoError(t, err)
	assert.Contains(t, string(swot), "**Vendors Analyzed:** 1 of 2")
	assert.Contains(t, string(swot), "## Not Analyzed")
	assert.Contains(t, string(swot), "Acme")

	summary, err := store.Body(SummaryDoc)
	require.NoError(t, err)
	assert.Contains(t, string(summary), "**Degraded:** 1 of 2 deep dives succeeded")
	assert.Contains(t, string(summary), "| deep-dive-batch | ok |")
}

func TestWriterHonoursRunOutputDir(t *testing.T) {
	out := filepath.Join(t.TempDir(), "custom")
	run, err := pipeline.NewRun(pipeline.Params{Category: "crm", VendorCount: 1, DeepDiveCount: 1, QuestionCount: 1, OutputDir: out})
	require.NoError(t, err)
	writer := NewWriter(t.TempDir())
	assert.Equal(t, out, writer.RunDir(run))
}

func TestWriteStageSkipsFailedOutcomes(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(dir)
	run, err := pipeline.NewRun(pipeline.Params{Category: "crm", VendorCount: 1, DeepDiveCount: 1, QuestionCount: 1}, pipeline.WithRunID("r"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteStage(run, pipeline.StageOutcome{Stage: pipeline.StageVendor, OK: false, Err: errors.New("boom")}))
	_, statErr := os.Stat(filepath.Join(dir, "r"))
	assert.True(t, os.IsNotExist(statErr))

	err = writer.WriteStage(run, pipeline.StageOutcome{Stage: pipeline.StageVendor, OK: true, Payload: "unexpected"})
	assert.Error(t, err)
}

func TestWriteSummaryForFailedRunSkipsCombinedReport(t *testing.T) {
	writer := NewWriter(t.TempDir(), WithWriterClock(fixedClock))
	run, err := pipeline.NewRun(pipeline.Params{Category: "crm", VendorCount: 1, DeepDiveCount: 1, QuestionCount: 1}, pipeline.WithRunID("r"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteSummary(run, &pipeline.Result{Run: run, State: pipeline.StateFailed}))

	store := NewStore(writer.RunDir(run))
	check, err := store.Check(CompleteDoc)
	require.NoError(t, err)
	assert.Equal(t, StateMissing, check.State)
	summary, err := store.Body(SummaryDoc)
	require.NoError(t, err)
	assert.Contains(t, string(summary), "**State:** failed")
}

func TestWriterReadyListsValidReports(t *testing.T) {
	writer := NewWriter(t.TempDir(), WithWriterClock(fixedClock))
	run, err := pipeline.NewRun(pipeline.Params{Category: "crm", VendorCount: 1, DeepDiveCount: 1}, pipeline.WithRunID("run-ready"))
	require.NoError(t, err)
	assert.Empty(t, writer.Ready(run))

	run, _ = runPipeline(t, stubAgents{}, writer)
	ready := writer.Ready(run)
	assert.Len(t, ready, 9)
	assert.Equal(t, "01_vendor_discovery.md", ready[0])

	// A report whose metadata no longer matches is left out.
	path := SummaryDoc.Path(writer.RunDir(run))
	require.NoError(t, os.WriteFile(path, []byte("no frontmatter here\n"), 0o644))
	assert.NotContains(t, writer.Ready(run), SummaryDoc.File)
	assert.Len(t, writer.Ready(run), 8)
}

func TestAllIsOrderedByFile(t *testing.T) {
	all := All()
	require.Len(t, all, 9)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].File, all[i].File)
	}
}
