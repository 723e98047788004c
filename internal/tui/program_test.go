package tui

import (
	"context"
	"errors"
	"io"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/market-lattice/internal/pipeline"
	"github.com/kingrea/market-lattice/internal/progress"
)

func TestRunReturnsWorkOutcome(t *testing.T) {
	run, err := pipeline.NewRun(pipeline.Params{Category: "crm", VendorCount: 1, DeepDiveCount: 1, QuestionCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := &pipeline.Result{Run: run, State: pipeline.StateDone}
	work := func(ctx context.Context, bridge *progress.Bridge, onState func(pipeline.Transition)) (*pipeline.Result, error) {
		bridge.Progress(1, "Vendor discovery", 1)
		bridge.Log("Stage 1 finished")
		onState(pipeline.Transition{From: pipeline.StateInit, To: pipeline.StateStage1Parallel})
		return want, nil
	}
	got, err := Run(context.Background(), run, work, tea.WithInput(nil), tea.WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != want {
		t.Fatalf("result = %+v", got)
	}
}

func TestRunPropagatesWorkError(t *testing.T) {
	run, err := pipeline.NewRun(pipeline.Params{Category: "crm", VendorCount: 1, DeepDiveCount: 1, QuestionCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	work := func(context.Context, *progress.Bridge, func(pipeline.Transition)) (*pipeline.Result, error) {
		return nil, boom
	}
	if _, err := Run(context.Background(), run, work, tea.WithInput(nil), tea.WithOutput(io.Discard)); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}
