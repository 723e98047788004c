package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/market-lattice/internal/pipeline"
	"github.com/kingrea/market-lattice/internal/progress"
)

// Sender is the part of *tea.Program the bridge needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards scheduler progress and log callbacks to the program.
func Bridge(s Sender) *progress.Bridge {
	return &progress.Bridge{
		OnProgress: func(stage int, label string, delta int) {
			s.Send(ProgressMsg{Stage: stage, Label: label, Delta: delta})
		},
		OnLog: func(line string) {
			s.Send(LogMsg(line))
		},
	}
}

// StateHook forwards scheduler transitions to the program.
func StateHook(s Sender) func(pipeline.Transition) {
	return func(t pipeline.Transition) {
		s.Send(StateMsg(t))
	}
}

// Work executes the run. It receives the bridge and state hook to hand to the
// scheduler.
type Work func(ctx context.Context, bridge *progress.Bridge, onState func(pipeline.Transition)) (*pipeline.Result, error)

// Run shows the progress view while work executes and returns work's result.
// Quitting the view cancels ctx for work.
func Run(ctx context.Context, run *pipeline.Run, work Work, opts ...tea.ProgramOption) (*pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(NewModel(run, cancel), opts...)

	type outcome struct {
		result *pipeline.Result
		err    error
	}
	finished := make(chan outcome, 1)
	go func() {
		res, err := work(ctx, Bridge(program), StateHook(program))
		finished <- outcome{res, err}
		program.Send(DoneMsg{Result: res, Err: err})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-finished
		return nil, fmt.Errorf("tui: %w", err)
	}
	// The user may quit early; work observes the cancelled context.
	cancel()
	out := <-finished
	return out.result, out.err
}
