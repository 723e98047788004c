// Package agent defines the structured inputs and outputs of every analysis
// step and the transport that hands them to an external analysis agent.
package agent

import "context"

// Invoker runs one analysis step. Implementations are opaque to the caller.
type Invoker[In, Out any] interface {
	Invoke(ctx context.Context, in In) (Out, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

// Invoke calls f.
func (f InvokerFunc[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}

// Tool names served by an analysis agent.
const (
	ToolDiscoverVendors = "discover_vendors"
	ToolAnalyzePESTLE   = "analyze_pestle"
	ToolAnalyzePorters  = "analyze_porters"
	ToolAnalyzeSWOT     = "analyze_swot"
	ToolGenerateRFP     = "generate_rfp"
	ToolOptimizeProgram = "optimize_program"
)
