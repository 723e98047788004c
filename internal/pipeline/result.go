package pipeline

import "github.com/kingrea/market-lattice/internal/agent"

// DeepDiveBatch is the stage 2 payload.
type DeepDiveBatch struct {
	// Selected is the vendor prefix that was submitted, in discovery order.
	Selected []agent.Vendor
	// Analyses holds the successful results in submission order.
	Analyses []agent.SWOTAnalysis
	// Failures holds one error per failed vendor in submission order.
	Failures []*ItemError
	// Cached counts results served from the result cache.
	Cached int
}

// Total is the number of vendors submitted.
func (b *DeepDiveBatch) Total() int {
	if b == nil {
		return 0
	}
	return len(b.Selected)
}

// Succeeded is the number of vendors that produced an analysis.
func (b *DeepDiveBatch) Succeeded() int {
	if b == nil {
		return 0
	}
	return len(b.Analyses)
}

// Result is everything a finished or failed run produced.
type Result struct {
	Run         *Run
	State       State
	Transitions []Transition

	Vendors   *agent.VendorList
	PESTLE    *agent.PESTLEAnalysis
	Porters   *agent.PortersAnalysis
	DeepDive  *DeepDiveBatch
	Questions *agent.QuestionSet
}

// Degraded reports a completed run in which some deep-dive items failed.
func (r *Result) Degraded() bool {
	return r != nil && r.State == StateDone && r.DeepDive != nil && len(r.DeepDive.Failures) > 0
}
