package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Params are the caller-chosen inputs of a run.
type Params struct {
	Category      string
	Region        string
	VendorCount   int
	DeepDiveCount int
	QuestionCount int
	OutputDir     string
}

// Run identifies one end-to-end execution. Its parameters never change after
// NewRun; it owns the stage outcomes recorded while it executes.
type Run struct {
	id        string
	params    Params
	createdAt time.Time

	mu       sync.Mutex
	outcomes []StageOutcome
}

// RunOption customizes NewRun.
type RunOption func(*Run)

// WithRunID overrides the generated identifier.
func WithRunID(id string) RunOption {
	return func(r *Run) {
		if strings.TrimSpace(id) != "" {
			r.id = id
		}
	}
}

// WithCreatedAt overrides the creation timestamp.
func WithCreatedAt(t time.Time) RunOption {
	return func(r *Run) { r.createdAt = t }
}

// NewRun validates params and creates a run.
func NewRun(params Params, opts ...RunOption) (*Run, error) {
	params.Category = strings.TrimSpace(params.Category)
	params.Region = strings.TrimSpace(params.Region)
	if params.Category == "" {
		return nil, fmt.Errorf("pipeline: run category is required")
	}
	if params.VendorCount < 1 {
		return nil, fmt.Errorf("pipeline: vendor count must be at least 1, got %d", params.VendorCount)
	}
	if params.DeepDiveCount < 1 {
		return nil, fmt.Errorf("pipeline: deep-dive count must be at least 1, got %d", params.DeepDiveCount)
	}
	if params.QuestionCount < 1 {
		return nil, fmt.Errorf("pipeline: question count must be at least 1, got %d", params.QuestionCount)
	}
	run := &Run{
		id:        uuid.NewString(),
		params:    params,
		createdAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(run)
	}
	return run, nil
}

func (r *Run) ID() string           { return r.id }
func (r *Run) Params() Params       { return r.params }
func (r *Run) Category() string     { return r.params.Category }
func (r *Run) Region() string       { return r.params.Region }
func (r *Run) CreatedAt() time.Time { return r.createdAt }

// Outcomes returns a copy of the recorded outcomes in recording order.
func (r *Run) Outcomes() []StageOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StageOutcome(nil), r.outcomes...)
}

// Outcome returns the outcome recorded for stage.
func (r *Run) Outcome(stage Stage) (StageOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.outcomes {
		if o.Stage == stage {
			return o, true
		}
	}
	return StageOutcome{}, false
}

func (r *Run) record(o StageOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

// StageOutcome is the result of one named stage.
type StageOutcome struct {
	Stage    Stage
	OK       bool
	Payload  any
	Err      error
	Started  time.Time
	Finished time.Time
}

// Duration is how long the stage ran.
func (o StageOutcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}
