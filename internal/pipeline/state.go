package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// Stage names one unit of pipeline work.
type Stage string

const (
	StageVendor    Stage = "vendor"
	StageFactorA   Stage = "factor-analysis-A"
	StageFactorB   Stage = "factor-analysis-B"
	StageDeepDive  Stage = "deep-dive-batch"
	StageSynthesis Stage = "synthesis"
)

// State is a scheduler state.
type State string

const (
	StateInit           State = "init"
	StateStage1Parallel State = "stage1-parallel"
	StateStage1Validate State = "stage1-validate"
	StateStage2Batch    State = "stage2-batch"
	StateStage3Serial   State = "stage3-serial"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

var next = map[State]State{
	StateInit:           StateStage1Parallel,
	StateStage1Parallel: StateStage1Validate,
	StateStage1Validate: StateStage2Batch,
	StateStage2Batch:    StateStage3Serial,
	StateStage3Serial:   StateDone,
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether the machine may move from s to to.
func (s State) CanTransition(to State) bool {
	if s.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return next[s] == to
}

// Transition records one state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

type machine struct {
	mu      sync.Mutex
	state   State
	history []Transition
	now     func() time.Time
	hook    func(Transition)
}

func newMachine(now func() time.Time, hook func(Transition)) *machine {
	return &machine{state: StateInit, now: now, hook: hook}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) to(state State) error {
	m.mu.Lock()
	if !m.state.CanTransition(state) {
		from := m.state
		m.mu.Unlock()
		return fmt.Errorf("pipeline: invalid transition %s -> %s", from, state)
	}
	t := Transition{From: m.state, To: state, At: m.now()}
	m.state = state
	m.history = append(m.history, t)
	hook := m.hook
	m.mu.Unlock()
	if hook != nil {
		hook(t)
	}
	return nil
}

func (m *machine) transitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.history...)
}
