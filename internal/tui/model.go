// internal/tui/model.go
//
// Progress view for a pipeline run. It follows The Elm Architecture:
// the scheduler's bridge callbacks become messages, Update folds them into
// the model and View renders three stage bars plus a log tail.

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/market-lattice/internal/pipeline"
)

const (
	logTailSize   = 8
	barWidth      = 40
	stageCount    = 3
	minPanelWidth = 20
)

// ProgressMsg carries one bridge progress callback.
type ProgressMsg struct {
	Stage int
	Label string
	Delta int
}

// LogMsg carries one bridge log line.
type LogMsg string

// StateMsg reports a scheduler state transition.
type StateMsg pipeline.Transition

// DoneMsg ends the program once the run returns.
type DoneMsg struct {
	Result *pipeline.Result
	Err    error
}

type stageBar struct {
	title     string
	label     string
	completed int
	total     int
}

func (b stageBar) percent() float64 {
	if b.total <= 0 {
		return 0
	}
	p := float64(b.completed) / float64(b.total)
	if p > 1 {
		return 1
	}
	return p
}

// Model is the bubbletea model for a run.
type Model struct {
	category string
	runID    string
	stages   [stageCount]stageBar
	state    pipeline.State
	logs     []string
	done     bool
	err      error
	result   *pipeline.Result
	width    int

	bar     progress.Model
	spinner spinner.Model
	cancel  func()
}

// NewModel builds the view for run. cancel is invoked when the user quits
// before the run finishes.
func NewModel(run *pipeline.Run, cancel func()) Model {
	params := run.Params()
	deepDives := params.DeepDiveCount
	if params.VendorCount < deepDives {
		deepDives = params.VendorCount
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	return Model{
		category: run.Category(),
		runID:    run.ID(),
		stages: [stageCount]stageBar{
			{title: "Discovery & market analysis", total: 3},
			{title: "Vendor deep dives", total: deepDives},
			{title: "RFP synthesis", total: 1},
		},
		state:   pipeline.StateInit,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
		spinner: sp,
		cancel:  cancel,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update folds a message into the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(minPanelWidth, min(barWidth, msg.Width-30))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil

	case ProgressMsg:
		idx := msg.Stage - 1
		if idx < 0 || idx >= stageCount {
			return m, nil
		}
		bar := &m.stages[idx]
		if msg.Label != "" {
			bar.label = msg.Label
		}
		if msg.Delta > 0 {
			bar.completed += msg.Delta
			if bar.completed > bar.total {
				bar.total = bar.completed
			}
		}
		return m, nil

	case LogMsg:
		m.logs = append(m.logs, strings.TrimSpace(string(msg)))
		if len(m.logs) > logTailSize {
			m.logs = m.logs[len(m.logs)-logTailSize:]
		}
		return m, nil

	case StateMsg:
		m.state = msg.To
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		m.result = msg.Result
		if msg.Result != nil {
			m.state = msg.Result.State
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the current state.
func (m Model) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		Render(fmt.Sprintf("⬡ MARKET RESEARCH · %s", m.category))
	sub := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render(fmt.Sprintf("run %s · %s", m.runID, m.state))

	var rows []string
	for i, stage := range m.stages {
		marker := "  "
		if i == m.activeStage() && !m.done {
			marker = m.spinner.View() + " "
		}
		title := fmt.Sprintf("%s%d. %s (%d/%d)", marker, i+1, stage.title, stage.completed, stage.total)
		if stage.label != "" {
			title += " · " + stage.label
		}
		rows = append(rows, title, "   "+m.bar.ViewAs(stage.percent()))
	}
	board := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(strings.Join(rows, "\n"))

	sections := []string{header, sub, board}
	if len(m.logs) > 0 {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			Render(strings.Join(m.logs, "\n")))
	}
	if m.done {
		sections = append(sections, m.renderOutcome())
	}
	return strings.Join(sections, "\n") + "\n"
}

func (m Model) activeStage() int {
	switch m.state {
	case pipeline.StateStage2Batch:
		return 1
	case pipeline.StateStage3Serial:
		return 2
	default:
		return 0
	}
}

func (m Model) renderOutcome() string {
	if m.err != nil {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Render("✗ " + m.err.Error())
	}
	msg := "✓ Run complete"
	if m.result.Degraded() {
		msg = fmt.Sprintf("✓ Run complete, %d/%d deep dives succeeded", m.result.DeepDive.Succeeded(), m.result.DeepDive.Total())
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#5BEF8D")).Render(msg)
}
