// Package mcpserver exposes pipeline runs as MCP tools so another agent can
// commission market research over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kingrea/market-lattice/internal/logbook"
	"github.com/kingrea/market-lattice/internal/pipeline"
)

// Tool names.
const (
	ToolRun    = "run_market_research"
	ToolStatus = "get_run_status"
)

// Defaults applied when a caller omits a count.
const (
	DefaultVendors   = 10
	DefaultSWOTCount = 3
	DefaultQuestions = 20
)

// StatusLogLines caps the run log tail returned by get_run_status.
const StatusLogLines = 20

// Runner executes one run to completion. onState observes every state
// transition while the run is in flight.
type Runner func(ctx context.Context, run *pipeline.Run, onState func(pipeline.Transition)) (*pipeline.Result, error)

// Summary is the JSON document returned by both tools.
type Summary struct {
	RunID      string `json:"run_id"`
	Category   string `json:"category"`
	Region     string `json:"region,omitempty"`
	State      string `json:"state"`
	Vendors    int    `json:"vendors"`
	DeepDives  int    `json:"deep_dives"`
	Requested  int    `json:"deep_dives_requested"`
	Questions  int    `json:"questions"`
	Degraded   bool   `json:"degraded,omitempty"`
	FailedAt   string `json:"failed_stage,omitempty"`
	Error      string `json:"error,omitempty"`
	OutputDir  string `json:"output_dir,omitempty"`
	DurationMS int64  `json:"duration_ms"`

	// Filled by get_run_status only.
	Reports  []string `json:"reports,omitempty"`
	Log      []string `json:"log,omitempty"`
	LogLines int      `json:"log_lines,omitempty"`
}

// tracked is a run known to this server and its latest summary.
type tracked struct {
	run     *pipeline.Run
	summary Summary
}

// Server wraps an MCP server with the market research tools.
type Server struct {
	mcp       *server.MCPServer
	runner    Runner
	logger    *zap.Logger
	outputDir func(*pipeline.Run) string
	reports   func(*pipeline.Run) []string

	mu   sync.Mutex
	runs map[string]*tracked
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOutputDir reports where each run's files were written.
func WithOutputDir(fn func(*pipeline.Run) string) Option {
	return func(s *Server) { s.outputDir = fn }
}

// WithReports lists the finished report files of a run for get_run_status.
func WithReports(fn func(*pipeline.Run) []string) Option {
	return func(s *Server) { s.reports = fn }
}

// New registers the tools on a fresh MCP server.
func New(name, version string, runner Runner, opts ...Option) *Server {
	s := &Server{
		runner: runner,
		logger: zap.NewNop(),
		runs:   map[string]*tracked{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcp = server.NewMCPServer(name, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.mcp.AddTool(mcp.NewTool(ToolRun,
		mcp.WithDescription("Discover vendors, analyze the market and produce an RFP questionnaire for a procurement category"),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Procurement category, e.g. 'CRM software'"),
		),
		mcp.WithString("region",
			mcp.Description("Country or region to focus on"),
		),
		mcp.WithNumber("vendors",
			mcp.Description("Number of vendors to discover"),
			mcp.DefaultNumber(DefaultVendors),
			mcp.Min(1),
		),
		mcp.WithNumber("swot_count",
			mcp.Description("Number of top vendors to deep dive"),
			mcp.DefaultNumber(DefaultSWOTCount),
			mcp.Min(1),
		),
		mcp.WithNumber("questions",
			mcp.Description("Target number of RFP questions"),
			mcp.DefaultNumber(DefaultQuestions),
			mcp.Min(1),
		),
	), s.handleRun)
	s.mcp.AddTool(mcp.NewTool(ToolStatus,
		mcp.WithDescription("Return the state, report files and recent log of a run started by this server, including runs still in progress"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Identifier returned by run_market_research"),
		),
	), s.handleStatus)
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks serving the tools on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid category: %v", err)), nil
	}
	run, err := pipeline.NewRun(pipeline.Params{
		Category:      category,
		Region:        req.GetString("region", ""),
		VendorCount:   int(req.GetFloat("vendors", DefaultVendors)),
		DeepDiveCount: int(req.GetFloat("swot_count", DefaultSWOTCount)),
		QuestionCount: int(req.GetFloat("questions", DefaultQuestions)),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.runner == nil {
		return mcp.NewToolResultError("no pipeline runner configured"), nil
	}

	logger := s.logger.With(zap.String("run_id", run.ID()))
	logger.Info("mcpserver: run requested", zap.String("category", run.Category()))
	entry := &tracked{run: run, summary: s.summarize(run, nil, nil)}
	s.mu.Lock()
	s.runs[run.ID()] = entry
	s.mu.Unlock()

	result, runErr := s.runner(ctx, run, func(t pipeline.Transition) {
		s.mu.Lock()
		entry.summary.State = string(t.To)
		s.mu.Unlock()
	})
	summary := s.summarize(run, result, runErr)
	s.mu.Lock()
	entry.summary = summary
	s.mu.Unlock()
	if runErr != nil {
		logger.Warn("mcpserver: run failed", zap.Error(runErr))
	}
	return jsonResult(summary, runErr != nil)
}

func (s *Server) handleStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid run_id: %v", err)), nil
	}
	s.mu.Lock()
	entry, ok := s.runs[id]
	var summary Summary
	if ok {
		summary = entry.summary
	}
	s.mu.Unlock()
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Run '%s' not found", id)), nil
	}
	if s.reports != nil {
		summary.Reports = s.reports(entry.run)
	}
	if summary.OutputDir != "" {
		book, err := logbook.New(filepath.Join(summary.OutputDir, logbook.FileName))
		if err == nil {
			summary.Log, summary.LogLines = book.Tail(StatusLogLines)
		}
	}
	return jsonResult(summary, false)
}

func (s *Server) summarize(run *pipeline.Run, result *pipeline.Result, err error) Summary {
	params := run.Params()
	summary := Summary{
		RunID:     run.ID(),
		Category:  run.Category(),
		Region:    run.Region(),
		State:     string(pipeline.StateInit),
		Requested: params.DeepDiveCount,
	}
	if s.outputDir != nil {
		summary.OutputDir = s.outputDir(run)
	}
	for _, o := range run.Outcomes() {
		summary.DurationMS += o.Duration().Milliseconds()
	}
	if result != nil {
		summary.State = string(result.State)
		summary.Degraded = result.Degraded()
		if !result.Vendors.Empty() {
			summary.Vendors = len(result.Vendors.Vendors)
		}
		summary.DeepDives = result.DeepDive.Succeeded()
		summary.Questions = result.Questions.Count()
	}
	if err != nil {
		summary.Error = err.Error()
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			summary.FailedAt = string(stageErr.Stage)
		}
	}
	return summary
}

func jsonResult(summary Summary, isError bool) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if isError {
		return mcp.NewToolResultError(string(b)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
