package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/kingrea/market-lattice/internal/artifact"
	"github.com/kingrea/market-lattice/internal/budget"
)

// ErrEmptyResponse is returned when a tool answers without any text content.
var ErrEmptyResponse = errors.New("agent: empty tool response")

// ToolCaller is the part of an MCP client the invokers need.
type ToolCaller interface {
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// toolResponse is the envelope agents answer with. Agents that answer with the
// bare output document are accepted too.
type toolResponse struct {
	Output        json.RawMessage `json:"output"`
	ResearchCalls int             `json:"research_calls"`
}

// MCPInvoker runs one analysis step as an MCP tool call.
type MCPInvoker[In, Out any] struct {
	caller  ToolCaller
	tool    string
	program *artifact.Program
	guard   *budget.Guard
	logger  *zap.Logger
}

// InvokerOption customizes an MCPInvoker.
type InvokerOption func(*invokerConfig)

type invokerConfig struct {
	program *artifact.Program
	guard   *budget.Guard
	logger  *zap.Logger
}

// WithProgram binds a compiled program that is sent with every call.
func WithProgram(p *artifact.Program) InvokerOption {
	return func(c *invokerConfig) { c.program = p }
}

// WithGuard reports the remaining research quota to the agent and charges the
// research calls it reports back.
func WithGuard(g *budget.Guard) InvokerOption {
	return func(c *invokerConfig) { c.guard = g }
}

// WithInvokerLogger sets the logger.
func WithInvokerLogger(l *zap.Logger) InvokerOption {
	return func(c *invokerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewMCPInvoker builds an invoker that calls tool through caller.
func NewMCPInvoker[In, Out any](caller ToolCaller, tool string, opts ...InvokerOption) *MCPInvoker[In, Out] {
	cfg := invokerConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MCPInvoker[In, Out]{
		caller:  caller,
		tool:    tool,
		program: cfg.program,
		guard:   cfg.guard,
		logger:  cfg.logger.With(zap.String("tool", tool)),
	}
}

// Tool returns the tool name this invoker calls.
func (m *MCPInvoker[In, Out]) Tool() string {
	return m.tool
}

// Invoke encodes in, calls the tool and decodes its answer into Out.
func (m *MCPInvoker[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	var out Out
	if m.caller == nil {
		return out, fmt.Errorf("agent: %s: no tool caller", m.tool)
	}
	args, err := m.arguments(ctx, in)
	if err != nil {
		return out, err
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = m.tool
	req.Params.Arguments = args

	res, err := m.caller.CallTool(ctx, req)
	if err != nil {
		return out, fmt.Errorf("agent: %s: %w", m.tool, err)
	}
	text := resultText(res)
	if res != nil && res.IsError {
		return out, fmt.Errorf("agent: %s failed: %s", m.tool, strings.TrimSpace(text))
	}
	if strings.TrimSpace(text) == "" {
		return out, fmt.Errorf("agent: %s: %w", m.tool, ErrEmptyResponse)
	}
	payload, calls := unwrap([]byte(text))
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("agent: %s: decode response: %w", m.tool, err)
	}
	m.charge(ctx, calls)
	return out, nil
}

func (m *MCPInvoker[In, Out]) arguments(ctx context.Context, in In) (map[string]any, error) {
	input, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("agent: %s: encode input: %w", m.tool, err)
	}
	args := map[string]any{"input": string(input)}
	if m.program != nil {
		program, err := json.Marshal(m.program)
		if err != nil {
			return nil, fmt.Errorf("agent: %s: encode program: %w", m.tool, err)
		}
		args["program"] = string(program)
	}
	if m.guard != nil {
		args["research_quota"] = m.guard.Remaining(ctx)
	}
	return args, nil
}

// charge records the research calls the agent made on its side. Calls beyond
// the remaining quota are an overrun and only logged.
func (m *MCPInvoker[In, Out]) charge(ctx context.Context, calls int) {
	if m.guard == nil {
		return
	}
	for i := 0; i < calls; i++ {
		if err := m.guard.TryConsume(ctx); err != nil {
			m.logger.Warn("agent exceeded research quota",
				zap.Int("reported", calls),
				zap.Int("charged", i),
				zap.Error(err),
			)
			return
		}
	}
}

func unwrap(data []byte) (json.RawMessage, int) {
	var env toolResponse
	if err := json.Unmarshal(data, &env); err == nil && len(env.Output) > 0 && string(env.Output) != "null" {
		return env.Output, env.ResearchCalls
	}
	return data, 0
}

func resultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	for _, content := range res.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			b.WriteString(c.Text)
		case *mcp.TextContent:
			b.WriteString(c.Text)
		}
	}
	return b.String()
}
