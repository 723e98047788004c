package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Dial starts the agent command as an MCP server over stdio and completes
// the initialize handshake. The caller owns the returned client and must
// Close it.
func Dial(ctx context.Context, command string, env []string, version string) (*client.Client, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("agent: empty agent command")
	}
	c, err := client.NewStdioMCPClient(fields[0], env, fields[1:]...)
	if err != nil {
		return nil, fmt.Errorf("agent: start %s: %w", fields[0], err)
	}
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    "market-lattice",
		Version: version,
	}
	if _, err := c.Initialize(ctx, req); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("agent: initialize %s: %w", fields[0], err)
	}
	return c, nil
}
