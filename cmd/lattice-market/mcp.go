package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/market-lattice/internal/mcpserver"
	"github.com/kingrea/market-lattice/internal/pipeline"
)

var mcpFlags struct {
	optimize bool
	noCache  bool
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve market research runs as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger, runOptions{optimize: mcpFlags.optimize, noCache: mcpFlags.noCache})
		if err != nil {
			return err
		}
		defer a.Close()

		// stdout carries the protocol, so runs only report to their logbook.
		runner := func(ctx context.Context, run *pipeline.Run, onState func(pipeline.Transition)) (*pipeline.Result, error) {
			return a.execute(ctx, run, nil, onState)
		}
		srv := mcpserver.New("market-lattice", version, runner,
			mcpserver.WithLogger(logger),
			mcpserver.WithOutputDir(a.writer.RunDir),
			mcpserver.WithReports(a.writer.Ready),
		)
		logger.Info("serving MCP on stdio", zap.String("version", version))
		return srv.ServeStdio()
	},
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpFlags.optimize, "optimize", false, "optimize programs after building them")
	mcpCmd.Flags().BoolVar(&mcpFlags.noCache, "no-cache", false, "rebuild programs and skip cached deep dives")
}
