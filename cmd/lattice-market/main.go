// cmd/lattice-market/main.go
//
// Entry point for the market research CLI. Every command runs from a project
// directory that carries a .market/ folder with config, caches and reports.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/market-lattice/internal/config"
	"github.com/kingrea/market-lattice/internal/logging"
	"github.com/kingrea/market-lattice/internal/pipeline"
)

var version = "dev"

var (
	projectDir string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "lattice-market",
	Short:         "Vendor discovery, market analysis and RFP synthesis",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `lattice-market discovers vendors for a procurement category, runs PESTLE and
Porter's Five Forces analyses alongside discovery, deep dives the top vendors with
SWOT analyses and synthesizes an RFP questionnaire from everything it found.

Analysis agents are reached over MCP; configure the launch command in
.market/config.yaml or MARKET_AGENT_COMMAND.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if projectDir == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve working directory: %w", err)
			}
			projectDir = cwd
		}
		if err := config.InitMarketDir(projectDir); err != nil {
			return fmt.Errorf("initialize %s: %w", config.MarketDir, err)
		}
		loaded, err := config.NewConfig(projectDir)
		if err != nil {
			return err
		}
		cfg = loaded

		// The TUI owns the terminal, so only mirror to stderr without it.
		tuiFlag := cmd.Flags().Lookup("tui")
		console := verbose && (tuiFlag == nil || !tuiFlag.Changed)
		logger, err = logging.New(logging.Options{Dir: cfg.LogsDir(), Console: console, Verbose: verbose})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project-dir", "C", "", "project directory (defaults to the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(runCmd, mcpCmd, cacheCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describeFailure(err))
		os.Exit(1)
	}
}

// describeFailure names the stage and reason for fatal pipeline errors.
func describeFailure(err error) string {
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return fmt.Sprintf("Error: stage %s failed (%s): %v", stageErr.Stage, stageErr.Kind, stageErr.Err)
	}
	return fmt.Sprintf("Error: %v", err)
}
