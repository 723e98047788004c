package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/market-lattice/internal/pipeline"
	"github.com/kingrea/market-lattice/internal/progress"
	"github.com/kingrea/market-lattice/internal/tui"
)

var runFlags struct {
	category  string
	region    string
	vendors   int
	swotCount int
	questions int
	output    string
	optimize  bool
	noCache   bool
	tui       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full market research pipeline for a category",
	Example: `  lattice-market run --category "CRM software" --region EU --vendors 10 --swot-count 3
  lattice-market run --category "cloud storage" --tui --optimize`,
	RunE: runPipeline,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.category, "category", "", "procurement category to research (required)")
	f.StringVar(&runFlags.region, "region", "", "country or region to focus on")
	f.IntVar(&runFlags.vendors, "vendors", 10, "number of vendors to discover")
	f.IntVar(&runFlags.swotCount, "swot-count", 3, "number of top vendors to deep dive")
	f.IntVar(&runFlags.questions, "questions", 20, "target number of RFP questions")
	f.StringVarP(&runFlags.output, "output", "o", "", "report directory (defaults to .market/runs/<run id>)")
	f.BoolVar(&runFlags.optimize, "optimize", false, "optimize programs after building them")
	f.BoolVar(&runFlags.noCache, "no-cache", false, "rebuild programs and skip cached deep dives")
	f.BoolVar(&runFlags.tui, "tui", false, "show the interactive progress view")
	_ = runCmd.MarkFlagRequired("category")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := pipeline.NewRun(pipeline.Params{
		Category:      runFlags.category,
		Region:        runFlags.region,
		VendorCount:   runFlags.vendors,
		DeepDiveCount: runFlags.swotCount,
		QuestionCount: runFlags.questions,
		OutputDir:     runFlags.output,
	})
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger, runOptions{optimize: runFlags.optimize, noCache: runFlags.noCache})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	var result *pipeline.Result
	if runFlags.tui {
		result, err = tui.Run(ctx, run, func(ctx context.Context, bridge *progress.Bridge, onState func(pipeline.Transition)) (*pipeline.Result, error) {
			return a.execute(ctx, run, bridge, onState)
		}, tea.WithAltScreen())
	} else {
		result, err = a.execute(ctx, run, consoleBridge(out), nil)
	}
	printSummary(out, a, run, result)
	return err
}

func consoleBridge(w io.Writer) *progress.Bridge {
	return &progress.Bridge{
		OnLog: func(line string) {
			fmt.Fprintln(w, line)
		},
	}
}

func printSummary(w io.Writer, a *app, run *pipeline.Run, result *pipeline.Result) {
	if result == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run %s: %s\n", run.ID(), result.State)
	if !result.Vendors.Empty() {
		fmt.Fprintf(w, "  Vendors discovered: %d\n", len(result.Vendors.Vendors))
	}
	if result.DeepDive != nil {
		fmt.Fprintf(w, "  Deep dives: %d/%d", result.DeepDive.Succeeded(), result.DeepDive.Total())
		if result.DeepDive.Cached > 0 {
			fmt.Fprintf(w, " (%d cached)", result.DeepDive.Cached)
		}
		fmt.Fprintln(w)
	}
	if result.Questions != nil {
		fmt.Fprintf(w, "  RFP questions: %d\n", result.Questions.Count())
	}
	fmt.Fprintf(w, "  Research calls used: %d/%d\n", a.guard.Used(), a.guard.Limit())
	fmt.Fprintf(w, "  Reports: %s\n", a.writer.RunDir(run))
}
