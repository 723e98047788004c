package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingrea/market-lattice/internal/agent"
	"github.com/kingrea/market-lattice/internal/artifact"
)

var cacheClearPrograms bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear cached programs and deep-dive results",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List cached programs and deep-dive results",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cache := artifact.NewCache(artifact.WithLogger(logger))
		for _, name := range []struct{ label, path string }{
			{agent.VendorProgramName, cfg.Project.Cache.VendorProgram},
			{agent.DeepDiveProgramName, cfg.Project.Cache.SWOTProgram},
		} {
			entry := cache.Entry(name.label, name.path)
			program, ok := cache.Load(name.path)
			if !ok {
				fmt.Fprintf(out, "%-16s missing  %s\n", entry.Name, entry.Canonical)
				continue
			}
			state := "built"
			if program.Optimized() {
				state = "optimized"
			}
			fmt.Fprintf(out, "%-16s %-8s %s (compiled %s)\n", entry.Name, state, entry.Canonical, program.CompiledAt.Format("2006-01-02 15:04"))
		}

		results := artifact.NewResultCache[agent.SWOTAnalysis](cfg.ResultCacheDir(), logger)
		keys, err := results.Keys()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d cached deep dive(s) in %s\n", len(keys), results.Dir())
		for _, key := range keys {
			fmt.Fprintf(out, "  %s\n", key)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached deep-dive results (and programs with --programs)",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		results := artifact.NewResultCache[agent.SWOTAnalysis](cfg.ResultCacheDir(), logger)
		n, err := results.Clear()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d cached deep dive(s)\n", n)
		if !cacheClearPrograms {
			return nil
		}
		for _, path := range []string{cfg.Project.Cache.VendorProgram, cfg.Project.Cache.SWOTProgram} {
			for _, candidate := range artifact.Candidates(path) {
				err := os.Remove(candidate)
				switch {
				case err == nil:
					fmt.Fprintf(out, "Removed %s\n", candidate)
				case errors.Is(err, fs.ErrNotExist):
				default:
					return fmt.Errorf("remove %s: %w", candidate, err)
				}
			}
		}
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().BoolVar(&cacheClearPrograms, "programs", false, "also delete cached programs")
	cacheCmd.AddCommand(cacheShowCmd, cacheClearCmd)
}
