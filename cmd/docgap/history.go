package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/docgap"
)

var (
	flagHistoryLimit int
	flagTrendDays    int
)

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "Show recorded runs or the coverage trend",
	Long:  "Lists recorded runs, newest first. With --trend N, shows the documentation coverage of the directory over the last N days instead.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "number of runs to show (0 = all)")
	historyCmd.Flags().IntVar(&flagTrendDays, "trend", 0, "show the coverage trend over this many days")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if flagTrendDays < 0 {
		return fmt.Errorf("invalid --trend %d: must be non-negative", flagTrendDays)
	}
	return withEngine(cmd, args, func(root string, engine *docgap.Engine) error {
		if flagTrendDays > 0 {
			points, err := engine.CoverageTrend(cmd.Context(), root, flagTrendDays)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), CLIResult{Command: "history", Results: toCLICoveragePoints(points)})
		}
		runs, err := engine.History(cmd.Context(), flagHistoryLimit)
		if err != nil {
			return err
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "history", Results: toCLIRuns(runs)})
	})
}
