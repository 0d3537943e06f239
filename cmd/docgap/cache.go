package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/docgap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the analysis cache",
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats [path]",
	Short: "Show cache size",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, args, func(root string, engine *docgap.Engine) error {
			stats, err := engine.CacheStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading cache stats: %w", err)
			}
			return outputResult(cmd.OutOrStdout(), CLIResult{Command: "cache stats", Results: stats})
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [path]",
	Short: "Drop every cached analysis and generation",
	Long:  "Drops every cached analysis and generation. Run history is kept.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, args, func(root string, engine *docgap.Engine) error {
			if err := engine.ClearCache(cmd.Context()); err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), CLIResult{Command: "cache clear", Results: "Cache cleared"})
		})
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune [path]",
	Short: "Drop expired generations and analyses of deleted files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, args, func(root string, engine *docgap.Engine) error {
			n, err := engine.PruneCache(cmd.Context(), root)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), CLIResult{Command: "cache prune", Results: CLIPruneResult{Removed: n}})
		})
	},
}

// withEngine opens the engine for the target directory in args and passes
// it to fn.
func withEngine(cmd *cobra.Command, args []string, fn func(root string, engine *docgap.Engine) error) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	engine, err := openEngine(root, cfg, newLogger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(root, engine)
}
