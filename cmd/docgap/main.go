package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jward/docgap"
	"github.com/jward/docgap/internal/config"
)

var (
	flagDB      string
	flagConfig  string
	flagFormat  string
	flagVerbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "docgap",
	Short:         "Find and fill documentation gaps in source code",
	Long:          "docgap parses source files with tree-sitter, reports missing or incomplete documentation, and can generate and write the missing text with an LLM.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .docgap/cache.db in the analyzed directory)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: .docgap.yaml, .docgap.yml or .docgap.toml, looked up in the analyzed directory then the repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text|table")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging on stderr")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
}

// newLogger returns a text logger on w, at debug level under --verbose.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the configuration for root. The project config and .env
// file are looked up in root first, then in the enclosing repository root.
// Variables already set in the environment win over .env files, and a
// relative rules_dir is resolved against the config file's directory.
func loadConfig(root string) (*config.Config, error) {
	repoRoot := findRepoRoot(root)
	_ = godotenv.Load(filepath.Join(root, ".env"))
	if repoRoot != root {
		_ = godotenv.Load(filepath.Join(repoRoot, ".env"))
	}

	path := flagConfig
	if path == "" {
		path = config.Discover(root)
	}
	if path == "" && repoRoot != root {
		path = config.Discover(repoRoot)
	}

	cfg := config.Default()
	base := root
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		if abs, err := filepath.Abs(path); err == nil {
			base = filepath.Dir(abs)
		}
	}
	cfg.ApplyEnv()
	if cfg.RulesDir != "" && !filepath.IsAbs(cfg.RulesDir) {
		cfg.RulesDir = filepath.Join(base, cfg.RulesDir)
	}
	return cfg, nil
}

// openEngine opens the engine for root, creating the database directory
// when needed. Cached analyses hold root-relative paths, so every analyzed
// directory gets its own database.
func openEngine(root string, cfg *config.Config, logger *slog.Logger, opts ...docgap.Option) (*docgap.Engine, error) {
	dbPath := resolveDBPath(root)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	opts = append([]docgap.Option{docgap.WithConfig(cfg), docgap.WithLogger(logger)}, opts...)
	engine, err := docgap.New(dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}

// resolveTargetDir returns the absolute path of the directory to analyze.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(root string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(root, flagDB)
	}
	return filepath.Join(root, ".docgap", "cache.db")
}
