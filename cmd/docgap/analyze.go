package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/jward/docgap"
	"github.com/jward/docgap/internal/config"
	"github.com/jward/docgap/internal/generate"
	"github.com/jward/docgap/internal/model"
	"github.com/jward/docgap/rules"
)

var (
	flagMinSeverity   string
	flagStyle         string
	flagNoIncremental bool
	flagGenerate      bool
	flagWrite         bool
	flagParallel      int
	flagGit           bool
	flagFailOn        string
	flagBuiltinRules  bool
)

// errGapsFound is returned when --fail-on matched at least one gap.
var errGapsFound = errors.New("documentation gaps found")

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Report documentation gaps",
	Long:  "Walks the directory, analyzes every selected file, and reports documentation gaps. With --generate, missing documentation is drafted by the configured model; with --write it is written back into the sources.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, args, false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [path]",
	Short: "Continue an interrupted run",
	Long:  "Re-runs analysis, serving unchanged files from the cache and re-attempting generations that were pending or failed.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, args, true)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{analyzeCmd, resumeCmd} {
		f := cmd.Flags()
		f.StringVar(&flagMinSeverity, "min-severity", "", "report only gaps at or above: low|medium|high|critical")
		f.StringVar(&flagStyle, "style", "", "documentation style: google|numpy|sphinx|jsdoc|auto")
		f.BoolVar(&flagNoIncremental, "no-incremental", false, "re-analyze every file, ignoring the cache")
		f.BoolVar(&flagGenerate, "generate", false, "generate documentation for the gaps found")
		f.BoolVar(&flagWrite, "write", false, "write generated documentation into the source files")
		f.IntVar(&flagParallel, "parallel", 0, "analysis workers (0 = serial)")
		f.BoolVar(&flagGit, "git", false, "list files with git ls-files so .gitignore is respected")
		f.StringVar(&flagFailOn, "fail-on", "", "exit non-zero when a gap at or above this severity is found")
		f.BoolVar(&flagBuiltinRules, "builtin-rules", false, "use the built-in rule scripts instead of rules_dir")
	}
}

// applyAnalyzeFlags overlays the flags the user set on cfg.
func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("min-severity") {
		cfg.MinSeverity = flagMinSeverity
	}
	if f.Changed("style") {
		cfg.Style = flagStyle
	}
	if flagNoIncremental {
		cfg.Incremental = false
	}
	if f.Changed("parallel") {
		cfg.ParallelAnalysis = flagParallel
	}
	if flagGit {
		cfg.GitListing = true
	}
	if flagGenerate || flagWrite {
		cfg.Generation.Enabled = true
	}
}

func runPipeline(cmd *cobra.Command, args []string, resume bool) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	var failOn model.Severity
	if flagFailOn != "" {
		if failOn, err = model.ParseSeverity(flagFailOn); err != nil {
			return fmt.Errorf("--fail-on: %w", err)
		}
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	applyAnalyzeFlags(cmd, cfg)

	logger := newLogger(cmd.ErrOrStderr())
	opts := []docgap.Option{docgap.WithWrite(flagWrite)}
	if flagBuiltinRules {
		opts = append(opts, docgap.WithRulesFS(rules.FS))
	}
	if cfg.Generation.Enabled {
		opts = append(opts, docgap.WithGenerator(newGenerator(cfg, logger)))
	}
	engine, err := openEngine(root, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var report *docgap.Report
	if resume {
		report, err = engine.Resume(ctx, root)
	} else {
		report, err = engine.Run(ctx, root)
	}
	if report == nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	if err != nil {
		logger.Warn("run interrupted, continue with 'docgap resume'", "err", err)
	}

	var applied []docgap.AppliedFile
	if flagWrite && !report.Interrupted {
		var applyErr error
		applied, applyErr = engine.Apply(ctx, report)
		if applyErr != nil {
			logger.Warn("some documentation was not written", "err", applyErr)
		}
	}

	command := "analyze"
	if resume {
		command = "resume"
	}
	if outErr := outputReport(cmd.OutOrStdout(), command, report, applied); outErr != nil {
		return outErr
	}
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	if failOn != "" && len(report.GapsAt(failOn)) > 0 {
		return fmt.Errorf("%w at or above %s", errGapsFound, failOn)
	}
	return nil
}

// newGenerator builds the OpenAI-compatible generator for cfg.
func newGenerator(cfg *config.Config, logger *slog.Logger) generate.Generator {
	oc := cfg.Generation.OpenAI()
	oc.Logger = logger
	return generate.NewOpenAIGenerator(oc)
}
