package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/docgap"
	"github.com/jward/docgap/internal/metrics"
	"github.com/jward/docgap/rules"
)

var (
	flagDebounce    time.Duration
	flagMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-run analysis whenever a source file changes",
	Long:  "Runs analysis once, then again each time selected files change, until interrupted. Generation and writing are never enabled in watch mode.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.DurationVar(&flagDebounce, "debounce", 500*time.Millisecond, "wait this long for changes to settle")
	f.StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	f.StringVar(&flagMinSeverity, "min-severity", "", "report only gaps at or above: low|medium|high|critical")
	f.BoolVar(&flagGit, "git", false, "list files with git ls-files so .gitignore is respected")
	f.BoolVar(&flagBuiltinRules, "builtin-rules", false, "use the built-in rule scripts instead of rules_dir")
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("min-severity") {
		cfg.MinSeverity = flagMinSeverity
	}
	if flagGit {
		cfg.GitListing = true
	}

	logger := newLogger(cmd.ErrOrStderr())
	m := metrics.New()
	opts := []docgap.Option{docgap.WithMetrics(m), docgap.WithDebounce(flagDebounce)}
	if flagBuiltinRules {
		opts = append(opts, docgap.WithRulesFS(rules.FS))
	}
	engine, err := openEngine(root, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if flagMetricsAddr != "" {
		srv := serveMetrics(flagMetricsAddr, m, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	w := cmd.OutOrStdout()
	return engine.Watch(ctx, root, func(report *docgap.Report, err error) {
		if err != nil {
			logger.Error("run failed", "err", err)
			if report == nil {
				return
			}
		}
		if outErr := outputReport(w, "watch", report, nil); outErr != nil {
			logger.Error("writing report", "err", outErr)
		}
		fmt.Fprintln(w)
	})
}

// serveMetrics starts an HTTP server exposing m under /metrics.
func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}
