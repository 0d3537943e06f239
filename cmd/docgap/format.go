package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jward/docgap"
	"github.com/jward/docgap/internal/model"
	"github.com/jward/docgap/internal/store"
)

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text", "table"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(validFormats, ", "))
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"})
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#555555"})

	severityStyles = map[model.Severity]lipgloss.Style{
		model.SeverityCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		model.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		model.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		model.SeverityLow:      mutedStyle,
	}
)

func renderSeverity(s model.Severity) string {
	if st, ok := severityStyles[s]; ok {
		return st.Render(string(s))
	}
	return string(s)
}

// outputResult writes result to w in the selected format.
func outputResult(w io.Writer, result CLIResult) error {
	if flagFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	tabular := flagFormat == "table"

	switch v := result.Results.(type) {
	case CLIAnalyzeResult:
		if tabular {
			formatGapsTable(w, v.Report.Gaps)
		} else {
			formatGapsText(w, v.Report.Gaps)
		}
		fmt.Fprintln(w)
		formatStatsText(w, v.Report, tabular)
		formatAppliedText(w, v.Applied)
		formatDiagnosticsText(w, v.Report.Diagnostics)
	case []CLIRun:
		if tabular {
			formatRunsTable(w, v)
		} else {
			formatRunsText(w, v)
		}
	case []CLICoveragePoint:
		formatTrendText(w, v)
	case store.CacheStats:
		formatCacheStatsText(w, v)
	case CLIPruneResult:
		fmt.Fprintf(w, "Removed %d cache records\n", v.Removed)
	case string:
		fmt.Fprintln(w, v)
	default:
		return fmt.Errorf("no text format for %T", v)
	}
	return nil
}

// outputReport writes the result of analyze or resume.
func outputReport(w io.Writer, command string, report *docgap.Report, applied []docgap.AppliedFile) error {
	return outputResult(w, CLIResult{
		Command: command,
		Results: CLIAnalyzeResult{Report: report, Applied: applied},
	})
}

// formatGapsText formats gaps as aligned columns.
func formatGapsText(w io.Writer, gaps []model.Gap) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tSEVERITY\tTYPE\tENTITY\tDESCRIPTION")
	for _, g := range gaps {
		fmt.Fprintf(tw, "%s:%d\t%s\t%s\t%s\t%s\n",
			g.Entity.File, g.Line, g.Severity, g.Type, g.Entity.QualifiedName, g.Description)
	}
	tw.Flush()
}

// formatGapsTable renders gaps as a bordered table with colored severities.
func formatGapsTable(w io.Writer, gaps []model.Gap) {
	rows := make([][]string, 0, len(gaps))
	for _, g := range gaps {
		rows = append(rows, []string{
			g.Entity.File + ":" + strconv.Itoa(g.Line),
			renderSeverity(g.Severity),
			string(g.Type),
			g.Entity.QualifiedName,
			g.Description,
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("LOCATION", "SEVERITY", "TYPE", "ENTITY", "DESCRIPTION").
		Rows(rows...)
	fmt.Fprintln(w, t.String())
}

// formatStatsText formats the run summary.
func formatStatsText(w io.Writer, r *docgap.Report, styled bool) {
	heading := func(s string) string {
		if styled {
			return headingStyle.Render(s)
		}
		return s
	}
	sev := func(s model.Severity) string {
		if styled {
			return renderSeverity(s)
		}
		return string(s)
	}

	st := r.Stats
	fmt.Fprintln(w, heading("Summary"))
	fmt.Fprintf(w, "Root: %s\n", r.Root)
	fmt.Fprintf(w, "Files: %d (analyzed %d, cached %d, skipped %d, failed %d)\n",
		st.Files, st.Analyzed, st.Cached, st.Skipped, st.Failed)
	fmt.Fprintf(w, "Entities: %d, documented %d (%.1f%%)\n", st.Entities, st.Documented, st.Coverage)

	parts := make([]string, 0, len(model.Severities))
	for _, s := range model.Severities {
		parts = append(parts, fmt.Sprintf("%s %d", sev(s), st.BySeverity[s]))
	}
	fmt.Fprintf(w, "Gaps: %d (%s)\n", st.Gaps, strings.Join(parts, ", "))

	if len(r.Generations) > 0 {
		fmt.Fprintf(w, "Generated: %d (cached %d, failed %d, pending %d)\n",
			st.Generated, st.GenerationCached, st.GenerationFailed, st.GenerationPending)
	}
	if r.Interrupted {
		fmt.Fprintln(w, "Interrupted: run 'docgap resume' to continue")
	}
	fmt.Fprintf(w, "Duration: %s\n", st.Duration.Round(time.Millisecond))
}

// formatAppliedText lists the files documentation was written to.
func formatAppliedText(w io.Writer, applied []docgap.AppliedFile) {
	if len(applied) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Written:")
	for _, a := range applied {
		fmt.Fprintf(w, "  %s (%d edits)\n", a.Path, len(a.Edits))
	}
}

// formatDiagnosticsText lists non-fatal problems.
func formatDiagnosticsText(w io.Writer, diags []docgap.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Diagnostics:")
	for _, d := range diags {
		path := d.Path
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(w, "  %s [%s]: %v\n", path, d.Stage, d.Err)
	}
}

// formatRunsText formats recorded runs as aligned columns.
func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tFILES\tENTITIES\tCOVERAGE\tGAPS\tGENERATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.1f%%\t%d\t%d\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Files, r.Entities, r.Coverage, r.Gaps, r.Generated)
	}
	tw.Flush()
}

// formatRunsTable renders recorded runs as a bordered table.
func formatRunsTable(w io.Writer, runs []CLIRun) {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			strconv.Itoa(r.Files),
			strconv.Itoa(r.Entities),
			fmt.Sprintf("%.1f%%", r.Coverage),
			strconv.Itoa(r.Gaps),
			strconv.Itoa(r.Generated),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("RUN", "STARTED", "FILES", "ENTITIES", "COVERAGE", "GAPS", "GENERATED").
		Rows(rows...)
	fmt.Fprintln(w, t.String())
}

// formatTrendText prints one coverage snapshot per line with a bar.
func formatTrendText(w io.Writer, points []CLICoveragePoint) {
	if len(points) == 0 {
		fmt.Fprintln(w, "No runs recorded in this period")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tDOCUMENTED\tCOVERAGE\t")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%d/%d\t%.1f%%\t%s\n",
			p.RecordedAt.Format("2006-01-02 15:04"), p.Documented, p.Total, p.Coverage, coverageBar(p.Coverage))
	}
	tw.Flush()
}

// coverageBar draws pct as a 20-cell bar.
func coverageBar(pct float64) string {
	const width = 20
	filled := int(pct/100*width + 0.5)
	filled = max(0, min(width, filled))
	return strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
}

// formatCacheStatsText formats cache statistics.
func formatCacheStatsText(w io.Writer, s store.CacheStats) {
	fmt.Fprintln(w, "Cache")
	fmt.Fprintln(w, "=====")
	fmt.Fprintf(w, "Analyzed files: %d\n", s.Files)
	fmt.Fprintf(w, "Generations: %d (%d expired)\n", s.Generations, s.ExpiredGenerations)
	fmt.Fprintf(w, "Recorded runs: %d\n", s.Runs)
}
