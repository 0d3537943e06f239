package main

import (
	"time"

	"github.com/jward/docgap"
	"github.com/jward/docgap/internal/model"
	"github.com/jward/docgap/internal/store"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIAnalyzeResult is the result of analyze and resume.
type CLIAnalyzeResult struct {
	Report  *docgap.Report       `json:"report"`
	Applied []docgap.AppliedFile `json:"applied,omitempty"`
}

// CLIRun is a JSON-friendly recorded run.
type CLIRun struct {
	ID               string        `json:"id"`
	Root             string        `json:"root"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Files            int           `json:"files"`
	Analyzed         int           `json:"analyzed"`
	Cached           int           `json:"cached"`
	Skipped          int           `json:"skipped"`
	Failed           int           `json:"failed"`
	Entities         int           `json:"entities"`
	Documented       int           `json:"documented"`
	Coverage         float64       `json:"coverage"`
	Gaps             int           `json:"gaps"`
	Generated        int           `json:"generated"`
	GenerationFailed int           `json:"generation_failed"`
	GapCounts        []CLIGapCount `json:"gap_counts,omitempty"`
}

// CLIGapCount is the number of gaps of one type and severity in a run.
type CLIGapCount struct {
	Type     model.GapType  `json:"type"`
	Severity model.Severity `json:"severity"`
	Count    int            `json:"count"`
}

// CLICoveragePoint is one coverage snapshot.
type CLICoveragePoint struct {
	RunID      string    `json:"run_id"`
	RecordedAt time.Time `json:"recorded_at"`
	Total      int       `json:"total"`
	Documented int       `json:"documented"`
	Coverage   float64   `json:"coverage"`
}

// CLIPruneResult reports what cache prune removed.
type CLIPruneResult struct {
	Removed int `json:"removed"`
}

func toCLIRun(r *store.Run) CLIRun {
	out := CLIRun{
		ID:               r.ID,
		Root:             r.Root,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		Files:            r.Files,
		Analyzed:         r.Analyzed,
		Cached:           r.Cached,
		Skipped:          r.Skipped,
		Failed:           r.Failed,
		Entities:         r.Entities,
		Documented:       r.Documented,
		Coverage:         r.Coverage,
		Gaps:             r.Gaps,
		Generated:        r.Generated,
		GenerationFailed: r.GenerationFailed,
	}
	for _, gc := range r.GapCounts {
		out.GapCounts = append(out.GapCounts, CLIGapCount{Type: gc.Type, Severity: gc.Severity, Count: gc.Count})
	}
	return out
}

func toCLIRuns(runs []*store.Run) []CLIRun {
	out := make([]CLIRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, toCLIRun(r))
	}
	return out
}

func toCLICoveragePoints(points []store.CoveragePoint) []CLICoveragePoint {
	out := make([]CLICoveragePoint, 0, len(points))
	for _, p := range points {
		out = append(out, CLICoveragePoint{
			RunID:      p.RunID,
			RecordedAt: p.RecordedAt,
			Total:      p.Total,
			Documented: p.Documented,
			Coverage:   p.Coverage,
		})
	}
	return out
}
