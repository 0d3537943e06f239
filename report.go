package docgap

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/jward/docgap/internal/model"
	"github.com/jward/docgap/internal/store"
)

// Report is the result of one run.
type Report struct {
	RunID      string    `json:"run_id"`
	Root       string    `json:"root"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Resumed    bool      `json:"resumed,omitempty"`
	// Interrupted is set when the run was canceled during generation.
	Interrupted bool           `json:"interrupted,omitempty"`
	Entities    []model.Entity `json:"entities"`
	Gaps        []model.Gap    `json:"gaps"`
	Stats       Stats          `json:"stats"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
	Generations []Generation   `json:"generations,omitempty"`
}

// Stats summarizes a run.
type Stats struct {
	Files    int `json:"files"`
	Analyzed int `json:"analyzed"`
	Cached   int `json:"cached"`
	// Skipped files have no registered analyzer.
	Skipped int `json:"skipped"`
	// Failed files could not be read or parsed.
	Failed     int `json:"failed"`
	Entities   int `json:"entities"`
	Documented int `json:"documented"`
	// DocumentedRatio is Documented/Entities in [0, 1]; Coverage is the
	// same value as a percentage.
	DocumentedRatio float64                `json:"documented_ratio"`
	Coverage        float64                `json:"coverage"`
	Gaps            int                    `json:"gaps"`
	BySeverity      map[model.Severity]int `json:"by_severity"`
	ByType          map[model.GapType]int  `json:"by_type"`
	// Generated counts usable proposals, including GenerationCached.
	Generated         int           `json:"generated"`
	GenerationCached  int           `json:"generation_cached"`
	GenerationFailed  int           `json:"generation_failed"`
	GenerationPending int           `json:"generation_pending"`
	Duration          time.Duration `json:"duration"`
}

// Diagnostic is a non-fatal problem met during a run.
type Diagnostic struct {
	Path  string `json:"path"`
	Stage string `json:"stage"`
	Err   error  `json:"-"`
}

func (d Diagnostic) MarshalJSON() ([]byte, error) {
	var msg string
	if d.Err != nil {
		msg = d.Err.Error()
	}
	return json.Marshal(struct {
		Path  string `json:"path"`
		Stage string `json:"stage"`
		Error string `json:"error"`
	}{d.Path, d.Stage, msg})
}

// GapsAt returns the gaps at or above floor.
func (r *Report) GapsAt(floor model.Severity) []model.Gap {
	var out []model.Gap
	for _, g := range r.Gaps {
		if g.Severity.AtLeast(floor) {
			out = append(out, g)
		}
	}
	return out
}

// aggregate computes the statistics, sorts the output and records the run.
func (e *Engine) aggregate(ctx context.Context, p *pass, entities []model.Entity, found []model.Gap) {
	r := p.report
	model.SortEntities(entities)
	model.SortGaps(found)
	r.Entities = entities
	r.Gaps = found

	st := &r.Stats
	st.Entities = len(entities)
	for _, ent := range entities {
		if ent.Doc != nil {
			st.Documented++
		}
	}
	if st.Entities > 0 {
		st.DocumentedRatio = float64(st.Documented) / float64(st.Entities)
		st.Coverage = st.DocumentedRatio * 100
	}

	st.Gaps = len(found)
	st.BySeverity = make(map[model.Severity]int, len(model.Severities))
	for _, sev := range model.Severities {
		st.BySeverity[sev] = 0
	}
	st.ByType = make(map[model.GapType]int)
	for _, g := range found {
		st.BySeverity[g.Severity]++
		st.ByType[g.Type]++
		e.metrics.Gap(string(g.Severity))
	}

	for _, g := range r.Generations {
		switch g.Status {
		case GenerationGenerated:
			st.Generated++
		case GenerationCached:
			st.Generated++
			st.GenerationCached++
		case GenerationFailed:
			st.GenerationFailed++
		case GenerationPending:
			st.GenerationPending++
		}
	}

	r.FinishedAt = time.Now()
	st.Duration = r.FinishedAt.Sub(r.StartedAt)

	run := &store.Run{
		ID:               r.RunID,
		Root:             r.Root,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		Files:            st.Files,
		Analyzed:         st.Analyzed,
		Cached:           st.Cached,
		Skipped:          st.Skipped,
		Failed:           st.Failed,
		Entities:         st.Entities,
		Documented:       st.Documented,
		Gaps:             st.Gaps,
		Generated:        st.Generated,
		GenerationFailed: st.GenerationFailed,
		Coverage:         st.Coverage,
		GapCounts:        gapCounts(found),
	}
	if err := e.store.RecordRun(ctx, run); err != nil {
		p.diag("", StageAggregate, err)
		e.logger.Error("run history not recorded", "run", r.RunID, "err", err)
	}
	e.metrics.RunFinished(r.Root, st.DocumentedRatio)
}

// gapCounts groups gaps by type and severity in a stable order.
func gapCounts(found []model.Gap) []store.GapCount {
	type key struct {
		t model.GapType
		s model.Severity
	}
	counts := make(map[key]int)
	for _, g := range found {
		counts[key{g.Type, g.Severity}]++
	}
	out := make([]store.GapCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, store.GapCount{Type: k.t, Severity: k.s, Count: n})
	}
	slices.SortFunc(out, func(a, b store.GapCount) int {
		return cmp.Or(
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(b.Severity.Rank(), a.Severity.Rank()),
		)
	})
	return out
}
