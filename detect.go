package docgap

import (
	"context"

	"github.com/jward/docgap/internal/model"
)

// detect classifies the gaps of every entity, runs the rule scripts and
// applies the severity floor.
func (e *Engine) detect(ctx context.Context, p *pass, entities []model.Entity) ([]model.Gap, error) {
	ruleCfg := e.ruleConfig()
	var out []model.Gap
	for _, ent := range entities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found := e.detector.Detect(ent)
		if len(e.rules) > 0 {
			extra, errs := e.runtime.Evaluate(ctx, e.rules, ent, p.entitySource(ent), ruleCfg)
			for _, err := range errs {
				p.diag(ent.Location.File, StageRules, err)
				e.logger.Warn("rule failed", "entity", ent.ID(), "err", err)
			}
			found = append(found, extra...)
		}
		for _, g := range found {
			if g.Severity.AtLeast(e.minSeverity) {
				out = append(out, g)
			}
		}
	}
	model.SortGaps(out)
	return out, nil
}

// ruleConfig is the config global visible to rule scripts.
func (e *Engine) ruleConfig() map[string]any {
	g := e.cfg.Gaps
	return map[string]any{
		"min_severity":         e.cfg.MinSeverity,
		"style":                e.cfg.Style,
		"complexity_threshold": g.ComplexityThreshold,
		"example_complexity":   g.ExampleComplexity,
		"min_summary_words":    g.MinSummaryWords,
		"check_type_hints":     g.CheckTypeHints,
		"check_examples":       g.CheckExamples,
	}
}
