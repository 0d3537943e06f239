package docgap

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jward/docgap/internal/generate"
	"github.com/jward/docgap/internal/metrics"
	"github.com/jward/docgap/internal/model"
	"github.com/jward/docgap/internal/store"
)

// GenerationStatus is the outcome of one generation request.
type GenerationStatus string

const (
	GenerationGenerated GenerationStatus = "generated"
	GenerationCached    GenerationStatus = "cached"
	// GenerationFailed gaps are excluded from the apply set.
	GenerationFailed GenerationStatus = "generation_failed"
	// GenerationPending requests were never dispatched because the run was
	// canceled.
	GenerationPending GenerationStatus = "pending"
)

// Generation is the documentation proposed for one gap.
type Generation struct {
	Gap         model.Gap        `json:"gap"`
	Fingerprint string           `json:"fingerprint"`
	Status      GenerationStatus `json:"status"`
	Text        string           `json:"text,omitempty"`
	Confidence  float64          `json:"confidence,omitempty"`
	Reasoning   string           `json:"reasoning,omitempty"`
	Model       string           `json:"model,omitempty"`
	Attempts    int              `json:"attempts,omitempty"`
	Err         error            `json:"-"`
}

// OK reports whether the generation produced usable text.
func (g Generation) OK() bool {
	return g.Status == GenerationGenerated || g.Status == GenerationCached
}

func (g Generation) MarshalJSON() ([]byte, error) {
	type plain Generation
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(g)}
	if g.Err != nil {
		out.Error = g.Err.Error()
	}
	return json.Marshal(out)
}

// modelName is the model identifier that keys the generation cache.
func (e *Engine) modelName() string {
	if m, ok := e.gen.(interface{ Model() string }); ok {
		return m.Model()
	}
	return e.cfg.Generation.Model
}

// requests builds one generation request per gap that new documentation
// could close.
func (e *Engine) requests(p *pass, entities []model.Entity, found []model.Gap) []generate.Request {
	byRef := make(map[model.EntityRef]model.Entity, len(entities))
	for _, ent := range entities {
		byRef[ent.Ref()] = ent
	}
	modelName := e.modelName()
	temperature := e.cfg.Generation.Temperature

	var reqs []generate.Request
	for _, g := range found {
		if !g.NeedsGeneration() {
			continue
		}
		ent, ok := byRef[g.Entity]
		if !ok {
			continue
		}
		style := generate.EffectiveStyle(e.style, ent)
		reqs = append(reqs, generate.Request{
			Fingerprint: store.GapFingerprint(store.SignatureHash(ent), g.Type, string(style), modelName, temperature),
			Gap:         g,
			Entity:      ent,
			Style:       style,
			Source:      string(p.entitySource(ent)),
		})
	}
	return reqs
}

// generate runs the generation stage. It returns the context error when the
// run was canceled before every request was dispatched.
func (e *Engine) generate(ctx context.Context, p *pass, entities []model.Entity, found []model.Gap) error {
	reqs := e.requests(p, entities, found)
	if len(reqs) == 0 {
		return ctx.Err()
	}

	cfg := e.cfg.Generation.Batch()
	cfg.Cache = e.store
	cfg.Logger = e.logger
	cfg.OnOutcome = func(o generate.Outcome) {
		e.metrics.Generation(outcomeLabel(o))
	}

	e.logger.Info("generating documentation", "requests", len(reqs), "model", e.modelName())
	outcomes := generate.Batch(ctx, e.gen, reqs, cfg)

	for _, o := range outcomes {
		gen := generationFrom(o)
		if o.Skipped {
			e.metrics.Generation(metrics.OutcomeSkipped)
		}
		if gen.Status == GenerationFailed {
			p.diag(o.Request.Gap.Entity.File, StageGenerate, o.Err)
			e.logger.Warn("generation failed",
				"entity", o.Request.Entity.ID(),
				"gap", string(o.Request.Gap.Type),
				"attempts", o.Attempts,
				"err", o.Err)
		}
		p.report.Generations = append(p.report.Generations, gen)
	}
	if err := ctx.Err(); err != nil {
		p.report.Interrupted = true
		return err
	}
	return nil
}

func generationFrom(o generate.Outcome) Generation {
	g := Generation{
		Gap:         o.Request.Gap,
		Fingerprint: o.Request.Fingerprint,
		Attempts:    o.Attempts,
		Err:         o.Err,
	}
	switch {
	case o.Skipped || errors.Is(o.Err, generate.ErrNotDispatched):
		g.Status = GenerationPending
	case o.Err != nil:
		g.Status = GenerationFailed
	default:
		g.Status = GenerationGenerated
		if o.Cached {
			g.Status = GenerationCached
		}
		g.Text = o.Result.Text
		g.Confidence = o.Result.Confidence
		g.Reasoning = o.Result.Reasoning
		g.Model = o.Result.Model
	}
	return g
}

func outcomeLabel(o generate.Outcome) string {
	switch {
	case o.Skipped:
		return metrics.OutcomeSkipped
	case o.Err != nil:
		return metrics.OutcomeFailed
	case o.Cached:
		return metrics.OutcomeCached
	}
	return metrics.OutcomeGenerated
}
