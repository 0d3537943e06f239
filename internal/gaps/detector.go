package gaps

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jward/docgap/internal/model"
)

// SkippedCheck describes a check that could not be evaluated for an entity.
type SkippedCheck struct {
	Entity model.EntityRef
	Check  model.GapType
	Reason string
}

// Detector classifies documentation gaps. Detect is a pure function of the
// entity and the configuration the detector was built with.
type Detector struct {
	cfg    Config
	onSkip func(SkippedCheck)
}

type Option func(*Detector)

// WithSkipHook receives every check that was skipped.
func WithSkipHook(fn func(SkippedCheck)) Option {
	return func(d *Detector) {
		d.onSkip = fn
	}
}

func New(cfg Config, opts ...Option) *Detector {
	d := &Detector{cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) Config() Config { return d.cfg }

// Severity computes the severity of a gap type on an entity: the weight table
// entry for its visibility, raised one level above the complexity threshold.
func (d *Detector) Severity(t model.GapType, e model.Entity) model.Severity {
	w := d.cfg.weight(t)
	sev := w.Private
	if e.IsPublic() {
		sev = w.Public
	}
	if sev.Rank() == 0 {
		sev = model.SeverityLow
	}
	if e.Complexity > d.cfg.ComplexityThreshold {
		sev = sev.Escalate()
	}
	return sev
}

// Detect returns the gaps of one entity in taxonomy order. An entity with no
// documentation yields only its missing-documentation gap.
func (d *Detector) Detect(e model.Entity) []model.Gap {
	var out []model.Gap
	emit := func(t model.GapType, desc string) {
		out = append(out, model.Gap{
			Entity:      e.Ref(),
			Kind:        e.Kind,
			Line:        e.Location.StartLine,
			Type:        t,
			Severity:    d.Severity(t, e),
			Description: desc,
		})
	}

	doc := e.Doc
	if doc == nil || strings.TrimSpace(doc.Raw) == "" {
		if t, desc, ok := missingDoc(e); ok {
			emit(t, desc)
		}
		return out
	}

	for _, c := range checks {
		if !c.applies(e, d.cfg) {
			continue
		}
		desc, found, err := d.run(c, e)
		if err != nil {
			d.skip(e, c.gap, err.Error())
			continue
		}
		if found {
			emit(c.gap, desc)
		}
	}
	return out
}

// DetectAll runs Detect over entities and concatenates the results.
func (d *Detector) DetectAll(entities []model.Entity) []model.Gap {
	var out []model.Gap
	for _, e := range entities {
		out = append(out, d.Detect(e)...)
	}
	return out
}

func (d *Detector) run(c check, e model.Entity) (desc string, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check panicked: %v", r)
		}
	}()
	return c.eval(e, d.cfg)
}

func (d *Detector) skip(e model.Entity, t model.GapType, reason string) {
	if d.onSkip != nil {
		d.onSkip(SkippedCheck{Entity: e.Ref(), Check: t, Reason: reason})
	}
}

func missingDoc(e model.Entity) (model.GapType, string, bool) {
	switch e.Kind {
	case model.KindModule:
		if e.Children == 0 {
			return "", "", false
		}
		return model.GapMissingModuleOverview, fmt.Sprintf("module %s has no overview documentation", e.Name), true
	case model.KindClass:
		return model.GapMissingClassSummary, fmt.Sprintf("class %s has no documentation", e.Name), true
	default:
		return model.GapMissingDocstring, fmt.Sprintf("%s %s has no documentation", e.Kind, e.Name), true
	}
}

type check struct {
	gap     model.GapType
	applies func(model.Entity, Config) bool
	eval    func(model.Entity, Config) (string, bool, error)
}

func always(model.Entity, Config) bool { return true }

func callable(e model.Entity, _ Config) bool { return e.IsCallable() }

// checks run in taxonomy order.
var checks = []check{
	{
		gap:     model.GapMissingClassSummary,
		applies: func(e model.Entity, _ Config) bool { return e.Kind == model.KindClass },
		eval: func(e model.Entity, _ Config) (string, bool, error) {
			return fmt.Sprintf("class %s documentation has no summary line", e.Name), e.Doc.Summary == "", nil
		},
	},
	{
		gap:     model.GapMissingModuleOverview,
		applies: func(e model.Entity, _ Config) bool { return e.Kind == model.KindModule },
		eval: func(e model.Entity, _ Config) (string, bool, error) {
			return fmt.Sprintf("module %s documentation has no overview line", e.Name), e.Doc.Summary == "", nil
		},
	},
	{
		gap: model.GapMissingSummary,
		applies: func(e model.Entity, _ Config) bool {
			return e.Kind != model.KindClass && e.Kind != model.KindModule
		},
		eval: func(e model.Entity, _ Config) (string, bool, error) {
			return fmt.Sprintf("%s %s documentation has no summary line", e.Kind, e.Name), e.Doc.Summary == "", nil
		},
	},
	{
		gap:     model.GapVagueDescription,
		applies: always,
		eval: func(e model.Entity, cfg Config) (string, bool, error) {
			n := e.Doc.SummaryWords()
			if n == 0 || n >= cfg.MinSummaryWords {
				return "", false, nil
			}
			return fmt.Sprintf("summary of %s has %d word(s), expected at least %d", e.Name, n, cfg.MinSummaryWords), true, nil
		},
	},
	{
		gap: model.GapUndocumentedParameters,
		applies: func(e model.Entity, cfg Config) bool {
			return e.IsCallable() && (!e.Doc.Prose || cfg.ProseParamChecks)
		},
		eval: func(e model.Entity, _ Config) (string, bool, error) {
			if err := validParams(e.Doc); err != nil {
				return "", false, err
			}
			var missing []string
			for _, p := range e.Signature.DocumentableParams() {
				if !e.Doc.DocumentsParam(p.Name) {
					missing = append(missing, p.Name)
				}
			}
			if len(missing) == 0 {
				return "", false, nil
			}
			return fmt.Sprintf("parameters of %s not documented: %s", e.Name, strings.Join(missing, ", ")), true, nil
		},
	},
	{
		gap: model.GapOutdatedParameters,
		applies: func(e model.Entity, _ Config) bool {
			return e.IsCallable() && !e.Doc.Prose
		},
		eval: func(e model.Entity, _ Config) (string, bool, error) {
			if err := validParams(e.Doc); err != nil {
				return "", false, err
			}
			current := make(map[string]bool)
			for _, p := range e.Signature.DocumentableParams() {
				current[p.Name] = true
			}
			var stale []string
			for _, name := range e.Doc.Params {
				if !current[name] {
					stale = append(stale, name)
				}
			}
			if len(stale) == 0 {
				return "", false, nil
			}
			return fmt.Sprintf("documentation of %s names parameters not in the signature: %s", e.Name, strings.Join(stale, ", ")), true, nil
		},
	},
	{
		gap:     model.GapUndocumentedReturn,
		applies: callable,
		eval: func(e model.Entity, _ Config) (string, bool, error) {
			if !e.Signature.HasReturn || e.Doc.Returns {
				return "", false, nil
			}
			desc := fmt.Sprintf("return value of %s not documented", e.Name)
			if e.Signature.ReturnType != "" {
				desc = fmt.Sprintf("return value of %s (%s) not documented", e.Name, e.Signature.ReturnType)
			}
			return desc, true, nil
		},
	},
	{
		gap:     model.GapUndocumentedExceptions,
		applies: func(e model.Entity, _ Config) bool { return len(e.Raises) > 0 },
		eval: func(e model.Entity, _ Config) (string, bool, error) {
			var uncovered []string
			for _, r := range e.Raises {
				if !e.Doc.CoversRaise(r) {
					uncovered = append(uncovered, r)
				}
			}
			if len(uncovered) == 0 {
				return "", false, nil
			}
			return fmt.Sprintf("%s raises undocumented %s", e.Name, strings.Join(uncovered, ", ")), true, nil
		},
	},
	{
		gap:     model.GapMissingAttributeDocs,
		applies: func(e model.Entity, _ Config) bool { return e.Kind == model.KindClass && len(e.Attributes) > 0 },
		eval: func(e model.Entity, _ Config) (string, bool, error) {
			var missing []string
			for _, a := range e.Attributes {
				if !slices.Contains(e.Doc.Attributes, a) {
					missing = append(missing, a)
				}
			}
			if len(missing) == 0 {
				return "", false, nil
			}
			return fmt.Sprintf("attributes of %s not documented: %s", e.Name, strings.Join(missing, ", ")), true, nil
		},
	},
	{
		gap: model.GapMissingExample,
		applies: func(e model.Entity, cfg Config) bool {
			return cfg.CheckExamples && e.IsPublic() && (e.IsCallable() || e.Kind == model.KindClass)
		},
		eval: func(e model.Entity, cfg Config) (string, bool, error) {
			if e.Complexity < cfg.ExampleComplexity || e.Doc.HasExample {
				return "", false, nil
			}
			return fmt.Sprintf("%s has complexity %d and no usage example", e.Name, e.Complexity), true, nil
		},
	},
	{
		gap: model.GapMissingTypeHints,
		applies: func(e model.Entity, cfg Config) bool {
			return cfg.CheckTypeHints && e.IsCallable() && e.Signature.TypesSupported
		},
		eval: func(e model.Entity, _ Config) (string, bool, error) {
			var untyped []string
			for _, p := range e.Signature.DocumentableParams() {
				if p.Type == "" {
					untyped = append(untyped, p.Name)
				}
			}
			if e.Signature.HasReturn && e.Signature.ReturnType == "" {
				untyped = append(untyped, "return")
			}
			if len(untyped) == 0 {
				return "", false, nil
			}
			return fmt.Sprintf("%s lacks type annotations for: %s", e.Name, strings.Join(untyped, ", ")), true, nil
		},
	},
}

func validParams(doc *model.DocInfo) error {
	if slices.Contains(doc.Params, "") {
		return fmt.Errorf("documented parameter list contains an empty name")
	}
	return nil
}
