package gaps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/docgap/internal/model"
)

func fn(name string, params ...string) model.Entity {
	e := model.Entity{
		Kind:          model.KindFunction,
		Name:          name,
		QualifiedName: "calc." + name,
		Parent:        "calc",
		Language:      "python",
		Location:      model.Location{File: "calc.py", StartLine: 3},
		Visibility:    model.VisibilityFromName(name),
		Signature:     model.Signature{TypesSupported: true},
		Complexity:    len(params),
	}
	for _, p := range params {
		e.Signature.Params = append(e.Signature.Params, model.Param{Name: p})
	}
	return e
}

func types(gaps []model.Gap) []model.GapType {
	out := make([]model.GapType, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, g.Type)
	}
	return out
}

// =============================================================================
// Scenarios
// =============================================================================

func TestUndocumentedPublicFunctionIsCritical(t *testing.T) {
	t.Parallel()
	e := fn("add", "a", "b")
	e.Signature.HasReturn = true

	gaps := New(DefaultConfig()).Detect(e)
	require.Len(t, gaps, 1)
	assert.Equal(t, model.GapMissingDocstring, gaps[0].Type)
	assert.Equal(t, model.SeverityCritical, gaps[0].Severity)
	assert.Equal(t, "calc.py::calc.add", gaps[0].Entity.String())
}

func TestMissingReturnSectionOnly(t *testing.T) {
	t.Parallel()
	e := fn("subtract", "a", "b")
	e.Signature.HasReturn = true
	e.Doc = model.ParseDoc("Subtract b from a.\n\n    Args:\n        a: The minuend.\n        b: The subtrahend.\n    ")

	gaps := New(DefaultConfig()).Detect(e)
	require.Len(t, gaps, 1)
	assert.Equal(t, model.GapUndocumentedReturn, gaps[0].Type)
}

func TestPrivateMissingDocstringIsMedium(t *testing.T) {
	t.Parallel()
	gaps := New(DefaultConfig()).Detect(fn("_helper"))
	require.Len(t, gaps, 1)
	assert.Equal(t, model.SeverityMedium, gaps[0].Severity)
}

// =============================================================================
// Individual checks
// =============================================================================

func TestParameterChecks(t *testing.T) {
	t.Parallel()
	e := fn("move", "self", "dx", "dy")
	e.Kind = model.KindMethod
	e.Doc = model.ParseDoc("Move the point by an offset.\n\nArgs:\n    dx: horizontal\n    dz: renamed\n")

	gaps := New(DefaultConfig()).Detect(e)
	assert.Equal(t, []model.GapType{model.GapUndocumentedParameters, model.GapOutdatedParameters}, types(gaps))
	assert.Equal(t, "parameters of move not documented: dy", gaps[0].Description)
	assert.Equal(t, "documentation of move names parameters not in the signature: dz", gaps[1].Description)
}

func TestSummaryChecks(t *testing.T) {
	t.Parallel()
	d := New(DefaultConfig())

	vague := fn("run")
	vague.Doc = model.ParseDoc("Runs.")
	assert.Equal(t, []model.GapType{model.GapVagueDescription}, types(d.Detect(vague)))

	noSummary := fn("run")
	noSummary.Doc = model.ParseDoc(":returns: nothing")
	assert.Equal(t, []model.GapType{model.GapMissingSummary}, types(d.Detect(noSummary)))
}

func TestExceptionsAndExamples(t *testing.T) {
	t.Parallel()
	e := fn("load", "path")
	e.Raises = []string{"ValueError", "io.TimeoutError"}
	e.Complexity = 9
	e.Doc = model.ParseDoc("Load a file from disk.\n\nArgs:\n    path: where\n\nRaises:\n    ValueError: bad input\n")

	gaps := New(DefaultConfig()).Detect(e)
	assert.Equal(t, []model.GapType{model.GapUndocumentedExceptions, model.GapMissingExample}, types(gaps))
	assert.Equal(t, "load raises undocumented io.TimeoutError", gaps[0].Description)
}

func TestClassAndModuleVariants(t *testing.T) {
	t.Parallel()
	d := New(DefaultConfig())

	class := model.Entity{Kind: model.KindClass, Name: "Point", QualifiedName: "geo.Point", Visibility: model.Public,
		Attributes: []string{"x", "y"}}
	assert.Equal(t, []model.GapType{model.GapMissingClassSummary}, types(d.Detect(class)))

	class.Doc = model.ParseDoc("A point in the plane.\n\nAttributes:\n    x: abscissa\n")
	gaps := d.Detect(class)
	assert.Equal(t, []model.GapType{model.GapMissingAttributeDocs}, types(gaps))
	assert.Equal(t, "attributes of Point not documented: y", gaps[0].Description)

	mod := model.Entity{Kind: model.KindModule, Name: "geo", QualifiedName: "geo", Visibility: model.Public}
	assert.Empty(t, d.Detect(mod), "module without children needs no overview")
	mod.Children = 2
	assert.Equal(t, []model.GapType{model.GapMissingModuleOverview}, types(d.Detect(mod)))
}

func TestTypeHintsAreOptIn(t *testing.T) {
	t.Parallel()
	e := fn("scale", "factor")
	e.Doc = model.ParseDoc("Scale the vector.\n\nArgs:\n    factor: multiplier\n")

	assert.Empty(t, New(DefaultConfig()).Detect(e))

	cfg := DefaultConfig()
	cfg.CheckTypeHints = true
	gaps := New(cfg).Detect(e)
	assert.Equal(t, []model.GapType{model.GapMissingTypeHints}, types(gaps))
}

func TestProseDocsSkipParameterChecksByDefault(t *testing.T) {
	t.Parallel()
	e := fn("Open", "name", "flag")
	e.Language = "go"
	e.Doc = model.ParseProseDoc("Open opens the named file for reading.", e.Signature, nil)

	assert.Empty(t, New(DefaultConfig()).Detect(e))

	cfg := DefaultConfig()
	cfg.ProseParamChecks = true
	assert.Equal(t, []model.GapType{model.GapUndocumentedParameters}, types(New(cfg).Detect(e)))
}

func TestMalformedDocSkipsCheck(t *testing.T) {
	t.Parallel()
	var skipped []SkippedCheck
	d := New(DefaultConfig(), WithSkipHook(func(s SkippedCheck) { skipped = append(skipped, s) }))

	e := fn("mix", "a")
	e.Doc = &model.DocInfo{Raw: "Mix the inputs well.", Summary: "Mix the inputs well.", Params: []string{""}}

	gaps := d.Detect(e)
	assert.Empty(t, gaps)
	require.Len(t, skipped, 2)
	assert.Equal(t, model.GapUndocumentedParameters, skipped[0].Check)
	assert.Equal(t, model.GapOutdatedParameters, skipped[1].Check)
}

// =============================================================================
// Properties
// =============================================================================

func TestDetectIsDeterministic(t *testing.T) {
	t.Parallel()
	e := fn("load", "path", "mode")
	e.Raises = []string{"OSError"}
	e.Signature.HasReturn = true
	e.Doc = model.ParseDoc("Load.\n\nArgs:\n    path: p\n    old: o\n")

	d := New(DefaultConfig())
	first := d.Detect(e)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, d.Detect(e))
	}
}

func TestSeverityMonotonicInComplexity(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	d := New(cfg)
	for _, gt := range model.GapTypes {
		for _, vis := range []model.Visibility{model.Public, model.Private} {
			e := model.Entity{Visibility: vis}
			prev := 0
			for c := 0; c <= cfg.ComplexityThreshold+5; c++ {
				e.Complexity = c
				rank := d.Severity(gt, e).Rank()
				assert.GreaterOrEqual(t, rank, prev, "%s/%s at complexity %d", gt, vis, c)
				prev = rank
			}
			e.Complexity = cfg.ComplexityThreshold + 1
			assert.LessOrEqual(t, d.Severity(gt, e).Rank(), model.SeverityCritical.Rank())
		}
	}
}

func TestEscalationAboveThreshold(t *testing.T) {
	t.Parallel()
	d := New(DefaultConfig())
	e := fn("_busy")
	assert.Equal(t, model.SeverityMedium, d.Severity(model.GapMissingDocstring, e))
	e.Complexity = 11
	assert.Equal(t, model.SeverityHigh, d.Severity(model.GapMissingDocstring, e))
	e.Visibility = model.Public
	assert.Equal(t, model.SeverityCritical, d.Severity(model.GapMissingDocstring, e))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Weights = map[model.GapType]Weight{"no_such_gap": {Public: model.SeverityLow, Private: model.SeverityLow}}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Weights = map[model.GapType]Weight{model.GapMissingExample: {Public: "huge", Private: model.SeverityLow}}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MinSummaryWords = -1
	assert.Error(t, cfg.Validate())
}
