package model

import (
	"cmp"
	"slices"
)

// GapType names one entry of the gap taxonomy.
type GapType string

const (
	GapMissingDocstring       GapType = "missing_docstring"
	GapMissingSummary         GapType = "missing_summary"
	GapUndocumentedParameters GapType = "undocumented_parameters"
	GapUndocumentedReturn     GapType = "undocumented_return"
	GapUndocumentedExceptions GapType = "undocumented_exceptions"
	GapMissingExample         GapType = "missing_example"
	GapOutdatedParameters     GapType = "outdated_parameters"
	GapVagueDescription       GapType = "vague_description"
	GapMissingTypeHints       GapType = "missing_type_hints"
	GapMissingClassSummary    GapType = "missing_class_summary"
	GapMissingModuleOverview  GapType = "missing_module_overview"
	GapMissingAttributeDocs   GapType = "missing_attribute_docs"
)

// GapTypes is the taxonomy in evaluation order.
var GapTypes = []GapType{
	GapMissingDocstring,
	GapMissingClassSummary,
	GapMissingModuleOverview,
	GapMissingSummary,
	GapVagueDescription,
	GapUndocumentedParameters,
	GapOutdatedParameters,
	GapUndocumentedReturn,
	GapUndocumentedExceptions,
	GapMissingAttributeDocs,
	GapMissingExample,
	GapMissingTypeHints,
}

// typeOrder indexes GapTypes. Custom types from rule scripts sort last.
func typeOrder(t GapType) int {
	if i := slices.Index(GapTypes, t); i >= 0 {
		return i
	}
	return len(GapTypes)
}

// Gap is one documentation deficiency on one entity.
type Gap struct {
	Entity      EntityRef `json:"entity"`
	Kind        Kind      `json:"kind"`
	Line        int       `json:"line"`
	Type        GapType   `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
}

// NeedsGeneration reports whether new documentation text could close the gap.
func (g Gap) NeedsGeneration() bool {
	return g.Type != GapMissingTypeHints
}

// SortGaps orders gaps by file, line, qualified name, then taxonomy order.
func SortGaps(gaps []Gap) {
	slices.SortStableFunc(gaps, func(a, b Gap) int {
		return cmp.Or(
			cmp.Compare(a.Entity.File, b.Entity.File),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Entity.QualifiedName, b.Entity.QualifiedName),
			cmp.Compare(typeOrder(a.Type), typeOrder(b.Type)),
			cmp.Compare(a.Type, b.Type),
		)
	})
}

// SortEntities orders entities by file then start line.
func SortEntities(entities []Entity) {
	slices.SortStableFunc(entities, func(a, b Entity) int {
		return cmp.Or(
			cmp.Compare(a.Location.File, b.Location.File),
			cmp.Compare(a.Location.StartLine, b.Location.StartLine),
			cmp.Compare(a.QualifiedName, b.QualifiedName),
		)
	})
}
