package gaps

import (
	"fmt"
	"slices"

	"github.com/jward/docgap/internal/model"
)

// Weight is the base severity of a gap type for each visibility.
type Weight struct {
	Public  model.Severity `yaml:"public" toml:"public" json:"public"`
	Private model.Severity `yaml:"private" toml:"private" json:"private"`
}

// Config holds every threshold the detector consults. The zero value is not
// useful; start from DefaultConfig.
type Config struct {
	// ComplexityThreshold escalates severity by one level when exceeded.
	ComplexityThreshold int `yaml:"complexity_threshold" toml:"complexity_threshold" json:"complexity_threshold"`
	// ExampleComplexity is the complexity at which public entities need an example.
	ExampleComplexity int  `yaml:"example_complexity" toml:"example_complexity" json:"example_complexity"`
	MinSummaryWords   int  `yaml:"min_summary_words" toml:"min_summary_words" json:"min_summary_words"`
	CheckTypeHints    bool `yaml:"check_type_hints" toml:"check_type_hints" json:"check_type_hints"`
	CheckExamples     bool `yaml:"check_examples" toml:"check_examples" json:"check_examples"`
	// ProseParamChecks enables parameter checks on free-form (Go) comments.
	ProseParamChecks bool                      `yaml:"prose_param_checks" toml:"prose_param_checks" json:"prose_param_checks"`
	Weights          map[model.GapType]Weight `yaml:"weights" toml:"weights" json:"weights"`
}

func DefaultWeights() map[model.GapType]Weight {
	return map[model.GapType]Weight{
		model.GapMissingDocstring:       {Public: model.SeverityCritical, Private: model.SeverityMedium},
		model.GapMissingClassSummary:    {Public: model.SeverityCritical, Private: model.SeverityMedium},
		model.GapMissingModuleOverview:  {Public: model.SeverityHigh, Private: model.SeverityLow},
		model.GapMissingSummary:         {Public: model.SeverityHigh, Private: model.SeverityLow},
		model.GapVagueDescription:       {Public: model.SeverityLow, Private: model.SeverityLow},
		model.GapUndocumentedParameters: {Public: model.SeverityHigh, Private: model.SeverityLow},
		model.GapOutdatedParameters:     {Public: model.SeverityHigh, Private: model.SeverityMedium},
		model.GapUndocumentedReturn:     {Public: model.SeverityMedium, Private: model.SeverityLow},
		model.GapUndocumentedExceptions: {Public: model.SeverityMedium, Private: model.SeverityLow},
		model.GapMissingAttributeDocs:   {Public: model.SeverityMedium, Private: model.SeverityLow},
		model.GapMissingExample:         {Public: model.SeverityLow, Private: model.SeverityLow},
		model.GapMissingTypeHints:       {Public: model.SeverityLow, Private: model.SeverityLow},
	}
}

func DefaultConfig() Config {
	return Config{
		ComplexityThreshold: 10,
		ExampleComplexity:   8,
		MinSummaryWords:     3,
		CheckExamples:       true,
		Weights:             DefaultWeights(),
	}
}

// Validate rejects thresholds and weights the detector cannot honor.
func (c Config) Validate() error {
	if c.ComplexityThreshold < 0 {
		return fmt.Errorf("complexity_threshold must be >= 0, got %d", c.ComplexityThreshold)
	}
	if c.ExampleComplexity < 0 {
		return fmt.Errorf("example_complexity must be >= 0, got %d", c.ExampleComplexity)
	}
	if c.MinSummaryWords < 0 {
		return fmt.Errorf("min_summary_words must be >= 0, got %d", c.MinSummaryWords)
	}
	for t, w := range c.Weights {
		if !slices.Contains(model.GapTypes, t) {
			return fmt.Errorf("weights: unknown gap type %q", t)
		}
		if _, err := model.ParseSeverity(string(w.Public)); err != nil {
			return fmt.Errorf("weights.%s.public: %w", t, err)
		}
		if _, err := model.ParseSeverity(string(w.Private)); err != nil {
			return fmt.Errorf("weights.%s.private: %w", t, err)
		}
	}
	return nil
}

// weight falls back to the defaults for types missing from a partial table.
func (c Config) weight(t model.GapType) Weight {
	if w, ok := c.Weights[t]; ok {
		return w
	}
	if w, ok := DefaultWeights()[t]; ok {
		return w
	}
	return Weight{Public: model.SeverityMedium, Private: model.SeverityLow}
}
