// Package generate turns documentation gaps into proposed documentation text
// through an external generation capability, with retry, bounded
// concurrency and a generation cache.
package generate

import (
	"context"

	"github.com/jward/docgap/internal/model"
)

// Request asks for documentation that closes one gap.
type Request struct {
	// Fingerprint keys the generation cache and deduplicates identical work.
	Fingerprint string
	Gap         model.Gap
	Entity      model.Entity
	Style       model.DocStyle
	// Source is the entity's source text, truncated for the prompt.
	Source string
}

// Result is a generated documentation proposal.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Model      string  `json:"model,omitempty"`
}

// Generator is the external generation capability.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Generate(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
