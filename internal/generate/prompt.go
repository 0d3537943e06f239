package generate

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/jward/docgap/internal/model"
)

// maxSourceChars bounds the source excerpt included in a prompt.
const maxSourceChars = 1000

// defaultConfidence is used when a response carries no CONFIDENCE section.
const defaultConfidence = 0.8

const systemPrompt = "You are an expert technical writer helping to improve code documentation."

var styleGuides = map[model.DocStyle]string{
	model.StyleGoogle: `Google Style Guide:
- Start with a one-line summary
- Followed by a blank line and detailed description
- Args section for parameters
- Returns section for return value
- Raises section for exceptions
- Example section for usage examples`,
	model.StyleNumpy: `NumPy Style Guide:
- Start with a one-line summary
- Parameters section with type and description
- Returns section with type and description
- Raises section for exceptions
- Examples section with doctests`,
	model.StyleSphinx: `Sphinx Style Guide:
- Use :param: for parameters
- Use :type: for parameter types
- Use :return: and :rtype: for returns
- Use :raises: for exceptions`,
	model.StyleJSDoc: `JSDoc Style Guide:
- Start with a one-line summary
- Use @param {Type} name for parameters
- Use @returns {Type} for the return value
- Use @throws {Type} for exceptions
- Use @example for usage examples`,
	model.StyleProse: `Go Doc Comment Guide:
- Begin with the name of the declared identifier
- Write complete sentences
- Mention parameters and errors in prose, not in tagged sections`,
}

var userPrompt = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`Documentation Style: {{.Style}}

{{.Guide}}

Gap Type: {{.Gap.Type}}
Severity: {{.Gap.Severity}}
Location: {{.Entity.Location.File}}:{{.Entity.Location.StartLine}}
Description: {{.Gap.Description}}

### Code Entity Information:
- Type: {{.Entity.Kind}}
- Name: {{.Entity.QualifiedName}}
- Language: {{.Entity.Language}}
{{- with .Params}}
- Parameters ({{len .}}):
{{- range .}}
  - {{.Name}}{{with .Type}}: {{.}}{{end}}
{{- end}}
{{- end}}
{{- with .Entity.Signature.ReturnType}}
- Return Type: {{.}}
{{- end}}
{{- with .Entity.Raises}}
- Raises: {{join . ", "}}
{{- end}}
{{- with .Entity.Attributes}}
- Attributes: {{join . ", "}}
{{- end}}
{{- with .Source}}

### Implementation:
` + "```" + `{{$.Entity.Language}}
{{.}}
` + "```" + `
{{- end}}
{{- with .Current}}

### Current Documentation:
` + "```" + `
{{.}}
` + "```" + `
{{- end}}

### Task:
Generate clear and helpful documentation for this code element.
- Be concise but thorough
- Base your documentation on the actual implementation provided
- Return only the documentation text, without comment delimiters or quotes

### Output Format:
DOCUMENTATION:
[Your documentation here]

REASONING:
[Brief explanation of your improvements]

CONFIDENCE:
[A number between 0 and 1]
`))

// EffectiveStyle picks the documentation style for an entity. Go always uses
// prose doc comments and JavaScript/TypeScript always use JSDoc. For Python,
// "auto" follows the entity's existing documentation and falls back to Google.
func EffectiveStyle(configured model.DocStyle, e model.Entity) model.DocStyle {
	switch e.Language {
	case "go":
		return model.StyleProse
	case "javascript", "typescript":
		return model.StyleJSDoc
	}
	if configured == model.StyleAuto || configured == "" {
		if e.Doc != nil {
			switch e.Doc.Style {
			case model.StyleGoogle, model.StyleNumpy, model.StyleSphinx:
				return e.Doc.Style
			}
		}
		return model.StyleGoogle
	}
	return configured
}

// BuildPrompt renders the system and user messages for req.
func BuildPrompt(req Request) (system, user string, err error) {
	guide, ok := styleGuides[req.Style]
	if !ok {
		guide = "Use clear and consistent documentation style."
	}
	source := req.Source
	if len(source) > maxSourceChars {
		source = source[:maxSourceChars]
	}
	current := ""
	if req.Entity.Doc != nil {
		current = req.Entity.Doc.Raw
	}

	var b strings.Builder
	err = userPrompt.Execute(&b, struct {
		Request
		Guide   string
		Params  []model.Param
		Current string
	}{
		Request: Request{
			Gap:    req.Gap,
			Entity: req.Entity,
			Style:  req.Style,
			Source: source,
		},
		Guide:   guide,
		Params:  req.Entity.Signature.DocumentableParams(),
		Current: current,
	})
	if err != nil {
		return "", "", err
	}
	return systemPrompt, b.String(), nil
}

// ParseResponse splits a model response into documentation, reasoning and
// confidence. A response without markers is taken as documentation.
func ParseResponse(content string) Result {
	const (
		docMarker        = "DOCUMENTATION:"
		reasoningMarker  = "REASONING:"
		confidenceMarker = "CONFIDENCE:"
	)
	res := Result{Confidence: defaultConfidence}

	body := content
	if i := strings.Index(body, confidenceMarker); i >= 0 {
		if c, ok := parseConfidence(body[i+len(confidenceMarker):]); ok {
			res.Confidence = c
		}
		body = body[:i]
	}
	if i := strings.Index(body, reasoningMarker); i >= 0 {
		res.Reasoning = cleanSection(body[i+len(reasoningMarker):])
		body = body[:i]
	}
	if i := strings.Index(body, docMarker); i >= 0 {
		body = body[i+len(docMarker):]
	}
	res.Text = cleanSection(body)
	return res
}

// cleanSection trims whitespace and an enclosing code fence.
func cleanSection(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseConfidence(s string) (float64, bool) {
	fields := strings.Fields(strings.Trim(strings.TrimSpace(s), "`"))
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimRight(fields[0], "%.,"), 64)
	if err != nil {
		return 0, false
	}
	if v > 1 && v <= 100 {
		v /= 100
	}
	if v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}
