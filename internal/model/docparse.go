package model

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// DocStyle identifies a documentation convention.
type DocStyle string

const (
	StyleGoogle DocStyle = "google"
	StyleNumpy  DocStyle = "numpy"
	StyleSphinx DocStyle = "sphinx"
	StyleJSDoc  DocStyle = "jsdoc"
	StyleProse  DocStyle = "prose"
	StyleAuto   DocStyle = "auto"
	StylePlain  DocStyle = "plain"
)

// ParseDocStyle validates a style identifier from configuration.
func ParseDocStyle(s string) (DocStyle, error) {
	switch DocStyle(s) {
	case StyleGoogle, StyleNumpy, StyleSphinx, StyleJSDoc, StyleAuto:
		return DocStyle(s), nil
	}
	return "", fmt.Errorf("unknown documentation style %q", s)
}

// DocInfo is the structured view of an entity's existing documentation.
type DocInfo struct {
	Raw        string   `json:"raw"`
	Summary    string   `json:"summary,omitempty"`
	Params     []string `json:"params,omitempty"`
	Returns    bool     `json:"returns,omitempty"`
	Raises     []string `json:"raises,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
	HasExample bool     `json:"has_example,omitempty"`
	Style      DocStyle `json:"style,omitempty"`
	// Prose marks free-form comments (Go) where sections are implied by
	// mentions rather than headers.
	Prose bool `json:"prose,omitempty"`
}

// SummaryWords counts whitespace-separated tokens in the summary.
func (d *DocInfo) SummaryWords() int {
	return len(strings.Fields(d.Summary))
}

// Validate reports structural inconsistencies that make the parse untrustworthy.
func (d *DocInfo) Validate() error {
	if strings.TrimSpace(d.Raw) == "" && d.Summary != "" {
		return fmt.Errorf("summary %q without raw text", d.Summary)
	}
	if slices.Contains(d.Params, "") {
		return fmt.Errorf("empty documented parameter name")
	}
	return nil
}

// DocumentsParam reports whether name appears among the documented parameters.
func (d *DocInfo) DocumentsParam(name string) bool {
	return slices.Contains(d.Params, name)
}

// CoversRaise reports whether the doc mentions an exception type. Qualified
// names match on their last segment.
func (d *DocInfo) CoversRaise(name string) bool {
	short := name[strings.LastIndex(name, ".")+1:]
	for _, r := range d.Raises {
		if r == name || r[strings.LastIndex(r, ".")+1:] == short {
			return true
		}
	}
	return false
}

var (
	googleHeader = regexp.MustCompile(`(?i)^(args|arguments|parameters|params|keyword args|keyword arguments|other parameters|returns?|yields?|raises|throws|exceptions|examples?|attributes|notes?|see also|warnings?|todo)\s*:\s*$`)
	numpyHeader  = regexp.MustCompile(`(?i)^(parameters|other parameters|returns|yields|raises|examples?|attributes|notes|see also|warnings)$`)
	numpyRule    = regexp.MustCompile(`^-{3,}\s*$`)
	googleItem   = regexp.MustCompile(`^\*{0,2}([A-Za-z_][A-Za-z0-9_]*)\s*(\([^)]*\))?\s*:`)
	numpyItem    = regexp.MustCompile(`^(\*{0,2}[A-Za-z_][A-Za-z0-9_]*(?:\s*,\s*\*{0,2}[A-Za-z_][A-Za-z0-9_]*)*)\s*(?::.*)?$`)
	raiseItem    = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)`)
	sphinxParam  = regexp.MustCompile(`^:(?:param|parameter|arg|argument|key|keyword)\s+(?:[^:]*\s)?\*{0,2}([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	sphinxReturn = regexp.MustCompile(`^:(?:returns?|yields?)\s*:`)
	sphinxRaise  = regexp.MustCompile(`^:(?:raises?|except|exception)\s+([A-Za-z_][A-Za-z0-9_.]*)\s*:`)
	sphinxAttr   = regexp.MustCompile(`^:(?:ivar|cvar|var)\s+(?:[^:]*\s)?([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	jsdocParam   = regexp.MustCompile(`^@(?:param|arg|argument)\s+(?:\{[^}]*\}\s*)?\[?(?:\.\.\.)?([A-Za-z_$][A-Za-z0-9_$]*)`)
	jsdocReturn  = regexp.MustCompile(`^@returns?\b`)
	jsdocThrows  = regexp.MustCompile(`^@(?:throws|exception)\s*(?:\{([^}]*)\})?\s*([A-Za-z_$][A-Za-z0-9_$.]*)?`)
	jsdocProp    = regexp.MustCompile(`^@(?:property|prop)\s+(?:\{[^}]*\}\s*)?\[?([A-Za-z_$][A-Za-z0-9_$]*)`)
	jsdocExample = regexp.MustCompile(`^@example\b`)
)

type docLine struct {
	indent int
	text   string
}

// ParseDoc extracts structure from a cleaned documentation block. Every
// supported convention is recognized; Style records the one that matched.
func ParseDoc(raw string) *DocInfo {
	info := &DocInfo{Raw: raw, Style: StylePlain}
	lines := splitDocLines(raw)
	if len(lines) == 0 {
		return info
	}

	info.Summary = summaryOf(lines)

	var (
		section       string
		sectionIndent int
		itemIndent    = -1
		numpy         bool
		inFence       bool
	)
	for i, ln := range lines {
		t := ln.text
		if strings.HasPrefix(t, "```") {
			info.HasExample = true
			inFence = !inFence
			continue
		}
		if inFence || t == "" {
			continue
		}
		if strings.HasPrefix(t, ">>>") {
			info.HasExample = true
		}

		// numpy: header followed by a dashed rule
		if i+1 < len(lines) && numpyHeader.MatchString(t) && numpyRule.MatchString(lines[i+1].text) {
			section, sectionIndent, itemIndent, numpy = canonicalSection(t), ln.indent, -1, true
			info.markSection(section, StyleNumpy)
			continue
		}
		if numpyRule.MatchString(t) {
			continue
		}
		if googleHeader.MatchString(t) {
			section, sectionIndent, itemIndent, numpy = canonicalSection(strings.TrimSuffix(t, ":")), ln.indent, -1, false
			if i == 0 {
				// first line lost its indentation when the quotes were stripped
				sectionIndent = -1
			}
			info.markSection(section, StyleGoogle)
			continue
		}
		if info.tagLine(t) {
			section = ""
			continue
		}

		if section == "" {
			continue
		}
		if !numpy && ln.indent <= sectionIndent {
			section = ""
			continue
		}
		if itemIndent < 0 {
			itemIndent = ln.indent
		}
		if ln.indent != itemIndent {
			continue
		}
		info.sectionItem(section, t, numpy)
	}
	return info
}

func (d *DocInfo) markSection(section string, style DocStyle) {
	d.setStyle(style)
	switch section {
	case "returns":
		d.Returns = true
	case "examples":
		d.HasExample = true
	}
}

func (d *DocInfo) setStyle(style DocStyle) {
	if d.Style == StylePlain {
		d.Style = style
	}
}

// tagLine handles sphinx fields and jsdoc tags, which are self-contained lines.
func (d *DocInfo) tagLine(t string) bool {
	switch {
	case sphinxParam.MatchString(t):
		d.addParam(sphinxParam.FindStringSubmatch(t)[1])
		d.setStyle(StyleSphinx)
	case sphinxReturn.MatchString(t):
		d.Returns = true
		d.setStyle(StyleSphinx)
	case sphinxRaise.MatchString(t):
		d.addRaise(sphinxRaise.FindStringSubmatch(t)[1])
		d.setStyle(StyleSphinx)
	case sphinxAttr.MatchString(t):
		d.addAttr(sphinxAttr.FindStringSubmatch(t)[1])
		d.setStyle(StyleSphinx)
	case strings.HasPrefix(t, ":rtype:"), strings.HasPrefix(t, ":type "), strings.HasPrefix(t, ":vartype "):
		d.setStyle(StyleSphinx)
	case jsdocParam.MatchString(t):
		d.addParam(jsdocParam.FindStringSubmatch(t)[1])
		d.setStyle(StyleJSDoc)
	case jsdocReturn.MatchString(t):
		d.Returns = true
		d.setStyle(StyleJSDoc)
	case jsdocThrows.MatchString(t):
		m := jsdocThrows.FindStringSubmatch(t)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		d.addRaise(name)
		d.setStyle(StyleJSDoc)
	case jsdocProp.MatchString(t):
		d.addAttr(jsdocProp.FindStringSubmatch(t)[1])
		d.setStyle(StyleJSDoc)
	case jsdocExample.MatchString(t):
		d.HasExample = true
		d.setStyle(StyleJSDoc)
	case strings.HasPrefix(t, "@"):
		d.setStyle(StyleJSDoc)
	default:
		return false
	}
	return true
}

func (d *DocInfo) sectionItem(section, t string, numpy bool) {
	switch section {
	case "params":
		if numpy {
			if m := numpyItem.FindStringSubmatch(t); m != nil {
				for _, name := range strings.Split(m[1], ",") {
					d.addParam(strings.TrimSpace(name))
				}
			}
			return
		}
		if m := googleItem.FindStringSubmatch(t); m != nil {
			d.addParam(m[1])
		}
	case "raises":
		if m := raiseItem.FindStringSubmatch(t); m != nil {
			d.addRaise(m[1])
		}
	case "attributes":
		if numpy {
			if m := numpyItem.FindStringSubmatch(t); m != nil {
				d.addAttr(strings.TrimSpace(strings.Split(m[1], ",")[0]))
			}
			return
		}
		if m := googleItem.FindStringSubmatch(t); m != nil {
			d.addAttr(m[1])
		}
	}
}

func (d *DocInfo) addParam(name string) {
	name = strings.TrimLeft(name, "*")
	if name != "" && !slices.Contains(d.Params, name) {
		d.Params = append(d.Params, name)
	}
}

func (d *DocInfo) addRaise(name string) {
	if name != "" && !slices.Contains(d.Raises, name) {
		d.Raises = append(d.Raises, name)
	}
}

func (d *DocInfo) addAttr(name string) {
	if name != "" && !slices.Contains(d.Attributes, name) {
		d.Attributes = append(d.Attributes, name)
	}
}

func canonicalSection(header string) string {
	switch strings.ToLower(strings.TrimSpace(header)) {
	case "args", "arguments", "parameters", "params", "keyword args", "keyword arguments", "other parameters":
		return "params"
	case "returns", "return", "yields", "yield":
		return "returns"
	case "raises", "throws", "exceptions":
		return "raises"
	case "example", "examples":
		return "examples"
	case "attributes":
		return "attributes"
	}
	return "other"
}

// summaryOf returns the first line of the first paragraph unless the block
// opens straight into a section or tag.
func summaryOf(lines []docLine) string {
	for i, ln := range lines {
		t := ln.text
		if t == "" {
			continue
		}
		if googleHeader.MatchString(t) || strings.HasPrefix(t, "@") || strings.HasPrefix(t, ":") ||
			strings.HasPrefix(t, ">>>") || strings.HasPrefix(t, "```") {
			return ""
		}
		if i+1 < len(lines) && numpyRule.MatchString(lines[i+1].text) {
			return ""
		}
		return t
	}
	return ""
}

// splitDocLines dedents the block. The first line is excluded from the
// common-indent computation since docstrings often start on the quote line.
func splitDocLines(raw string) []docLine {
	rawLines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	minIndent := -1
	for i, l := range rawLines {
		if i == 0 || strings.TrimSpace(l) == "" {
			continue
		}
		n := indentWidth(l)
		if minIndent < 0 || n < minIndent {
			minIndent = n
		}
	}
	if minIndent < 0 {
		minIndent = 0
	}
	out := make([]docLine, 0, len(rawLines))
	for i, l := range rawLines {
		t := strings.TrimSpace(l)
		n := indentWidth(l)
		if i > 0 {
			n -= minIndent
		} else {
			n = 0
		}
		if n < 0 || t == "" {
			n = 0
		}
		out = append(out, docLine{indent: n, text: t})
	}
	return out
}

func indentWidth(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

// ParseProseDoc handles free-form comments where parameters, attributes and
// results are documented by mention. Go doc comments are the main producer.
func ParseProseDoc(raw string, sig Signature, attrs []string) *DocInfo {
	info := &DocInfo{Raw: raw, Style: StyleProse, Prose: true}
	lines := splitDocLines(raw)
	info.Summary = summaryOf(lines)

	words := map[string]bool{}
	lower := strings.ToLower(raw)
	for _, w := range strings.FieldsFunc(raw, func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) {
		words[w] = true
	}
	for _, p := range sig.DocumentableParams() {
		if words[p.Name] {
			info.addParam(p.Name)
		}
	}
	for _, a := range attrs {
		if words[a] {
			info.addAttr(a)
		}
	}
	if strings.Contains(lower, "return") || strings.Contains(lower, "yield") || strings.Contains(lower, "report") {
		info.Returns = true
	}
	if strings.Contains(lower, "error") || strings.Contains(lower, "fail") {
		info.addRaise("error")
	}
	for _, ln := range strings.Split(raw, "\n") {
		if strings.HasPrefix(ln, "\t") || strings.HasPrefix(ln, "    ") {
			info.HasExample = true
			break
		}
	}
	if strings.Contains(raw, "Example") {
		info.HasExample = true
	}
	return info
}
