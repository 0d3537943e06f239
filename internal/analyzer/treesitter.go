package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/docgap/internal/model"
)

// sourceFile is one file loaded for analysis. rel is slash-separated and
// relative to the project root; it becomes Location.File.
type sourceFile struct {
	path string
	rel  string
	src  []byte
	lang string
}

func loadSource(path, root, lang string) (*sourceFile, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if !utf8.Valid(src) {
		return nil, &ParseError{Path: path, Err: errors.New("content is not valid UTF-8 text")}
	}
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	return &sourceFile{path: path, rel: filepath.ToSlash(rel), src: src, lang: lang}, nil
}

func (f *sourceFile) parse(ctx context.Context) (*sitter.Tree, error) {
	grammar, ok := Grammar(f.lang)
	if !ok {
		return nil, fmt.Errorf("no grammar for %s", f.lang)
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, f.src)
	if err != nil {
		return nil, &ParseError{Path: f.path, Err: err}
	}
	return tree, nil
}

// unparsable reports a syntax tree that is broken and yielded nothing
// beyond the module entity.
func (f *sourceFile) unparsable(root *sitter.Node, entities []model.Entity) error {
	if !root.HasError() || len(bytes.TrimSpace(f.src)) == 0 {
		return nil
	}
	for _, e := range entities {
		if e.Kind != model.KindModule {
			return nil
		}
	}
	return &ParseError{Path: f.path, Err: errors.New("syntax errors and no recognizable definitions")}
}

func (f *sourceFile) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(f.src)
}

// location fills line and byte ranges from outer, the node that spans any
// decorators or export keywords.
func (f *sourceFile) location(outer *sitter.Node) model.Location {
	return model.Location{
		File:      f.rel,
		StartLine: int(outer.StartPoint().Row) + 1,
		EndLine:   int(outer.EndPoint().Row) + 1,
		StartByte: int(outer.StartByte()),
		EndByte:   int(outer.EndByte()),
	}
}

// lineStart returns the offset of the first byte of the line holding off.
func (f *sourceFile) lineStart(off int) int {
	return bytes.LastIndexByte(f.src[:off], '\n') + 1
}

// indentAt returns the whitespace prefix of the line holding off, and
// whether everything between the line start and off is whitespace.
func (f *sourceFile) indentAt(off int) (string, bool) {
	start := f.lineStart(off)
	prefix := f.src[start:off]
	trimmed := bytes.TrimLeft(prefix, " \t")
	indent := prefix[:len(prefix)-len(trimmed)]
	return string(indent), len(trimmed) == 0
}

// moduleName turns a relative path into a dotted module path.
func moduleName(rel string) string {
	noExt := strings.TrimSuffix(rel, filepath.Ext(rel))
	parts := strings.Split(noExt, "/")
	if n := len(parts); n > 1 && (parts[n-1] == "__init__" || parts[n-1] == "index") {
		parts = parts[:n-1]
	}
	return strings.Join(parts, ".")
}

// precedingComments returns the span of comment nodes directly above n with
// no blank line in between.
func (f *sourceFile) precedingComments(n *sitter.Node) (string, int, int, bool) {
	var first, last *sitter.Node
	cur := n
	for prev := cur.PrevSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevSibling() {
		if prev.EndPoint().Row+1 < cur.StartPoint().Row {
			break
		}
		// trailing comment of the previous statement
		if pp := prev.PrevSibling(); pp != nil && pp.IsNamed() && pp.Type() != "comment" && pp.EndPoint().Row == prev.StartPoint().Row {
			break
		}
		if strings.HasPrefix(f.text(prev), "//go:") || strings.HasPrefix(f.text(prev), "//nolint") {
			break
		}
		if last == nil {
			last = prev
		}
		first = prev
		cur = prev
		// a block comment stands alone
		if strings.HasPrefix(f.text(prev), "/*") {
			break
		}
	}
	if first == nil {
		return "", 0, 0, false
	}
	start, end := int(first.StartByte()), int(last.EndByte())
	return string(f.src[start:end]), start, end, true
}

// complexity is a coarse signal: parameter count, branch points and one
// point per ten lines. Nested definitions listed in stop are not counted.
func (f *sourceFile) complexity(n *sitter.Node, params int, stop map[string]bool) int {
	branches := 0
	nodes := branchNodes[f.lang]
	var visit func(*sitter.Node)
	visit = func(c *sitter.Node) {
		for i := 0; i < int(c.NamedChildCount()); i++ {
			child := c.NamedChild(i)
			if child == nil || stop[child.Type()] {
				continue
			}
			if nodes[child.Type()] {
				branches++
			}
			visit(child)
		}
	}
	visit(n)
	lines := int(n.EndPoint().Row-n.StartPoint().Row) + 1
	return params + branches + lines/10
}

// findAll collects descendants of the given type without descending into
// stop nodes.
func findAll(n *sitter.Node, typ string, stop map[string]bool) []*sitter.Node {
	var out []*sitter.Node
	var visit func(*sitter.Node)
	visit = func(c *sitter.Node) {
		for i := 0; i < int(c.NamedChildCount()); i++ {
			child := c.NamedChild(i)
			if child == nil || stop[child.Type()] {
				continue
			}
			if child.Type() == typ {
				out = append(out, child)
			}
			visit(child)
		}
	}
	visit(n)
	return out
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

// finalize fills child counts once all entities of a file are known and
// keeps qualified names unique. A repeated name (Go init funcs, redefined
// Python functions) gets an ordinal suffix in document order, so "m.init",
// "m.init#2" stay stable when lines shift.
func finalize(entities []model.Entity) []model.Entity {
	counts := make(map[string]int)
	for _, e := range entities {
		if e.Parent != "" {
			counts[e.Parent]++
		}
	}
	seen := make(map[string]int, len(entities))
	for i := range entities {
		name := entities[i].QualifiedName
		entities[i].Children = counts[name]
		seen[name]++
		if n := seen[name]; n > 1 {
			entities[i].QualifiedName = fmt.Sprintf("%s#%d", name, n)
		}
	}
	return entities
}
