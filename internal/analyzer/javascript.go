package analyzer

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/docgap/internal/model"
)

var jsStop = set("function_declaration", "generator_function_declaration", "function_expression",
	"function", "arrow_function", "class_declaration", "class", "method_definition")

// JavaScript extracts entities from JavaScript and TypeScript sources. The
// three constructors differ only in grammar and annotation support.
type JavaScript struct {
	lang string
}

func NewJavaScript() *JavaScript { return &JavaScript{lang: "javascript"} }

func NewTypeScript() *JavaScript { return &JavaScript{lang: "typescript"} }

func NewTSX() *JavaScript { return &JavaScript{lang: "tsx"} }

func (j *JavaScript) Analyze(ctx context.Context, path, root string) ([]model.Entity, error) {
	f, err := loadSource(path, root, j.lang)
	if err != nil {
		return nil, err
	}
	tree, err := f.parse(ctx)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	w := &jsWalker{f: f, typed: j.lang != "javascript", language: j.languageName()}
	for i := 0; i < int(rootNode.NamedChildCount()); i++ {
		if rootNode.NamedChild(i).Type() == "export_statement" {
			w.hasExports = true
			break
		}
	}
	mod := w.module(rootNode)
	w.entities = append(w.entities, mod)

	for i := 0; i < int(rootNode.NamedChildCount()); i++ {
		child := rootNode.NamedChild(i)
		if child.Type() == "export_statement" {
			for k := 0; k < int(child.NamedChildCount()); k++ {
				w.declaration(child, child.NamedChild(k), mod.QualifiedName, true)
			}
			continue
		}
		w.declaration(child, child, mod.QualifiedName, false)
	}

	if err := f.unparsable(rootNode, w.entities); err != nil {
		return nil, err
	}
	return finalize(w.entities), nil
}

func (j *JavaScript) languageName() string {
	if j.lang == "tsx" {
		return "typescript"
	}
	return j.lang
}

type jsWalker struct {
	f          *sourceFile
	language   string
	typed      bool
	hasExports bool
	entities   []model.Entity
}

// module takes the leading comment as the file overview when it is
// separated from the first statement or carries a file-level tag.
func (w *jsWalker) module(root *sitter.Node) model.Entity {
	name := moduleName(w.f.rel)
	e := model.Entity{
		Kind:          model.KindModule,
		Name:          name,
		QualifiedName: name,
		Language:      w.language,
		Location:      w.f.location(root),
		Visibility:    model.Public,
		Complexity:    int(root.NamedChildCount()),
	}
	e.Location.StartLine, e.Location.StartByte, e.Location.EndByte = 1, 0, len(w.f.src)
	if root.NamedChildCount() == 0 {
		return e
	}
	first := root.NamedChild(0)
	if first.Type() != "comment" {
		return e
	}
	text := w.f.text(first)
	if strings.HasPrefix(text, "#!") {
		return e
	}
	next := first.NextNamedSibling()
	tagged := strings.Contains(text, "@file") || strings.Contains(text, "@module") ||
		strings.Contains(text, "@fileoverview") || strings.Contains(text, "@packageDocumentation")
	if tagged || next == nil || next.StartPoint().Row > first.EndPoint().Row+1 {
		e.Doc = model.ParseDoc(model.CleanComment(text))
		e.Location.DocStartByte = int(first.StartByte())
		e.Location.DocEndByte = int(first.EndByte())
	}
	return e
}

func (w *jsWalker) declaration(outer, node *sitter.Node, parent string, exported bool) {
	switch node.Type() {
	case "function_declaration", "generator_function_declaration":
		w.function(outer, node, w.f.text(node.ChildByFieldName("name")), parent, nil, exported)
	case "class_declaration", "abstract_class_declaration":
		w.class(outer, node, parent, exported)
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			decl := node.NamedChild(i)
			if decl.Type() != "variable_declarator" {
				continue
			}
			value := decl.ChildByFieldName("value")
			if value == nil {
				continue
			}
			switch value.Type() {
			case "arrow_function", "function_expression", "function", "generator_function":
				w.function(outer, value, w.f.text(decl.ChildByFieldName("name")), parent, nil, exported)
			case "class":
				w.class(outer, value, parent, exported)
			}
		}
	}
}

func (w *jsWalker) topVisibility(name string, exported bool) model.Visibility {
	if w.hasExports {
		if exported {
			return model.Public
		}
		return model.Private
	}
	return model.VisibilityFromName(name)
}

func (w *jsWalker) function(outer, node *sitter.Node, name, parent string, class *model.Entity, exported bool) {
	if name == "" {
		name = "default"
	}
	sig := model.Signature{TypesSupported: w.typed}
	if params := node.ChildByFieldName("parameters"); params != nil {
		sig.Params = w.params(params)
	} else if p := node.ChildByFieldName("parameter"); p != nil {
		sig.Params = []model.Param{{Name: w.f.text(p)}}
	}
	body := node.ChildByFieldName("body")
	if rt := node.ChildByFieldName("return_type"); rt != nil {
		sig.ReturnType = strings.TrimSpace(strings.TrimPrefix(w.f.text(rt), ":"))
		switch sig.ReturnType {
		case "void", "never", "undefined", "Promise<void>":
		default:
			sig.HasReturn = true
		}
	} else if body != nil {
		sig.HasReturn = body.Type() != "statement_block" || jsReturnsValue(body)
	}

	kind := model.KindFunction
	vis := w.topVisibility(name, exported)
	if class != nil {
		kind = model.KindMethod
		vis = jsMemberVisibility(w.f, node, name)
		if class.Visibility == model.Private {
			vis = model.Private
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			switch node.Child(i).Type() {
			case "get":
				kind = model.KindProperty
				sig.HasReturn = false
			case "set":
				// documented on the getter
				return
			}
		}
	}

	e := model.Entity{
		Kind:          kind,
		Name:          name,
		QualifiedName: parent + "." + name,
		Parent:        parent,
		Language:      w.language,
		Location:      w.f.location(outer),
		Signature:     sig,
		Visibility:    vis,
	}
	w.attachDoc(&e, outer)
	if body != nil {
		e.Raises = w.raises(body)
		e.Complexity = w.f.complexity(body, len(sig.DocumentableParams()), jsStop)
	}
	w.entities = append(w.entities, e)
}

func (w *jsWalker) class(outer, node *sitter.Node, parent string, exported bool) {
	name := w.f.text(node.ChildByFieldName("name"))
	if name == "" {
		name = "default"
	}
	e := model.Entity{
		Kind:          model.KindClass,
		Name:          name,
		QualifiedName: parent + "." + name,
		Parent:        parent,
		Language:      w.language,
		Location:      w.f.location(outer),
		Visibility:    w.topVisibility(name, exported),
	}
	w.attachDoc(&e, outer)
	body := node.ChildByFieldName("body")
	if body == nil {
		w.entities = append(w.entities, e)
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		var field *sitter.Node
		switch member.Type() {
		case "field_definition":
			field = member.ChildByFieldName("property")
		case "public_field_definition":
			field = member.ChildByFieldName("name")
		}
		if field == nil {
			continue
		}
		fname := w.f.text(field)
		if jsMemberVisibility(w.f, member, fname) == model.Public {
			if _, _, _, documented := w.f.precedingComments(member); !documented {
				e.Attributes = appendUnique(e.Attributes, fname)
			}
		}
	}
	e.Complexity = w.f.complexity(body, 0, jsStop)
	w.entities = append(w.entities, e)

	for i := 0; i < int(body.NamedChildCount()); i++ {
		if m := body.NamedChild(i); m.Type() == "method_definition" {
			w.function(m, m, w.f.text(m.ChildByFieldName("name")), e.QualifiedName, &e, true)
		}
	}
}

func jsMemberVisibility(f *sourceFile, node *sitter.Node, name string) model.Visibility {
	if strings.HasPrefix(name, "#") || strings.HasPrefix(name, "_") {
		return model.Private
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if c := node.NamedChild(i); c.Type() == "accessibility_modifier" {
			if t := f.text(c); t == "private" || t == "protected" {
				return model.Private
			}
		}
	}
	return model.Public
}

// attachDoc takes the comment block directly above outer. New comments are
// inserted at the start of the declaration line.
func (w *jsWalker) attachDoc(e *model.Entity, outer *sitter.Node) {
	e.Location.BodyStartByte = w.f.lineStart(int(outer.StartByte()))
	e.Location.Indent, _ = w.f.indentAt(int(outer.StartByte()))
	raw, start, end, ok := w.f.precedingComments(outer)
	if !ok {
		return
	}
	e.Doc = model.ParseDoc(model.CleanComment(raw))
	e.Location.DocStartByte = w.f.lineStart(start)
	e.Location.DocEndByte = end
}

func (w *jsWalker) params(node *sitter.Node) []model.Param {
	var out []model.Param
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "identifier":
			out = append(out, model.Param{Name: w.f.text(child)})
		case "assignment_pattern":
			if left := child.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
				out = append(out, model.Param{Name: w.f.text(left), HasDefault: true})
			}
		case "rest_pattern":
			out = append(out, model.Param{Name: strings.TrimPrefix(w.f.text(child), "..."), Variadic: true})
		case "required_parameter", "optional_parameter":
			pattern := child.ChildByFieldName("pattern")
			if pattern == nil {
				continue
			}
			p := model.Param{HasDefault: child.Type() == "optional_parameter" || child.ChildByFieldName("value") != nil}
			switch pattern.Type() {
			case "identifier", "this":
				p.Name = w.f.text(pattern)
			case "rest_pattern":
				p.Name, p.Variadic = strings.TrimPrefix(w.f.text(pattern), "..."), true
			default:
				continue
			}
			if t := child.ChildByFieldName("type"); t != nil {
				p.Type = strings.TrimSpace(strings.TrimPrefix(w.f.text(t), ":"))
			}
			out = append(out, p)
		}
	}
	return out
}

func jsReturnsValue(body *sitter.Node) bool {
	for _, r := range findAll(body, "return_statement", jsStop) {
		if r.NamedChildCount() > 0 {
			return true
		}
	}
	return false
}

func (w *jsWalker) raises(body *sitter.Node) []string {
	var out []string
	for _, t := range findAll(body, "throw_statement", jsStop) {
		if t.NamedChildCount() == 0 {
			continue
		}
		if ne := t.NamedChild(0); ne.Type() == "new_expression" {
			if ctor := ne.ChildByFieldName("constructor"); ctor != nil {
				out = appendUnique(out, w.f.text(ctor))
			}
		}
	}
	return out
}
