package analyzer

import (
	"bytes"
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/docgap/internal/model"
)

var pyStop = set("function_definition", "class_definition", "lambda")

// Python extracts modules, classes, functions, methods and properties from
// Python source using tree-sitter.
type Python struct{}

func NewPython() *Python { return &Python{} }

func (p *Python) Analyze(ctx context.Context, path, root string) ([]model.Entity, error) {
	f, err := loadSource(path, root, "python")
	if err != nil {
		return nil, err
	}
	tree, err := f.parse(ctx)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	w := &pyWalker{f: f}
	mod := w.module(rootNode)
	w.entities = append(w.entities, mod)
	w.block(rootNode, mod.QualifiedName, nil)

	if err := f.unparsable(rootNode, w.entities); err != nil {
		return nil, err
	}
	return finalize(w.entities), nil
}

type pyWalker struct {
	f        *sourceFile
	entities []model.Entity
}

func (w *pyWalker) module(root *sitter.Node) model.Entity {
	name := moduleName(w.f.rel)
	last := name[strings.LastIndex(name, ".")+1:]
	e := model.Entity{
		Kind:          model.KindModule,
		Name:          name,
		QualifiedName: name,
		Language:      "python",
		Location:      w.f.location(root),
		Visibility:    model.VisibilityFromName(last),
	}
	e.Location.StartLine = 1
	e.Location.StartByte = 0
	e.Location.EndByte = len(w.f.src)
	e.Location.BodyStartByte = pyPreambleEnd(w.f.src)
	w.attachDoc(&e, root)
	e.Complexity = int(root.NamedChildCount())
	return e
}

// pyPreambleEnd skips a shebang and encoding or editor comments so a new
// module docstring lands below them.
func pyPreambleEnd(src []byte) int {
	off := 0
	for off < len(src) {
		line := src[off:]
		if i := bytes.IndexByte(line, '\n'); i >= 0 {
			line = line[:i+1]
		}
		t := bytes.TrimSpace(line)
		if !bytes.HasPrefix(t, []byte("#!")) && !bytes.Contains(t, []byte("coding")) && !bytes.HasPrefix(t, []byte("# vim")) {
			break
		}
		off += len(line)
	}
	return off
}

// attachDoc reads the docstring from the first statement of body.
func (w *pyWalker) attachDoc(e *model.Entity, body *sitter.Node) {
	if body == nil {
		return
	}
	var first *sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		if c := body.NamedChild(i); c.Type() != "comment" {
			first = c
			break
		}
	}
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return
	}
	if str := first.NamedChild(0); str.Type() == "string" || str.Type() == "concatenated_string" {
		raw := model.CleanComment(w.f.text(str))
		e.Doc = model.ParseDoc(raw)
		e.Location.DocStartByte = int(first.StartByte())
		e.Location.DocEndByte = int(first.EndByte())
	}
}

func (w *pyWalker) block(node *sitter.Node, parent string, class *model.Entity) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			w.function(child, child, nil, parent, class)
		case "class_definition":
			w.class(child, child, parent, class)
		case "decorated_definition":
			def := child.ChildByFieldName("definition")
			if def == nil {
				continue
			}
			var decorators []string
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if d := child.NamedChild(j); d.Type() == "decorator" {
					decorators = append(decorators, strings.TrimSpace(strings.TrimPrefix(w.f.text(d), "@")))
				}
			}
			switch def.Type() {
			case "function_definition":
				w.function(child, def, decorators, parent, class)
			case "class_definition":
				w.class(child, def, parent, class)
			}
		}
	}
}

func (w *pyWalker) function(outer, node *sitter.Node, decorators []string, parent string, class *model.Entity) {
	name := w.f.text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	kind := model.KindFunction
	if class != nil {
		kind = model.KindMethod
	}
	for _, d := range decorators {
		switch {
		case strings.HasSuffix(d, ".setter"), strings.HasSuffix(d, ".deleter"):
			// documented on the getter
			return
		case d == "overload", d == "typing.overload", d == "t.overload":
			// stubs; the implementation carries the docs
			return
		case d == "property", d == "cached_property", d == "functools.cached_property":
			kind = model.KindProperty
		}
	}

	sig := model.Signature{TypesSupported: true}
	if params := node.ChildByFieldName("parameters"); params != nil {
		sig.Params = w.params(params)
	}
	body := node.ChildByFieldName("body")
	if rt := node.ChildByFieldName("return_type"); rt != nil {
		sig.ReturnType = w.f.text(rt)
		sig.HasReturn = sig.ReturnType != "None" && sig.ReturnType != "NoReturn"
	} else if body != nil {
		sig.HasReturn = pyReturnsValue(body)
	}
	if kind == model.KindProperty {
		sig.HasReturn = false
	}

	vis := model.VisibilityFromName(name)
	if class != nil && class.Visibility == model.Private {
		vis = model.Private
	}
	e := model.Entity{
		Kind:          kind,
		Name:          name,
		QualifiedName: parent + "." + name,
		Parent:        parent,
		Language:      "python",
		Location:      w.f.location(outer),
		Signature:     sig,
		Visibility:    vis,
	}
	if body != nil {
		w.attachDoc(&e, body)
		w.insertionPoint(&e, outer, body)
		e.Raises = w.raises(body)
		e.Complexity = w.f.complexity(body, len(sig.DocumentableParams()), pyStop)
	}
	w.entities = append(w.entities, e)
}

func (w *pyWalker) class(outer, node *sitter.Node, parent string, enclosing *model.Entity) {
	name := w.f.text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	vis := model.VisibilityFromName(name)
	if enclosing != nil && enclosing.Visibility == model.Private {
		vis = model.Private
	}
	e := model.Entity{
		Kind:          model.KindClass,
		Name:          name,
		QualifiedName: parent + "." + name,
		Parent:        parent,
		Language:      "python",
		Location:      w.f.location(outer),
		Visibility:    vis,
	}
	body := node.ChildByFieldName("body")
	if body != nil {
		w.attachDoc(&e, body)
		w.insertionPoint(&e, outer, body)
		e.Attributes = w.attributes(body)
		e.Complexity = w.f.complexity(body, 0, pyStop)
	}
	w.entities = append(w.entities, e)
	if body != nil {
		w.block(body, e.QualifiedName, &e)
	}
}

// insertionPoint records where a new docstring goes: the start of the body
// block, indented like the body.
func (w *pyWalker) insertionPoint(e *model.Entity, outer, body *sitter.Node) {
	e.Location.BodyStartByte = int(body.StartByte())
	indent, ok := w.f.indentAt(int(body.StartByte()))
	if !ok {
		// body on the same line as the header
		outerIndent, _ := w.f.indentAt(int(outer.StartByte()))
		indent = outerIndent + "    "
	}
	e.Location.Indent = indent
}

func (w *pyWalker) params(node *sitter.Node) []model.Param {
	var out []model.Param
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "identifier":
			out = append(out, model.Param{Name: w.f.text(child)})
		case "typed_parameter":
			p := model.Param{Type: w.f.text(child.ChildByFieldName("type"))}
			if child.NamedChildCount() > 0 {
				p.Name, p.Variadic = pySplatName(w.f.text(child.NamedChild(0)))
			}
			out = append(out, p)
		case "default_parameter":
			out = append(out, model.Param{Name: w.f.text(child.ChildByFieldName("name")), HasDefault: true})
		case "typed_default_parameter":
			out = append(out, model.Param{
				Name:       w.f.text(child.ChildByFieldName("name")),
				Type:       w.f.text(child.ChildByFieldName("type")),
				HasDefault: true,
			})
		case "list_splat_pattern", "dictionary_splat_pattern":
			p := model.Param{}
			p.Name, p.Variadic = pySplatName(w.f.text(child))
			out = append(out, p)
		}
	}
	return out
}

func pySplatName(s string) (string, bool) {
	name := strings.TrimLeft(s, "*")
	return name, name != s
}

// pyReturnsValue reports a return with a value or a yield in body, ignoring
// nested definitions.
func pyReturnsValue(body *sitter.Node) bool {
	for _, r := range findAll(body, "return_statement", pyStop) {
		if r.NamedChildCount() > 0 && r.NamedChild(0).Type() != "none" {
			return true
		}
	}
	return len(findAll(body, "yield", pyStop)) > 0
}

func (w *pyWalker) raises(body *sitter.Node) []string {
	var out []string
	for _, r := range findAll(body, "raise_statement", pyStop) {
		if r.NamedChildCount() == 0 {
			continue
		}
		exc := r.NamedChild(0)
		if exc.Type() == "call" {
			exc = exc.ChildByFieldName("function")
		}
		switch exc.Type() {
		case "identifier", "attribute":
			out = appendUnique(out, w.f.text(exc))
		}
	}
	return out
}

// attributes lists public class-level assignments and self.x assignments
// made in __init__.
func (w *pyWalker) attributes(body *sitter.Node) []string {
	var out []string
	add := func(name string) {
		if name != "" && !strings.HasPrefix(name, "_") {
			out = appendUnique(out, name)
		}
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		switch child.Type() {
		case "expression_statement":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if a := child.NamedChild(j); a.Type() == "assignment" {
					if left := a.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
						add(w.f.text(left))
					}
				}
			}
		case "function_definition", "decorated_definition":
			def := child
			if child.Type() == "decorated_definition" {
				def = child.ChildByFieldName("definition")
			}
			if def == nil || def.Type() != "function_definition" || w.f.text(def.ChildByFieldName("name")) != "__init__" {
				continue
			}
			initBody := def.ChildByFieldName("body")
			if initBody == nil {
				continue
			}
			for _, a := range findAll(initBody, "assignment", pyStop) {
				left := a.ChildByFieldName("left")
				if left == nil || left.Type() != "attribute" {
					continue
				}
				if w.f.text(left.ChildByFieldName("object")) == "self" {
					add(w.f.text(left.ChildByFieldName("attribute")))
				}
			}
		}
	}
	return out
}
