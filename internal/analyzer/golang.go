package analyzer

import (
	"context"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/docgap/internal/model"
)

var goStop = set("func_literal")

// Go extracts package overviews, types, functions and methods from Go
// source. Doc comments are prose, so parameters and results count as
// documented when the comment mentions them.
type Go struct{}

func NewGo() *Go { return &Go{} }

func (g *Go) Analyze(ctx context.Context, filePath, root string) ([]model.Entity, error) {
	f, err := loadSource(filePath, root, "go")
	if err != nil {
		return nil, err
	}
	tree, err := f.parse(ctx)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	w := &goWalker{f: f}
	var pkgClause *sitter.Node
	for i := 0; i < int(rootNode.NamedChildCount()); i++ {
		if c := rootNode.NamedChild(i); c.Type() == "package_clause" {
			pkgClause = c
			w.pkg = f.text(c.NamedChild(0))
			break
		}
	}
	if w.pkg == "" {
		w.pkg = moduleName(f.rel)
	}

	if pkgClause != nil {
		w.module(rootNode, pkgClause)
	}
	for i := 0; i < int(rootNode.NamedChildCount()); i++ {
		child := rootNode.NamedChild(i)
		switch child.Type() {
		case "function_declaration":
			w.function(child, "")
		case "method_declaration":
			w.method(child)
		case "type_declaration":
			w.types(child)
		}
	}

	if err := f.unparsable(rootNode, w.entities); err != nil {
		return nil, err
	}
	return finalize(w.entities), nil
}

type goWalker struct {
	f        *sourceFile
	pkg      string
	entities []model.Entity
}

func goExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

func goVisibility(names ...string) model.Visibility {
	for _, n := range names {
		if !goExported(n) {
			return model.Private
		}
	}
	return model.Public
}

// module emits a package overview entity only for the file that should own
// it: doc.go, the file named after the package, or a file that already
// carries a package comment.
func (w *goWalker) module(root, clause *sitter.Node) {
	raw, start, end, hasDoc := w.f.precedingComments(clause)
	base := strings.TrimSuffix(path.Base(w.f.rel), ".go")
	if !hasDoc && base != "doc" && base != w.pkg {
		return
	}
	vis := model.Public
	if w.pkg == "main" || strings.HasSuffix(w.f.rel, "_test.go") {
		vis = model.Private
	}
	e := model.Entity{
		Kind:          model.KindModule,
		Name:          w.pkg,
		QualifiedName: w.pkg,
		Language:      "go",
		Location:      w.f.location(root),
		Visibility:    vis,
		Complexity:    int(root.NamedChildCount()),
	}
	e.Location.StartLine, e.Location.StartByte, e.Location.EndByte = 1, 0, len(w.f.src)
	w.attachDoc(&e, clause, raw, start, end, hasDoc)
	w.entities = append(w.entities, e)
}

func (w *goWalker) attachDoc(e *model.Entity, decl *sitter.Node, raw string, start, end int, ok bool) {
	declStart := w.f.lineStart(int(decl.StartByte()))
	e.Location.BodyStartByte = declStart
	e.Location.Indent, _ = w.f.indentAt(int(decl.StartByte()))
	if !ok {
		return
	}
	e.Doc = model.ParseProseDoc(model.CleanComment(raw), e.Signature, e.Attributes)
	e.Location.DocStartByte = w.f.lineStart(start)
	e.Location.DocEndByte = end
}

func (w *goWalker) function(node *sitter.Node, recv string) {
	name := w.f.text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	sig := model.Signature{}
	if params := node.ChildByFieldName("parameters"); params != nil {
		sig.Params = w.params(params)
	}
	var raises []string
	if result := node.ChildByFieldName("result"); result != nil {
		sig.ReturnType = w.f.text(result)
		sig.HasReturn = true
		if strings.Contains(sig.ReturnType, "error") {
			raises = []string{"error"}
		}
	}

	e := model.Entity{
		Kind:          model.KindFunction,
		Name:          name,
		QualifiedName: w.pkg + "." + name,
		Parent:        w.pkg,
		Language:      "go",
		Location:      w.f.location(node),
		Signature:     sig,
		Visibility:    goVisibility(name),
		Raises:        raises,
	}
	if recv != "" {
		e.Kind = model.KindMethod
		e.Parent = w.pkg + "." + recv
		e.QualifiedName = e.Parent + "." + name
		e.Visibility = goVisibility(recv, name)
	}
	raw, start, end, ok := w.f.precedingComments(node)
	w.attachDoc(&e, node, raw, start, end, ok)
	if body := node.ChildByFieldName("body"); body != nil {
		e.Complexity = w.f.complexity(body, len(sig.Params), goStop)
	}
	w.entities = append(w.entities, e)
}

func (w *goWalker) method(node *sitter.Node) {
	recvList := node.ChildByFieldName("receiver")
	if recvList == nil || recvList.NamedChildCount() == 0 {
		return
	}
	recvType := w.f.text(recvList.NamedChild(0).ChildByFieldName("type"))
	recvType = strings.TrimPrefix(recvType, "*")
	if i := strings.IndexByte(recvType, '['); i >= 0 {
		recvType = recvType[:i]
	}
	w.function(node, recvType)
}

func (w *goWalker) params(list *sitter.Node) []model.Param {
	var out []model.Param
	for i := 0; i < int(list.NamedChildCount()); i++ {
		decl := list.NamedChild(i)
		variadic := decl.Type() == "variadic_parameter_declaration"
		if decl.Type() != "parameter_declaration" && !variadic {
			continue
		}
		typ := w.f.text(decl.ChildByFieldName("type"))
		for j := 0; j < int(decl.NamedChildCount()); j++ {
			if id := decl.NamedChild(j); id.Type() == "identifier" {
				out = append(out, model.Param{Name: w.f.text(id), Type: typ, Variadic: variadic})
			}
		}
	}
	return out
}

// types emits one class entity per type spec. A grouped declaration
// documents each spec by the comment above it.
func (w *goWalker) types(decl *sitter.Node) {
	var specs []*sitter.Node
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		if s := decl.NamedChild(i); s.Type() == "type_spec" || s.Type() == "type_alias" {
			specs = append(specs, s)
		}
	}
	for _, spec := range specs {
		name := w.f.text(spec.ChildByFieldName("name"))
		if name == "" {
			continue
		}
		outer := spec
		if len(specs) == 1 {
			outer = decl
		}
		e := model.Entity{
			Kind:          model.KindClass,
			Name:          name,
			QualifiedName: w.pkg + "." + name,
			Parent:        w.pkg,
			Language:      "go",
			Location:      w.f.location(outer),
			Visibility:    goVisibility(name),
		}
		if typ := spec.ChildByFieldName("type"); typ != nil && typ.Type() == "struct_type" {
			e.Attributes = w.undocumentedFields(typ)
			e.Complexity = len(findAll(typ, "field_declaration", nil))
		}
		raw, start, end, ok := w.f.precedingComments(outer)
		w.attachDoc(&e, outer, raw, start, end, ok)
		w.entities = append(w.entities, e)
	}
}

// undocumentedFields returns exported struct fields that carry no comment of
// their own, either above or trailing on the same line.
func (w *goWalker) undocumentedFields(structType *sitter.Node) []string {
	var out []string
	for _, field := range findAll(structType, "field_declaration", set("struct_type")) {
		if _, _, _, ok := w.f.precedingComments(field); ok {
			continue
		}
		if next := field.NextSibling(); next != nil && next.Type() == "comment" && next.StartPoint().Row == field.EndPoint().Row {
			continue
		}
		for j := 0; j < int(field.NamedChildCount()); j++ {
			if id := field.NamedChild(j); id.Type() == "field_identifier" && goExported(w.f.text(id)) {
				out = appendUnique(out, w.f.text(id))
			}
		}
	}
	return out
}
