package runtime

import (
	"context"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/docgap/internal/analyzer"
)

// parsedTree is the source and grammar a tree was built from.
type parsedTree struct {
	src  []byte
	lang *sitter.Language
}

// sourceStore maps root nodes back to their source. smacker/go-tree-sitter
// has no Node.Tree(), so lookups walk Parent() up to the root and key on
// its pointer.
type sourceStore struct {
	mu    sync.RWMutex
	trees map[uintptr]parsedTree
}

func newSourceStore() *sourceStore {
	return &sourceStore{trees: make(map[uintptr]parsedTree)}
}

func (s *sourceStore) add(tree *sitter.Tree, src []byte, lang *sitter.Language) {
	key := uintptr(unsafe.Pointer(tree.RootNode()))
	s.mu.Lock()
	s.trees[key] = parsedTree{src: src, lang: lang}
	s.mu.Unlock()
}

func (s *sourceStore) lookup(node *sitter.Node) (parsedTree, bool) {
	for node.Parent() != nil {
		node = node.Parent()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[uintptr(unsafe.Pointer(node))]
	return t, ok
}

func stringArg(fn, name string, obj object.Object) (string, *object.Error) {
	s, ok := obj.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, name, obj.Type())
	}
	return s.Value(), nil
}

func nodeArg(fn string, obj object.Object) (*sitter.Node, *object.Error) {
	p, ok := obj.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected node, got %s", fn, obj.Type())
	}
	node, ok := p.Interface().(*sitter.Node)
	if !ok || node == nil {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, p.Interface())
	}
	return node, nil
}

func proxyOrError(fn string, v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		return object.Errorf("%s: proxy error: %v", fn, err)
	}
	return p
}

// parse_src(source, language) → Tree
func makeParseSrcFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		src, errObj := stringArg("parse_src", "source", args[0])
		if errObj != nil {
			return errObj
		}
		langName, errObj := stringArg("parse_src", "language", args[1])
		if errObj != nil {
			return errObj
		}

		lang, ok := analyzer.Grammar(langName)
		if !ok {
			return object.Errorf("parse_src: unsupported language %q", langName)
		}
		parser := sitter.NewParser()
		defer parser.Close()
		parser.SetLanguage(lang)

		tree, err := parser.ParseCtx(ctx, nil, []byte(src))
		if err != nil {
			return object.Errorf("parse_src: %v", err)
		}
		ss.add(tree, []byte(src), lang)
		return proxyOrError("parse_src", tree)
	})
}

// node_text(node) → string
//
// Risor proxies cannot pass []byte to Node.Content, so the source is
// recovered Go-side.
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		t, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("node_text: node does not belong to a parsed tree")
		}
		return object.NewString(node.Content(t.src))
	})
}

// query(pattern, node) → [{capture: node}]
func makeQueryFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, errObj := stringArg("query", "pattern", args[0])
		if errObj != nil {
			return errObj
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		t, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("query: node does not belong to a parsed tree")
		}

		q, err := sitter.NewQuery([]byte(pattern), t.lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()
		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, t.src)
			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				p, err := object.NewProxy(c.Node)
				if err != nil {
					return object.Errorf("query: proxy error: %v", err)
				}
				captures[q.CaptureNameForId(c.Index)] = p
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// node_child(node, field) → node or nil
//
// Returns Risor nil rather than a proxied Go nil pointer.
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, errObj := stringArg("node_child", "field", args[1])
		if errObj != nil {
			return errObj
		}
		child := node.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		return proxyOrError("node_child", child)
	})
}

// logObject forwards log.Info/Warn/Error calls from scripts to slog.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string)  { l.logger.Info(msg) }
func (l *logObject) Warn(msg string)  { l.logger.Warn(msg) }
func (l *logObject) Error(msg string) { l.logger.Error(msg) }
