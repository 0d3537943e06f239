package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jward/docgap/internal/model"
)

// Analyzer turns one source file into entities in document order.
type Analyzer interface {
	Analyze(ctx context.Context, path, root string) ([]model.Entity, error)
}

// Func adapts a plain function to the Analyzer interface.
type Func func(ctx context.Context, path, root string) ([]model.Entity, error)

func (f Func) Analyze(ctx context.Context, path, root string) ([]model.Entity, error) {
	return f(ctx, path, root)
}

// ParseError reports a file whose content could not be parsed at all.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type registration struct {
	name     string
	analyzer Analyzer
}

// Registry maps file extensions to analyzers. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]registration)}
}

// Register associates extensions (with leading dot) with an analyzer. The
// first registration of an extension wins.
func (r *Registry) Register(name string, exts []string, a Analyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if _, exists := r.byExt[ext]; !exists {
			r.byExt[ext] = registration{name: name, analyzer: a}
		}
	}
}

// Resolve returns the analyzer for a file path, or false when its extension
// is not registered.
func (r *Registry) Resolve(path string) (Analyzer, bool) {
	reg, ok := r.lookup(path)
	return reg.analyzer, ok
}

// LanguageFor returns the registered analyzer name for a path.
func (r *Registry) LanguageFor(path string) (string, bool) {
	reg, ok := r.lookup(path)
	return reg.name, ok
}

func (r *Registry) lookup(path string) (registration, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byExt[ext]
	return reg, ok
}

// Extensions lists every registered extension, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Default returns a registry with the built-in tree-sitter analyzers.
func Default() *Registry {
	r := NewRegistry()
	r.Register("python", []string{".py", ".pyi"}, NewPython())
	r.Register("go", []string{".go"}, NewGo())
	r.Register("javascript", []string{".js", ".jsx", ".mjs", ".cjs"}, NewJavaScript())
	r.Register("typescript", []string{".ts", ".mts", ".cts"}, NewTypeScript())
	r.Register("tsx", []string{".tsx"}, NewTSX())
	return r
}
