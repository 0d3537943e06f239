package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/risor-io/risor/object"

	"github.com/jward/docgap/internal/model"
)

// Rule is one loaded rule script.
type Rule struct {
	Name   string
	Source string
}

// RuleError reports a rule script that failed or returned malformed gaps.
type RuleError struct {
	Rule   string
	Entity model.EntityRef
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s on %s: %v", e.Rule, e.Entity, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// LoadRules reads every *.risor script under the rules directory (or the
// configured fs.FS), sorted by path. A missing directory yields no rules.
func (r *Runtime) LoadRules() ([]Rule, error) {
	fsys := r.fsys
	if fsys == nil {
		if r.rulesDir == "" {
			return nil, nil
		}
		if _, err := os.Stat(r.rulesDir); os.IsNotExist(err) {
			return nil, nil
		}
		fsys = os.DirFS(r.rulesDir)
	}

	paths, err := doublestar.Glob(fsys, "**/*.risor")
	if err != nil {
		return nil, fmt.Errorf("runtime: listing rules: %w", err)
	}
	slices.Sort(paths)

	rules := make([]Rule, 0, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("runtime: loading rule %s: %w", p, err)
		}
		rules = append(rules, Rule{
			Name:   strings.TrimSuffix(filepath.ToSlash(p), ".risor"),
			Source: string(data),
		})
	}
	return rules, nil
}

// Evaluate runs each rule against one entity. Scripts see the globals
// entity, source (the entity's text) and config, and return a list of
// {type, severity, description} maps, a single such map, or nil.
// Gaps from rules that succeed are returned even when others fail; the
// failures come back as *RuleError values.
func (r *Runtime) Evaluate(ctx context.Context, rules []Rule, e model.Entity, source []byte, cfg map[string]any) ([]model.Gap, []error) {
	if len(rules) == 0 {
		return nil, nil
	}
	globals := map[string]any{
		"entity": entityObject(e),
		"source": object.NewString(string(source)),
		"config": toObject(cfg),
	}

	var gaps []model.Gap
	var errs []error
	for _, rule := range rules {
		result, err := r.eval(ctx, rule.Source, rule.Name, globals)
		if err != nil {
			errs = append(errs, &RuleError{Rule: rule.Name, Entity: e.Ref(), Err: err})
			continue
		}
		found, err := gapsFromResult(e, rule.Name, result)
		if err != nil {
			errs = append(errs, &RuleError{Rule: rule.Name, Entity: e.Ref(), Err: err})
			continue
		}
		gaps = append(gaps, found...)
	}
	return gaps, errs
}

func gapsFromResult(e model.Entity, rule string, result object.Object) ([]model.Gap, error) {
	var items []object.Object
	switch v := result.(type) {
	case nil, *object.NilType:
		return nil, nil
	case *object.List:
		items = v.Value()
	case *object.Map:
		items = []object.Object{v}
	default:
		return nil, fmt.Errorf("expected list of gaps, got %s", result.Type())
	}

	gaps := make([]model.Gap, 0, len(items))
	for i, item := range items {
		m, err := extractMap(item)
		if err != nil {
			return nil, fmt.Errorf("gap %d: %w", i, err)
		}
		gapType := getString(m, "type")
		if gapType == "" {
			gapType = rule
		}
		sev, err := model.ParseSeverity(getStringDefault(m, "severity", string(model.SeverityMedium)))
		if err != nil {
			return nil, fmt.Errorf("gap %d: %w", i, err)
		}
		desc := getString(m, "description")
		if desc == "" {
			return nil, fmt.Errorf("gap %d: description is required", i)
		}
		gaps = append(gaps, model.Gap{
			Entity:      e.Ref(),
			Kind:        e.Kind,
			Line:        e.Location.StartLine,
			Type:        model.GapType(gapType),
			Severity:    sev,
			Description: desc,
		})
	}
	return gaps, nil
}
