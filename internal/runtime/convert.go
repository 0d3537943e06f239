package runtime

import (
	"fmt"

	"github.com/risor-io/risor/object"

	"github.com/jward/docgap/internal/model"
)

// Risor scripts cannot construct Go structs, so entities cross the boundary
// as maps of primitives and gaps come back the same way.

func entityObject(e model.Entity) object.Object {
	params := make([]any, 0, len(e.Signature.Params))
	for _, p := range e.Signature.DocumentableParams() {
		params = append(params, map[string]any{
			"name":        p.Name,
			"type":        p.Type,
			"has_default": p.HasDefault,
			"variadic":    p.Variadic,
		})
	}

	m := map[string]any{
		"kind":           string(e.Kind),
		"name":           e.Name,
		"qualified_name": e.QualifiedName,
		"parent":         e.Parent,
		"language":       e.Language,
		"file":           e.Location.File,
		"start_line":     e.Location.StartLine,
		"end_line":       e.Location.EndLine,
		"visibility":     string(e.Visibility),
		"public":         e.IsPublic(),
		"params":         params,
		"return_type":    e.Signature.ReturnType,
		"has_return":     e.Signature.HasReturn,
		"raises":         stringsToAny(e.Raises),
		"attributes":     stringsToAny(e.Attributes),
		"complexity":     e.Complexity,
		"children":       e.Children,
		"doc":            nil,
	}
	if d := e.Doc; d != nil {
		m["doc"] = map[string]any{
			"raw":         d.Raw,
			"summary":     d.Summary,
			"params":      stringsToAny(d.Params),
			"returns":     d.Returns,
			"raises":      stringsToAny(d.Raises),
			"attributes":  stringsToAny(d.Attributes),
			"has_example": d.HasExample,
			"style":       string(d.Style),
		}
	}
	return toObject(m)
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// toObject converts plain Go values into Risor objects. Unsupported types
// become their fmt representation.
func toObject(v any) object.Object {
	switch v := v.(type) {
	case nil:
		return object.Nil
	case object.Object:
		return v
	case string:
		return object.NewString(v)
	case bool:
		return object.NewBool(v)
	case int:
		return object.NewInt(int64(v))
	case int64:
		return object.NewInt(v)
	case float64:
		return object.NewFloat(v)
	case []string:
		return toObject(stringsToAny(v))
	case []any:
		items := make([]object.Object, len(v))
		for i, item := range v {
			items[i] = toObject(item)
		}
		return object.NewList(items)
	case map[string]any:
		items := make(map[string]object.Object, len(v))
		for k, item := range v {
			items[k] = toObject(item)
		}
		return object.NewMap(items)
	}
	return object.NewString(fmt.Sprint(v))
}

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	if s, ok := m[key].(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getStringDefault(m map[string]object.Object, key, def string) string {
	if v := getString(m, key); v != "" {
		return v
	}
	return def
}
