package model

import "strings"

// Kind classifies a documentable unit.
type Kind string

const (
	KindModule   Kind = "module"
	KindClass    Kind = "class"
	KindFunction Kind = "function"
	KindMethod   Kind = "method"
	KindProperty Kind = "property"
)

// Visibility is derived from naming conventions or explicit export rules.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Location pins an entity to a file. Byte offsets are half-open.
// DocStartByte/DocEndByte are zero when the entity has no documentation.
// BodyStartByte and Indent describe where new documentation would go.
type Location struct {
	File          string `json:"file"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	StartByte     int    `json:"start_byte"`
	EndByte       int    `json:"end_byte"`
	DocStartByte  int    `json:"doc_start_byte,omitempty"`
	DocEndByte    int    `json:"doc_end_byte,omitempty"`
	BodyStartByte int    `json:"body_start_byte,omitempty"`
	Indent        string `json:"indent,omitempty"`
}

// HasDocSpan reports whether the location carries the byte range of an
// existing documentation block.
func (l Location) HasDocSpan() bool {
	return l.DocEndByte > l.DocStartByte
}

type Param struct {
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	HasDefault bool   `json:"has_default,omitempty"`
	Variadic   bool   `json:"variadic,omitempty"`
}

// Signature holds the syntax facts of a callable. HasReturn is set when the
// declared return type or the body indicates a non-void result.
type Signature struct {
	Params         []Param `json:"params,omitempty"`
	ReturnType     string  `json:"return_type,omitempty"`
	HasReturn      bool    `json:"has_return,omitempty"`
	TypesSupported bool    `json:"types_supported,omitempty"`
}

// receiverNames never count as documentable parameters.
var receiverNames = map[string]bool{"self": true, "cls": true, "this": true}

// DocumentableParams returns the parameters a doc block is expected to cover,
// dropping receivers and bare variadic markers.
func (s Signature) DocumentableParams() []Param {
	out := make([]Param, 0, len(s.Params))
	for _, p := range s.Params {
		name := strings.TrimLeft(p.Name, "*.")
		if name == "" || name == "_" || receiverNames[name] {
			continue
		}
		p.Name = name
		out = append(out, p)
	}
	return out
}

// Entity is a documentable code unit produced by a language analyzer.
type Entity struct {
	Kind          Kind       `json:"kind"`
	Name          string     `json:"name"`
	QualifiedName string     `json:"qualified_name"`
	Parent        string     `json:"parent,omitempty"`
	Language      string     `json:"language"`
	Location      Location   `json:"location"`
	Signature     Signature  `json:"signature"`
	Visibility    Visibility `json:"visibility"`
	Doc           *DocInfo   `json:"doc,omitempty"`
	Raises        []string   `json:"raises,omitempty"`
	Attributes    []string   `json:"attributes,omitempty"`
	Complexity    int        `json:"complexity"`
	// Children is the number of entities nested directly under this one.
	Children int `json:"children,omitempty"`
}

// ID identifies the entity within one analysis pass. It deliberately omits
// line numbers so it survives unrelated edits.
func (e Entity) ID() string {
	return e.Location.File + "::" + e.QualifiedName
}

// Ref returns a non-owning reference to the entity.
func (e Entity) Ref() EntityRef {
	return EntityRef{File: e.Location.File, QualifiedName: e.QualifiedName}
}

func (e Entity) IsPublic() bool {
	return e.Visibility == Public
}

func (e Entity) IsCallable() bool {
	return e.Kind == KindFunction || e.Kind == KindMethod
}

// VisibilityFromName applies the leading-underscore convention shared by
// Python and JavaScript. Dunder methods count as private too.
func VisibilityFromName(name string) Visibility {
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, "#") {
		return Private
	}
	return Public
}

// EntityRef is a back-reference from a gap to the entity it was computed from.
type EntityRef struct {
	File          string `json:"file"`
	QualifiedName string `json:"qualified_name"`
}

func (r EntityRef) String() string {
	return r.File + "::" + r.QualifiedName
}
