// Package rewrite plans and applies documentation edits as byte-range
// replacements on source files.
package rewrite

import (
	"bytes"
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jward/docgap/internal/model"
)

// Edit replaces src[Start:End] with Text. Start == End is an insertion.
type Edit struct {
	Entity model.EntityRef `json:"entity"`
	Start  int             `json:"start"`
	End    int             `json:"end"`
	Text   string          `json:"text"`
}

// OverlapError reports two edits touching the same bytes.
type OverlapError struct {
	A, B Edit
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("edits for %s [%d,%d) and %s [%d,%d) overlap",
		e.A.Entity, e.A.Start, e.A.End, e.B.Entity, e.B.Start, e.B.End)
}

// Plan computes the edit that installs doc as the documentation of e. An
// existing documentation block is replaced in place; otherwise the new
// block is inserted at the entity's insertion point. src must be the
// content the entity was extracted from.
func Plan(src []byte, e model.Entity, doc string) (Edit, error) {
	doc = strings.TrimSpace(model.CleanComment(doc))
	if doc == "" {
		return Edit{}, fmt.Errorf("plan %s: empty documentation", e.Ref())
	}
	loc := e.Location
	if loc.DocEndByte > len(src) || loc.BodyStartByte > len(src) || loc.DocStartByte < 0 || loc.BodyStartByte < 0 {
		return Edit{}, fmt.Errorf("plan %s: offsets outside source of %d bytes", e.Ref(), len(src))
	}

	edit := Edit{Entity: e.Ref()}
	switch e.Language {
	case "python":
		body := pythonDocstring(doc, loc.Indent)
		if loc.HasDocSpan() {
			edit.Start, edit.End, edit.Text = loc.DocStartByte, loc.DocEndByte, body
			return edit, nil
		}
		at := loc.BodyStartByte
		edit.Start, edit.End = at, at
		switch {
		case e.Kind == model.KindModule:
			edit.Text = body + "\n"
		case onlyWhitespaceBefore(src, at):
			edit.Text = body + "\n" + loc.Indent
		default:
			// body shares the header line
			edit.Text = "\n" + loc.Indent + body + "\n" + loc.Indent
		}
		return edit, nil

	case "go":
		return lineComment(edit, loc, goComment(doc, loc.Indent)), nil

	case "javascript", "typescript":
		return lineComment(edit, loc, jsDocComment(doc, loc.Indent)), nil
	}
	return Edit{}, fmt.Errorf("plan %s: unsupported language %q", e.Ref(), e.Language)
}

// lineComment replaces an existing comment block, or inserts comment lines
// above the declaration line.
func lineComment(edit Edit, loc model.Location, comment string) Edit {
	if loc.HasDocSpan() {
		edit.Start, edit.End, edit.Text = loc.DocStartByte, loc.DocEndByte, comment
		return edit
	}
	edit.Start, edit.End, edit.Text = loc.BodyStartByte, loc.BodyStartByte, comment+"\n"
	return edit
}

func onlyWhitespaceBefore(src []byte, off int) bool {
	start := bytes.LastIndexByte(src[:off], '\n') + 1
	return len(bytes.TrimLeft(src[start:off], " \t")) == 0
}

// pythonDocstring formats doc as a triple-quoted string whose continuation
// lines carry indent. The first line starts at the cursor.
func pythonDocstring(doc, indent string) string {
	doc = strings.ReplaceAll(doc, `"""`, `\"\"\"`)
	prefix := ""
	if strings.Contains(doc, `\`) {
		prefix = "r"
	}
	lines := strings.Split(doc, "\n")
	if len(lines) == 1 {
		return prefix + `"""` + lines[0] + `"""`
	}
	var b strings.Builder
	b.WriteString(prefix + `"""` + lines[0] + "\n")
	for _, l := range lines[1:] {
		if strings.TrimSpace(l) != "" {
			b.WriteString(indent + l)
		}
		b.WriteString("\n")
	}
	b.WriteString(indent + `"""`)
	return b.String()
}

func goComment(doc, indent string) string {
	lines := strings.Split(doc, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			lines[i] = indent + "//"
		} else {
			lines[i] = indent + "// " + l
		}
	}
	return strings.Join(lines, "\n")
}

func jsDocComment(doc, indent string) string {
	var b strings.Builder
	b.WriteString(indent + "/**\n")
	for _, l := range strings.Split(doc, "\n") {
		l = strings.ReplaceAll(l, "*/", "*\\/")
		if strings.TrimSpace(l) == "" {
			b.WriteString(indent + " *\n")
		} else {
			b.WriteString(indent + " * " + l + "\n")
		}
	}
	b.WriteString(indent + " */")
	return b.String()
}

// Apply applies non-overlapping edits to src and returns the new content.
// Edits are applied back to front so earlier offsets stay valid.
func Apply(src []byte, edits []Edit) ([]byte, error) {
	sorted := slices.Clone(edits)
	slices.SortStableFunc(sorted, func(a, b Edit) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End))
	})
	for i, e := range sorted {
		if e.Start < 0 || e.End < e.Start || e.End > len(src) {
			return nil, fmt.Errorf("edit for %s [%d,%d) outside source of %d bytes", e.Entity, e.Start, e.End, len(src))
		}
		if i > 0 {
			prev := sorted[i-1]
			if e.Start < prev.End || (e.Start == prev.Start && e.Start == e.End && prev.Start == prev.End) {
				return nil, &OverlapError{A: prev, B: e}
			}
		}
	}

	out := slices.Clone(src)
	for i := len(sorted) - 1; i >= 0; i-- {
		e := sorted[i]
		out = slices.Concat(out[:e.Start], []byte(e.Text), out[e.End:])
	}
	return out, nil
}

// WriteFile applies edits to the file at path, replacing it atomically and
// keeping its permissions.
func WriteFile(path string, edits []Edit) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", path, err)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", path, err)
	}
	out, err := Apply(src, edits)
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("rewrite %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rewrite %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return fmt.Errorf("rewrite %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rewrite %s: %w", path, err)
	}
	return nil
}
