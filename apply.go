package docgap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/jward/docgap/internal/model"
	"github.com/jward/docgap/internal/rewrite"
	"github.com/jward/docgap/internal/store"
)

// ErrWriteDisabled is returned by Apply on an engine built without
// WithWrite(true).
var ErrWriteDisabled = errors.New("docgap: writing files is disabled")

// ApplySet returns the generations that may be written back: successful
// ones only, at most one per entity (the most confident, earliest gap on
// ties), in report order.
func (r *Report) ApplySet() []Generation {
	best := make(map[model.EntityRef]int)
	var order []model.EntityRef
	for i, g := range r.Generations {
		if !g.OK() || g.Text == "" {
			continue
		}
		j, seen := best[g.Gap.Entity]
		if !seen {
			order = append(order, g.Gap.Entity)
			best[g.Gap.Entity] = i
			continue
		}
		if g.Confidence > r.Generations[j].Confidence {
			best[g.Gap.Entity] = i
		}
	}
	out := make([]Generation, 0, len(order))
	for _, ref := range order {
		out = append(out, r.Generations[best[ref]])
	}
	return out
}

// AppliedFile lists the edits written to one file.
type AppliedFile struct {
	Path  string         `json:"path"`
	Edits []rewrite.Edit `json:"edits"`
}

// Apply writes the report's apply set into the source files. A file that
// changed since it was analyzed is left alone and reported in the joined
// error, as is any entity whose edit cannot be planned. Other files are
// still written.
func (e *Engine) Apply(ctx context.Context, r *Report) ([]AppliedFile, error) {
	if !e.write {
		return nil, ErrWriteDisabled
	}

	byRef := make(map[model.EntityRef]model.Entity, len(r.Entities))
	for _, ent := range r.Entities {
		byRef[ent.Ref()] = ent
	}
	perFile := make(map[string][]Generation)
	for _, g := range r.ApplySet() {
		perFile[g.Gap.Entity.File] = append(perFile[g.Gap.Entity.File], g)
	}
	files := make([]string, 0, len(perFile))
	for f := range perFile {
		files = append(files, f)
	}
	slices.Sort(files)

	var (
		applied []AppliedFile
		errs    []error
	)
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		path := filepath.Join(r.Root, filepath.FromSlash(rel))
		edits, err := e.planFile(ctx, path, perFile[rel], byRef)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rel, err))
			e.logger.Warn("documentation not written", "path", rel, "err", err)
		}
		if len(edits) == 0 {
			continue
		}
		if err := rewrite.WriteFile(path, edits); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rel, err))
			e.logger.Warn("documentation not written", "path", rel, "err", err)
			continue
		}
		e.logger.Info("documentation written", "path", rel, "edits", len(edits))
		applied = append(applied, AppliedFile{Path: rel, Edits: edits})
	}
	return applied, errors.Join(errs...)
}

// planFile plans the edits of one file. Byte offsets come from the cached
// analysis, so the file must still match it.
func (e *Engine) planFile(ctx context.Context, path string, gens []Generation, byRef map[model.EntityRef]model.Entity) ([]rewrite.Edit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rec, err := e.store.FileByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Fingerprint != store.Fingerprint(src) {
		return nil, errors.New("file changed since analysis")
	}

	var (
		edits []rewrite.Edit
		errs  []error
	)
	for _, g := range gens {
		ent, ok := byRef[g.Gap.Entity]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: entity not in report", g.Gap.Entity))
			continue
		}
		edit, err := rewrite.Plan(src, ent, g.Text)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.Gap.Entity, err))
			continue
		}
		edits = append(edits, edit)
	}
	return edits, errors.Join(errs...)
}
