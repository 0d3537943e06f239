package docgap

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// skipDirs are pruned from the walk regardless of the exclude patterns.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

func prunedDir(name string) bool {
	return strings.HasPrefix(name, ".") || skipDirs[name]
}

// listFiles returns the selected files under root as sorted, slash-separated
// paths relative to root. Unreadable entries below root are passed to onErr
// and left out; only an unreadable root fails the listing.
func (e *Engine) listFiles(ctx context.Context, root string, onErr func(rel string, err error)) ([]string, error) {
	var (
		rels   []string
		listed bool
	)
	if e.cfg.GitListing {
		var err error
		rels, err = gitListFiles(ctx, root)
		if err != nil {
			e.logger.Debug("git listing unavailable, walking", "root", root, "err", err)
		} else {
			listed = true
		}
	}
	if !listed {
		var err error
		rels, err = walkListFiles(ctx, e.dirFS(root), func(rel string, err error) {
			e.logger.Warn("skipping unreadable path", "root", root, "path", rel, "err", err)
			if onErr != nil {
				onErr(rel, err)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	var out []string
	for _, rel := range rels {
		if e.selected(rel) {
			out = append(out, rel)
		}
	}
	slices.Sort(out)
	e.logger.Debug("files selected", "root", root, "listed", len(rels), "selected", len(out))
	return out, nil
}

// selected reports whether rel matches an include pattern and no exclude
// pattern.
func (e *Engine) selected(rel string) bool {
	return matchAny(e.cfg.Include, rel) && !matchAny(e.cfg.Exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files under root.
func gitListFiles(ctx context.Context, root string) ([]string, error) {
	// --cached: tracked files, --others: untracked files,
	// --exclude-standard: respect .gitignore, .git/info/exclude, global excludes.
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || hasPrunedDir(line) {
			continue
		}
		// Tracked files deleted from the work tree are still listed.
		info, err := os.Lstat(filepath.Join(root, filepath.FromSlash(line)))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		paths = append(paths, line)
	}
	return paths, nil
}

func hasPrunedDir(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if prunedDir(dir) {
			return true
		}
	}
	return false
}

// walkListFiles discovers files by walking fsys from its root. Skips hidden
// directories, node_modules, vendor and __pycache__. An entry that cannot be
// read is reported to onErr and skipped, along with everything below it.
func walkListFiles(ctx context.Context, fsys fs.FS, onErr func(rel string, err error)) ([]string, error) {
	var paths []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == "." {
				return err
			}
			onErr(path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != "." && prunedDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}
