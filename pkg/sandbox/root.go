// Package sandbox gives the agent file access confined to fixed directories.
package sandbox

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
)

// Root is a base directory that every accessed path must stay inside
type Root struct {
	base string
}

// NewRoot returns a Root for dir. The base is resolved once, symlinks
// included, so later containment checks compare resolved paths.
func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve sandbox root", goerr.V("dir", dir))
	}

	base, err := evalPath(abs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve sandbox root", goerr.V("dir", dir))
	}

	return &Root{base: base}, nil
}

// Base returns the resolved base directory
func (r *Root) Base() string {
	return r.base
}

// Resolve maps a path relative to the base to an absolute path. The check is
// done on the final path, after ".." and symlinks are resolved. The base
// itself is accepted only when allowBase is set.
func (r *Root) Resolve(path string, allowBase bool) (string, error) {
	joined := filepath.Join(r.base, path)

	resolved, err := evalPath(joined)
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve path", goerr.V("path", path))
	}

	rel, err := filepath.Rel(r.base, resolved)
	if err != nil {
		return "", goerr.Wrap(err, "path escapes sandbox", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	}

	if rel == "." {
		if allowBase {
			return resolved, nil
		}
		return "", goerr.New("path escapes sandbox", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", goerr.New("path escapes sandbox", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	}

	return resolved, nil
}

// Read returns the whole content of a regular file under the root
func (r *Root) Read(ctx context.Context, path string) (string, error) {
	target, err := r.Resolve(path, false)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", goerr.Wrap(err, "file not found", goerr.V("path", path), goerr.T(model.ErrTagNotFound))
		}
		return "", goerr.Wrap(err, "failed to stat file", goerr.V("path", path))
	}
	if !info.Mode().IsRegular() {
		return "", goerr.New("not a file", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read file", goerr.V("path", path))
	}

	logging.From(ctx).Debug("read file", "path", path, "size", len(data))
	return string(data), nil
}

// List returns the immediate entries of a directory as slash-separated paths
// relative to the base, sorted and joined by newlines. An empty path lists
// the base itself.
func (r *Root) List(ctx context.Context, path string) (string, error) {
	target, err := r.Resolve(path, true)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", goerr.Wrap(err, "directory not found", goerr.V("path", path), goerr.T(model.ErrTagNotFound))
		}
		return "", goerr.Wrap(err, "failed to stat directory", goerr.V("path", path))
	}
	if !info.IsDir() {
		return "", goerr.New("not a directory", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read directory", goerr.V("path", path))
	}

	relDir, err := filepath.Rel(r.base, target)
	if err != nil {
		return "", goerr.Wrap(err, "failed to relativize directory", goerr.V("path", path))
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, filepath.ToSlash(filepath.Join(relDir, entry.Name())))
	}
	sort.Strings(names)

	logging.From(ctx).Debug("list directory", "path", path, "entries", len(names))
	return strings.Join(names, "\n"), nil
}

// maxLinkHops bounds how many dangling symlinks evalPath follows
const maxLinkHops = 40

// evalPath resolves symlinks in the longest existing prefix of p and appends
// the components that do not exist yet. A dangling symlink is followed to its
// target, since creating a file through it lands at the target.
func evalPath(p string) (string, error) {
	var rest []string
	cur := filepath.Clean(p)
	hops := 0

	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		if info, lerr := os.Lstat(cur); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			hops++
			if hops > maxLinkHops {
				return "", goerr.New("too many levels of symbolic links", goerr.V("path", p))
			}
			target, err := os.Readlink(cur)
			if err != nil {
				return "", goerr.Wrap(err, "failed to read symlink", goerr.V("path", cur))
			}
			if !filepath.IsAbs(target) {
				dir, err := filepath.EvalSymlinks(filepath.Dir(cur))
				if err != nil {
					return "", err
				}
				target = filepath.Join(dir, target)
			}
			cur = filepath.Clean(target)
			continue
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return filepath.Clean(p), nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}
