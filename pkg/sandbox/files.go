package sandbox

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
)

// WriteMode selects how Files.Write treats an existing file
type WriteMode string

const (
	WriteOverwrite WriteMode = "overwrite"
	WriteAppend    WriteMode = "append"
)

// Files is the agent's own scratch space: it can read, list and write
type Files struct {
	root *Root
}

// NewFiles creates the directory if needed and returns a Files rooted at it
func NewFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create files directory", goerr.V("dir", dir))
	}

	root, err := NewRoot(dir)
	if err != nil {
		return nil, err
	}
	return &Files{root: root}, nil
}

func (f *Files) Read(ctx context.Context, path string) (string, error) {
	return f.root.Read(ctx, path)
}

func (f *Files) List(ctx context.Context, path string) (string, error) {
	return f.root.List(ctx, path)
}

// Write stores content at path, creating parent directories. WriteOverwrite
// replaces the file; any other mode appends to it.
func (f *Files) Write(ctx context.Context, path, content string, mode WriteMode) error {
	target, err := f.root.Resolve(path, false)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create parent directory", goerr.V("path", path))
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if mode == WriteOverwrite {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	file, err := os.OpenFile(target, flag, 0o644)
	if err != nil {
		return goerr.Wrap(err, "failed to open file", goerr.V("path", path))
	}

	if _, err := file.WriteString(content); err != nil {
		file.Close()
		return goerr.Wrap(err, "failed to write file", goerr.V("path", path))
	}
	if err := file.Close(); err != nil {
		return goerr.Wrap(err, "failed to close file", goerr.V("path", path))
	}

	logging.From(ctx).Debug("write file", "path", path, "mode", mode, "size", len(content))
	return nil
}
