package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
)

// File stores the collection as one JSON document on local disk
type File struct {
	path string
}

// NewFile returns a repository backed by the JSON file at path. The file is
// created on the first write.
func NewFile(path string) *File {
	return &File{path: path}
}

func (r *File) LoadMemories(ctx context.Context) ([]*model.Memory, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read memory file", goerr.V("path", r.path))
	}

	if len(data) == 0 {
		return nil, nil
	}

	var memories []*model.Memory
	if err := json.Unmarshal(data, &memories); err != nil {
		return nil, goerr.Wrap(err, "failed to parse memory file", goerr.V("path", r.path))
	}

	logging.From(ctx).Debug("loaded memories", "path", r.path, "count", len(memories))
	return memories, nil
}

// ReplaceMemories writes the set to a temporary file next to the target and
// renames it into place, so a crash never leaves a half-written file.
func (r *File) ReplaceMemories(ctx context.Context, memories []*model.Memory) error {
	if memories == nil {
		memories = []*model.Memory{}
	}

	data, err := json.Marshal(memories)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal memories")
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create memory directory", goerr.V("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, ".memories-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary file", goerr.V("dir", dir))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return goerr.Wrap(err, "failed to write temporary file", goerr.V("path", tmpName))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return goerr.Wrap(err, "failed to sync temporary file", goerr.V("path", tmpName))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return goerr.Wrap(err, "failed to close temporary file", goerr.V("path", tmpName))
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return goerr.Wrap(err, "failed to replace memory file", goerr.V("path", r.path))
	}

	logging.From(ctx).Debug("saved memories", "path", r.path, "count", len(memories))
	return nil
}
