// Package prompt manages the agent's editable core prompt files.
package prompt

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
)

// DefaultNames are the core prompts the agent may edit
var DefaultNames = []string{"self", "user", "xml_docs", "main", "morning", "reflection"}

// ModeAppend adds content on a new line. Any other mode overwrites.
const ModeAppend = "append"

// CorePrompts stores each prompt as <dir>/<name>.txt
type CorePrompts struct {
	dir   string
	names []string
}

type Option func(*CorePrompts)

// WithNames replaces the set of editable prompt names
func WithNames(names ...string) Option {
	return func(c *CorePrompts) {
		c.names = slices.Clone(names)
	}
}

func New(dir string, opts ...Option) *CorePrompts {
	c := &CorePrompts{
		dir:   dir,
		names: slices.Clone(DefaultNames),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Names returns the editable prompt names
func (c *CorePrompts) Names() []string {
	return slices.Clone(c.names)
}

func (c *CorePrompts) path(name string) (string, error) {
	if !slices.Contains(c.names, name) {
		return "", goerr.New("invalid core prompt name",
			goerr.V("prompt", name),
			goerr.V("valid", c.names),
			goerr.T(model.ErrTagValidation))
	}
	return filepath.Join(c.dir, name+".txt"), nil
}

// Update appends to or overwrites the named prompt
func (c *CorePrompts) Update(ctx context.Context, name, content, mode string) error {
	path, err := c.path(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create prompt directory", goerr.V("dir", c.dir))
	}

	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	data := content
	if mode == "" || mode == ModeAppend {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		data = "\n" + content
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return goerr.Wrap(err, "failed to open core prompt", goerr.V("path", path))
	}
	defer f.Close()

	if _, err := f.WriteString(data); err != nil {
		return goerr.Wrap(err, "failed to write core prompt", goerr.V("path", path))
	}

	logging.From(ctx).Debug("core prompt updated", "prompt", name, "mode", mode, "bytes", len(content))
	return nil
}

// Read returns the named prompt. A prompt never written reads as empty.
func (c *CorePrompts) Read(ctx context.Context, name string) (string, error) {
	path, err := c.path(name)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", goerr.Wrap(err, "failed to read core prompt", goerr.V("path", path))
	}
	return string(data), nil
}
