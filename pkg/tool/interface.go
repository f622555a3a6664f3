package tool

import (
	"context"

	"github.com/m-mizutani/kestrel/pkg/memory"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/policy"
	"github.com/m-mizutani/kestrel/pkg/sandbox"
)

// MemoryStore is the long-term memory the memory_* tags operate on
type MemoryStore interface {
	Save(ctx context.Context, content string, importance float64) (*model.Memory, error)
	Delete(ctx context.Context, id model.MemoryID) (bool, error)
	Load(ctx context.Context, query string, mode memory.SortMode, limit int) (string, error)
}

// Reader is a read-only sandboxed tree, such as the agent's own source
type Reader interface {
	Read(ctx context.Context, path string) (string, error)
	List(ctx context.Context, path string) (string, error)
}

// Writer is a sandboxed tree the agent may also write to
type Writer interface {
	Reader
	Write(ctx context.Context, path, content string, mode sandbox.WriteMode) error
}

// PromptEditor edits the core prompts
type PromptEditor interface {
	Update(ctx context.Context, name, content, mode string) error
}

// Policy may veto a tag before it runs
type Policy interface {
	Evaluate(ctx context.Context, input policy.Input) ([]string, error)
}
