package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/m-mizutani/kestrel/pkg/model"
)

// Memory keeps the collection in process. It is used by tests and by the
// "memory" store type, which forgets everything on exit.
type Memory struct {
	mu       sync.Mutex
	memories []*model.Memory
	writes   int
}

// NewMemory returns an in-process repository seeded with memories
func NewMemory(memories ...*model.Memory) *Memory {
	return &Memory{memories: slices.Clone(memories)}
}

func (r *Memory) LoadMemories(ctx context.Context) ([]*model.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.memories), nil
}

func (r *Memory) ReplaceMemories(ctx context.Context, memories []*model.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memories = slices.Clone(memories)
	r.writes++
	return nil
}

// Writes returns how many times the set was replaced
func (r *Memory) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}
