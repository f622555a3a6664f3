package repository

import (
	"context"

	"github.com/m-mizutani/kestrel/pkg/model"
)

// MemoryRepository persists the whole memory collection. The collection is
// always read and written as one set: ReplaceMemories swaps the durable set
// for the given one, and a missing durable set loads as empty.
type MemoryRepository interface {
	// LoadMemories returns every stored memory in store order
	LoadMemories(ctx context.Context) ([]*model.Memory, error)

	// ReplaceMemories rewrites the durable set with memories
	ReplaceMemories(ctx context.Context, memories []*model.Memory) error
}
