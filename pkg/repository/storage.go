package repository

import (
	"context"
	"encoding/json"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/adapter"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
)

// DefaultStorageKey is the object name used when none is configured
const DefaultStorageKey = "memories.json"

// Storage keeps the collection as one JSON object. An object becomes
// visible only when its upload completes.
type Storage struct {
	storage adapter.Storage
	key     string
}

func NewStorage(storage adapter.Storage, key string) *Storage {
	if key == "" {
		key = DefaultStorageKey
	}
	return &Storage{storage: storage, key: key}
}

func (r *Storage) LoadMemories(ctx context.Context) ([]*model.Memory, error) {
	reader, err := r.storage.Get(ctx, r.key)
	if err != nil {
		if goerr.HasTag(err, model.ErrTagNotFound) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to open memory object", goerr.V("key", r.key))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read memory object", goerr.V("key", r.key))
	}

	var memories []*model.Memory
	if len(data) > 0 {
		if err := json.Unmarshal(data, &memories); err != nil {
			return nil, goerr.Wrap(err, "failed to parse memory object", goerr.V("key", r.key))
		}
	}

	logging.From(ctx).Debug("loaded memories from storage", "key", r.key, "count", len(memories))
	return memories, nil
}

func (r *Storage) ReplaceMemories(ctx context.Context, memories []*model.Memory) error {
	if memories == nil {
		memories = []*model.Memory{}
	}

	data, err := json.Marshal(memories)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal memories")
	}

	// Cancelling the writer's context before Close aborts the upload and
	// leaves the previous object in place.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer, err := r.storage.Put(wctx, r.key)
	if err != nil {
		return goerr.Wrap(err, "failed to open memory object for write", goerr.V("key", r.key))
	}

	if _, err := writer.Write(data); err != nil {
		cancel()
		writer.Close()
		return goerr.Wrap(err, "failed to write memory object", goerr.V("key", r.key))
	}

	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to commit memory object", goerr.V("key", r.key))
	}

	logging.From(ctx).Debug("saved memories to storage", "key", r.key, "count", len(memories))
	return nil
}
