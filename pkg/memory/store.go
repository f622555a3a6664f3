// Package memory holds the agent's long-term notes and ranks them against a
// query by relevance, recency and importance.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/adapter"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/repository"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
)

// Store is the only writer of the persisted memory set. Every mutation
// rewrites the whole set through the repository.
type Store struct {
	mu       sync.Mutex
	repo     repository.MemoryRepository
	embedder adapter.Embedder
	memories []*model.Memory

	weights    Weights
	epoch      time.Time
	dateLayout string
	now        func() time.Time
}

type Option func(*Store)

func WithWeights(w Weights) Option {
	return func(s *Store) {
		s.weights = w
	}
}

// WithEpoch sets the time at which recency is zero
func WithEpoch(epoch time.Time) Option {
	return func(s *Store) {
		s.epoch = epoch
	}
}

// WithDateLayout sets the time layout used for the date attribute of
// rendered memories
func WithDateLayout(layout string) Option {
	return func(s *Store) {
		s.dateLayout = layout
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New loads the full memory set from repo
func New(ctx context.Context, repo repository.MemoryRepository, embedder adapter.Embedder, opts ...Option) (*Store, error) {
	s := &Store{
		repo:       repo,
		embedder:   embedder,
		weights:    DefaultWeights,
		epoch:      DefaultEpoch,
		dateLayout: DefaultDateLayout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	memories, err := repo.LoadMemories(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load memories")
	}
	s.memories = memories

	logging.From(ctx).Debug("memory store ready", "count", len(memories))
	return s, nil
}

// Len returns the number of memories held
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memories)
}

// Memories returns a snapshot of the held memories in store order
func (s *Store) Memories() []*model.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.memories)
}

// Save embeds content and persists it as a new memory. If persisting fails
// the memory is not kept.
func (s *Store) Save(ctx context.Context, content string, importance float64) (*model.Memory, error) {
	embedding, err := s.embedder.Embed(ctx, content, model.EmbedModeDocument)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed memory", goerr.T(model.ErrTagProvider))
	}

	mem := &model.Memory{
		ID:         model.NewMemoryID(),
		Content:    content,
		Timestamp:  s.now(),
		Embedding:  embedding,
		Importance: importance,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(slices.Clone(s.memories), mem)
	if err := s.repo.ReplaceMemories(ctx, next); err != nil {
		return nil, goerr.Wrap(err, "failed to persist memories", goerr.V("id", mem.ID))
	}
	s.memories = next

	logging.From(ctx).Debug("memory saved", "id", mem.ID, "importance", importance)
	return mem, nil
}

// Delete removes the first memory with id. It reports false, with no error,
// when no memory matches.
func (s *Store) Delete(ctx context.Context, id model.MemoryID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.memories, func(m *model.Memory) bool {
		return m.ID == id
	})
	if idx < 0 {
		logging.From(ctx).Debug("memory to delete not found", "id", id)
		return false, nil
	}

	next := slices.Delete(slices.Clone(s.memories), idx, idx+1)
	if err := s.repo.ReplaceMemories(ctx, next); err != nil {
		return false, goerr.Wrap(err, "failed to persist memories", goerr.V("id", id))
	}
	s.memories = next

	logging.From(ctx).Debug("memory deleted", "id", id)
	return true, nil
}

// Load ranks memories against query and renders the best limit of them. An
// empty store renders NoMemoriesMessage without calling the embedder.
func (s *Store) Load(ctx context.Context, query string, mode SortMode, limit int) (string, error) {
	if !mode.Valid() {
		return "", goerr.New("invalid sort mode",
			goerr.V("sort", mode),
			goerr.V("valid", SortModes()),
			goerr.T(model.ErrTagValidation))
	}
	if limit <= 0 {
		return "", goerr.New("limit must be positive",
			goerr.V("limit", limit),
			goerr.T(model.ErrTagValidation))
	}

	memories := s.Memories()
	if len(memories) == 0 {
		return NoMemoriesMessage, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query, model.EmbedModeQuery)
	if err != nil {
		return "", goerr.Wrap(err, "failed to embed query", goerr.T(model.ErrTagProvider))
	}

	ranked := s.rank(ctx, memories, queryVec, mode)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	logging.From(ctx).Debug("memories loaded",
		"sort", mode,
		"limit", limit,
		"returned", len(ranked),
		"total", len(memories))

	return s.render(ranked), nil
}
