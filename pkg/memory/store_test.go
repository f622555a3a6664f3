package memory_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kestrel/pkg/adapter"
	"github.com/m-mizutani/kestrel/pkg/memory"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/repository"
)

// mockEmbedder maps text to a vector over a tiny keyword vocabulary
type mockEmbedder struct {
	adapter.Embedder
	embedFunc func(ctx context.Context, text string, mode model.EmbedMode) ([]float32, error)
	calls     int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string, mode model.EmbedMode) ([]float32, error) {
	m.calls++
	if m.embedFunc != nil {
		return m.embedFunc(ctx, text, mode)
	}
	return keywordVector(text), nil
}

var vocabulary = []string{"tea", "coffee", "deadline", "cat"}

func keywordVector(text string) []float32 {
	v := make([]float32, len(vocabulary))
	for i, w := range vocabulary {
		if strings.Contains(text, w) {
			v[i] = 1
		}
	}
	return v
}

type failingRepo struct {
	repository.MemoryRepository
	err error
}

func (r *failingRepo) LoadMemories(ctx context.Context) ([]*model.Memory, error) {
	return nil, nil
}

func (r *failingRepo) ReplaceMemories(ctx context.Context, memories []*model.Memory) error {
	return r.err
}

func newStore(t *testing.T, embedder *mockEmbedder, opts ...memory.Option) *memory.Store {
	store, err := memory.New(context.Background(), repository.NewMemory(), embedder, opts...)
	gt.NoError(t, err)
	return store
}

func TestSaveThenLoad(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, &mockEmbedder{})

	_, err := store.Save(ctx, "user likes tea", 0.5)
	gt.NoError(t, err)

	out, err := store.Load(ctx, "tea", memory.SortRelevance, 1)
	gt.NoError(t, err)
	gt.S(t, out).Contains("user likes tea")
	gt.S(t, out).Contains(`<system type="memory_load">`)
	gt.S(t, out).Contains(`relevance="1.000"`)
	gt.S(t, out).Contains(`importance="0.5"`)
}

func TestSavePersists(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	store, err := memory.New(ctx, repo, &mockEmbedder{})
	gt.NoError(t, err)

	mem, err := store.Save(ctx, "note", 0.1)
	gt.NoError(t, err)

	reloaded, err := memory.New(ctx, repo, &mockEmbedder{})
	gt.NoError(t, err)
	gt.Equal(t, reloaded.Len(), 1)
	gt.Equal(t, reloaded.Memories()[0].ID, mem.ID)
}

func TestSaveRollsBackOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	store, err := memory.New(ctx, &failingRepo{err: goerr.New("disk full")}, &mockEmbedder{})
	gt.NoError(t, err)

	_, err = store.Save(ctx, "note", 0.1)
	gt.Error(t, err)
	gt.Equal(t, store.Len(), 0)
}

func TestSaveEmbedFailure(t *testing.T) {
	embedder := &mockEmbedder{
		embedFunc: func(ctx context.Context, text string, mode model.EmbedMode) ([]float32, error) {
			return nil, goerr.New("quota exceeded")
		},
	}
	store := newStore(t, embedder)

	_, err := store.Save(context.Background(), "note", 0.1)
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagProvider))
	gt.Equal(t, store.Len(), 0)
}

func TestEmbedModes(t *testing.T) {
	var modes []model.EmbedMode
	embedder := &mockEmbedder{
		embedFunc: func(ctx context.Context, text string, mode model.EmbedMode) ([]float32, error) {
			modes = append(modes, mode)
			return keywordVector(text), nil
		},
	}
	store := newStore(t, embedder)
	ctx := context.Background()

	_, err := store.Save(ctx, "tea", 1)
	gt.NoError(t, err)
	_, err = store.Load(ctx, "tea", memory.SortCombined, 1)
	gt.NoError(t, err)

	gt.Equal(t, modes, []model.EmbedMode{model.EmbedModeDocument, model.EmbedModeQuery})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, &mockEmbedder{})

	mem, err := store.Save(ctx, "first", 0.1)
	gt.NoError(t, err)
	_, err = store.Save(ctx, "second", 0.1)
	gt.NoError(t, err)

	t.Run("nonexistent id leaves store unchanged", func(t *testing.T) {
		found, err := store.Delete(ctx, "no-such-id")
		gt.NoError(t, err)
		gt.False(t, found)
		gt.Equal(t, store.Len(), 2)
	})

	t.Run("existing id is removed", func(t *testing.T) {
		found, err := store.Delete(ctx, mem.ID)
		gt.NoError(t, err)
		gt.True(t, found)
		gt.Equal(t, store.Len(), 1)
		gt.Equal(t, store.Memories()[0].Content, "second")
	})
}

func TestLoadEmptyStore(t *testing.T) {
	embedder := &mockEmbedder{}
	store := newStore(t, embedder)

	out, err := store.Load(context.Background(), "anything", memory.SortCombined, 5)
	gt.NoError(t, err)
	gt.Equal(t, out, memory.NoMemoriesMessage)
	gt.Equal(t, embedder.calls, 0)
}

func TestLoadValidation(t *testing.T) {
	store := newStore(t, &mockEmbedder{})

	t.Run("unknown sort mode", func(t *testing.T) {
		_, err := store.Load(context.Background(), "q", memory.SortMode("alphabetical"), 5)
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, model.ErrTagValidation))
	})

	t.Run("non-positive limit", func(t *testing.T) {
		_, err := store.Load(context.Background(), "q", memory.SortDate, 0)
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, model.ErrTagValidation))
	})

	t.Run("parse sort mode", func(t *testing.T) {
		mode, err := memory.ParseSortMode("date")
		gt.NoError(t, err)
		gt.Equal(t, mode, memory.SortDate)

		_, err = memory.ParseSortMode("random")
		gt.True(t, goerr.HasTag(err, model.ErrTagValidation))
	})
}

// steppingClock advances by one hour on every call
func steppingClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Hour)
		return now
	}
}

func TestLoadDateSort(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, &mockEmbedder{},
		memory.WithClock(steppingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))))

	for _, content := range []string{"oldest", "middle tea", "newest"} {
		_, err := store.Save(ctx, content, 0.5)
		gt.NoError(t, err)
	}

	out, err := store.Load(ctx, "tea", memory.SortDate, 10)
	gt.NoError(t, err)

	newest := strings.Index(out, "newest")
	middle := strings.Index(out, "middle tea")
	oldest := strings.Index(out, "oldest")
	gt.True(t, newest < middle)
	gt.True(t, middle < oldest)
}

func TestLoadLimit(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, &mockEmbedder{})
	for _, content := range []string{"tea", "coffee", "cat"} {
		_, err := store.Save(ctx, content, 0.5)
		gt.NoError(t, err)
	}

	out, err := store.Load(ctx, "coffee", memory.SortRelevance, 1)
	gt.NoError(t, err)
	gt.Equal(t, strings.Count(out, "<memory "), 1)
	gt.S(t, out).Contains("coffee")

	out, err = store.Load(ctx, "coffee", memory.SortRelevance, 100)
	gt.NoError(t, err)
	gt.Equal(t, strings.Count(out, "<memory "), 3)
}

func TestLoadCombined(t *testing.T) {
	ctx := context.Background()
	clock := steppingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	frozen := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	build := func() *memory.Store {
		store := newStore(t, &mockEmbedder{}, memory.WithClock(clock))
		for _, c := range []struct {
			content    string
			importance float64
		}{
			{"tea ceremony notes", 0.1},
			{"coffee order", 1.0},
			{"tea and coffee", 0.3},
			{"cat food brand", 0.9},
		} {
			_, err := store.Save(ctx, c.content, c.importance)
			gt.NoError(t, err)
		}
		return store
	}

	store := build()
	memory.WithClock(func() time.Time { return frozen })(store)

	first, err := store.Load(ctx, "tea", memory.SortCombined, 4)
	gt.NoError(t, err)
	second, err := store.Load(ctx, "tea", memory.SortCombined, 4)
	gt.NoError(t, err)
	gt.Equal(t, first, second)

	// relevance dominates: both tea notes rank above the others
	gt.True(t, strings.Index(first, "tea ceremony notes") < strings.Index(first, "coffee order"))
	gt.True(t, strings.Index(first, "tea and coffee") < strings.Index(first, "cat food brand"))
	// importance breaks the tie between the unrelated notes
	gt.True(t, strings.Index(first, "coffee order") < strings.Index(first, "cat food brand"))
}

func TestWeights(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, &mockEmbedder{},
		memory.WithWeights(memory.Weights{Importance: 1}),
		memory.WithDateLayout("2006-01-02"),
		memory.WithClock(func() time.Time { return time.Date(2025, 2, 3, 4, 5, 0, 0, time.UTC) }))

	_, err := store.Save(ctx, "tea", 0.1)
	gt.NoError(t, err)
	_, err = store.Save(ctx, "cat", 0.9)
	gt.NoError(t, err)

	out, err := store.Load(ctx, "tea", memory.SortCombined, 2)
	gt.NoError(t, err)
	gt.True(t, strings.Index(out, "cat") < strings.Index(out, "tea\n"))
	gt.S(t, out).Contains(`date="2025-02-03"`)
}
