package memory

import (
	"context"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
)

type SortMode string

const (
	SortRelevance SortMode = "relevance"
	SortDate      SortMode = "date"
	SortCombined  SortMode = "combined"
)

// SortModes returns every accepted sort mode
func SortModes() []SortMode {
	return []SortMode{SortRelevance, SortDate, SortCombined}
}

func (m SortMode) Valid() bool {
	switch m {
	case SortRelevance, SortDate, SortCombined:
		return true
	}
	return false
}

// ParseSortMode converts s into a SortMode. Unknown modes are a validation error.
func ParseSortMode(s string) (SortMode, error) {
	mode := SortMode(s)
	if !mode.Valid() {
		return "", goerr.New("invalid sort mode",
			goerr.V("sort", s),
			goerr.V("valid", SortModes()),
			goerr.T(model.ErrTagValidation))
	}
	return mode, nil
}

// Weights are the coefficients of the combined score
type Weights struct {
	Importance float64 `yaml:"importance"`
	Recency    float64 `yaml:"recency"`
	Relevance  float64 `yaml:"relevance"`
}

var (
	DefaultWeights = Weights{Importance: 0.2, Recency: 0.2, Relevance: 1.0}
	DefaultEpoch   = time.Date(2024, 11, 11, 19, 30, 0, 0, time.UTC)
)

const (
	DefaultDateLayout = "January 2 2006 (15:04)"
	DefaultSort       = SortCombined
	DefaultLimit      = 5
	NoMemoriesMessage = "No memories yet saved"
)

type scored struct {
	memory    *model.Memory
	relevance float64
	recency   float64
	combined  float64
}

// rank scores memories against query and orders them by mode, best first.
// Ties keep store order.
func (s *Store) rank(ctx context.Context, memories []*model.Memory, query []float32, mode SortMode) []scored {
	now := s.now()
	results := make([]scored, len(memories))
	for i, m := range memories {
		rel := dot(ctx, m, query)
		rec := recency(m.Timestamp, s.epoch, now)
		results[i] = scored{
			memory:    m,
			relevance: rel,
			recency:   rec,
			combined:  s.weights.Importance*m.Importance + s.weights.Recency*rec + s.weights.Relevance*rel,
		}
	}

	var less func(a, b scored) bool
	switch mode {
	case SortRelevance:
		less = func(a, b scored) bool { return a.relevance > b.relevance }
	case SortDate:
		less = func(a, b scored) bool { return a.memory.Timestamp.After(b.memory.Timestamp) }
	default:
		less = func(a, b scored) bool { return a.combined > b.combined }
	}

	sort.SliceStable(results, func(i, j int) bool {
		return less(results[i], results[j])
	})
	return results
}

// recency is the elapsed fraction of the span from epoch to now, clamped to [0, 1]
func recency(ts, epoch, now time.Time) float64 {
	span := now.Sub(epoch)
	if span <= 0 {
		return 0
	}
	r := float64(ts.Sub(epoch)) / float64(span)
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

// dot is the cosine similarity of unit vectors. Vectors of different length
// are compared over their common prefix.
func dot(ctx context.Context, m *model.Memory, query []float32) float64 {
	n := min(len(m.Embedding), len(query))
	if len(m.Embedding) != len(query) {
		logging.From(ctx).Warn("embedding dimension mismatch",
			"id", m.ID,
			"memory_dim", len(m.Embedding),
			"query_dim", len(query))
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(m.Embedding[i]) * float64(query[i])
	}
	return sum
}
