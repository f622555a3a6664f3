package adapter

import (
	"context"
	"math"

	"github.com/m-mizutani/kestrel/pkg/model"
)

// Embedder turns text into a vector. Vectors are unit length so that the
// dot product of two of them is their cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, text string, mode model.EmbedMode) ([]float32, error)
}

// Completer produces the next assistant turn for a conversation
type Completer interface {
	Complete(ctx context.Context, system string, messages []model.Message) (string, error)
}

// normalize scales v to unit length in place. A zero vector is returned as is.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
