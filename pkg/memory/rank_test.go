package memory

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kestrel/pkg/model"
)

func TestRecency(t *testing.T) {
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := epoch.Add(100 * time.Hour)

	testCases := []struct {
		name string
		ts   time.Time
		now  time.Time
		want float64
	}{
		{"at epoch", epoch, now, 0},
		{"halfway", epoch.Add(50 * time.Hour), now, 0.5},
		{"at now", now, now, 1},
		{"before epoch clamps", epoch.Add(-time.Hour), now, 0},
		{"after now clamps", now.Add(time.Hour), now, 1},
		{"now before epoch", epoch, epoch.Add(-time.Hour), 0},
		{"now equals epoch", epoch, epoch, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, recency(tc.ts, epoch, tc.now), tc.want)
		})
	}
}

func TestDot(t *testing.T) {
	ctx := context.Background()

	t.Run("same length", func(t *testing.T) {
		m := &model.Memory{Embedding: []float32{0.5, 0.5}}
		gt.Equal(t, dot(ctx, m, []float32{1, 1}), 1.0)
	})

	t.Run("mismatched length uses common prefix", func(t *testing.T) {
		m := &model.Memory{Embedding: []float32{1, 2, 3}}
		gt.Equal(t, dot(ctx, m, []float32{1, 1}), 3.0)
	})

	t.Run("missing embedding", func(t *testing.T) {
		m := &model.Memory{}
		gt.Equal(t, dot(ctx, m, []float32{1, 1}), 0.0)
	})
}

func TestRender(t *testing.T) {
	s := &Store{dateLayout: DefaultDateLayout}
	ts := time.Date(2025, 3, 4, 9, 7, 0, 0, time.UTC)
	out := s.render([]scored{
		{memory: &model.Memory{ID: "a", Content: "first", Timestamp: ts, Importance: 0.25}, relevance: 0.12345},
		{memory: &model.Memory{ID: "b", Content: "second", Timestamp: ts, Importance: 1}, relevance: 0},
	})

	want := "<system type=\"memory_load\">\n" +
		"<memory id=\"a\" date=\"March 4 2025 (09:07)\" relevance=\"0.123\" importance=\"0.25\">\n\tfirst\n</memory>\n" +
		"<memory id=\"b\" date=\"March 4 2025 (09:07)\" relevance=\"0.000\" importance=\"1\">\n\tsecond\n</memory>\n" +
		"</system>"
	gt.Equal(t, out, want)
}
