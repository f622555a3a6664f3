package model

import (
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Memory represents a note the agent saved for itself. It is created by the
// memory store only and never mutated after that.
type Memory struct {
	ID         MemoryID           `json:"id" firestore:"id"`
	Content    string             `json:"content" firestore:"content"`
	Timestamp  time.Time          `json:"timestamp" firestore:"timestamp"`
	Embedding  firestore.Vector32 `json:"embedding" firestore:"embedding"`
	Importance float64            `json:"importance" firestore:"importance"`
}

// EmbedMode selects how the embedding provider treats the input text
type EmbedMode int

const (
	EmbedModeDocument EmbedMode = iota
	EmbedModeQuery
)

func (m EmbedMode) String() string {
	switch m {
	case EmbedModeDocument:
		return "document"
	case EmbedModeQuery:
		return "query"
	default:
		return "unknown"
	}
}
