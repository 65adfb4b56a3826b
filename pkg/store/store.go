// Package store defines persistence for retrieval corpora. A corpus is a
// set of sources, each holding pre-chunked, pre-embedded passages.
package store

import (
	"context"
	"errors"
	"math"

	"github.com/versevox/versevox/pkg/core/types"
)

// ErrSourceNotFound is returned when a source id does not exist.
var ErrSourceNotFound = errors.New("source not found")

// ChunkStore is the retrieval persistence contract. Search is always scoped
// to a single source; cross-source ranking never happens at this layer.
type ChunkStore interface {
	// ListSources returns all sources ordered by name.
	ListSources(ctx context.Context) ([]types.Source, error)

	// GetSource returns one source or ErrSourceNotFound.
	GetSource(ctx context.Context, id string) (*types.Source, error)

	// Search returns the k chunks of the given source most similar to the
	// query vector, best first.
	Search(ctx context.Context, sourceID string, query []float32, k int) ([]types.ScoredChunk, error)

	// UpsertSource creates or replaces a source record.
	UpsertSource(ctx context.Context, source types.Source) error

	// InsertChunks adds embedded chunks to their sources.
	InsertChunks(ctx context.Context, chunks []types.Chunk) error
}

// Cosine returns the cosine similarity of two vectors, or 0 when either
// vector is empty, zero, or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
