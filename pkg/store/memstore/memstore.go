// Package memstore is an in-memory ChunkStore used for tests and small
// single-process deployments.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/versevox/versevox/pkg/core/types"
	"github.com/versevox/versevox/pkg/store"
)

// Store holds sources and chunks in process memory.
type Store struct {
	mu      sync.RWMutex
	sources map[string]types.Source
	chunks  map[string][]types.Chunk // keyed by source id
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sources: make(map[string]types.Source),
		chunks:  make(map[string][]types.Chunk),
	}
}

// ListSources returns all sources ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]types.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Source, 0, len(s.sources))
	for _, src := range s.sources {
		src.ChunkCount = len(s.chunks[src.ID])
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetSource returns one source or store.ErrSourceNotFound.
func (s *Store) GetSource(ctx context.Context, id string) (*types.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.sources[id]
	if !ok {
		return nil, store.ErrSourceNotFound
	}
	src.ChunkCount = len(s.chunks[id])
	return &src, nil
}

// Search ranks the source's chunks by cosine similarity to the query.
func (s *Store) Search(ctx context.Context, sourceID string, query []float32, k int) ([]types.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sources[sourceID]; !ok {
		return nil, store.ErrSourceNotFound
	}

	chunks := s.chunks[sourceID]
	scored := make([]types.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		scored = append(scored, types.ScoredChunk{
			Chunk: c,
			Score: store.Cosine(query, c.Embedding),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// UpsertSource creates or replaces a source record.
func (s *Store) UpsertSource(ctx context.Context, source types.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[source.ID] = source
	return nil
}

// InsertChunks adds embedded chunks to their sources.
func (s *Store) InsertChunks(ctx context.Context, chunks []types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if _, ok := s.sources[c.SourceID]; !ok {
			return store.ErrSourceNotFound
		}
		s.chunks[c.SourceID] = append(s.chunks[c.SourceID], c)
	}
	return nil
}
