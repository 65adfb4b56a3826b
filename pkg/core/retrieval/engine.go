// Package retrieval implements single-source grounded question answering.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/versevox/versevox/pkg/core"
	"github.com/versevox/versevox/pkg/core/embed"
	"github.com/versevox/versevox/pkg/core/llm"
	"github.com/versevox/versevox/pkg/core/types"
	"github.com/versevox/versevox/pkg/store"
)

const (
	// DefaultK is the retrieval depth used when the caller passes 0.
	DefaultK = 3
	// MaxK bounds retrieval depth.
	MaxK = 10

	// NoContentAnswer is returned when the source has no indexed chunks.
	NoContentAnswer = "No relevant information found in the knowledge base."
)

// Engine answers questions from exactly one source. Chunks from other
// sources never enter the prompt.
type Engine struct {
	embedder embed.Embedder
	chunks   store.ChunkStore
	llm      llm.Client
	logger   *slog.Logger
}

// New creates a query engine.
func New(embedder embed.Embedder, chunks store.ChunkStore, client llm.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder: embedder,
		chunks:   chunks,
		llm:      client,
		logger:   logger,
	}
}

// Query embeds the question, retrieves the top k chunks of the source, and
// generates a grounded answer. A source with nothing indexed yields a
// NoContent result without calling the model.
func (e *Engine) Query(ctx context.Context, sourceID, question string, k int) (*types.QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, core.NewInvalidRequestErrorWithParam("question must not be empty", "question")
	}
	if k == 0 {
		k = DefaultK
	}
	if k < 1 || k > MaxK {
		return nil, core.NewInvalidRequestErrorWithParam(fmt.Sprintf("k must be between 1 and %d", MaxK), "k")
	}

	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	hits, err := e.chunks.Search(ctx, sourceID, vector, k)
	if err != nil {
		if errors.Is(err, store.ErrSourceNotFound) {
			return nil, core.NewNotFoundError(fmt.Sprintf("source %q not found", sourceID))
		}
		return nil, err
	}

	if len(hits) == 0 {
		e.logger.Info("no indexed content for source", "source_id", sourceID)
		return &types.QueryResult{
			Question:  question,
			Answer:    NoContentAnswer,
			NoContent: true,
		}, nil
	}

	answer, err := e.llm.Generate(ctx, "", buildPrompt(question, hits))
	if err != nil {
		return nil, err
	}

	e.logger.Info("query answered",
		"source_id", sourceID,
		"chunks_used", len(hits),
	)

	return &types.QueryResult{
		Question:   question,
		Answer:     answer,
		ChunksUsed: len(hits),
		Sources:    hits,
	}, nil
}

// buildPrompt assembles the grounding prompt. The model may use only the
// retrieved context; anything else is out of bounds.
func buildPrompt(question string, hits []types.ScoredChunk) string {
	passages := make([]string, len(hits))
	for i, hit := range hits {
		passages[i] = hit.Chunk.Content
	}
	context := strings.Join(passages, "\n\n---\n\n")

	return fmt.Sprintf(`You are a helpful assistant that answers questions based on the provided context.

INSTRUCTIONS:
- Use ONLY the information from the context below to answer the question
- If the answer is not in the context, say "I don't have enough information to answer that question."
- Be concise and accurate
- Cite specific parts of the context when relevant

CONTEXT:
%s

QUESTION: %s

ANSWER:`, context, question)
}
