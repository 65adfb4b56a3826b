// Package embed defines the text-embedding contract backing vector
// retrieval.
package embed

import "context"

// Embedder converts text into dense vectors. Query and document embeddings
// are separate because some providers condition on task type.
type Embedder interface {
	// EmbedQuery embeds a retrieval query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds a batch of corpus passages.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}
