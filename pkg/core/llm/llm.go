// Package llm defines the text-generation contract used by the retrieval
// and comparison engines.
package llm

import "context"

// Client generates a completion for a prompt. Implementations must be safe
// for concurrent use; the comparison engine fans out across sources.
type Client interface {
	// Generate produces a completion. system may be empty.
	Generate(ctx context.Context, system, prompt string) (string, error)
}
