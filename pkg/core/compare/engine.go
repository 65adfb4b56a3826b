// Package compare implements side-by-side question answering across 2-4
// sources, splitting one model response into a spoken summary and a
// structured table.
package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/versevox/versevox/pkg/core"
	"github.com/versevox/versevox/pkg/core/embed"
	"github.com/versevox/versevox/pkg/core/llm"
	"github.com/versevox/versevox/pkg/core/types"
	"github.com/versevox/versevox/pkg/store"
)

const (
	// DefaultK is the per-source retrieval depth when the caller passes 0.
	// Kept small because the goal is same-passage alignment, not broad
	// context.
	DefaultK = 1
	// MaxK bounds per-source retrieval depth.
	MaxK = 3

	// MinSources and MaxSources bound the comparison width.
	MinSources = 2
	MaxSources = 4

	// EmptyCell marks a table cell the model produced no rendering for.
	EmptyCell = "—"

	spokenMarker = "[SPOKEN]"
	tableMarker  = "[TABLE]"
)

// Engine runs compare-mode questions.
type Engine struct {
	embedder embed.Embedder
	chunks   store.ChunkStore
	llm      llm.Client
	logger   *slog.Logger
}

// New creates a comparison engine.
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

// Compare retrieves the question's passages from each source independently,
// asks the model for a two-segment response, and parses it. The returned
// table, when present, has exactly one column per requested source in
// request order. A missing or malformed table segment degrades to
// spoken-only output, never an error.
func (e *Engine) Compare(ctx context.Context, question string, sourceIDs []string, k int) (*types.ComparisonResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, core.NewInvalidRequestErrorWithParam("question must not be empty", "question")
	}
	if len(sourceIDs) < MinSources || len(sourceIDs) > MaxSources {
		return nil, core.NewInvalidRequestErrorWithParam(
			fmt.Sprintf("source_ids must contain %d to %d ids", MinSources, MaxSources), "source_ids")
	}
	seen := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		if seen[id] {
			return nil, core.NewInvalidRequestErrorWithParam(
				fmt.Sprintf("duplicate source id %q", id), "source_ids")
		}
		seen[id] = true
	}
	if k == 0 {
		k = DefaultK
	}
	if k < 1 || k > MaxK {
		return nil, core.NewInvalidRequestErrorWithParam(fmt.Sprintf("k must be between 1 and %d", MaxK), "k")
	}

	sources := make([]*types.Source, len(sourceIDs))
	for i, id := range sourceIDs {
		src, err := e.chunks.GetSource(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrSourceNotFound) {
				return nil, core.NewNotFoundError(fmt.Sprintf("source %q not found", id))
			}
			return nil, err
		}
		sources[i] = src
	}

	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	// Per-source retrieval fans out; results land at the source's request
	// index so ordering never depends on completion order.
	passages := make([][]types.ScoredChunk, len(sourceIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range sourceIDs {
		g.Go(func() error {
			hits, err := e.chunks.Search(gctx, id, vector, k)
			if err != nil {
				return err
			}
			passages[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &types.ComparisonResult{Question: question}
	for i, src := range sources {
		passage := ""
		if len(passages[i]) > 0 {
			passage = passages[i][0].Chunk.Content
		}
		result.Passages = append(result.Passages, types.SourcePassage{
			SourceID: src.ID,
			Name:     src.Name,
			Passage:  passage,
		})
	}

	raw, err := e.llm.Generate(ctx, "", buildPrompt(question, sources, passages))
	if err != nil {
		return nil, err
	}

	spoken, table := parseResponse(raw, sourceIDs)
	if table == nil {
		e.logger.Warn("comparison table segment missing or malformed, spoken-only fallback",
			"sources", sourceIDs)
	}
	result.SpokenSummary = spoken
	result.Table = table
	return result, nil
}

// buildPrompt assembles the dual-segment comparison prompt. The marker and
// table grammar here must stay in lockstep with parseResponse.
func buildPrompt(question string, sources []*types.Source, passages [][]types.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("You are comparing how different sources render the same material.\n\n")
	b.WriteString("PASSAGES:\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "\nSource %q (%s):\n", src.ID, src.Name)
		if len(passages[i]) == 0 {
			b.WriteString("(no passage found)\n")
			continue
		}
		for _, hit := range passages[i] {
			if hit.Chunk.Reference != "" {
				fmt.Fprintf(&b, "[%s] %s\n", hit.Chunk.Reference, hit.Chunk.Content)
			} else {
				fmt.Fprintf(&b, "%s\n", hit.Chunk.Content)
			}
		}
	}

	ids := make([]string, len(sources))
	for i, src := range sources {
		ids[i] = src.ID
	}

	b.WriteString("\nINSTRUCTIONS:\n")
	b.WriteString("- Use ONLY the passages above.\n")
	fmt.Fprintf(&b, "- Respond with exactly two segments in this order.\n")
	fmt.Fprintf(&b, "- First segment: a line containing only %s, then a summary of the key differences in 2-3 sentences, suitable for reading aloud.\n", spokenMarker)
	fmt.Fprintf(&b, "- Second segment: a line containing only %s, then a pipe-delimited table with header row \"reference | %s\", one row per distinct passage reference, each cell holding that source's rendering.\n",
		tableMarker, strings.Join(ids, " | "))
	fmt.Fprintf(&b, "- If a source has no rendering for a reference, write %s in that cell.\n", EmptyCell)

	fmt.Fprintf(&b, "\nQUESTION: %s\n", question)
	return b.String()
}
