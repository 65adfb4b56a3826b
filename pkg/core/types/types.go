// Package types defines the shared data model for the conversational core.
package types

import "time"

// Mode selects how a session answers questions.
type Mode string

const (
	// ModeSingle answers from exactly one source.
	ModeSingle Mode = "single"
	// ModeCompare answers from 2-4 sources side by side.
	ModeCompare Mode = "compare"
)

// Source is a named, independently indexed text corpus.
// It is read-only from the conversation path; ingestion owns writes.
type Source struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ChunkCount int    `json:"chunk_count"`
}

// Chunk is one indexed passage of a source.
type Chunk struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Reference string    `json:"reference,omitempty"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}

// ScoredChunk is a retrieval hit with its similarity score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// TurnRecord is one entry of a session's in-memory transcript.
// Never persisted beyond the session.
type TurnRecord struct {
	Role  string    `json:"role"` // "user" or "assistant"
	Text  string    `json:"text"`
	Table *Table    `json:"table,omitempty"`
	At    time.Time `json:"at"`
}

// Table is the structured side-by-side rendering of a comparison.
// Columns always match the session's selected source ids in selection order.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    []TableRow `json:"rows"`
}

// TableRow holds one cell per column, keyed by passage reference.
// A cell with no match carries the explicit empty marker, never a gap.
type TableRow struct {
	Reference string   `json:"reference"`
	Cells     []string `json:"cells"`
}

// ComparisonResult is the full outcome of a compare-mode question.
type ComparisonResult struct {
	Question      string          `json:"question"`
	Passages      []SourcePassage `json:"passages"`
	SpokenSummary string          `json:"spoken_summary"`
	Table         *Table          `json:"table,omitempty"`
}

// SourcePassage pairs a source with the passage retrieved for it.
type SourcePassage struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	Passage  string `json:"passage"`
}

// QueryResult is the outcome of a single-mode question.
type QueryResult struct {
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	NoContent  bool          `json:"no_content,omitempty"`
	ChunksUsed int           `json:"chunks_used"`
	Sources    []ScoredChunk `json:"sources,omitempty"`
}
