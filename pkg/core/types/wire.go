package types

import "time"

// Wire types for the gateway HTTP surface. The sdk client and the handlers
// share these so request/response shapes cannot drift.

// CreateSessionResponse is returned by POST /v1/sessions.
type CreateSessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ListSourcesResponse is returned by GET /v1/sources.
type ListSourcesResponse struct {
	Sources []Source `json:"sources"`
}

// SelectSourcesRequest sets the active mode and selection for a session.
type SelectSourcesRequest struct {
	Mode      Mode     `json:"mode"`
	SourceIDs []string `json:"source_ids"`
}

// OKResponse is the generic acknowledgement body.
type OKResponse struct {
	OK bool `json:"ok"`
}

// QueryRequest asks a question in single mode.
type QueryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

// QueryResponse carries the grounded answer.
type QueryResponse struct {
	Answer     string        `json:"answer"`
	NoContent  bool          `json:"no_content,omitempty"`
	ChunksUsed int           `json:"chunks_used"`
	Sources    []ScoredChunk `json:"sources,omitempty"`
}

// CompareRequest asks a question across the session's compare selection.
// SourceIDs may override the session selection for this call; it is validated
// against the same 2-4 bound either way.
type CompareRequest struct {
	Question  string   `json:"question"`
	SourceIDs []string `json:"source_ids,omitempty"`
	K         int      `json:"k,omitempty"`
}

// CompareResponse carries the spoken summary and, when parseable, the table.
type CompareResponse struct {
	SpokenSummary string          `json:"spoken_summary"`
	Table         *Table          `json:"table,omitempty"`
	Passages      []SourcePassage `json:"passages,omitempty"`
}

// TranscribeResponse carries transcription output. Empty reports that the
// audio was below the minimum viable utterance floor and no provider call
// was made.
type TranscribeResponse struct {
	Text  string `json:"text,omitempty"`
	Empty bool   `json:"empty,omitempty"`
}

// SynthesizeRequest converts text to audio.
type SynthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
	Rate  string `json:"rate,omitempty"`
	Pitch string `json:"pitch,omitempty"`
}

// Error is the wire form of a core.Error inside the error envelope.
type Error struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Param      string `json:"param,omitempty"`
	Code       string `json:"code,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	RetryAfter *int   `json:"retry_after,omitempty"`
}
