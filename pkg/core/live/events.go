package live

import (
	"github.com/versevox/versevox/pkg/core/types"
)

// Event is the interface for all turn controller events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// ConversationStartedEvent is emitted when the turn loop begins.
type ConversationStartedEvent struct {
	Mode types.Mode `json:"mode"`
}

func (e *ConversationStartedEvent) EventType() string { return "conversation.started" }

// ConversationEndedEvent is emitted when the loop returns to idle for good.
type ConversationEndedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *ConversationEndedEvent) EventType() string { return "conversation.ended" }

// StateChangedEvent is emitted on every controller state transition.
type StateChangedEvent struct {
	From TurnState `json:"from"`
	To   TurnState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// UtteranceCommittedEvent is emitted when VAD finalizes an utterance.
type UtteranceCommittedEvent struct {
	Bytes      int     `json:"bytes"`
	DurationMs int     `json:"duration_ms"`
	Peak       float64 `json:"peak"`
}

func (e *UtteranceCommittedEvent) EventType() string { return "utterance.committed" }

// UtteranceDiscardedEvent is emitted when an utterance falls below the
// minimum viable floor and is dropped without transcription.
type UtteranceDiscardedEvent struct {
	Bytes int `json:"bytes"`
}

func (e *UtteranceDiscardedEvent) EventType() string { return "utterance.discarded" }

// UserTurnEvent is emitted when user input (spoken or typed) is finalized.
type UserTurnEvent struct {
	Text string `json:"text"`
}

func (e *UserTurnEvent) EventType() string { return "turn.user" }

// AssistantTurnEvent is emitted when the answer for a turn is ready.
type AssistantTurnEvent struct {
	Text  string       `json:"text"`
	Table *types.Table `json:"table,omitempty"`
}

func (e *AssistantTurnEvent) EventType() string { return "turn.assistant" }

// PlaybackFinishedEvent is emitted when spoken output finished playing.
type PlaybackFinishedEvent struct {
	DurationMs int `json:"duration_ms"`
}

func (e *PlaybackFinishedEvent) EventType() string { return "playback.finished" }

// ErrorEvent is emitted when a turn aborts on an upstream failure. The loop
// resumes listening; no automatic retry is performed.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorEvent) EventType() string { return "error" }
