package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/versevox/versevox/pkg/core/types"
)

// Conversation is the set of remote collaborators for one conversation,
// already scoped to a session token. The controller never sees the token
// itself; ending the conversation invalidates it.
type Conversation interface {
	// Transcribe converts a finished utterance to text. empty reports that
	// the audio was below the viable floor and no text was produced.
	Transcribe(ctx context.Context, audio []byte) (text string, empty bool, err error)

	// Answer produces the response for a user turn under the session's
	// current mode and source selection. table is non-nil only in compare
	// mode with a parseable table segment.
	Answer(ctx context.Context, question string) (spoken string, table *types.Table, err error)

	// Synthesize converts response text into a playable audio stream.
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)

	// End invalidates the session token.
	End(ctx context.Context) error
}

type inputKind int

const (
	inputListen inputKind = iota
	inputText
)

type input struct {
	kind inputKind
	text string
}

// Controller sequences one conversation through the
// listen -> transcribe -> answer -> speak loop.
//
// All stage work runs on a single goroutine fed by an input queue, so at
// most one of listening, processing, or speaking is ever active. A listen
// request arriving while a turn is in flight waits in the queue instead of
// being rejected. A forced End transitions to idle from any state: it
// cancels in-flight work, releases the capture and playback resources, and
// invalidates the session token; results of calls already in flight are
// discarded rather than applied.
type Controller struct {
	config TurnConfig
	conv   Conversation
	source AudioSource
	sink   AudioSink

	mu         sync.RWMutex
	state      TurnState
	transcript []types.TurnRecord

	inputs  chan input
	events  chan Event
	done    chan struct{}
	closed  atomic.Bool
	looping atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a turn controller. source may be nil for a
// text-only conversation; sink may be nil to skip spoken playback.
func NewController(config TurnConfig, conv Conversation, source AudioSource, sink AudioSink) *Controller {
	return &Controller{
		config: config,
		conv:   conv,
		source: source,
		sink:   sink,
		state:  StateIdle,
		inputs: make(chan input, 16),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Events returns the channel of controller events.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns the current controller state.
func (c *Controller) State() TurnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Transcript returns a copy of the in-memory conversation transcript.
func (c *Controller) Transcript() []types.TurnRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.TurnRecord, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Start begins the controller loop. It does not open the microphone;
// call Listen or SendText to drive turns.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		return errors.New("controller already started")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.run()
	return nil
}

// Listen requests entry into the listening state and keeps the voice loop
// running after each turn. If a turn is in flight the request is queued,
// not rejected.
func (c *Controller) Listen() error {
	if c.source == nil {
		return errors.New("no audio source configured")
	}
	c.looping.Store(true)
	return c.enqueue(input{kind: inputListen})
}

// SendText submits typed input as a complete user turn, bypassing capture
// and VAD.
func (c *Controller) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("text must not be empty")
	}
	return c.enqueue(input{kind: inputText, text: text})
}

// End forces the conversation to idle from any state. The microphone is
// released, in-flight synthesis playback is cancelled, and the session
// token is invalidated. Results of calls still in flight are discarded.
func (c *Controller) End() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.looping.Store(false)
	if c.cancel != nil {
		c.cancel()
	}

	// The controller context is already cancelled; token invalidation gets
	// its own deadline.
	endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.conv.End(endCtx)
}

// Done returns a channel closed when the controller loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) enqueue(in input) error {
	if c.closed.Load() {
		return errors.New("conversation ended")
	}
	select {
	case c.inputs <- in:
		return nil
	case <-c.done:
		return errors.New("conversation ended")
	}
}

func (c *Controller) run() {
	defer func() {
		c.setState(StateIdle)
		c.emit(&ConversationEndedEvent{Reason: "ended"})
		close(c.done)
		close(c.events)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case in := <-c.inputs:
			switch in.kind {
			case inputListen:
				c.runVoiceTurn()
			case inputText:
				c.runTextTurn(in.text)
			}
			if c.ctx.Err() != nil {
				return
			}
		}
	}
}

// runVoiceTurn executes one full listen -> process -> speak cycle.
func (c *Controller) runVoiceTurn() {
	// A listen request dequeued after a forced end is stale, not a fault.
	if c.ctx.Err() != nil {
		return
	}
	utt, err := c.capture()
	if err != nil {
		// Capture failure is fatal to the conversation: the user must
		// restart after fixing the device or permission problem.
		c.emit(&ErrorEvent{Code: "capture_error", Message: err.Error()})
		c.looping.Store(false)
		return
	}
	if utt == nil {
		// Below the viable floor, or forced end mid-capture.
		c.relisten()
		return
	}

	c.setState(StateProcessing)

	text, empty, err := c.conv.Transcribe(c.ctx, utt.Data)
	utt.Data = nil // discard audio immediately after hand-off
	if err != nil {
		c.turnAborted("transcribe_error", err)
		return
	}
	if empty || strings.TrimSpace(text) == "" {
		c.relisten()
		return
	}

	c.answerAndSpeak(text)
	c.relisten()
}

// runTextTurn executes process -> speak for typed input.
func (c *Controller) runTextTurn(text string) {
	c.setState(StateProcessing)
	c.answerAndSpeak(text)
	c.setState(StateIdle)
}

func (c *Controller) answerAndSpeak(question string) {
	if !c.apply(types.TurnRecord{Role: "user", Text: question, At: time.Now()}) {
		return
	}
	c.emit(&UserTurnEvent{Text: question})

	spoken, table, err := c.conv.Answer(c.ctx, question)
	if err != nil {
		c.turnAborted("answer_error", err)
		return
	}
	if !c.apply(types.TurnRecord{Role: "assistant", Text: spoken, Table: table, At: time.Now()}) {
		return
	}
	c.emit(&AssistantTurnEvent{Text: spoken, Table: table})

	c.speak(spoken)
}

// capture runs the listening state: acquire the source, feed frames through
// VAD, and finalize the utterance. The source is released on every path.
// A nil, nil return means the utterance was discarded or the capture was
// cancelled; the caller decides whether to re-listen.
func (c *Controller) capture() (*Utterance, error) {
	c.setState(StateListening)

	if err := c.source.Start(c.ctx); err != nil {
		if c.ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("acquire audio source: %w", err)
	}
	defer c.source.Stop()

	vad := NewEnergyVAD(c.config.VAD, c.config.Audio)
	buf := NewUtteranceBuffer(c.config.Audio, c.config.MaxUtteranceDuration)

	for {
		frame, err := c.source.ReadFrame(c.ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if c.ctx.Err() != nil {
				return nil, nil
			}
			return nil, fmt.Errorf("read audio frame: %w", err)
		}

		buf.Write(frame)
		if vad.Process(frame) == VADCommit {
			break
		}
		if buf.Duration() >= c.config.MaxUtteranceDuration {
			break
		}
	}

	utt := buf.Take()
	c.emit(&UtteranceCommittedEvent{
		Bytes:      len(utt.Data),
		DurationMs: int(utt.Duration / time.Millisecond),
		Peak:       utt.Peak,
	})

	if len(utt.Data) < c.config.MinUtteranceBytes {
		c.emit(&UtteranceDiscardedEvent{Bytes: len(utt.Data)})
		return nil, nil
	}
	return &utt, nil
}

// speak runs the speaking state: synthesize the text and play it to
// completion. The playback handle is scoped to this call.
func (c *Controller) speak(text string) {
	if c.sink == nil || strings.TrimSpace(text) == "" {
		return
	}

	c.setState(StateSpeaking)

	stream, err := c.conv.Synthesize(c.ctx, text)
	if err != nil {
		c.turnAborted("synthesize_error", err)
		return
	}
	defer stream.Close()

	start := time.Now()
	if err := c.sink.Play(c.ctx, stream); err != nil && c.ctx.Err() == nil {
		c.emit(&ErrorEvent{Code: "playback_error", Message: err.Error()})
		return
	}
	c.emit(&PlaybackFinishedEvent{DurationMs: int(time.Since(start) / time.Millisecond)})
}

// turnAborted surfaces an upstream failure and leaves the loop to resume
// listening. No automatic retry.
func (c *Controller) turnAborted(code string, err error) {
	if c.ctx.Err() != nil {
		return
	}
	c.emit(&ErrorEvent{Code: code, Message: err.Error()})
	c.relisten()
}

// relisten queues the next listening turn while the voice loop is active.
func (c *Controller) relisten() {
	if !c.looping.Load() || c.closed.Load() {
		c.setState(StateIdle)
		return
	}
	select {
	case c.inputs <- input{kind: inputListen}:
	default:
		// A listen request is already queued.
	}
}

// apply appends a transcript record unless the conversation has ended, in
// which case in-flight results are discarded.
func (c *Controller) apply(rec types.TurnRecord) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	c.transcript = append(c.transcript, rec)
	c.mu.Unlock()
	return true
}

func (c *Controller) setState(next TurnState) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()

	if prev != next {
		c.emit(&StateChangedEvent{From: prev, To: next})
	}
}

func (c *Controller) emit(event Event) {
	select {
	case c.events <- event:
	case <-c.done:
	default:
		// Channel full, drop event.
	}
}
