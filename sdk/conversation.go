package versevox

import (
	"bytes"
	"context"
	"io"

	"github.com/versevox/versevox/pkg/core"
	"github.com/versevox/versevox/pkg/core/types"
)

// Conversation binds a Client session to the turn controller's upstream
// contract: transcribe, answer, synthesize, end.
type Conversation struct {
	client *Client
	mode   types.Mode

	voice string
	rate  string
	pitch string
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithVoice overrides the server's default synthesis voice.
func WithVoice(voice string) ConversationOption {
	return func(c *Conversation) { c.voice = voice }
}

// WithProsody overrides the synthesis rate and pitch (e.g. "+10%", "-5Hz").
func WithProsody(rate, pitch string) ConversationOption {
	return func(c *Conversation) { c.rate = rate; c.pitch = pitch }
}

// NewConversation starts a conversation over an open session. The session's
// mode decides whether questions go to the query or the compare engine, so
// call Client.SelectSources first.
func NewConversation(client *Client, mode types.Mode, opts ...ConversationOption) (*Conversation, error) {
	if client == nil {
		return nil, core.NewInvalidRequestError("client must not be nil")
	}
	switch mode {
	case types.ModeSingle, types.ModeCompare:
	default:
		return nil, core.NewInvalidRequestErrorWithParam("mode must be \"single\" or \"compare\"", "mode")
	}
	c := &Conversation{client: client, mode: mode}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Transcribe converts captured audio to text. empty reports that the server
// heard nothing usable.
func (c *Conversation) Transcribe(ctx context.Context, audio []byte) (string, bool, error) {
	resp, err := c.client.Transcribe(ctx, bytes.NewReader(audio), "audio/wav")
	if err != nil {
		return "", false, err
	}
	return resp.Text, resp.Empty, nil
}

// Answer routes the question through the engine matching the session mode.
func (c *Conversation) Answer(ctx context.Context, question string) (string, *types.Table, error) {
	if c.mode == types.ModeCompare {
		resp, err := c.client.Compare(ctx, question, nil, 0)
		if err != nil {
			return "", nil, err
		}
		return resp.SpokenSummary, resp.Table, nil
	}

	resp, err := c.client.Query(ctx, question, 0)
	if err != nil {
		return "", nil, err
	}
	return resp.Answer, nil, nil
}

// Synthesize converts answer text into an MP3 stream.
func (c *Conversation) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	return c.client.Synthesize(ctx, types.SynthesizeRequest{
		Text:  text,
		Voice: c.voice,
		Rate:  c.rate,
		Pitch: c.pitch,
	})
}

// End closes the underlying session.
func (c *Conversation) End(ctx context.Context) error {
	return c.client.EndSession(ctx)
}
