package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/versevox/versevox/pkg/core"
)

const (
	edgeWSURL        = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"
	edgeTrustedToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"
	edgeOutputFormat = "audio-24khz-48kbitrate-mono-mp3"
	audioFormat      = "mp3"

	// DefaultVoice is used when no voice is requested.
	DefaultVoice = "en-US-JennyNeural"

	defaultRate  = "+0%"
	defaultPitch = "+0Hz"
)

// EdgeProvider implements the TTS Provider interface against the Edge
// neural-speech WebSocket service.
type EdgeProvider struct {
	wsURL  string
	dialer *websocket.Dialer
}

// NewEdge creates an Edge TTS provider.
func NewEdge() *EdgeProvider {
	return &EdgeProvider{
		wsURL:  edgeWSURL,
		dialer: websocket.DefaultDialer,
	}
}

// Name returns the provider identifier.
func (p *EdgeProvider) Name() string {
	return "edge"
}

// Synthesize converts text to a complete MP3 buffer.
func (p *EdgeProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	stream, err := p.SynthesizeStream(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var buf bytes.Buffer
	for chunk := range stream.Chunks() {
		buf.Write(chunk)
	}
	stream.Close()
	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &Synthesis{Audio: buf.Bytes(), Format: audioFormat}, nil
}

// SynthesizeStream opens a synthesis turn and streams audio frames until the
// service signals turn end.
func (p *EdgeProvider) SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("text must not be empty", "text")
	}

	connURL := fmt.Sprintf("%s?TrustedClientToken=%s&ConnectionId=%s",
		p.wsURL, edgeTrustedToken, connectionID())

	conn, _, err := p.dialer.DialContext(ctx, connURL, nil)
	if err != nil {
		return nil, core.NewProviderError("edge", fmt.Errorf("websocket connect: %w", err))
	}

	if err := conn.WriteMessage(websocket.TextMessage, configMessage()); err != nil {
		conn.Close()
		return nil, core.NewProviderError("edge", fmt.Errorf("send config: %w", err))
	}
	if err := conn.WriteMessage(websocket.TextMessage, ssmlMessage(text, opts)); err != nil {
		conn.Close()
		return nil, core.NewProviderError("edge", fmt.Errorf("send ssml: %w", err))
	}

	stream := NewSynthesisStream()

	go func() {
		defer stream.FinishSending()
		defer conn.Close()

		for {
			select {
			case <-ctx.Done():
				stream.SetError(ctx.Err())
				return
			case <-stream.done:
				return
			default:
			}

			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return
				}
				stream.SetError(core.NewProviderError("edge", err))
				return
			}

			switch msgType {
			case websocket.BinaryMessage:
				payload, ok := audioPayload(data)
				if !ok {
					continue
				}
				if !stream.Send(payload) {
					return
				}
			case websocket.TextMessage:
				if strings.Contains(string(data), "Path:turn.end") {
					return
				}
			}
		}
	}()

	return stream, nil
}

// audioPayload extracts the MP3 payload from a binary frame. The frame
// starts with a big-endian header length, then the text header, then audio.
func audioPayload(data []byte) ([]byte, bool) {
	if len(data) < 2 {
		return nil, false
	}
	headerLen := int(binary.BigEndian.Uint16(data[:2]))
	if len(data) < 2+headerLen {
		return nil, false
	}
	header := string(data[2 : 2+headerLen])
	if !strings.Contains(header, "Path:audio") {
		return nil, false
	}
	return data[2+headerLen:], true
}

func configMessage() []byte {
	return []byte("X-Timestamp:" + timestamp() + "\r\n" +
		"Content-Type:application/json; charset=utf-8\r\n" +
		"Path:speech.config\r\n\r\n" +
		`{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},"outputFormat":"` + edgeOutputFormat + `"}}}}`)
}

func ssmlMessage(text string, opts SynthesizeOptions) []byte {
	voice := opts.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	rate := opts.Rate
	if rate == "" {
		rate = defaultRate
	}
	pitch := opts.Pitch
	if pitch == "" {
		pitch = defaultPitch
	}

	ssml := fmt.Sprintf(
		`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>`+
			`<voice name='%s'><prosody pitch='%s' rate='%s' volume='+0%%'>%s</prosody></voice></speak>`,
		voice, pitch, rate, escapeText(text))

	return []byte("X-RequestId:" + connectionID() + "\r\n" +
		"Content-Type:application/ssml+xml\r\n" +
		"X-Timestamp:" + timestamp() + "\r\n" +
		"Path:ssml\r\n\r\n" +
		ssml)
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

func escapeText(text string) string {
	return ssmlEscaper.Replace(text)
}

func connectionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func timestamp() string {
	return time.Now().UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}
