package tts

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/versevox/versevox/pkg/core"
)

// fakeEdgeServer speaks just enough of the neural-speech protocol: it
// expects the config and SSML messages, then replies with audio frames and
// a turn-end message.
func fakeEdgeServer(t *testing.T, audio [][]byte, captureSSML *string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("TrustedClientToken") == "" {
			t.Error("Expected TrustedClientToken query parameter")
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("Upgrade failed: %v", err)
		}
		defer conn.Close()

		// Config message.
		_, config, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("Read config failed: %v", err)
			return
		}
		if !strings.Contains(string(config), "Path:speech.config") {
			t.Errorf("Expected speech.config message, got %q", config)
		}

		// SSML message.
		_, ssml, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("Read ssml failed: %v", err)
			return
		}
		if !strings.Contains(string(ssml), "Path:ssml") {
			t.Errorf("Expected ssml message, got %q", ssml)
		}
		if captureSSML != nil {
			*captureSSML = string(ssml)
		}

		for _, chunk := range audio {
			header := []byte("Path:audio\r\n")
			frame := make([]byte, 2+len(header)+len(chunk))
			binary.BigEndian.PutUint16(frame[:2], uint16(len(header)))
			copy(frame[2:], header)
			copy(frame[2+len(header):], chunk)
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}

		conn.WriteMessage(websocket.TextMessage, []byte("Path:turn.end\r\n"))
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestEdge_Synthesize(t *testing.T) {
	server := fakeEdgeServer(t, [][]byte{[]byte("mp3-a"), []byte("mp3-b")}, nil)
	defer server.Close()

	p := NewEdge()
	p.wsURL = wsURL(server)

	result, err := p.Synthesize(context.Background(), "The LORD is my shepherd.", SynthesizeOptions{})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(result.Audio) != "mp3-amp3-b" {
		t.Errorf("Audio = %q, want concatenated chunks", result.Audio)
	}
	if result.Format != "mp3" {
		t.Errorf("Format = %q, want mp3", result.Format)
	}
}

func TestEdge_Synthesize_Defaults(t *testing.T) {
	var ssml string
	server := fakeEdgeServer(t, [][]byte{[]byte("x")}, &ssml)
	defer server.Close()

	p := NewEdge()
	p.wsURL = wsURL(server)

	if _, err := p.Synthesize(context.Background(), "hello", SynthesizeOptions{}); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if !strings.Contains(ssml, "en-US-JennyNeural") {
		t.Error("Expected default voice in SSML")
	}
	if !strings.Contains(ssml, "rate='+0%'") {
		t.Error("Expected default rate in SSML")
	}
	if !strings.Contains(ssml, "pitch='+0Hz'") {
		t.Error("Expected default pitch in SSML")
	}
}

func TestEdge_Synthesize_CustomVoiceAndRate(t *testing.T) {
	var ssml string
	server := fakeEdgeServer(t, [][]byte{[]byte("x")}, &ssml)
	defer server.Close()

	p := NewEdge()
	p.wsURL = wsURL(server)

	opts := SynthesizeOptions{Voice: "en-GB-SoniaNeural", Rate: "+20%", Pitch: "-5Hz"}
	if _, err := p.Synthesize(context.Background(), "hello", opts); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if !strings.Contains(ssml, "en-GB-SoniaNeural") {
		t.Error("Expected requested voice in SSML")
	}
	if !strings.Contains(ssml, "rate='+20%'") {
		t.Error("Expected requested rate in SSML")
	}
	if !strings.Contains(ssml, "pitch='-5Hz'") {
		t.Error("Expected requested pitch in SSML")
	}
}

func TestEdge_Synthesize_EscapesText(t *testing.T) {
	var ssml string
	server := fakeEdgeServer(t, [][]byte{[]byte("x")}, &ssml)
	defer server.Close()

	p := NewEdge()
	p.wsURL = wsURL(server)

	if _, err := p.Synthesize(context.Background(), `Mary & Joseph <went> to "Bethlehem"`, SynthesizeOptions{}); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if !strings.Contains(ssml, "Mary &amp; Joseph &lt;went&gt; to &quot;Bethlehem&quot;") {
		t.Errorf("Expected escaped text in SSML, got %q", ssml)
	}
}

func TestEdge_Synthesize_EmptyText(t *testing.T) {
	p := NewEdge()

	_, err := p.Synthesize(context.Background(), "   ", SynthesizeOptions{})
	coreErr, ok := err.(*core.Error)
	if !ok {
		t.Fatalf("Expected core.Error, got %v", err)
	}
	if coreErr.Type != core.ErrInvalidRequest {
		t.Errorf("Type = %v, want invalid_request_error", coreErr.Type)
	}
	if coreErr.Param != "text" {
		t.Errorf("Param = %q, want text", coreErr.Param)
	}
}

func TestAudioPayload(t *testing.T) {
	tests := []struct {
		name   string
		frame  []byte
		want   string
		wantOK bool
	}{
		{"too_short", []byte{0x00}, "", false},
		{"not_audio", frameWith("Path:metadata\r\n", "x"), "", false},
		{"audio", frameWith("Path:audio\r\n", "payload"), "payload", true},
		{"header_overruns", []byte{0xFF, 0xFF, 'x'}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := audioPayload(tt.frame)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && string(got) != tt.want {
				t.Errorf("payload = %q, want %q", got, tt.want)
			}
		})
	}
}

func frameWith(header, payload string) []byte {
	frame := make([]byte, 2+len(header)+len(payload))
	binary.BigEndian.PutUint16(frame[:2], uint16(len(header)))
	copy(frame[2:], header)
	copy(frame[2+len(header):], payload)
	return frame
}
