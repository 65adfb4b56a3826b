package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/versevox/versevox/pkg/core"
	"github.com/versevox/versevox/pkg/core/compare"
	"github.com/versevox/versevox/pkg/core/retrieval"
	"github.com/versevox/versevox/pkg/core/stt"
	"github.com/versevox/versevox/pkg/core/tts"
	"github.com/versevox/versevox/pkg/core/types"
	"github.com/versevox/versevox/pkg/gateway/config"
	"github.com/versevox/versevox/pkg/gateway/metrics"
	"github.com/versevox/versevox/pkg/gateway/session"
	"github.com/versevox/versevox/pkg/store/memstore"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeLLM struct {
	response string
}

func (f *fakeLLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	return f.response, nil
}

type fakeSTT struct {
	text string
}

func (fakeSTT) Name() string { return "fake" }

func (f fakeSTT) Transcribe(ctx context.Context, audio io.Reader, opts stt.TranscribeOptions) (*stt.Transcript, error) {
	return &stt.Transcript{Text: f.text}, nil
}

type fakeTTS struct{}

func (fakeTTS) Name() string { return "fake" }

func (f fakeTTS) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOptions) (*tts.Synthesis, error) {
	return &tts.Synthesis{Audio: []byte("mp3:" + text), Format: "mp3"}, nil
}

func (f fakeTTS) SynthesizeStream(ctx context.Context, text string, opts tts.SynthesizeOptions) (*tts.SynthesisStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("text must not be empty", "text")
	}
	stream := tts.NewSynthesisStream()
	go func() {
		stream.Send([]byte("mp3:" + text))
		stream.FinishSending()
	}()
	return stream, nil
}

func testConfig() config.Config {
	return config.Config{
		Addr:                 ":0",
		CORSAllowedOrigins:   map[string]struct{}{},
		MaxBodyBytes:         1 << 20,
		SessionTTL:           time.Minute,
		SessionSweepInterval: time.Minute,
		GeminiAPIKey:         "test-key",
		GroqAPIKey:           "test-key",
		TTSVoice:             "en-US-JennyNeural",
		TTSRate:              "+0%",
		TTSPitch:             "+0Hz",
		MinUtteranceBytes:    4800,
	}
}

func testServer(t *testing.T, llmResponse string) (*Server, *session.Manager) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chunks := memstore.New()
	ctx := context.Background()

	for _, src := range []types.Source{
		{ID: "kjv", Name: "King James Version"},
		{ID: "niv", Name: "New International Version"},
	} {
		if err := chunks.UpsertSource(ctx, src); err != nil {
			t.Fatalf("seed source: %v", err)
		}
	}
	seed := []types.Chunk{
		{ID: "kjv-1", SourceID: "kjv", Reference: "John 3:16", Content: "For God so loved the world.", Embedding: []float32{1, 0, 0}},
		{ID: "niv-1", SourceID: "niv", Reference: "John 3:16", Content: "For God so loved the world that he gave.", Embedding: []float32{1, 0, 0}},
	}
	if err := chunks.InsertChunks(ctx, seed); err != nil {
		t.Fatalf("seed chunks: %v", err)
	}

	gen := &fakeLLM{response: llmResponse}
	sessions := session.NewManager(chunks, time.Minute, logger)

	deps := Deps{
		Chunks:    chunks,
		Sessions:  sessions,
		Retrieval: retrieval.New(fakeEmbedder{}, chunks, gen, logger),
		Compare:   compare.New(fakeEmbedder{}, chunks, gen, logger),
		STT:       fakeSTT{text: "Read Psalm 23."},
		TTS:       fakeTTS{},
		Metrics:   metrics.New("versevox_test"),
	}
	return New(testConfig(), deps, logger), sessions
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/v1/sessions", "", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp types.CreateSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if !strings.HasPrefix(resp.Token, "sess_") {
		t.Fatalf("token = %q", resp.Token)
	}
	return resp.Token
}

func TestServer_HealthAndReady(t *testing.T) {
	srv, _ := testServer(t, "answer")
	h := srv.Handler()

	rr := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("healthz status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status=%d body=%q", rr.Code, rr.Body.String())
	}
	var ready struct {
		OK      bool `json:"ok"`
		Sources int  `json:"sources"`
		Chunks  int  `json:"chunks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &ready); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if !ready.OK || ready.Sources != 2 || ready.Chunks != 2 {
		t.Fatalf("readyz = %+v", ready)
	}
}

func TestServer_ListSourcesIsOpen(t *testing.T) {
	srv, _ := testServer(t, "answer")
	h := srv.Handler()

	rr := doJSON(t, h, http.MethodGet, "/v1/sources", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp types.ListSourcesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources = %+v", resp.Sources)
	}
}

func TestServer_QueryFlow(t *testing.T) {
	srv, _ := testServer(t, "God loved the world.")
	h := srv.Handler()

	token := createSession(t, h)

	rr := doJSON(t, h, http.MethodPost, "/v1/sessions/select", token, types.SelectSourcesRequest{
		Mode:      types.ModeSingle,
		SourceIDs: []string{"kjv"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("select status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/query", token, types.QueryRequest{Question: "What does John 3:16 say?"})
	if rr.Code != http.StatusOK {
		t.Fatalf("query status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp types.QueryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "God loved the world." {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if resp.ChunksUsed != 1 {
		t.Fatalf("chunks_used = %d", resp.ChunksUsed)
	}
}

func TestServer_QueryWithoutSelection(t *testing.T) {
	srv, _ := testServer(t, "answer")
	h := srv.Handler()

	token := createSession(t, h)
	rr := doJSON(t, h, http.MethodPost, "/v1/query", token, types.QueryRequest{Question: "anything"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestServer_QueryWithoutToken(t *testing.T) {
	srv, _ := testServer(t, "answer")
	h := srv.Handler()

	rr := doJSON(t, h, http.MethodPost, "/v1/query", "", types.QueryRequest{Question: "anything"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestServer_CompareFlow(t *testing.T) {
	response := "[SPOKEN]\nBoth are close.\n[TABLE]\nreference | kjv | niv\nJohn 3:16 | For God so loved | that he gave\n"
	srv, _ := testServer(t, response)
	h := srv.Handler()

	token := createSession(t, h)

	rr := doJSON(t, h, http.MethodPost, "/v1/sessions/select", token, types.SelectSourcesRequest{
		Mode:      types.ModeCompare,
		SourceIDs: []string{"kjv", "niv"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("select status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/compare", token, types.CompareRequest{Question: "Compare John 3:16."})
	if rr.Code != http.StatusOK {
		t.Fatalf("compare status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp types.CompareResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SpokenSummary != "Both are close." {
		t.Fatalf("spoken = %q", resp.SpokenSummary)
	}
	if resp.Table == nil || len(resp.Table.Columns) != 2 || resp.Table.Columns[0] != "kjv" {
		t.Fatalf("table = %+v", resp.Table)
	}
	if len(resp.Passages) != 2 {
		t.Fatalf("passages = %+v", resp.Passages)
	}
}

func TestServer_TranscribeShortAudioShortCircuits(t *testing.T) {
	srv, _ := testServer(t, "answer")
	h := srv.Handler()
	token := createSession(t, h)

	req := httptest.NewRequest(http.MethodPost, "/v1/transcribe", bytes.NewReader(make([]byte, 100)))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "audio/wav")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp types.TranscribeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Empty || resp.Text != "" {
		t.Fatalf("resp = %+v, want empty", resp)
	}
}

func TestServer_Transcribe(t *testing.T) {
	srv, _ := testServer(t, "answer")
	h := srv.Handler()
	token := createSession(t, h)

	req := httptest.NewRequest(http.MethodPost, "/v1/transcribe", bytes.NewReader(make([]byte, 9600)))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "audio/wav")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp types.TranscribeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Empty || resp.Text != "Read Psalm 23." {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestServer_Synthesize(t *testing.T) {
	srv, _ := testServer(t, "answer")
	h := srv.Handler()
	token := createSession(t, h)

	rr := doJSON(t, h, http.MethodPost, "/v1/synthesize", token, types.SynthesizeRequest{Text: "In the beginning"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("content-type = %q", ct)
	}
	if got := rr.Body.String(); got != "mp3:In the beginning" {
		t.Fatalf("body = %q", got)
	}
}

func TestServer_DeleteSessionInvalidatesToken(t *testing.T) {
	srv, _ := testServer(t, "answer")
	h := srv.Handler()
	token := createSession(t, h)

	rr := doJSON(t, h, http.MethodDelete, "/v1/sessions", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/query", token, types.QueryRequest{Question: "anything"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d after delete, want 401", rr.Code)
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	srv, _ := testServer(t, "answer")
	h := srv.Handler()
	token := createSession(t, h)

	rr := doJSON(t, h, http.MethodGet, "/v1/nope", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
}
