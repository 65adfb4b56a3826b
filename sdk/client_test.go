package versevox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/versevox/versevox/pkg/core"
	"github.com/versevox/versevox/pkg/core/types"
)

// fakeGateway implements just enough of the gateway wire surface to exercise
// the client: token issue and check, selection state, and canned engine
// responses.
type fakeGateway struct {
	t *testing.T

	token     string
	mode      types.Mode
	sourceIDs []string
	ended     bool

	transcribeText string
	queryAnswer    string
	compareSpoken  string
	compareTable   *types.Table
}

func (g *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			g.token = "sess_fake"
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(types.CreateSessionResponse{
				Token:     g.token,
				ExpiresAt: time.Now().Add(30 * time.Minute),
			})
		case http.MethodDelete:
			if !g.authed(w, r) {
				return
			}
			g.ended = true
			_ = json.NewEncoder(w).Encode(types.OKResponse{OK: true})
		}
	})

	mux.HandleFunc("/v1/sources", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(types.ListSourcesResponse{Sources: []types.Source{
			{ID: "kjv", Name: "King James Version", ChunkCount: 100},
		}})
	})

	mux.HandleFunc("/v1/sessions/select", func(w http.ResponseWriter, r *http.Request) {
		if !g.authed(w, r) {
			return
		}
		var req types.SelectSourcesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		g.mode = req.Mode
		g.sourceIDs = req.SourceIDs
		_ = json.NewEncoder(w).Encode(req)
	})

	mux.HandleFunc("/v1/query", func(w http.ResponseWriter, r *http.Request) {
		if !g.authed(w, r) {
			return
		}
		_ = json.NewEncoder(w).Encode(types.QueryResponse{Answer: g.queryAnswer, ChunksUsed: 2})
	})

	mux.HandleFunc("/v1/compare", func(w http.ResponseWriter, r *http.Request) {
		if !g.authed(w, r) {
			return
		}
		_ = json.NewEncoder(w).Encode(types.CompareResponse{
			SpokenSummary: g.compareSpoken,
			Table:         g.compareTable,
		})
	})

	mux.HandleFunc("/v1/transcribe", func(w http.ResponseWriter, r *http.Request) {
		if !g.authed(w, r) {
			return
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) < 10 {
			_ = json.NewEncoder(w).Encode(types.TranscribeResponse{Empty: true})
			return
		}
		_ = json.NewEncoder(w).Encode(types.TranscribeResponse{Text: g.transcribeText})
	})

	mux.HandleFunc("/v1/synthesize", func(w http.ResponseWriter, r *http.Request) {
		if !g.authed(w, r) {
			return
		}
		var req types.SynthesizeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3:" + req.Text))
	})

	return mux
}

func (g *fakeGateway) authed(w http.ResponseWriter, r *http.Request) bool {
	authz := r.Header.Get("Authorization")
	if g.token == "" || authz != "Bearer "+g.token || g.ended {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": &core.Error{
			Type:    core.ErrAuthentication,
			Message: "invalid or expired session token",
		}})
		return false
	}
	return true
}

func newTestClient(t *testing.T, g *fakeGateway) *Client {
	t.Helper()
	srv := httptest.NewServer(g.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestClient_SessionLifecycle(t *testing.T) {
	g := &fakeGateway{t: t}
	c := newTestClient(t, g)
	ctx := context.Background()

	sess, err := c.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.Token != "sess_fake" || c.Token() != "sess_fake" {
		t.Fatalf("token = %q / %q", sess.Token, c.Token())
	}

	if err := c.EndSession(ctx); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if c.Token() != "" {
		t.Fatalf("token should be cleared after EndSession")
	}
	if !g.ended {
		t.Fatalf("gateway never saw the delete")
	}
}

func TestClient_QueryFlow(t *testing.T) {
	g := &fakeGateway{t: t, queryAnswer: "In the beginning God created."}
	c := newTestClient(t, g)
	ctx := context.Background()

	if _, err := c.CreateSession(ctx); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := c.SelectSources(ctx, types.ModeSingle, []string{"kjv"}); err != nil {
		t.Fatalf("SelectSources: %v", err)
	}
	if g.mode != types.ModeSingle || len(g.sourceIDs) != 1 {
		t.Fatalf("gateway saw mode=%s sources=%v", g.mode, g.sourceIDs)
	}

	resp, err := c.Query(ctx, "What is Genesis 1:1?", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Answer != "In the beginning God created." {
		t.Fatalf("answer = %q", resp.Answer)
	}
}

func TestClient_UnauthenticatedQueryReturnsCoreError(t *testing.T) {
	g := &fakeGateway{t: t}
	c := newTestClient(t, g)

	_, err := c.Query(context.Background(), "anything", 0)
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrAuthentication {
		t.Fatalf("err = %v, want authentication error", err)
	}
}

func TestClient_TransportErrorIsDistinct(t *testing.T) {
	c := NewClient("http://127.0.0.1:1") // nothing listens here
	_, err := c.ListSources(context.Background())

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		t.Fatalf("transport failures must not masquerade as API errors")
	}
}

func TestClient_Synthesize(t *testing.T) {
	g := &fakeGateway{t: t}
	c := newTestClient(t, g)
	ctx := context.Background()

	if _, err := c.CreateSession(ctx); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	stream, err := c.Synthesize(ctx, types.SynthesizeRequest{Text: "Psalm 23"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	defer stream.Close()

	audio, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(audio) != "mp3:Psalm 23" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestConversation_SingleMode(t *testing.T) {
	g := &fakeGateway{t: t, transcribeText: "Read Psalm 23.", queryAnswer: "The Lord is my shepherd."}
	c := newTestClient(t, g)
	ctx := context.Background()

	if _, err := c.CreateSession(ctx); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	conv, err := NewConversation(c, types.ModeSingle)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	text, empty, err := conv.Transcribe(ctx, []byte("pretend this is pcm audio"))
	if err != nil || empty {
		t.Fatalf("Transcribe: text=%q empty=%v err=%v", text, empty, err)
	}
	if text != "Read Psalm 23." {
		t.Fatalf("text = %q", text)
	}

	spoken, table, err := conv.Answer(ctx, text)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if spoken != "The Lord is my shepherd." || table != nil {
		t.Fatalf("spoken=%q table=%+v", spoken, table)
	}

	if err := conv.End(ctx); err != nil {
		t.Fatalf("End: %v", err)
	}
	if !g.ended {
		t.Fatalf("session should be ended")
	}
}

func TestConversation_CompareMode(t *testing.T) {
	table := &types.Table{
		Columns: []string{"kjv", "niv"},
		Rows:    []types.TableRow{{Reference: "John 3:16", Cells: []string{"a", "b"}}},
	}
	g := &fakeGateway{t: t, transcribeText: "Compare John 3:16.", compareSpoken: "They differ slightly.", compareTable: table}
	c := newTestClient(t, g)
	ctx := context.Background()

	if _, err := c.CreateSession(ctx); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	conv, err := NewConversation(c, types.ModeCompare)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	spoken, got, err := conv.Answer(ctx, "Compare John 3:16.")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if spoken != "They differ slightly." {
		t.Fatalf("spoken = %q", spoken)
	}
	if got == nil || len(got.Columns) != 2 || got.Columns[0] != "kjv" {
		t.Fatalf("table = %+v", got)
	}
}

func TestConversation_EmptyTranscript(t *testing.T) {
	g := &fakeGateway{t: t}
	c := newTestClient(t, g)
	ctx := context.Background()

	if _, err := c.CreateSession(ctx); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	conv, err := NewConversation(c, types.ModeSingle)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	_, empty, err := conv.Transcribe(ctx, []byte("tiny"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !empty {
		t.Fatalf("expected empty transcript")
	}
}

func TestNewConversation_RejectsBadMode(t *testing.T) {
	c := NewClient("http://localhost")
	_, err := NewConversation(c, types.Mode("everything"))
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Param != "mode" {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(coreErr.Message, "single") {
		t.Fatalf("message = %q", coreErr.Message)
	}
}
