package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/versevox/versevox/pkg/gateway/config"
	"github.com/versevox/versevox/pkg/gateway/session"
	"github.com/versevox/versevox/pkg/store"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config   config.Config
	Chunks   store.ChunkStore
	Sessions *session.Manager
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK             bool     `json:"ok"`
		Sources        int      `json:"sources"`
		Chunks         int      `json:"chunks"`
		ActiveSessions int      `json:"active_sessions"`
		VoiceEnabled   bool     `json:"voice_enabled"`
		Issues         []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 2)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var sourceCount, chunkCount int
	sources, err := h.Chunks.ListSources(ctx)
	if err != nil {
		issues = append(issues, "chunk store unreachable: "+err.Error())
	} else {
		sourceCount = len(sources)
		for _, src := range sources {
			chunkCount += src.ChunkCount
		}
		if sourceCount == 0 {
			issues = append(issues, "no sources indexed")
		}
	}

	if h.Config.GeminiAPIKey == "" {
		issues = append(issues, "gemini api key not configured")
	}

	active := 0
	if h.Sessions != nil {
		active = h.Sessions.ActiveCount()
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, readyResp{
		OK:             ok,
		Sources:        sourceCount,
		Chunks:         chunkCount,
		ActiveSessions: active,
		VoiceEnabled:   h.Config.GroqAPIKey != "",
		Issues:         issues,
	})
}
