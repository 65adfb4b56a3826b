package handlers

import (
	"net/http"

	"github.com/versevox/versevox/pkg/core"
	"github.com/versevox/versevox/pkg/core/types"
	"github.com/versevox/versevox/pkg/gateway/auth"
	"github.com/versevox/versevox/pkg/gateway/metrics"
	"github.com/versevox/versevox/pkg/gateway/session"
)

// SessionsHandler serves POST /v1/sessions (open) and DELETE /v1/sessions
// (authenticated).
type SessionsHandler struct {
	Sessions *session.Manager
	Metrics  *metrics.Metrics
}

func (h SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodDelete:
		h.end(w, r)
	default:
		writeMethodNotAllowed(w, r)
	}
}

func (h SessionsHandler) create(w http.ResponseWriter, r *http.Request) {
	sess := h.Sessions.Create()
	if h.Metrics != nil {
		h.Metrics.RecordSessionCreated()
		h.Metrics.SetActiveSessions(h.Sessions.ActiveCount())
	}
	writeJSON(w, http.StatusCreated, types.CreateSessionResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (h SessionsHandler) end(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, core.NewAuthenticationError("missing bearer token"))
		return
	}
	h.Sessions.End(p.Token)
	if h.Metrics != nil {
		h.Metrics.SetActiveSessions(h.Sessions.ActiveCount())
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true})
}

// SelectHandler serves POST /v1/sessions/select.
type SelectHandler struct {
	Sessions *session.Manager
}

func (h SelectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r)
		return
	}
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, core.NewAuthenticationError("missing bearer token"))
		return
	}

	var req types.SelectSourcesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sess, err := h.Sessions.SelectSources(r.Context(), p.Token, session.Mode(req.Mode), req.SourceIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Mode      types.Mode `json:"mode"`
		SourceIDs []string   `json:"source_ids"`
	}{
		Mode:      types.Mode(sess.Mode),
		SourceIDs: sess.SourceIDs,
	})
}
