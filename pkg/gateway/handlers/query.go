package handlers

import (
	"net/http"

	"github.com/versevox/versevox/pkg/core"
	"github.com/versevox/versevox/pkg/core/retrieval"
	"github.com/versevox/versevox/pkg/core/types"
	"github.com/versevox/versevox/pkg/gateway/auth"
	"github.com/versevox/versevox/pkg/gateway/metrics"
	"github.com/versevox/versevox/pkg/gateway/session"
)

// QueryHandler serves POST /v1/query against the session's single-mode
// source selection.
type QueryHandler struct {
	Sessions  *session.Manager
	Retrieval *retrieval.Engine
	Metrics   *metrics.Metrics
}

func (h QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r)
		return
	}
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, core.NewAuthenticationError("missing bearer token"))
		return
	}

	sess, err := h.Sessions.Get(p.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sess.Mode != session.ModeSingle || len(sess.SourceIDs) != 1 {
		writeError(w, r, core.NewInvalidRequestErrorWithParam(
			"session has no single-mode source selected; call /v1/sessions/select first", "mode"))
		return
	}

	var req types.QueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.Retrieval.Query(r.Context(), sess.SourceIDs[0], req.Question, req.K)
	if err != nil {
		h.recordQuery("error")
		writeError(w, r, err)
		return
	}
	if result.NoContent {
		h.recordQuery("no_content")
	} else {
		h.recordQuery("ok")
	}

	writeJSON(w, http.StatusOK, types.QueryResponse{
		Answer:     result.Answer,
		NoContent:  result.NoContent,
		ChunksUsed: result.ChunksUsed,
		Sources:    result.Sources,
	})
}

func (h QueryHandler) recordQuery(status string) {
	if h.Metrics != nil {
		h.Metrics.RecordQuery("single", status)
	}
}
