package handlers

import (
	"net/http"

	"github.com/versevox/versevox/pkg/core"
	"github.com/versevox/versevox/pkg/core/compare"
	"github.com/versevox/versevox/pkg/core/types"
	"github.com/versevox/versevox/pkg/gateway/auth"
	"github.com/versevox/versevox/pkg/gateway/metrics"
	"github.com/versevox/versevox/pkg/gateway/session"
)

// CompareHandler serves POST /v1/compare. The request may override the
// session's source selection for a single call; otherwise the session must
// be in compare mode with sources selected.
type CompareHandler struct {
	Sessions *session.Manager
	Compare  *compare.Engine
	Metrics  *metrics.Metrics
}

func (h CompareHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	var req types.CompareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sourceIDs := req.SourceIDs
	if len(sourceIDs) == 0 {
		if sess.Mode != session.ModeCompare || len(sess.SourceIDs) == 0 {
			writeError(w, r, core.NewInvalidRequestErrorWithParam(
				"session has no compare selection; call /v1/sessions/select or pass source_ids", "source_ids"))
			return
		}
		sourceIDs = sess.SourceIDs
	}

	result, err := h.Compare.Compare(r.Context(), req.Question, sourceIDs, req.K)
	if err != nil {
		h.recordQuery("error")
		writeError(w, r, err)
		return
	}
	if result.Table == nil {
		h.recordQuery("spoken_only")
	} else {
		h.recordQuery("ok")
	}

	writeJSON(w, http.StatusOK, types.CompareResponse{
		SpokenSummary: result.SpokenSummary,
		Table:         result.Table,
		Passages:      result.Passages,
	})
}

func (h CompareHandler) recordQuery(status string) {
	if h.Metrics != nil {
		h.Metrics.RecordQuery("compare", status)
	}
}
