package handlers

import (
	"net/http"

	"github.com/versevox/versevox/pkg/core/types"
	"github.com/versevox/versevox/pkg/store"
)

// SourcesHandler serves GET /v1/sources: the public source catalog.
type SourcesHandler struct {
	Chunks store.ChunkStore
}

func (h SourcesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	sources, err := h.Chunks.ListSources(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sources == nil {
		sources = []types.Source{}
	}
	writeJSON(w, http.StatusOK, types.ListSourcesResponse{Sources: sources})
}
