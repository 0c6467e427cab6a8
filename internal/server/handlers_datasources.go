package server

import (
	"net/http"
	"strings"

	"github.com/loomworks/loom/internal/model"
)

type createDataSourceRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

var dataSourceKinds = map[string]bool{
	"sql":      true,
	"neo4j":    true,
	"milvus":   true,
	"qdrant":   true,
	"pgvector": true,
}

// HandleCreateDataSource handles POST /api/datasources. The connection URL
// is sealed before it touches storage; the cleartext is never persisted or
// echoed back.
func (h *Handlers) HandleCreateDataSource(w http.ResponseWriter, r *http.Request) {
	if h.sealer == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeValidationFailed,
			"data sources require LOOM_DATA_KEY to be configured")
		return
	}

	var req createDataSourceRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, "name is required")
		return
	}
	if !dataSourceKinds[req.Kind] {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, "unknown data source kind")
		return
	}
	if req.URL == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, "url is required")
		return
	}

	sealed, err := h.sealer.Seal(req.URL)
	if err != nil {
		h.logger.Error("seal data source url", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to seal url")
		return
	}

	ds, err := h.db.CreateDataSource(r.Context(), req.Name, req.Kind, sealed)
	if err != nil {
		h.logger.Error("create data source", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to create data source")
		return
	}
	writeJSON(w, r, http.StatusCreated, ds)
}

// HandleListDataSources handles GET /api/datasources.
func (h *Handlers) HandleListDataSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.db.ListDataSources(r.Context())
	if err != nil {
		h.logger.Error("list data sources", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to list data sources")
		return
	}
	if sources == nil {
		sources = []model.DataSource{}
	}
	writeJSON(w, r, http.StatusOK, sources)
}
