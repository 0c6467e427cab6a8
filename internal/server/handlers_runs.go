package server

import (
	"errors"
	"net/http"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/replay"
	"github.com/loomworks/loom/internal/storage"
)

// HandleGetRun handles GET /api/runs/{id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := h.db.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
			return
		}
		h.logger.Error("get run", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to load run")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// HandleCompareRuns handles GET /api/runs/{a}/compare/{b}. The digest
// verdict says whether the runs drifted; the line diff says where.
func (h *Handlers) HandleCompareRuns(w http.ResponseWriter, r *http.Request) {
	left, err := h.db.GetRun(r.Context(), r.PathValue("a"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "left run not found")
			return
		}
		h.logger.Error("get run", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to load run")
		return
	}
	right, err := h.db.GetRun(r.Context(), r.PathValue("b"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "right run not found")
			return
		}
		h.logger.Error("get run", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to load run")
		return
	}

	writeJSON(w, r, http.StatusOK, replay.Compare(left, right))
}
