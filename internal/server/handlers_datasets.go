package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/storage"
)

type createDatasetRequest struct {
	Name string      `json:"name"`
	Rows []model.Row `json:"rows"`
}

// HandleCreateDataset handles POST /api/datasets.
func (h *Handlers) HandleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, "name is required")
		return
	}

	d, err := h.db.CreateDataset(r.Context(), req.Name, req.Rows)
	if err != nil {
		h.logger.Error("create dataset", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to create dataset")
		return
	}
	writeJSON(w, r, http.StatusCreated, d)
}

// HandleGetDataset handles GET /api/datasets/{id}.
func (h *Handlers) HandleGetDataset(w http.ResponseWriter, r *http.Request) {
	d, err := h.db.GetDataset(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "dataset not found")
			return
		}
		h.logger.Error("get dataset", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to load dataset")
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}

// HandleListDatasets handles GET /api/datasets.
func (h *Handlers) HandleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.db.ListDatasets(r.Context())
	if err != nil {
		h.logger.Error("list datasets", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to list datasets")
		return
	}
	if datasets == nil {
		datasets = []model.Dataset{}
	}
	writeJSON(w, r, http.StatusOK, datasets)
}

// HandleReplayDataset handles POST /api/datasets/{id}/replay.
func (h *Handlers) HandleReplayDataset(w http.ResponseWriter, r *http.Request) {
	var req model.ReplayRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.ProjectID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, "projectId is required")
		return
	}

	summaries, err := h.replayer.Replay(r.Context(), r.PathValue("id"), req)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "dataset or project not found")
			return
		}
		h.logger.Error("replay dataset", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "replay failed")
		return
	}
	writeJSON(w, r, http.StatusOK, summaries)
}

// HandleListDatasetRuns handles GET /api/datasets/{id}/runs?rowIndex=&limit=.
func (h *Handlers) HandleListDatasetRuns(w http.ResponseWriter, r *http.Request) {
	var rowIndex *int
	if raw := r.URL.Query().Get("rowIndex"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, "rowIndex must be a non-negative integer")
			return
		}
		rowIndex = &n
	}

	limit := model.DefaultReplayLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > model.MaxReplayLimit {
		limit = model.MaxReplayLimit
	}

	runs, err := h.db.ListRuns(r.Context(), r.PathValue("id"), rowIndex, limit)
	if err != nil {
		h.logger.Error("list runs", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	writeJSON(w, r, http.StatusOK, runs)
}
