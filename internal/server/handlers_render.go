package server

import (
	"errors"
	"net/http"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/trace"
)

// HandlePreview handles POST /api/preview. Renders the submitted graph and
// returns the trace without persisting anything.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req model.RenderRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, err.Error())
		return
	}

	t, err := h.renderer.Render(r.Context(), engine.RenderInput{
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		Variables:   req.Variables,
		OutputStyle: req.OutputStyle,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "render failed")
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

// HandleLivePreview handles POST /api/preview/live. Routes the render
// through the debounced single-slot scheduler, so an editor firing a
// request per keystroke gets one render for the latest graph; requests
// replaced by a newer one answer 409 with code superseded.
func (h *Handlers) HandleLivePreview(w http.ResponseWriter, r *http.Request) {
	var req model.RenderRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, err.Error())
		return
	}

	ch := h.scheduler.Schedule(engine.RenderInput{
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		Variables:   req.Variables,
		OutputStyle: req.OutputStyle,
	})

	select {
	case out := <-ch:
		switch {
		case errors.Is(out.Err, engine.ErrSuperseded):
			writeError(w, r, http.StatusConflict, model.ErrCodeSuperseded, "preview replaced by a newer request")
		case out.Err != nil:
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "render failed")
		default:
			writeJSON(w, r, http.StatusOK, out.Trace)
		}
	case <-r.Context().Done():
		// Client gone; the outcome lands on the buffered channel and is dropped.
	}
}

// executeRequest is a render request that also records the result.
type executeRequest struct {
	model.RenderRequest
	ProjectID string `json:"projectId,omitempty"`
}

// HandleExecute handles POST /api/execute. Same pipeline as preview, but the
// result is persisted as a RunRecord with no dataset binding.
func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, err.Error())
		return
	}

	t, err := h.renderer.Render(r.Context(), engine.RenderInput{
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		Variables:   req.Variables,
		OutputStyle: req.OutputStyle,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "render failed")
		return
	}

	rec := model.RunRecord{
		RunID:                 t.RunID,
		CreatedAt:             t.CreatedAt,
		ProjectID:             req.ProjectID,
		Status:                model.RunStatusSucceeded,
		OutputDigest:          trace.Digest(t.Text),
		MissingVariablesCount: t.MissingVariableCount(),
		Trace:                 t,
	}
	if err := h.db.AppendRun(r.Context(), rec); err != nil {
		h.logger.Error("persist execute run", "error", err, "run_id", t.RunID)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to persist run")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}
