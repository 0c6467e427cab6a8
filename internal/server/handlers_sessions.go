package server

import (
	"errors"
	"net/http"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/storage"
)

type createSessionRequest struct {
	Title    string              `json:"title"`
	Messages []model.ChatMessage `json:"messages"`
}

// HandleCreateSession handles POST /api/sessions.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if len(req.Messages) > model.MaxSessionMessages {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, "too many messages")
		return
	}

	s, err := h.db.CreateSession(r.Context(), req.Title, req.Messages)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to create session")
		return
	}
	writeJSON(w, r, http.StatusCreated, s)
}

// HandleGetSession handles GET /api/sessions/{id}.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.db.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found")
			return
		}
		h.logger.Error("get session", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to load session")
		return
	}
	writeJSON(w, r, http.StatusOK, s)
}

type appendMessagesRequest struct {
	Messages []model.ChatMessage `json:"messages"`
}

// HandleAppendSessionMessages handles POST /api/sessions/{id}/messages.
func (h *Handlers) HandleAppendSessionMessages(w http.ResponseWriter, r *http.Request) {
	var req appendMessagesRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	s, err := h.db.AppendSessionMessages(r.Context(), r.PathValue("id"), req.Messages)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found")
			return
		}
		h.logger.Error("append session messages", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to append messages")
		return
	}
	writeJSON(w, r, http.StatusOK, s)
}
