package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/storage"
)

type createProjectRequest struct {
	Name  string             `json:"name"`
	State model.ProjectState `json:"state"`
}

// HandleCreateProject handles POST /api/projects.
func (h *Handlers) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, "name is required")
		return
	}
	if err := model.ValidateGraph(req.State.Nodes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, err.Error())
		return
	}
	if err := model.ValidateVariables(req.State.Variables); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidationFailed, err.Error())
		return
	}

	p, err := h.db.CreateProject(r.Context(), req.Name, req.State)
	if err != nil {
		h.logger.Error("create project", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to create project")
		return
	}
	writeJSON(w, r, http.StatusCreated, p)
}

// HandleGetProject handles GET /api/projects/{id}.
func (h *Handlers) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.db.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "project not found")
			return
		}
		h.logger.Error("get project", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to load project")
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// HandleListProjects handles GET /api/projects.
func (h *Handlers) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.db.ListProjects(r.Context())
	if err != nil {
		h.logger.Error("list projects", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to list projects")
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	writeJSON(w, r, http.StatusOK, projects)
}
