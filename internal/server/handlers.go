package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/replay"
	"github.com/loomworks/loom/internal/secrets"
	"github.com/loomworks/loom/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	renderer            engine.Renderer
	scheduler           *engine.Scheduler
	replayer            *replay.Orchestrator
	sealer              *secrets.Sealer
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Sealer may be nil; data source creation then reports the feature as
// unconfigured.
type HandlersDeps struct {
	DB                  *storage.DB
	Renderer            engine.Renderer
	Scheduler           *engine.Scheduler
	Replayer            *replay.Orchestrator
	Sealer              *secrets.Sealer
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		renderer:            d.Renderer,
		scheduler:           d.Scheduler,
		replayer:            d.Replayer,
		sealer:              d.Sealer,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternal, "database unreachable")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":        "ok",
		"version":       h.version,
		"uptimeSeconds": int(time.Since(h.startedAt).Seconds()),
	})
}
