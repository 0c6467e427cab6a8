// Package replay executes dataset rows against a project snapshot,
// recording append-only run history, and compares runs for drift.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/trace"
)

// Store is the slice of storage the orchestrator needs. AppendRun must
// never overwrite: each call adds a new record to the (datasetID, rowIndex)
// history.
type Store interface {
	GetProject(ctx context.Context, id string) (model.Project, error)
	GetDataset(ctx context.Context, id string) (model.Dataset, error)
	AppendRun(ctx context.Context, rec model.RunRecord) error
}

// Orchestrator replays dataset windows through the render pipeline.
type Orchestrator struct {
	store    Store
	renderer engine.Renderer
	logger   *slog.Logger
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(store Store, renderer engine.Renderer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: store, renderer: renderer, logger: logger}
}

// Replay renders a window of dataset rows against the project's graph and
// appends one RunRecord per row. A row that fails to bind produces a
// failed record and the replay continues; only storage errors abort.
func (o *Orchestrator) Replay(ctx context.Context, datasetID string, req model.ReplayRequest) ([]model.RunSummary, error) {
	ds, err := o.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("replay: load dataset %q: %w", datasetID, err)
	}
	project, err := o.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("replay: load project %q: %w", req.ProjectID, err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = model.DefaultReplayLimit
	}
	if limit > model.MaxReplayLimit {
		limit = model.MaxReplayLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(ds.Rows) {
		offset = len(ds.Rows)
	}
	end := offset + limit
	if end > len(ds.Rows) {
		end = len(ds.Rows)
	}

	summaries := make([]model.RunSummary, 0, end-offset)
	for i := offset; i < end; i++ {
		rec := o.runRow(ctx, project, ds, i)
		if err := o.store.AppendRun(ctx, rec); err != nil {
			return nil, fmt.Errorf("replay: append run for row %d: %w", i, err)
		}
		summaries = append(summaries, rec.Summary())
	}

	o.logger.Info("replay complete",
		"dataset_id", datasetID,
		"project_id", project.ID,
		"rows", len(summaries),
		"offset", offset,
	)
	return summaries, nil
}

func (o *Orchestrator) runRow(ctx context.Context, project model.Project, ds model.Dataset, rowIndex int) model.RunRecord {
	now := time.Now().UTC()
	rec := model.RunRecord{
		RunID:     uuid.NewString(),
		CreatedAt: now,
		ProjectID: project.ID,
		DatasetID: ds.ID,
		RowIndex:  rowIndex,
	}

	vars, err := BindRow(project.State.Variables, ds.Rows[rowIndex])
	if err != nil {
		o.logger.Warn("row failed to bind", "dataset_id", ds.ID, "row_index", rowIndex, "error", err)
		rec.Status = model.RunStatusFailed
		rec.OutputDigest = trace.Digest("")
		rec.Trace = model.TraceRun{
			RunID:       rec.RunID,
			CreatedAt:   now,
			OutputStyle: model.OutputStyleLabeled,
			Messages: []model.Message{{
				Severity: model.SeverityError,
				Code:     "row_invalid",
				Message:  fmt.Sprintf("row %d is not a JSON object: %v", rowIndex, err),
			}},
		}
		return rec
	}

	t, err := o.renderer.Render(ctx, engine.RenderInput{
		Nodes:       project.State.Nodes,
		Edges:       project.State.Edges,
		Variables:   vars,
		OutputStyle: model.OutputStyleLabeled,
	})
	if err != nil {
		rec.Status = model.RunStatusFailed
		rec.OutputDigest = trace.Digest("")
		rec.Trace = model.TraceRun{
			RunID:       rec.RunID,
			CreatedAt:   now,
			OutputStyle: model.OutputStyleLabeled,
			Messages: []model.Message{{
				Severity: model.SeverityError,
				Code:     "render_aborted",
				Message:  err.Error(),
			}},
		}
		return rec
	}

	rec.Status = model.RunStatusSucceeded
	rec.OutputDigest = trace.Digest(t.Text)
	rec.MissingVariablesCount = t.MissingVariableCount()
	rec.Trace = t
	return rec
}

// BindRow overlays a dataset row onto the project's variables. A row field
// named like a variable overrides it as a static value; fields starting
// with "_" are ignored; a "variables" sub-object takes precedence over
// top-level fields. Fields matching no variable are dropped.
func BindRow(vars []model.Variable, row model.Row) ([]model.Variable, error) {
	var fields map[string]any
	if err := json.Unmarshal(row, &fields); err != nil {
		return nil, fmt.Errorf("replay: parse row: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("replay: row is null")
	}

	overrides := make(map[string]string)
	for k, v := range fields {
		if strings.HasPrefix(k, "_") || k == "variables" {
			continue
		}
		overrides[k] = stringifyField(v)
	}
	if sub, ok := fields["variables"].(map[string]any); ok {
		for k, v := range sub {
			overrides[k] = stringifyField(v)
		}
	}

	out := make([]model.Variable, len(vars))
	copy(out, vars)
	for i := range out {
		if v, ok := overrides[out[i].Name]; ok {
			out[i] = model.Variable{
				ID:    out[i].ID,
				Name:  out[i].Name,
				Type:  model.VarTypeStatic,
				Value: v,
			}
		}
	}
	return out, nil
}

// stringifyField turns a decoded JSON value into the string form templates
// substitute.
func stringifyField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}
