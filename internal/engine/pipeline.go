// Package engine composes ordering, variable resolution, rendering, and
// trace assembly into the render pipeline, and runs the debounced
// re-render scheduler on top of it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/render"
	"github.com/loomworks/loom/internal/resolve"
	"github.com/loomworks/loom/internal/trace"
)

// RenderInput is one complete render request: the graph snapshot, its
// variables, and the output style.
type RenderInput struct {
	Nodes       []model.Node
	Edges       []model.Edge
	Variables   []model.Variable
	OutputStyle model.OutputStyle
}

// Pipeline runs order → resolve → render → trace. Every stage degrades to
// diagnostics instead of failing the run; Render returns an error only
// when the context dies.
type Pipeline struct {
	resolver *resolve.Resolver
	logger   *slog.Logger
}

// NewPipeline builds a Pipeline over the given resolver.
func NewPipeline(resolver *resolve.Resolver, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{resolver: resolver, logger: logger}
}

// Render executes the full pipeline and returns the assembled trace.
func (p *Pipeline) Render(ctx context.Context, in RenderInput) (model.TraceRun, error) {
	start := time.Now()

	ordering := graph.Order(in.Nodes, in.Edges)
	var pipelineMsgs []model.Message
	if ordering.CycleDetected {
		pipelineMsgs = append(pipelineMsgs, model.Message{
			Severity: model.SeverityWarn,
			Code:     model.CodeCycleDetected,
			Message:  "graph contains a cycle; falling back to input order",
		})
	}

	res, err := p.resolver.Resolve(ctx, in.Variables)
	if err != nil {
		return model.TraceRun{}, fmt.Errorf("engine: resolve variables: %w", err)
	}
	pipelineMsgs = append(pipelineMsgs, res.Messages...)

	segments := make([]model.Segment, len(ordering.Nodes))
	for i, node := range ordering.Nodes {
		segments[i] = render.Node(node, res.Values)
	}

	t := trace.Build(uuid.NewString(), time.Now().UTC(), in.OutputStyle, segments, pipelineMsgs)

	p.logger.Debug("render complete",
		"run_id", t.RunID,
		"nodes", len(in.Nodes),
		"cycle_detected", ordering.CycleDetected,
		"missing_variables", t.MissingVariableCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return t, nil
}
