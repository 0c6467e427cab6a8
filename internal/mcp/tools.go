package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/replay"
)

func (s *Server) registerTools() {
	// loom_preview — render a context graph without persisting anything.
	s.mcpServer.AddTool(
		mcplib.NewTool("loom_preview",
			mcplib.WithDescription(`Render a context graph and return the full trace.

WHEN TO USE: To see exactly what prompt text a graph of template nodes
produces, including which variables were substituted, which were missing,
and whether the graph had ordering problems.

The graph argument is a JSON object: {"nodes":[{"id","label","kind","content"}],
"edges":[{"source","target"}],"variables":[{"name","type","value","resolver"}],
"outputStyle":"labeled"|"plain"}. Template placeholders use {{name}}.

Nothing is persisted; call it as often as you like.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("graph",
				mcplib.Description("The render request as a JSON object (nodes, edges, variables, outputStyle)"),
				mcplib.Required(),
			),
		),
		s.handlePreview,
	)

	// loom_replay — replay a dataset window against a stored project.
	s.mcpServer.AddTool(
		mcplib.NewTool("loom_replay",
			mcplib.WithDescription(`Replay dataset rows against a stored project and record run history.

Each row overrides matching variables as static values, renders the
project's graph, and appends a run record with a content digest. Use
loom_diff afterwards to compare runs for drift.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithString("dataset_id",
				mcplib.Description("The dataset whose rows drive the replay"),
				mcplib.Required(),
			),
			mcplib.WithString("project_id",
				mcplib.Description("The project snapshot to render each row against"),
				mcplib.Required(),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum rows to replay"),
				mcplib.Min(1),
				mcplib.Max(float64(model.MaxReplayLimit)),
				mcplib.DefaultNumber(float64(model.DefaultReplayLimit)),
			),
			mcplib.WithNumber("offset",
				mcplib.Description("Row offset to start from"),
				mcplib.Min(0),
				mcplib.DefaultNumber(0),
			),
		),
		s.handleReplay,
	)

	// loom_diff — compare two runs for drift.
	s.mcpServer.AddTool(
		mcplib.NewTool("loom_diff",
			mcplib.WithDescription(`Compare two persisted runs.

Returns a digest-level verdict ("stable" when the output text is
byte-identical, "drift" otherwise) plus a line diff explaining where the
outputs diverge. Typically used on two runs of the same dataset row from
different replays.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("run_a",
				mcplib.Description("Run ID of the left (earlier) run"),
				mcplib.Required(),
			),
			mcplib.WithString("run_b",
				mcplib.Description("Run ID of the right (later) run"),
				mcplib.Required(),
			),
		),
		s.handleDiff,
	)
}

func (s *Server) handlePreview(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	raw := request.GetString("graph", "")
	if raw == "" {
		return errorResult("graph is required"), nil
	}

	var req model.RenderRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return errorResult(fmt.Sprintf("graph is not valid JSON: %v", err)), nil
	}
	if err := req.Validate(); err != nil {
		return errorResult(fmt.Sprintf("invalid graph: %v", err)), nil
	}

	t, err := s.renderer.Render(ctx, engine.RenderInput{
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		Variables:   req.Variables,
		OutputStyle: req.OutputStyle,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("render failed: %v", err)), nil
	}
	return textResult(t), nil
}

func (s *Server) handleReplay(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	datasetID := request.GetString("dataset_id", "")
	projectID := request.GetString("project_id", "")
	if datasetID == "" || projectID == "" {
		return errorResult("dataset_id and project_id are required"), nil
	}

	summaries, err := s.replayer.Replay(ctx, datasetID, model.ReplayRequest{
		ProjectID: projectID,
		Limit:     request.GetInt("limit", model.DefaultReplayLimit),
		Offset:    request.GetInt("offset", 0),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("replay failed: %v", err)), nil
	}
	return textResult(summaries), nil
}

func (s *Server) handleDiff(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runA := request.GetString("run_a", "")
	runB := request.GetString("run_b", "")
	if runA == "" || runB == "" {
		return errorResult("run_a and run_b are required"), nil
	}

	left, err := s.db.GetRun(ctx, runA)
	if err != nil {
		return errorResult(fmt.Sprintf("load run %s: %v", runA, err)), nil
	}
	right, err := s.db.GetRun(ctx, runB)
	if err != nil {
		return errorResult(fmt.Sprintf("load run %s: %v", runB, err)), nil
	}
	return textResult(replay.Compare(left, right)), nil
}
