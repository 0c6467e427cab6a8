package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/replay"
	"github.com/loomworks/loom/internal/resolve"
	"github.com/loomworks/loom/internal/storage"
	"github.com/loomworks/loom/migrations"
)

func newTestMCP(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "loom.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.RunMigrations(ctx, migrations.FS))

	resolver := resolve.NewResolver(resolve.NewRegistry(), resolve.Config{
		Timeout:         5 * time.Second,
		MaxConcurrent:   4,
		OfflineFallback: true,
	}, logger)
	pipeline := engine.NewPipeline(resolver, logger)
	replayer := replay.NewOrchestrator(db, pipeline, logger)

	return New(db, pipeline, replayer, logger)
}

func callTool(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcplib.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return text.Text
}

func TestPreviewToolRendersGraph(t *testing.T) {
	s := newTestMCP(t)

	graph, err := json.Marshal(model.RenderRequest{
		Nodes: []model.Node{
			{ID: "n", Label: "System", Kind: model.NodeKindSystem, Content: "Hello {{who}}."},
		},
		Variables: []model.Variable{
			{Name: "who", Type: model.VarTypeStatic, Value: "world"},
		},
	})
	require.NoError(t, err)

	result, err := s.handlePreview(context.Background(), callTool("loom_preview", map[string]any{
		"graph": string(graph),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var trace model.TraceRun
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &trace))
	assert.Equal(t, "--- System ---\nHello world.", trace.Text)
}

func TestPreviewToolRejectsBadGraph(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handlePreview(context.Background(), callTool("loom_preview", map[string]any{
		"graph": "not json",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	missing, err := s.handlePreview(context.Background(), callTool("loom_preview", nil))
	require.NoError(t, err)
	assert.True(t, missing.IsError)
}

func TestReplayAndDiffTools(t *testing.T) {
	s := newTestMCP(t)
	ctx := context.Background()

	project, err := s.db.CreateProject(ctx, "demo", model.ProjectState{
		Nodes: []model.Node{{ID: "n", Label: "User", Kind: model.NodeKindUser, Content: "Q: {{q}}"}},
		Variables: []model.Variable{
			{Name: "q", Type: model.VarTypeStatic, Value: "default"},
		},
	})
	require.NoError(t, err)

	dataset, err := s.db.CreateDataset(ctx, "rows", []model.Row{
		json.RawMessage(`{"q":"alpha"}`),
		json.RawMessage(`{"q":"beta"}`),
	})
	require.NoError(t, err)

	result, err := s.handleReplay(ctx, callTool("loom_replay", map[string]any{
		"dataset_id": dataset.ID,
		"project_id": project.ID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var summaries []model.RunSummary
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &summaries))
	require.Len(t, summaries, 2)

	diff, err := s.handleDiff(ctx, callTool("loom_diff", map[string]any{
		"run_a": summaries[0].RunID,
		"run_b": summaries[1].RunID,
	}))
	require.NoError(t, err)
	require.False(t, diff.IsError)

	var cmp model.RunComparison
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, diff)), &cmp))
	assert.Equal(t, model.VerdictDrift, cmp.Verdict)
}

func TestDiffToolUnknownRun(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleDiff(context.Background(), callTool("loom_diff", map[string]any{
		"run_a": "missing-a",
		"run_b": "missing-b",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRunResourceRoundTrip(t *testing.T) {
	s := newTestMCP(t)
	ctx := context.Background()

	rec := model.RunRecord{
		RunID:        "run-1",
		CreatedAt:    time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Status:       model.RunStatusSucceeded,
		OutputDigest: "abc",
	}
	require.NoError(t, s.db.AppendRun(ctx, rec))

	contents, err := s.handleRunResource(ctx, mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "loom://run/run-1"},
	})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	assert.Contains(t, text.Text, `"outputDigest": "abc"`)
}

func TestExtractRunID(t *testing.T) {
	assert.Equal(t, "abc", extractRunID("loom://run/abc"))
	assert.Equal(t, "", extractRunID("loom://run/"))
	assert.Equal(t, "", extractRunID("loom://projects"))
}
