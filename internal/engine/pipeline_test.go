package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/resolve"
	"github.com/loomworks/loom/internal/trace"
)

func testPipeline(t *testing.T, caps ...resolve.Capability) *Pipeline {
	t.Helper()
	r := resolve.NewResolver(resolve.NewRegistry(caps...), resolve.Config{OfflineFallback: true}, nil)
	return NewPipeline(r, nil)
}

func helloWorldInput() RenderInput {
	return RenderInput{
		Nodes: []model.Node{
			{ID: "n1", Label: "System", Kind: model.NodeKindSystem, Content: "You are a helpful assistant for {{name}}."},
			{ID: "n2", Label: "User", Kind: model.NodeKindUser, Content: "Question: {{question}}"},
		},
		Edges: []model.Edge{{Source: "n1", Target: "n2"}},
		Variables: []model.Variable{
			{ID: "v1", Name: "name", Type: model.VarTypeStatic, Value: "Alice"},
			{ID: "v2", Name: "question", Type: model.VarTypeStatic, Value: "What is Go?"},
		},
		OutputStyle: model.OutputStyleLabeled,
	}
}

func TestPipelineHelloWorld(t *testing.T) {
	p := testPipeline(t)

	got, err := p.Render(context.Background(), helloWorldInput())
	require.NoError(t, err)

	want := "--- System ---\nYou are a helpful assistant for Alice.\n\n--- User ---\nQuestion: What is Go?"
	assert.Equal(t, want, got.Text)
	assert.NotEmpty(t, got.RunID)
	assert.Zero(t, got.MissingVariableCount())
	require.Len(t, got.Segments, 2)
	assert.Equal(t, "n1", got.Segments[0].NodeID)
}

func TestPipelineDeterministicTextFreshRunID(t *testing.T) {
	p := testPipeline(t)

	a, err := p.Render(context.Background(), helloWorldInput())
	require.NoError(t, err)
	b, err := p.Render(context.Background(), helloWorldInput())
	require.NoError(t, err)

	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, trace.Digest(a.Text), trace.Digest(b.Text))
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestPipelineCycleFallsBackToInputOrder(t *testing.T) {
	p := testPipeline(t)
	in := RenderInput{
		Nodes: []model.Node{
			{ID: "a", Label: "A", Kind: model.NodeKindText, Content: "first"},
			{ID: "b", Label: "B", Kind: model.NodeKindText, Content: "second"},
		},
		Edges:       []model.Edge{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}},
		OutputStyle: model.OutputStylePlain,
	}

	got, err := p.Render(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", got.Text)

	found := false
	for _, m := range got.Messages {
		if m.Code == model.CodeCycleDetected {
			found = true
			assert.Equal(t, model.SeverityWarn, m.Severity)
		}
	}
	assert.True(t, found, "expected a cycle_detected message")
}

func TestPipelineMissingVariableKeepsPlaceholder(t *testing.T) {
	p := testPipeline(t)
	in := RenderInput{
		Nodes: []model.Node{
			{ID: "n1", Label: "User", Kind: model.NodeKindUser, Content: "Hi {{ghost}}"},
		},
		OutputStyle: model.OutputStyleLabeled,
	}

	got, err := p.Render(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "--- User ---\nHi {{ghost}}", got.Text)
	assert.Equal(t, 1, got.MissingVariableCount())
}

// unreachableCap fails every probe the way a dead backend does.
type unreachableCap struct{}

func (unreachableCap) Scheme() string { return "chat" }

func (unreachableCap) Resolve(context.Context, string, string) (string, error) {
	return "", resolve.Errf(model.ErrCodeConnectFailed, "backend unreachable")
}

func TestPipelineUnreachableBackendFallsBack(t *testing.T) {
	p := testPipeline(t, unreachableCap{})
	in := RenderInput{
		Nodes: []model.Node{
			{ID: "n1", Label: "Memory", Kind: model.NodeKindMemory, Content: "Recall: {{history}}"},
		},
		Variables: []model.Variable{
			{ID: "v1", Name: "history", Type: model.VarTypeDynamic, Value: "20", Resolver: "chat://s1"},
		},
		OutputStyle: model.OutputStylePlain,
	}

	got, err := p.Render(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Recall: [history]", got.Text)
	assert.Zero(t, got.MissingVariableCount())

	var codes []string
	for _, m := range got.Messages {
		codes = append(codes, m.Code)
	}
	assert.Contains(t, codes, model.CodeVariableResolveFailed)
	assert.Contains(t, codes, model.CodeLocalFallback)
}

func TestPipelineUnknownSchemeCountsVariableMissing(t *testing.T) {
	p := testPipeline(t)
	in := RenderInput{
		Nodes: []model.Node{
			{ID: "n1", Label: "Memory", Kind: model.NodeKindMemory, Content: "Recall: {{history}}"},
		},
		Variables: []model.Variable{
			{ID: "v1", Name: "history", Type: model.VarTypeDynamic, Value: "20", Resolver: "nosuch://id"},
		},
		OutputStyle: model.OutputStylePlain,
	}

	got, err := p.Render(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Recall: {{history}}", got.Text)
	assert.Equal(t, 1, got.MissingVariableCount())

	var codes []string
	for _, m := range got.Messages {
		codes = append(codes, m.Code)
	}
	assert.Contains(t, codes, model.CodeVariableResolveFailed)
	assert.Contains(t, codes, model.CodeMissingVariable)
	assert.NotContains(t, codes, model.CodeLocalFallback)
}
