package loom

import (
	"encoding/json"
	"time"
)

// Node is one block of template text in a context graph.
type Node struct {
	ID      string `json:"id"`
	Label   string `json:"label,omitempty"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// Node kinds accepted by the server.
const (
	NodeKindSystem    = "system"
	NodeKindUser      = "user"
	NodeKindAssistant = "assistant"
	NodeKindTool      = "tool"
	NodeKindMemory    = "memory"
	NodeKindRetrieval = "retrieval"
	NodeKindText      = "text"
)

// Edge is a directed ordering constraint between two nodes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Variable is a named value substituted into node templates via {{name}}.
// Static variables carry their value inline; dynamic variables name a
// resolver URL (chat://, sql://, sqlite://, neo4j://, milvus://, qdrant://,
// pgvector://).
type Variable struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    string `json:"value,omitempty"`
	Resolver string `json:"resolver,omitempty"`
}

// Variable types.
const (
	VarTypeStatic  = "static"
	VarTypeDynamic = "dynamic"
)

// Output styles for assembled text.
const (
	OutputStyleLabeled = "labeled"
	OutputStylePlain   = "plain"
)

// RenderRequest is the graph payload for Preview and Execute.
type RenderRequest struct {
	Nodes       []Node     `json:"nodes"`
	Edges       []Edge     `json:"edges,omitempty"`
	Variables   []Variable `json:"variables,omitempty"`
	OutputStyle string     `json:"outputStyle,omitempty"`
}

// Message is one non-fatal diagnostic emitted during a render.
type Message struct {
	Severity string         `json:"severity"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// Segment is one node's contribution to the assembled text.
type Segment struct {
	NodeID           string    `json:"nodeId"`
	Label            string    `json:"label"`
	Kind             string    `json:"kind"`
	Template         string    `json:"template"`
	Rendered         string    `json:"rendered"`
	MissingVariables []string  `json:"missingVariables"`
	Messages         []Message `json:"messages"`
}

// TraceRun is the full result of one render.
type TraceRun struct {
	RunID       string    `json:"runId"`
	CreatedAt   time.Time `json:"createdAt"`
	OutputStyle string    `json:"outputStyle"`
	Text        string    `json:"text"`
	Segments    []Segment `json:"segments"`
	Messages    []Message `json:"messages"`
}

// ProjectState is the stored graph snapshot of a project.
type ProjectState struct {
	Nodes     []Node     `json:"nodes"`
	Edges     []Edge     `json:"edges,omitempty"`
	Variables []Variable `json:"variables,omitempty"`
}

// Project is a named, stored context graph.
type Project struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	State     ProjectState `json:"state"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Dataset is a named collection of replay rows. Each row is an arbitrary
// JSON value; object fields override matching variables during replay.
type Dataset struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Rows      []json.RawMessage `json:"rows"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// RunSummary is the header of one persisted render run.
type RunSummary struct {
	RunID                 string    `json:"runId"`
	CreatedAt             time.Time `json:"createdAt"`
	RowIndex              int       `json:"rowIndex"`
	Status                string    `json:"status"`
	OutputDigest          string    `json:"outputDigest"`
	MissingVariablesCount int       `json:"missingVariablesCount"`
}

// RunRecord is one persisted render run with its full trace.
type RunRecord struct {
	RunID                 string    `json:"runId"`
	CreatedAt             time.Time `json:"createdAt"`
	ProjectID             string    `json:"projectId"`
	DatasetID             string    `json:"datasetId"`
	RowIndex              int       `json:"rowIndex"`
	Status                string    `json:"status"`
	OutputDigest          string    `json:"outputDigest"`
	MissingVariablesCount int       `json:"missingVariablesCount"`
	Trace                 TraceRun  `json:"trace"`
}

// DiffLine is one line of a run comparison.
type DiffLine struct {
	Left  string `json:"left"`
	Right string `json:"right"`
	Kind  string `json:"kind"`
}

// RunComparison is the drift verdict between two runs.
type RunComparison struct {
	Verdict string     `json:"verdict"`
	Left    RunSummary `json:"left"`
	Right   RunSummary `json:"right"`
	Diff    []DiffLine `json:"diff"`
}

// Comparison verdicts.
const (
	VerdictStable = "stable"
	VerdictDrift  = "drift"
)

// ChatMessage is one turn of a stored chat session.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a stored chat transcript, the target of chat:// resolvers.
type Session struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// DataSource is a named external connection record. The connection URL is
// sealed server-side and never returned.
type DataSource struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

// HealthResponse is the server health report.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds int     `json:"uptimeSeconds"`
}
