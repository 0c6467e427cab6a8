// Package mcp implements the Model Context Protocol server for Loom.
//
// The MCP server exposes the render pipeline and replay history through
// MCP resources and tools, so MCP-compatible AI agents can preview context
// graphs, replay datasets, and inspect drift without the HTTP API.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/replay"
	"github.com/loomworks/loom/internal/storage"
)

// Server wraps the MCP server with Loom's render and replay services.
type Server struct {
	mcpServer *mcpserver.MCPServer
	db        *storage.DB
	renderer  engine.Renderer
	replayer  *replay.Orchestrator
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(db *storage.DB, renderer engine.Renderer, replayer *replay.Orchestrator, logger *slog.Logger) *Server {
	s := &Server{
		db:       db,
		renderer: renderer,
		replayer: replayer,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"loom",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// loom://projects — stored project snapshots.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"loom://projects",
			"Projects",
			mcplib.WithResourceDescription("Stored context graph projects"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleProjectsResource,
	)

	// loom://datasets — stored dataset headers.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"loom://datasets",
			"Datasets",
			mcplib.WithResourceDescription("Stored replay datasets"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleDatasetsResource,
	)

	// loom://run/{id} — one full run record with its trace.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"loom://run/{id}",
			"Run Record",
			mcplib.WithTemplateDescription("A persisted render run with its full trace"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleRunResource,
	)
}

func (s *Server) handleProjectsResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	projects, err := s.db.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: list projects: %w", err)
	}
	return jsonResource(request.Params.URI, projects)
}

func (s *Server) handleDatasetsResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	datasets, err := s.db.ListDatasets(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: list datasets: %w", err)
	}
	return jsonResource(request.Params.URI, datasets)
}

func (s *Server) handleRunResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	id := extractRunID(request.Params.URI)
	if id == "" {
		return nil, fmt.Errorf("mcp: run resource: missing id in %q", request.Params.URI)
	}
	rec, err := s.db.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mcp: get run %q: %w", id, err)
	}
	return jsonResource(request.Params.URI, rec)
}

// extractRunID pulls the {id} out of a loom://run/{id} URI.
func extractRunID(uri string) string {
	const prefix = "loom://run/"
	if len(uri) <= len(prefix) || uri[:len(prefix)] != prefix {
		return ""
	}
	return uri[len(prefix):]
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal resource: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		IsError: true,
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
	}
}

func textResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
