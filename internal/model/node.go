// Package model defines the core domain types for Loom.
//
// Types mirror the wire format of the HTTP API (camelCase JSON) and use
// closed string enums for node kinds, variable types, and run statuses so
// switches over them can be checked for exhaustiveness.
package model

import "fmt"

// NodeKind classifies a context node's role in the assembled prompt.
type NodeKind string

const (
	NodeKindSystem    NodeKind = "system"
	NodeKindUser      NodeKind = "user"
	NodeKindAssistant NodeKind = "assistant"
	NodeKindTool      NodeKind = "tool"
	NodeKindMemory    NodeKind = "memory"
	NodeKindRetrieval NodeKind = "retrieval"
	NodeKindText      NodeKind = "text"
)

// Valid reports whether k is one of the closed set of node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindSystem, NodeKindUser, NodeKindAssistant, NodeKindTool,
		NodeKindMemory, NodeKindRetrieval, NodeKindText:
		return true
	}
	return false
}

// Node is one labeled content block in the context graph. Immutable during
// a render pass; the engine never mutates caller-supplied nodes.
type Node struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Kind    NodeKind `json:"kind"`
	Content string   `json:"content"`
}

// Edge declares a "must render before" relation between two nodes.
// It is an ordering constraint, not necessarily a data dependency.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// ValidateGraph checks the structural preconditions for a render request:
// every node needs an ID and a known kind, and node IDs must be unique.
// Edges referencing unknown nodes are tolerated (the orderer ignores them).
func ValidateGraph(nodes []Node) error {
	seen := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("node[%d]: id is required", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("node[%d]: duplicate node id %q", i, n.ID)
		}
		seen[n.ID] = true
		if n.Kind != "" && !n.Kind.Valid() {
			return fmt.Errorf("node[%d]: unknown kind %q", i, n.Kind)
		}
	}
	return nil
}
