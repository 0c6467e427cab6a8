package model

import (
	"fmt"
	"time"
)

// Request size limits. A single oversized template or dataset row must not
// be able to exhaust the render pipeline or fill storage with
// caller-controlled garbage.
const (
	MaxNodesPerGraph    = 500
	MaxVariablesPerReq  = 500
	MaxTemplateLen      = 256 * 1024 // 256 KB
	MaxReplayLimit      = 200
	DefaultReplayLimit  = 20
	MaxSessionMessages  = 200
	DefaultChatMessages = 20
)

// API error codes used in error envelopes.
const (
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeSuperseded       = "superseded"
	ErrCodeInternal         = "internal_error"
)

// RenderRequest is the payload of preview/execute calls: a graph, its
// variable specs, and an output style.
type RenderRequest struct {
	Nodes       []Node      `json:"nodes"`
	Edges       []Edge      `json:"edges"`
	Variables   []Variable  `json:"variables"`
	OutputStyle OutputStyle `json:"outputStyle,omitempty"`
}

// Validate checks the structural preconditions that reject a render call
// before any rendering begins. Everything past this point degrades to
// diagnostics instead of failing.
func (r RenderRequest) Validate() error {
	if len(r.Nodes) > MaxNodesPerGraph {
		return fmt.Errorf("too many nodes: %d (max %d)", len(r.Nodes), MaxNodesPerGraph)
	}
	if len(r.Variables) > MaxVariablesPerReq {
		return fmt.Errorf("too many variables: %d (max %d)", len(r.Variables), MaxVariablesPerReq)
	}
	if err := ValidateGraph(r.Nodes); err != nil {
		return err
	}
	for i, n := range r.Nodes {
		if len(n.Content) > MaxTemplateLen {
			return fmt.Errorf("node[%d] %q: template exceeds %d bytes", i, n.ID, MaxTemplateLen)
		}
	}
	if err := ValidateVariables(r.Variables); err != nil {
		return err
	}
	if r.OutputStyle != "" && !r.OutputStyle.Valid() {
		return fmt.Errorf("unknown output style %q", r.OutputStyle)
	}
	return nil
}

// ReplayRequest asks for a dataset window to be replayed against a project.
type ReplayRequest struct {
	ProjectID string `json:"projectId"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// APIResponse is the standard response envelope.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ErrorDetail carries a machine-readable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta is attached to every response for request correlation.
type ResponseMeta struct {
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}
