// Package server exposes the dispatcher over MCP, plain HTTP and gRPC.
package server

import (
	"context"

	"github.com/triage-ai/graphql-mcp/internal/engine"
	"github.com/triage-ai/graphql-mcp/internal/registry"
)

// Dispatcher is what every surface delegates to.
type Dispatcher interface {
	Dispatch(ctx context.Context, call engine.Call) *engine.Envelope
	Tools() []*registry.ToolDefinition
}

// ToolInfo is the listing view of a registered tool.
type ToolInfo struct {
	Name        string               `json:"name"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	InputSchema map[string]any       `json:"inputSchema"`
	Annotations registry.Annotations `json:"annotations"`
	Paginated   bool                 `json:"paginated"`
}

func toolInfos(tools []*registry.ToolDefinition) []ToolInfo {
	out := make([]ToolInfo, 0, len(tools))
	for _, td := range tools {
		out = append(out, ToolInfo{
			Name:        td.Name,
			Title:       td.Title,
			Description: td.Description,
			InputSchema: td.InputSchema,
			Annotations: td.Annotations,
			Paginated:   td.Paginated,
		})
	}
	return out
}
