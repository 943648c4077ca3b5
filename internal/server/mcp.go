package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/triage-ai/graphql-mcp/internal/auth"
	"github.com/triage-ai/graphql-mcp/internal/engine"
	"github.com/triage-ai/graphql-mcp/internal/registry"
)

// ServerName is advertised to MCP hosts.
const ServerName = "graphql-mcp"

// NewMCPServer registers every tool of d with an mcp-go server.
func NewMCPServer(d Dispatcher, version string, logger *zap.Logger) (*mcpserver.MCPServer, error) {
	s := mcpserver.NewMCPServer(ServerName, version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	for _, td := range d.Tools() {
		tool, err := mcpTool(td)
		if err != nil {
			return nil, err
		}
		s.AddTool(tool, callHandler(d, td.Name, logger))
	}
	logger.Info("mcp tools registered", zap.Int("tools", len(d.Tools())))
	return s, nil
}

func mcpTool(td *registry.ToolDefinition) (mcp.Tool, error) {
	schema, err := json.Marshal(td.InputSchema)
	if err != nil {
		return mcp.Tool{}, err
	}
	tool := mcp.NewToolWithRawSchema(td.Name, td.Description, schema)
	tool.Annotations = mcp.ToolAnnotation{
		Title:           td.Title,
		ReadOnlyHint:    td.Annotations.ReadOnly,
		DestructiveHint: td.Annotations.Destructive,
		IdempotentHint:  td.Annotations.Idempotent,
		OpenWorldHint:   td.Annotations.OpenWorld,
	}
	return tool, nil
}

// callHandler turns the envelope into a tool result; error envelopes set isError.
func callHandler(d Dispatcher, name string, logger *zap.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req.Params.Arguments != nil {
			b, err := json.Marshal(req.Params.Arguments)
			if err != nil {
				return mcp.NewToolResultError("arguments are not JSON encodable"), nil
			}
			raw = b
		}
		env := d.Dispatch(ctx, engine.Call{ToolName: name, Arguments: raw, Source: "mcp"})
		body, err := json.Marshal(env)
		if err != nil {
			logger.Error("encode envelope", zap.String("tool_name", name), zap.Error(err))
			return mcp.NewToolResultError("internal error"), nil
		}
		if env.Status == engine.StatusError {
			return mcp.NewToolResultError(string(body)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// NewStreamableHandler serves MCP over streamable HTTP. The host set by the
// auth middleware is carried into tool calls.
func NewStreamableHandler(s *mcpserver.MCPServer) http.Handler {
	return mcpserver.NewStreamableHTTPServer(s,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return auth.WithHost(ctx, auth.HostFrom(r.Context()))
		}),
	)
}

// ServeStdio serves MCP over in/out until ctx is done or in is closed.
func ServeStdio(ctx context.Context, s *mcpserver.MCPServer, in io.Reader, out io.Writer, logger *zap.Logger) error {
	stdio := mcpserver.NewStdioServer(s)
	stdio.SetErrorLogger(zap.NewStdLog(logger))
	return stdio.Listen(ctx, in, out)
}
