package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/triage-ai/graphql-mcp/internal/auth"
	"github.com/triage-ai/graphql-mcp/internal/engine"
)

// ToolServiceName is the fully-qualified gRPC service name.
const ToolServiceName = "graphqlmcp.v1.ToolService"

const (
	listToolsMethod = "/" + ToolServiceName + "/ListTools"
	callToolMethod  = "/" + ToolServiceName + "/CallTool"
)

// ToolServiceServer is the gRPC tool boundary. Payloads use the protobuf
// well-known Struct type: CallTool takes {toolName, arguments} and returns the
// envelope; ListTools returns {tools: [...]}.
type ToolServiceServer interface {
	ListTools(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	CallTool(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ToolServiceDesc describes ToolServiceServer for grpc.Server.RegisterService.
var ToolServiceDesc = grpc.ServiceDesc{
	ServiceName: ToolServiceName,
	HandlerType: (*ToolServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListTools", Handler: listToolsHandler},
		{MethodName: "CallTool", Handler: callToolHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "graphqlmcp/v1/tool_service.proto",
}

func listToolsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ToolServiceServer).ListTools(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listToolsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ToolServiceServer).ListTools(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func callToolHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ToolServiceServer).CallTool(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callToolMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ToolServiceServer).CallTool(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ToolServiceClient calls a remote ToolService.
type ToolServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewToolServiceClient(cc grpc.ClientConnInterface) *ToolServiceClient {
	return &ToolServiceClient{cc: cc}
}

func (c *ToolServiceClient) ListTools(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listToolsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ToolServiceClient) CallTool(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, callToolMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GRPCServer implements ToolServiceServer on top of a Dispatcher.
type GRPCServer struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

func NewGRPCServer(d Dispatcher, logger *zap.Logger) *GRPCServer {
	return &GRPCServer{dispatcher: d, logger: logger}
}

// Register attaches the service to gs.
func (s *GRPCServer) Register(gs *grpc.Server) {
	gs.RegisterService(&ToolServiceDesc, s)
}

func (s *GRPCServer) ListTools(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(map[string]any{"tools": toolInfos(s.dispatcher.Tools())})
	if err != nil {
		s.logger.Error("encode tool list", zap.Error(err))
		return nil, status.Error(codes.Internal, "encode tool list")
	}
	return out, nil
}

func (s *GRPCServer) CallTool(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := req.GetFields()["toolName"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "toolName is required")
	}

	var raw json.RawMessage
	if args, ok := req.GetFields()["arguments"]; ok {
		b, err := args.MarshalJSON()
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "arguments: %v", err)
		}
		raw = b
	}

	env := s.dispatcher.Dispatch(ctx, engine.Call{ToolName: name, Arguments: raw, Source: "grpc"})
	out, err := toStruct(env)
	if err != nil {
		s.logger.Error("encode envelope", zap.String("tool_name", name), zap.Error(err))
		return nil, status.Error(codes.Internal, "encode envelope")
	}
	return out, nil
}

// UnaryAuthInterceptor authenticates every call from the authorization
// metadata and stores the host in the context.
func UnaryAuthInterceptor(a auth.Authenticator, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		host, err := a.Authenticate(ctx, auth.ExtractBearerToken(ctx))
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				return nil, status.Error(codes.Unauthenticated, "authentication failed")
			}
			logger.Error("authentication backend failed", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Unavailable, "authentication unavailable")
		}
		return handler(auth.WithHost(ctx, host), req)
	}
}

// toStruct converts v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("toStruct: %w", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, fmt.Errorf("toStruct: %w", err)
	}
	return out, nil
}
