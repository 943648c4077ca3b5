package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/graphql-mcp/internal/auth"
	"github.com/triage-ai/graphql-mcp/internal/catalog"
	"github.com/triage-ai/graphql-mcp/internal/graphql"
	"github.com/triage-ai/graphql-mcp/internal/pagination"
	"github.com/triage-ai/graphql-mcp/internal/registry"
	"github.com/triage-ai/graphql-mcp/internal/shape"
	"github.com/triage-ai/graphql-mcp/internal/storage"
	"github.com/triage-ai/graphql-mcp/internal/toolerr"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// internalMessage replaces the details of unexpected failures.
const internalMessage = "internal error"

// Invoker executes a single operation call.
type Invoker interface {
	Invoke(ctx context.Context, desc *catalog.OperationDescriptor, args map[string]any) (*graphql.Result, error)
}

// Fetcher materializes a window of a paginated operation.
type Fetcher interface {
	Fetch(ctx context.Context, desc *catalog.OperationDescriptor, args map[string]any, w pagination.Window) (*pagination.Page, error)
}

// Observer records one finished invocation. kind is empty on success.
type Observer interface {
	ObserveInvocation(tool string, kind toolerr.Kind, elapsed time.Duration)
}

// Call is one tool invocation as received from a surface.
type Call struct {
	ToolName string
	// Arguments must be a JSON object or null.
	Arguments json.RawMessage
	// Source names the surface ("mcp", "http", "grpc").
	Source string
}

// Envelope is the uniform reply for every invocation.
type Envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ErrorBody      `json:"error,omitempty"`
	RequestID string          `json:"requestId"`
}

// ErrorBody carries the error kind, the optional backend code and a message.
type ErrorBody struct {
	Kind    toolerr.Kind `json:"kind"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message"`
}

// Dispatcher runs tool invocations. Safe for concurrent use; every call is
// independent, with no caching or deduplication of results.
type Dispatcher struct {
	registry registry.ToolRegistry
	client   Invoker
	pager    Fetcher
	writer   storage.EventWriter
	observer Observer
	logger   *zap.Logger
}

// NewDispatcher wires a dispatcher. observer may be nil.
func NewDispatcher(
	reg registry.ToolRegistry,
	client Invoker,
	pager Fetcher,
	writer storage.EventWriter,
	observer Observer,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		client:   client,
		pager:    pager,
		writer:   writer,
		observer: observer,
		logger:   logger,
	}
}

// Tools lists the registered tools.
func (d *Dispatcher) Tools() []*registry.ToolDefinition {
	return d.registry.List()
}

// invocation is the per-call state carried through the machine.
type invocation struct {
	requestID string
	call      Call
	machine   *machine
	tool      *registry.ToolDefinition
	args      map[string]any
	opArgs    map[string]any
	window    pagination.Window
}

// Dispatch runs one invocation to completion. It never returns a Go error:
// every outcome, including panics in execution, becomes an Envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) *Envelope {
	start := time.Now()
	inv := &invocation{
		requestID: uuid.New().String(),
		call:      call,
		machine:   newMachine(),
	}
	ctx, calls := graphql.WithCallCounter(ctx)

	var (
		data json.RawMessage
		err  error
	)
	if err = d.validate(inv); err == nil {
		data, err = d.run(ctx, inv)
	}

	env := &Envelope{RequestID: inv.requestID}
	if err != nil {
		d.transition(inv, StateFailed)
		env.Status = StatusError
		env.Error = errorBody(err)
		if env.Error.Kind == toolerr.KindInternal {
			d.logger.Error("tool invocation failed",
				zap.String("request_id", inv.requestID),
				zap.String("tool_name", call.ToolName),
				zap.Error(err),
			)
		}
	} else {
		d.transition(inv, StateSucceeded)
		env.Status = StatusSuccess
		env.Data = data
	}

	elapsed := time.Since(start)
	kind := toolerr.Kind("")
	if env.Error != nil {
		kind = env.Error.Kind
	}
	if d.observer != nil {
		d.observer.ObserveInvocation(call.ToolName, kind, elapsed)
	}
	d.writeEvent(ctx, inv, env, uint32(calls.Load()), elapsed)
	return env
}

// validate covers RECEIVED → VALIDATED.
func (d *Dispatcher) validate(inv *invocation) error {
	td, err := d.registry.Resolve(inv.call.ToolName)
	if err != nil {
		return err
	}
	inv.tool = td

	args, err := decodeArguments(inv.call.Arguments)
	if err != nil {
		return err
	}
	if err := td.ValidateInput(args); err != nil {
		return err
	}
	inv.args = args
	return d.transition(inv, StateValidated)
}

// run covers VALIDATED → EXECUTING and the backend work.
func (d *Dispatcher) run(ctx context.Context, inv *invocation) (data json.RawMessage, err error) {
	opArgs, w, err := inv.tool.OperationArguments(inv.args)
	if err != nil {
		return nil, err
	}
	inv.opArgs, inv.window = opArgs, w
	if err := d.transition(inv, StateExecuting); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic during tool execution",
				zap.String("request_id", inv.requestID),
				zap.String("tool_name", inv.tool.Name),
				zap.Any("panic", r),
			)
			data, err = nil, toolerr.Newf(toolerr.KindInternal, "panic: %v", r)
		}
	}()

	desc := inv.tool.Operation
	if inv.tool.Paginated {
		page, err := d.pager.Fetch(ctx, desc, opArgs, w)
		if err != nil {
			return nil, err
		}
		if data, err = json.Marshal(page); err != nil {
			return nil, fmt.Errorf("run: encode page: %w", err)
		}
	} else {
		res, err := d.client.Invoke(ctx, desc, opArgs)
		if err != nil {
			return nil, err
		}
		data = res.Data
	}
	if len(data) == 0 {
		data = json.RawMessage("null")
	}

	if inv.tool.Result != nil {
		if data, err = shape.Apply(inv.tool.Result, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (d *Dispatcher) transition(inv *invocation, to State) error {
	from := inv.machine.state
	if err := inv.machine.advance(to); err != nil {
		d.logger.Error("rejected state transition",
			zap.String("request_id", inv.requestID),
			zap.Error(err),
		)
		return toolerr.Wrap(toolerr.KindInternal, err, "dispatch state")
	}
	d.logger.Debug("invocation state",
		zap.String("request_id", inv.requestID),
		zap.String("tool_name", inv.call.ToolName),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

func (d *Dispatcher) writeEvent(ctx context.Context, inv *invocation, env *Envelope, backendCalls uint32, elapsed time.Duration) {
	if d.writer == nil {
		return
	}
	event := &storage.InvocationEvent{
		RequestID:     inv.requestID,
		HostID:        auth.HostFrom(ctx).ID,
		Timestamp:     time.Now(),
		ToolName:      inv.call.ToolName,
		ArgumentsJSON: storage.Truncate(string(inv.call.Arguments), storage.ArgumentsPreviewLength),
		Status:        env.Status,
		BackendCalls:  backendCalls,
		LatencyMs:     float32(float64(elapsed) / float64(time.Millisecond)),
		Source:        inv.call.Source,
	}
	if inv.tool != nil {
		event.Operation = inv.tool.Operation.Name
	}
	if env.Error != nil {
		event.ErrorKind = string(env.Error.Kind)
		event.ErrorCode = env.Error.Code
		event.ErrorMessage = env.Error.Message
	}
	d.writer.Write(event)
}

// decodeArguments accepts a JSON object, null, or nothing.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, toolerr.Wrap(toolerr.KindValidation, err, "arguments are not valid JSON")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, toolerr.New(toolerr.KindValidation, "arguments must be a JSON object")
	}
	return obj, nil
}

// errorBody maps err onto the envelope. Only classified messages are passed
// through; wrapped causes and unclassified errors never reach the caller.
func errorBody(err error) *ErrorBody {
	if te, ok := toolerr.As(err); ok && te.Kind != toolerr.KindInternal {
		return &ErrorBody{Kind: te.Kind, Code: te.Code, Message: te.Message}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ErrorBody{Kind: toolerr.KindTransport, Message: "request cancelled"}
	}
	return &ErrorBody{Kind: toolerr.KindInternal, Message: internalMessage}
}
