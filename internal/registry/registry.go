// Package registry holds the curated set of tools exposed to hosts. Tools are
// registered once at startup, the registry is sealed, and from then on it is
// read-only.
package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/triage-ai/graphql-mcp/internal/catalog"
	"github.com/triage-ai/graphql-mcp/internal/pagination"
	"github.com/triage-ai/graphql-mcp/internal/toolerr"
)

// ToolRegistry resolves tools by name.
type ToolRegistry interface {
	// Resolve returns the named tool or a NotFound error.
	Resolve(name string) (*ToolDefinition, error)
	// List returns tools in registration order.
	List() []*ToolDefinition
}

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Registry is the in-memory ToolRegistry.
type Registry struct {
	window pagination.Config
	logger *zap.Logger

	mu     sync.RWMutex
	tools  []*ToolDefinition
	byName map[string]*ToolDefinition
	sealed bool
}

// New returns an empty registry. window is only used to describe the
// offset/limit arguments of paginated tools.
func New(window pagination.Config, logger *zap.Logger) *Registry {
	if window.DefaultLimit <= 0 {
		window.DefaultLimit = pagination.DefaultLimit
	}
	if window.MaxLimit <= 0 {
		window.MaxLimit = pagination.DefaultMaxLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		window: window,
		logger: logger,
		byName: make(map[string]*ToolDefinition),
	}
}

// Register adds a tool invoking desc. exposed lists the tool-facing
// arguments; every required operation argument must be exposed or fixed.
func (r *Registry) Register(desc *catalog.OperationDescriptor, toolName string, exposed []ExposedArg, opts ...Option) (*ToolDefinition, error) {
	if desc == nil {
		return nil, toolerr.Newf(toolerr.KindRegistration, "tool %q: no operation", toolName)
	}
	if !toolNamePattern.MatchString(toolName) {
		return nil, toolerr.Newf(toolerr.KindRegistration, "tool name %q must match %s", toolName, toolNamePattern)
	}

	td := &ToolDefinition{
		Name:        toolName,
		Description: desc.Description,
		Arguments:   append([]ExposedArg(nil), exposed...),
		Paginated:   desc.Paginated,
		Operation:   desc,
	}
	for _, opt := range opts {
		opt(td)
	}
	if td.Description == "" {
		td.Description = fmt.Sprintf("GraphQL %s %s.", desc.Kind, desc.Name)
	}

	if err := r.checkArguments(td); err != nil {
		return nil, err
	}
	if td.Result != nil {
		if err := td.Result.Validate(); err != nil {
			return nil, toolerr.Wrap(toolerr.KindRegistration, err, fmt.Sprintf("tool %q: invalid result shape", toolName))
		}
	}

	td.InputSchema = r.inputSchema(td)
	sch, err := compileSchema(td.Name, td.InputSchema)
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindRegistration, err, fmt.Sprintf("tool %q: input schema does not compile", toolName))
	}
	td.schema = sch

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return nil, toolerr.Newf(toolerr.KindRegistration, "tool %q: registry is sealed", toolName)
	}
	if _, dup := r.byName[toolName]; dup {
		return nil, toolerr.Newf(toolerr.KindRegistration, "tool %q is already registered", toolName)
	}
	r.tools = append(r.tools, td)
	r.byName[toolName] = td

	r.logger.Debug("tool registered",
		zap.String("tool_name", toolName),
		zap.String("operation", desc.Name),
		zap.Bool("paginated", td.Paginated),
	)
	return td, nil
}

func (r *Registry) checkArguments(td *ToolDefinition) error {
	desc := td.Operation
	fail := func(format string, args ...any) error {
		return toolerr.Newf(toolerr.KindRegistration, "tool %q: "+format, append([]any{td.Name}, args...)...)
	}

	names := make(map[string]bool, len(td.Arguments))
	targets := make(map[string]bool, len(td.Arguments))
	for _, a := range td.Arguments {
		if a.Name == "" {
			return fail("exposed argument without a name")
		}
		if names[a.Name] {
			return fail("argument %q is exposed twice", a.Name)
		}
		names[a.Name] = true
		if td.Paginated && (a.Name == OffsetArgument || a.Name == LimitArgument) {
			return fail("argument name %q is reserved for pagination", a.Name)
		}

		target := a.Target()
		if _, ok := desc.Argument(target); !ok {
			return fail("operation %s has no argument %q", desc.Name, target)
		}
		if td.Paginated && catalog.IsCursorArgument(target) {
			return fail("cursor argument %q cannot be exposed; use offset and limit", target)
		}
		if targets[target] {
			return fail("operation argument %q is exposed twice", target)
		}
		targets[target] = true
	}

	for name, v := range td.Fixed {
		if targets[name] {
			return fail("argument %q is both exposed and fixed", name)
		}
		if td.Paginated && catalog.IsCursorArgument(name) {
			return fail("cursor argument %q cannot be fixed", name)
		}
		if err := desc.ValidateArgument(name, v); err != nil {
			return toolerr.Wrap(toolerr.KindRegistration, err, fmt.Sprintf("tool %q: fixed value for %q is invalid", td.Name, name))
		}
	}

	for _, a := range desc.Arguments {
		// The normalizer supplies cursor arguments for paginated tools.
		if !a.Required || (td.Paginated && catalog.IsCursorArgument(a.Name)) {
			continue
		}
		if _, fixed := td.Fixed[a.Name]; !fixed && !targets[a.Name] {
			return fail("required argument %q is neither exposed nor fixed", a.Name)
		}
	}
	return nil
}

func (r *Registry) inputSchema(td *ToolDefinition) map[string]any {
	desc := td.Operation
	defs := make(map[string]any)
	props := make(map[string]any, len(td.Arguments)+2)
	required := make([]any, 0)

	for _, a := range td.Arguments {
		arg, _ := desc.Argument(a.Target())
		if a.Description != "" {
			arg.Description = a.Description
		}
		props[a.Name] = desc.ArgumentJSONSchema(arg, defs)
		if arg.Required {
			required = append(required, a.Name)
		}
	}

	if td.Paginated {
		props[OffsetArgument] = map[string]any{
			"type":        "integer",
			"minimum":     0,
			"default":     0,
			"description": "Number of items to skip.",
		}
		props[LimitArgument] = map[string]any{
			"type":    "integer",
			"minimum": 1,
			"default": r.window.DefaultLimit,
			"description": fmt.Sprintf("Maximum number of items to return (default %d, values above %d are capped).",
				r.window.DefaultLimit, r.window.MaxLimit),
		}
	}

	s := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	if len(defs) > 0 {
		s["$defs"] = defs
	}
	return s
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var schemaObj any
	if err := json.Unmarshal(schemaBytes, &schemaObj); err != nil {
		return nil, err
	}

	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, schemaObj); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Seal rejects further registrations.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Resolve implements ToolRegistry.
func (r *Registry) Resolve(name string) (*ToolDefinition, error) {
	r.mu.RLock()
	td, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, toolerr.Newf(toolerr.KindNotFound, "tool %q is not registered", name)
	}
	return td, nil
}

// List implements ToolRegistry.
func (r *Registry) List() []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolDefinition, len(r.tools))
	copy(out, r.tools)
	return out
}

// ValidateInput checks tool arguments against the compiled input schema.
func (t *ToolDefinition) ValidateInput(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	if t.schema == nil {
		return toolerr.Newf(toolerr.KindInternal, "tool %q has no compiled schema", t.Name)
	}
	// The validator expects values as encoding/json produces them.
	b, err := json.Marshal(args)
	if err != nil {
		return toolerr.Wrap(toolerr.KindValidation, err, "arguments are not JSON encodable")
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return toolerr.Wrap(toolerr.KindValidation, err, "arguments are not JSON encodable")
	}
	if err := t.schema.Validate(doc); err != nil {
		return toolerr.New(toolerr.KindValidation, "arguments do not match the input schema: "+strings.TrimSpace(err.Error()))
	}
	return nil
}

// OperationArguments maps validated tool arguments onto the operation: exposed
// names are renamed, fixed values are added and window fields are split off.
func (t *ToolDefinition) OperationArguments(args map[string]any) (map[string]any, pagination.Window, error) {
	out := make(map[string]any, len(t.Fixed)+len(args))
	for k, v := range t.Fixed {
		out[k] = v
	}
	for _, a := range t.Arguments {
		if v, ok := args[a.Name]; ok {
			out[a.Target()] = v
		}
	}

	var w pagination.Window
	if !t.Paginated {
		return out, w, nil
	}
	var err error
	if w.Offset, err = intArgument(args, OffsetArgument); err != nil {
		return nil, w, err
	}
	if w.Limit, err = intArgument(args, LimitArgument); err != nil {
		return nil, w, err
	}
	return out, w, nil
}

func intArgument(args map[string]any, name string) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return 0, nil
	}
	var f float64
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, toolerr.Newf(toolerr.KindValidation, "argument %s: expected integer", name)
		}
		f = parsed
	default:
		return 0, toolerr.Newf(toolerr.KindValidation, "argument %s: expected integer", name)
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, toolerr.Newf(toolerr.KindValidation, "argument %s: expected integer", name)
	}
	return int(f), nil
}
