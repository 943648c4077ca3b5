package registry

import (
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/triage-ai/graphql-mcp/internal/catalog"
	"github.com/triage-ai/graphql-mcp/internal/shape"
)

// Window argument names added to paginated tools.
const (
	OffsetArgument = "offset"
	LimitArgument  = "limit"
)

// ToolDefinition is a registered tool. Immutable once registered.
type ToolDefinition struct {
	Name        string
	Title       string
	Description string
	Annotations Annotations
	// Arguments are the tool-facing arguments in exposure order.
	Arguments []ExposedArg
	// Fixed operation arguments are sent on every call and hidden from callers.
	Fixed     map[string]any
	Paginated bool
	// InputSchema is the JSON Schema advertised to hosts.
	InputSchema map[string]any
	Operation   *catalog.OperationDescriptor
	Result      *shape.Spec

	schema *jsonschema.Schema
}

// ExposedArg maps a tool argument onto an operation argument.
type ExposedArg struct {
	Name string `yaml:"name" json:"name"`
	// MapsTo names the operation argument. Empty means Name.
	MapsTo      string `yaml:"maps_to" json:"maps_to,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Target returns the operation argument name.
func (a ExposedArg) Target() string {
	if a.MapsTo != "" {
		return a.MapsTo
	}
	return a.Name
}

// Annotations are the MCP tool behaviour hints. Nil means unset.
type Annotations struct {
	ReadOnly    *bool `yaml:"read_only" json:"read_only,omitempty"`
	Destructive *bool `yaml:"destructive" json:"destructive,omitempty"`
	Idempotent  *bool `yaml:"idempotent" json:"idempotent,omitempty"`
	OpenWorld   *bool `yaml:"open_world" json:"open_world,omitempty"`
}

// Option customizes a registration.
type Option func(*ToolDefinition)

// WithTitle sets the human readable title.
func WithTitle(title string) Option {
	return func(t *ToolDefinition) { t.Title = title }
}

// WithDescription replaces the operation description.
func WithDescription(desc string) Option {
	return func(t *ToolDefinition) { t.Description = desc }
}

// WithAnnotations sets behaviour hints.
func WithAnnotations(a Annotations) Option {
	return func(t *ToolDefinition) { t.Annotations = a }
}

// WithFixed pins operation arguments to constant values.
func WithFixed(values map[string]any) Option {
	return func(t *ToolDefinition) {
		t.Fixed = make(map[string]any, len(values))
		for k, v := range values {
			t.Fixed[k] = v
		}
	}
}

// WithResult projects results into a shape.
func WithResult(s *shape.Spec) Option {
	return func(t *ToolDefinition) { t.Result = s }
}
