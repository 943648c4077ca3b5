package catalog

import (
	"fmt"
	"strings"
)

// OperationKind is the GraphQL root an operation hangs off.
type OperationKind string

const (
	Query    OperationKind = "query"
	Mutation OperationKind = "mutation"
)

// ScalarKind is the validation rule a scalar argument maps to.
type ScalarKind uint8

const (
	ScalarString ScalarKind = iota + 1
	ScalarInt
	ScalarFloat
	ScalarBoolean
	ScalarID
	ScalarAny
)

func (s ScalarKind) String() string {
	switch s {
	case ScalarString:
		return "String"
	case ScalarInt:
		return "Int"
	case ScalarFloat:
		return "Float"
	case ScalarBoolean:
		return "Boolean"
	case ScalarID:
		return "ID"
	case ScalarAny:
		return "Any"
	default:
		return "Unknown"
	}
}

// ParseScalarKind maps a manifest scalar name ("string", "number", ...) to a ScalarKind.
func ParseScalarKind(s string) (ScalarKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string":
		return ScalarString, nil
	case "int", "integer":
		return ScalarInt, nil
	case "float", "number":
		return ScalarFloat, nil
	case "bool", "boolean":
		return ScalarBoolean, nil
	case "id":
		return ScalarID, nil
	case "any", "json":
		return ScalarAny, nil
	}
	return 0, fmt.Errorf("unknown scalar kind %q", s)
}

// TypeKind tags the TypeRef variant.
type TypeKind uint8

const (
	KindScalar TypeKind = iota + 1
	KindEnum
	KindInputObject
	KindList
	KindNonNull
)

// TypeRef is an input type resolved at catalog build time. Scalar, Enum and
// InputObject carry Name; List and NonNull carry Of.
type TypeRef struct {
	Kind   TypeKind
	Name   string
	Scalar ScalarKind
	Of     *TypeRef
}

// String renders the type in GraphQL notation.
func (t TypeRef) String() string {
	switch t.Kind {
	case KindList:
		return "[" + t.Of.String() + "]"
	case KindNonNull:
		return t.Of.String() + "!"
	default:
		return t.Name
	}
}

// IsNonNull reports whether the outermost wrapper is NonNull.
func (t TypeRef) IsNonNull() bool { return t.Kind == KindNonNull }

// Named unwraps List and NonNull wrappers.
func (t TypeRef) Named() TypeRef {
	for t.Kind == KindList || t.Kind == KindNonNull {
		t = *t.Of
	}
	return t
}

// Constraints are the value rules checked on top of the type.
type Constraints struct {
	Min  *float64
	Max  *float64
	Enum []string
}

// ArgumentSchema describes one operation argument or input object field.
type ArgumentSchema struct {
	Name        string
	Description string
	Type        TypeRef
	// Required is true for non-null arguments without a default.
	Required    bool
	HasDefault  bool
	Default     any
	Constraints Constraints
}

// InputObject is a resolved GraphQL input object type.
type InputObject struct {
	Name        string
	Description string
	Fields      []ArgumentSchema
}

// Field returns the named input field.
func (o *InputObject) Field(name string) (ArgumentSchema, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ArgumentSchema{}, false
}

// ReturnKind is the GraphQL kind of an operation's named return type.
type ReturnKind string

const (
	ReturnScalar    ReturnKind = "scalar"
	ReturnEnum      ReturnKind = "enum"
	ReturnObject    ReturnKind = "object"
	ReturnInterface ReturnKind = "interface"
	ReturnUnion     ReturnKind = "union"
)

// ReturnShape describes what an operation returns and how it is selected.
type ReturnShape struct {
	Type      string // GraphQL notation, e.g. "[Product!]!"
	NamedType string
	Kind      ReturnKind
	List      bool
	Selection string // empty for scalars and enums
}

// Connection marks a cursor-paginated return type.
type Connection struct {
	NodeType      string
	NodeSelection string
	EdgeCursor    bool
}

// OperationDescriptor is one query or mutation field. Descriptors are shared
// between goroutines and must not be modified after the catalog is built.
type OperationDescriptor struct {
	Name        string
	Kind        OperationKind
	Description string
	Arguments   []ArgumentSchema
	Return      ReturnShape
	Paginated   bool
	Connection  *Connection
	// Document is the GraphQL request sent for every invocation.
	Document      string
	OperationName string
	// Inputs and Enums hold every input object and enum reachable from Arguments.
	Inputs map[string]*InputObject
	Enums  map[string][]string
}

// Argument returns the named argument.
func (d *OperationDescriptor) Argument(name string) (ArgumentSchema, bool) {
	for _, a := range d.Arguments {
		if a.Name == name {
			return a, true
		}
	}
	return ArgumentSchema{}, false
}

// CursorArguments are the Relay connection arguments hidden behind offset/limit windows.
var CursorArguments = []string{"first", "after", "last", "before"}

// IsCursorArgument reports whether name is a connection cursor argument.
func IsCursorArgument(name string) bool {
	for _, c := range CursorArguments {
		if c == name {
			return true
		}
	}
	return false
}
