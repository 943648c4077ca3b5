// Package catalog builds immutable operation descriptors from a GraphQL SDL
// document. Type resolution happens once here; invocation-time code only
// looks at TypeRef tags.
package catalog

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/triage-ai/graphql-mcp/internal/toolerr"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// DefaultSelectionDepth is the number of object levels selected below an
// operation (or below a connection node) when no selection is configured.
const DefaultSelectionDepth = 2

var builtinScalars = map[string]ScalarKind{
	"String":  ScalarString,
	"Int":     ScalarInt,
	"Float":   ScalarFloat,
	"Boolean": ScalarBoolean,
	"ID":      ScalarID,
}

// Options controls catalog construction.
type Options struct {
	// Scalars maps custom scalar names to validation rules. Arguments using an
	// unmapped custom scalar fail the build.
	Scalars map[string]ScalarKind
	// Operations restricts the catalog to the named operations. Empty means all.
	Operations []string
	// MaxSelectionDepth defaults to DefaultSelectionDepth.
	MaxSelectionDepth int
}

// Catalog is the ordered set of operation descriptors derived from a schema.
type Catalog struct {
	operations []*OperationDescriptor
	byName     map[string]*OperationDescriptor
	fields     map[string]*ast.FieldDefinition
	schema     *ast.Schema
	depth      int
}

// Operations returns descriptors in schema declaration order, queries first.
func (c *Catalog) Operations() []*OperationDescriptor {
	out := make([]*OperationDescriptor, len(c.operations))
	copy(out, c.operations)
	return out
}

// Lookup returns the named descriptor.
func (c *Catalog) Lookup(name string) (*OperationDescriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Load reads an SDL file and builds its catalog.
func Load(path string, opts Options) (*Catalog, error) {
	sdl, err := os.ReadFile(path)
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindSchema, err, fmt.Sprintf("read schema file %s", path))
	}
	return Parse(path, string(sdl), opts)
}

// Parse builds the catalog for an SDL document. The same input always yields
// the same catalog.
func Parse(name, sdl string, opts Options) (*Catalog, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl})
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindSchema, err, "parse GraphQL schema")
	}

	depth := opts.MaxSelectionDepth
	if depth <= 0 {
		depth = DefaultSelectionDepth
	}

	b := &builder{
		schema: schema,
		opts:   opts,
		depth:  depth,
		inputs: make(map[string]*InputObject),
	}
	return b.build()
}

type builder struct {
	schema *ast.Schema
	opts   Options
	depth  int
	inputs map[string]*InputObject
}

func (b *builder) build() (*Catalog, error) {
	cat := &Catalog{
		byName: make(map[string]*OperationDescriptor),
		fields: make(map[string]*ast.FieldDefinition),
		schema: b.schema,
		depth:  b.depth,
	}

	wanted := make(map[string]bool, len(b.opts.Operations))
	for _, name := range b.opts.Operations {
		wanted[name] = true
	}

	roots := []struct {
		kind OperationKind
		def  *ast.Definition
	}{
		{Query, b.schema.Query},
		{Mutation, b.schema.Mutation},
	}

	for _, root := range roots {
		if root.def == nil {
			continue
		}
		for _, field := range root.def.Fields {
			if strings.HasPrefix(field.Name, "__") {
				continue
			}
			if len(wanted) > 0 && !wanted[field.Name] {
				continue
			}
			if _, dup := cat.byName[field.Name]; dup {
				return nil, toolerr.Newf(toolerr.KindSchema, "operation %q is declared on both query and mutation roots", field.Name)
			}
			desc, err := b.operation(root.kind, field)
			if err != nil {
				return nil, err
			}
			cat.operations = append(cat.operations, desc)
			cat.byName[desc.Name] = desc
			cat.fields[desc.Name] = field
		}
	}

	for _, name := range b.opts.Operations {
		if _, ok := cat.byName[name]; !ok {
			return nil, toolerr.Newf(toolerr.KindSchema, "operation %q not found in schema", name)
		}
	}

	return cat, nil
}

func (b *builder) operation(kind OperationKind, field *ast.FieldDefinition) (*OperationDescriptor, error) {
	desc := &OperationDescriptor{
		Name:          field.Name,
		Kind:          kind,
		Description:   strings.TrimSpace(field.Description),
		OperationName: operationName(field.Name),
		Inputs:        make(map[string]*InputObject),
		Enums:         make(map[string][]string),
	}

	for _, a := range field.Arguments {
		arg, err := b.argument(a.Name, a.Description, a.Type, a.DefaultValue)
		if err != nil {
			return nil, toolerr.Wrap(toolerr.KindSchema, err, fmt.Sprintf("operation %q argument %q", field.Name, a.Name))
		}
		desc.Arguments = append(desc.Arguments, arg)
		b.collect(arg.Type, desc)
	}

	ret, conn, err := b.returnShape(field)
	if err != nil {
		return nil, err
	}
	desc.Return = ret
	if conn != nil {
		desc.Paginated = true
		desc.Connection = conn
	}

	desc.Document = render(kind, field, desc.OperationName, ret.Selection)
	if err := b.validateDocument(field.Name, desc.Document); err != nil {
		return nil, err
	}
	return desc, nil
}

func (b *builder) returnShape(field *ast.FieldDefinition) (ReturnShape, *Connection, error) {
	named := b.schema.Types[field.Type.Name()]
	if named == nil {
		return ReturnShape{}, nil, toolerr.Newf(toolerr.KindSchema, "operation %q returns unresolvable type %q", field.Name, field.Type.Name())
	}

	ret := ReturnShape{
		Type:      field.Type.String(),
		NamedType: named.Name,
		List:      field.Type.Elem != nil,
	}

	switch named.Kind {
	case ast.Scalar:
		ret.Kind = ReturnScalar
		return ret, nil, nil
	case ast.Enum:
		ret.Kind = ReturnEnum
		return ret, nil, nil
	case ast.Object:
		ret.Kind = ReturnObject
	case ast.Interface:
		ret.Kind = ReturnInterface
	case ast.Union:
		ret.Kind = ReturnUnion
	default:
		return ReturnShape{}, nil, toolerr.Newf(toolerr.KindSchema, "operation %q returns %s type %q, which cannot be selected", field.Name, named.Kind, named.Name)
	}

	if conn, ok := b.connection(field, named); ok && !ret.List {
		ret.Selection = connectionSelection(conn)
		return ret, conn, nil
	}

	ret.Selection = b.selection(named, b.depth)
	if ret.Selection == "" {
		return ReturnShape{}, nil, toolerr.Newf(toolerr.KindSchema, "operation %q: type %q has no selectable fields", field.Name, named.Name)
	}
	return ret, nil, nil
}

// connection recognises Relay connections: first/after arguments and a return
// object with edges { node } and pageInfo { hasNextPage endCursor }.
func (b *builder) connection(field *ast.FieldDefinition, def *ast.Definition) (*Connection, bool) {
	if def.Kind != ast.Object {
		return nil, false
	}
	first := field.Arguments.ForName("first")
	after := field.Arguments.ForName("after")
	if first == nil || after == nil || first.Type.Elem != nil || after.Type.Elem != nil {
		return nil, false
	}
	if first.Type.NamedType != "Int" || after.Type.NamedType != "String" {
		return nil, false
	}

	edges := def.Fields.ForName("edges")
	pageInfo := def.Fields.ForName("pageInfo")
	if edges == nil || pageInfo == nil || edges.Type.Elem == nil {
		return nil, false
	}
	edgeDef := b.schema.Types[edges.Type.Name()]
	pageDef := b.schema.Types[pageInfo.Type.Name()]
	if edgeDef == nil || pageDef == nil {
		return nil, false
	}
	if pageDef.Fields.ForName("hasNextPage") == nil || pageDef.Fields.ForName("endCursor") == nil {
		return nil, false
	}
	node := edgeDef.Fields.ForName("node")
	if node == nil {
		return nil, false
	}
	nodeDef := b.schema.Types[node.Type.Name()]
	if nodeDef == nil {
		return nil, false
	}

	conn := &Connection{
		NodeType:   nodeDef.Name,
		EdgeCursor: edgeDef.Fields.ForName("cursor") != nil,
	}
	switch nodeDef.Kind {
	case ast.Scalar, ast.Enum:
	default:
		conn.NodeSelection = b.selection(nodeDef, b.depth)
		if conn.NodeSelection == "" {
			return nil, false
		}
	}
	return conn, true
}

func (b *builder) argument(name, description string, t *ast.Type, def *ast.Value) (ArgumentSchema, error) {
	ref, err := b.inputType(t)
	if err != nil {
		return ArgumentSchema{}, err
	}

	arg := ArgumentSchema{
		Name:        name,
		Description: strings.TrimSpace(description),
		Type:        ref,
	}
	if def != nil {
		v, err := def.Value(nil)
		if err != nil {
			return ArgumentSchema{}, fmt.Errorf("default value: %w", err)
		}
		arg.HasDefault = true
		arg.Default = v
	}
	arg.Required = ref.IsNonNull() && !arg.HasDefault
	arg.Constraints = b.constraints(ref)
	return arg, nil
}

var (
	minInt32 = float64(math.MinInt32)
	maxInt32 = float64(math.MaxInt32)
)

func (b *builder) constraints(ref TypeRef) Constraints {
	named := ref.Named()
	switch named.Kind {
	case KindScalar:
		if named.Scalar == ScalarInt {
			lo, hi := minInt32, maxInt32
			return Constraints{Min: &lo, Max: &hi}
		}
	case KindEnum:
		return Constraints{Enum: enumValues(b.schema.Types[named.Name])}
	}
	return Constraints{}
}

func (b *builder) inputType(t *ast.Type) (TypeRef, error) {
	var ref TypeRef
	if t.Elem != nil {
		of, err := b.inputType(t.Elem)
		if err != nil {
			return TypeRef{}, err
		}
		ref = TypeRef{Kind: KindList, Of: &of}
	} else {
		def := b.schema.Types[t.NamedType]
		if def == nil {
			return TypeRef{}, fmt.Errorf("unresolvable type %q", t.NamedType)
		}
		switch def.Kind {
		case ast.Scalar:
			kind, ok := builtinScalars[def.Name]
			if !ok {
				kind, ok = b.opts.Scalars[def.Name]
			}
			if !ok {
				return TypeRef{}, fmt.Errorf("custom scalar %q has no validation mapping", def.Name)
			}
			ref = TypeRef{Kind: KindScalar, Name: def.Name, Scalar: kind}
		case ast.Enum:
			ref = TypeRef{Kind: KindEnum, Name: def.Name}
		case ast.InputObject:
			if err := b.resolveInput(def); err != nil {
				return TypeRef{}, err
			}
			ref = TypeRef{Kind: KindInputObject, Name: def.Name}
		default:
			return TypeRef{}, fmt.Errorf("%s type %q cannot be used as an input", def.Kind, def.Name)
		}
	}

	if t.NonNull {
		inner := ref
		ref = TypeRef{Kind: KindNonNull, Of: &inner}
	}
	return ref, nil
}

// resolveInput registers def before resolving its fields so self-referencing
// filters (AND: [ProductWhereInput!]) terminate.
func (b *builder) resolveInput(def *ast.Definition) error {
	if _, ok := b.inputs[def.Name]; ok {
		return nil
	}
	obj := &InputObject{Name: def.Name, Description: strings.TrimSpace(def.Description)}
	b.inputs[def.Name] = obj

	for _, f := range def.Fields {
		field, err := b.argument(f.Name, f.Description, f.Type, f.DefaultValue)
		if err != nil {
			delete(b.inputs, def.Name)
			return fmt.Errorf("input %s.%s: %w", def.Name, f.Name, err)
		}
		obj.Fields = append(obj.Fields, field)
	}
	return nil
}

// collect copies the input objects and enums reachable from ref into desc.
func (b *builder) collect(ref TypeRef, desc *OperationDescriptor) {
	named := ref.Named()
	switch named.Kind {
	case KindEnum:
		if _, ok := desc.Enums[named.Name]; !ok {
			desc.Enums[named.Name] = enumValues(b.schema.Types[named.Name])
		}
	case KindInputObject:
		if _, ok := desc.Inputs[named.Name]; ok {
			return
		}
		obj := b.inputs[named.Name]
		desc.Inputs[named.Name] = obj
		for _, f := range obj.Fields {
			b.collect(f.Type, desc)
		}
	}
}

func (b *builder) validateDocument(op, doc string) error {
	if _, errs := gqlparser.LoadQuery(b.schema, doc); len(errs) > 0 {
		return toolerr.Wrap(toolerr.KindSchema, errs, fmt.Sprintf("operation %q: generated document is invalid", op))
	}
	return nil
}

func enumValues(def *ast.Definition) []string {
	if def == nil {
		return nil
	}
	values := make([]string, 0, len(def.EnumValues))
	for _, v := range def.EnumValues {
		values = append(values, v.Name)
	}
	return values
}
