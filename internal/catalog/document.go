package catalog

import (
	"fmt"
	"strings"

	"github.com/triage-ai/graphql-mcp/internal/toolerr"
	"github.com/vektah/gqlparser/v2/ast"
)

// selection builds a depth-limited selection set for def. Deprecated fields
// and fields with required arguments are skipped; unions select __typename.
func (b *builder) selection(def *ast.Definition, depth int) string {
	if def.Kind == ast.Union {
		return "{ __typename }"
	}

	var parts []string
	if def.Kind == ast.Interface {
		parts = append(parts, "__typename")
	}
	for _, f := range def.Fields {
		if strings.HasPrefix(f.Name, "__") || f.Directives.ForName("deprecated") != nil || hasRequiredArguments(f) {
			continue
		}
		named := b.schema.Types[f.Type.Name()]
		if named == nil {
			continue
		}
		switch named.Kind {
		case ast.Scalar, ast.Enum:
			parts = append(parts, f.Name)
		case ast.Object, ast.Interface, ast.Union:
			if depth <= 1 {
				continue
			}
			if sub := b.selection(named, depth-1); sub != "" {
				parts = append(parts, f.Name+" "+sub)
			}
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return "{ " + strings.Join(parts, " ") + " }"
}

func hasRequiredArguments(f *ast.FieldDefinition) bool {
	for _, a := range f.Arguments {
		if a.Type.NonNull && a.DefaultValue == nil {
			return true
		}
	}
	return false
}

func connectionSelection(conn *Connection) string {
	edge := "node"
	if conn.NodeSelection != "" {
		edge = "node " + conn.NodeSelection
	}
	if conn.EdgeCursor {
		edge = "cursor " + edge
	}
	return "{ edges { " + edge + " } pageInfo { hasNextPage endCursor } }"
}

// render produces the operation document. Every argument is declared as a
// variable; non-null arguments with defaults carry the default on the
// variable so they can be omitted.
func render(kind OperationKind, field *ast.FieldDefinition, opName, selection string) string {
	vars := make([]string, 0, len(field.Arguments))
	args := make([]string, 0, len(field.Arguments))
	for _, a := range field.Arguments {
		v := "$" + a.Name + ": " + a.Type.String()
		if a.Type.NonNull && a.DefaultValue != nil {
			v += " = " + a.DefaultValue.String()
		}
		vars = append(vars, v)
		args = append(args, a.Name+": $"+a.Name)
	}

	var sb strings.Builder
	sb.WriteString(string(kind))
	sb.WriteString(" ")
	sb.WriteString(opName)
	if len(vars) > 0 {
		sb.WriteString("(" + strings.Join(vars, ", ") + ")")
	}
	sb.WriteString(" { ")
	sb.WriteString(field.Name)
	if len(args) > 0 {
		sb.WriteString("(" + strings.Join(args, ", ") + ")")
	}
	if selection != "" {
		sb.WriteString(" " + selection)
	}
	sb.WriteString(" }")
	return sb.String()
}

func operationName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToUpper(field[:1]) + field[1:]
}

// WithSelection returns a copy of the named descriptor whose document uses
// selection instead of the generated one. For paginated operations the
// selection applies to the connection node. The document is validated
// against the schema.
func (c *Catalog) WithSelection(name, selection string) (*OperationDescriptor, error) {
	orig, ok := c.byName[name]
	if !ok {
		return nil, toolerr.Newf(toolerr.KindSchema, "operation %q not found in catalog", name)
	}
	selection = strings.TrimSpace(selection)
	if selection == "" {
		return orig, nil
	}
	if orig.Return.Kind == ReturnScalar || orig.Return.Kind == ReturnEnum {
		return nil, toolerr.Newf(toolerr.KindSchema, "operation %q returns %s and takes no selection", name, orig.Return.Type)
	}
	if !strings.HasPrefix(selection, "{") {
		selection = "{ " + selection + " }"
	}

	cp := *orig
	if orig.Paginated {
		conn := *orig.Connection
		conn.NodeSelection = selection
		cp.Connection = &conn
		cp.Return.Selection = connectionSelection(&conn)
	} else {
		cp.Return.Selection = selection
	}
	cp.Document = render(orig.Kind, c.fields[name], orig.OperationName, cp.Return.Selection)

	b := &builder{schema: c.schema}
	if err := b.validateDocument(name, cp.Document); err != nil {
		return nil, fmt.Errorf("WithSelection: %w", err)
	}
	return &cp, nil
}
