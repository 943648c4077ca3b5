package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/triage-ai/graphql-mcp/internal/toolerr"
)

// ValidateArguments checks args against the descriptor's argument schemas.
// The first violation is returned as a ValidationError naming its path.
func (d *OperationDescriptor) ValidateArguments(args map[string]any) error {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := d.Argument(name); !ok {
			return toolerr.Newf(toolerr.KindValidation, "operation %s has no argument %q", d.Name, name)
		}
	}

	for _, a := range d.Arguments {
		v, present := args[a.Name]
		if !present {
			if a.Required {
				return toolerr.Newf(toolerr.KindValidation, "missing required argument %q", a.Name)
			}
			continue
		}
		if err := d.validateValue(a.Name, a.Type, a.Constraints, v); err != nil {
			return err
		}
	}
	return nil
}

// ValidateArgument checks a single argument value.
func (d *OperationDescriptor) ValidateArgument(name string, v any) error {
	a, ok := d.Argument(name)
	if !ok {
		return toolerr.Newf(toolerr.KindValidation, "operation %s has no argument %q", d.Name, name)
	}
	return d.validateValue(a.Name, a.Type, a.Constraints, v)
}

func (d *OperationDescriptor) validateValue(path string, t TypeRef, c Constraints, v any) error {
	if t.Kind == KindNonNull {
		if v == nil {
			return invalid(path, "must not be null")
		}
		return d.validateValue(path, *t.Of, c, v)
	}
	if v == nil {
		return nil
	}

	switch t.Kind {
	case KindList:
		items, ok := v.([]any)
		if !ok {
			// GraphQL coerces a single value into a one-element list.
			return d.validateValue(path, *t.Of, c, v)
		}
		for i, item := range items {
			if err := d.validateValue(fmt.Sprintf("%s[%d]", path, i), *t.Of, c, item); err != nil {
				return err
			}
		}
		return nil

	case KindScalar:
		return validateScalar(path, t, c, v)

	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return invalid(path, "expected %s enum value, got %s", t.Name, describe(v))
		}
		allowed := d.Enums[t.Name]
		for _, a := range allowed {
			if a == s {
				return nil
			}
		}
		return invalid(path, "%q is not a %s value (allowed: %s)", s, t.Name, strings.Join(allowed, ", "))

	case KindInputObject:
		m, ok := v.(map[string]any)
		if !ok {
			return invalid(path, "expected %s object, got %s", t.Name, describe(v))
		}
		obj, ok := d.Inputs[t.Name]
		if !ok {
			return toolerr.Newf(toolerr.KindInternal, "input type %q missing from descriptor %s", t.Name, d.Name)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := obj.Field(k); !ok {
				return invalid(path, "%s has no field %q", t.Name, k)
			}
		}
		for _, f := range obj.Fields {
			fv, present := m[f.Name]
			if !present {
				if f.Required {
					return invalid(path+"."+f.Name, "required field is missing")
				}
				continue
			}
			if err := d.validateValue(path+"."+f.Name, f.Type, f.Constraints, fv); err != nil {
				return err
			}
		}
		return nil
	}

	return toolerr.Newf(toolerr.KindInternal, "unhandled type kind %d at %s", t.Kind, path)
}

func validateScalar(path string, t TypeRef, c Constraints, v any) error {
	switch t.Scalar {
	case ScalarString:
		if _, ok := v.(string); !ok {
			return invalid(path, "expected %s, got %s", t.Name, describe(v))
		}
	case ScalarBoolean:
		if _, ok := v.(bool); !ok {
			return invalid(path, "expected %s, got %s", t.Name, describe(v))
		}
	case ScalarID:
		if _, ok := v.(string); ok {
			return nil
		}
		n, ok := toNumber(v)
		if !ok || n != math.Trunc(n) {
			return invalid(path, "expected %s, got %s", t.Name, describe(v))
		}
	case ScalarInt:
		n, ok := toNumber(v)
		if !ok || n != math.Trunc(n) {
			return invalid(path, "expected %s, got %s", t.Name, describe(v))
		}
		return checkRange(path, c, n)
	case ScalarFloat:
		n, ok := toNumber(v)
		if !ok {
			return invalid(path, "expected %s, got %s", t.Name, describe(v))
		}
		return checkRange(path, c, n)
	case ScalarAny:
	}
	return nil
}

func checkRange(path string, c Constraints, n float64) error {
	if c.Min != nil && n < *c.Min {
		return invalid(path, "%v is below the minimum %v", n, *c.Min)
	}
	if c.Max != nil && n > *c.Max {
		return invalid(path, "%v is above the maximum %v", n, *c.Max)
	}
	return nil
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, json.Number:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func invalid(path, format string, args ...any) error {
	return toolerr.New(toolerr.KindValidation, "argument "+path+": "+fmt.Sprintf(format, args...))
}
