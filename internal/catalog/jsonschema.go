package catalog

// ArgumentJSONSchema renders a as a JSON Schema property. Input objects are
// emitted once into defs and referenced as #/$defs/<Name>.
func (d *OperationDescriptor) ArgumentJSONSchema(a ArgumentSchema, defs map[string]any) map[string]any {
	s := d.TypeJSONSchema(a.Type, defs)
	if a.Description != "" {
		s["description"] = a.Description
	}
	if a.HasDefault {
		s["default"] = a.Default
	}
	return s
}

// TypeJSONSchema renders t. Nullable types accept null.
func (d *OperationDescriptor) TypeJSONSchema(t TypeRef, defs map[string]any) map[string]any {
	if t.Kind == KindNonNull {
		return d.strictSchema(*t.Of, defs)
	}
	return nullable(d.strictSchema(t, defs))
}

func (d *OperationDescriptor) strictSchema(t TypeRef, defs map[string]any) map[string]any {
	switch t.Kind {
	case KindList:
		return map[string]any{
			"type":  "array",
			"items": d.TypeJSONSchema(*t.Of, defs),
		}
	case KindScalar:
		return scalarSchema(t.Scalar)
	case KindEnum:
		values := d.Enums[t.Name]
		enum := make([]any, len(values))
		for i, v := range values {
			enum[i] = v
		}
		return map[string]any{"type": "string", "enum": enum}
	case KindInputObject:
		if _, ok := defs[t.Name]; !ok {
			// Placeholder so recursive inputs terminate.
			defs[t.Name] = map[string]any{}
			defs[t.Name] = d.inputObjectSchema(d.Inputs[t.Name], defs)
		}
		return map[string]any{"$ref": "#/$defs/" + t.Name}
	}
	return map[string]any{}
}

func (d *OperationDescriptor) inputObjectSchema(obj *InputObject, defs map[string]any) map[string]any {
	props := make(map[string]any, len(obj.Fields))
	required := make([]any, 0)
	for _, f := range obj.Fields {
		props[f.Name] = d.ArgumentJSONSchema(f, defs)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	s := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if obj.Description != "" {
		s["description"] = obj.Description
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func scalarSchema(k ScalarKind) map[string]any {
	switch k {
	case ScalarString:
		return map[string]any{"type": "string"}
	case ScalarInt:
		return map[string]any{"type": "integer", "minimum": minInt32, "maximum": maxInt32}
	case ScalarFloat:
		return map[string]any{"type": "number"}
	case ScalarBoolean:
		return map[string]any{"type": "boolean"}
	case ScalarID:
		return map[string]any{"type": []any{"string", "integer"}}
	}
	return map[string]any{}
}

func nullable(s map[string]any) map[string]any {
	if len(s) == 0 {
		return s
	}
	if _, ok := s["$ref"]; ok {
		return map[string]any{"anyOf": []any{s, map[string]any{"type": "null"}}}
	}
	switch typ := s["type"].(type) {
	case string:
		s["type"] = []any{typ, "null"}
	case []any:
		s["type"] = append(typ, "null")
	}
	if enum, ok := s["enum"].([]any); ok {
		s["enum"] = append(enum, nil)
	}
	return s
}
