package mcpserver

import (
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
)

// toGenaiSchema converts a JSON Schema object into a Gemini schema. Only the
// subset Gemini understands is carried: type, format, description, enum,
// nullable, properties, required and items.
func toGenaiSchema(m map[string]any) (*genai.Schema, error) {
	if m == nil {
		return nil, nil
	}
	s := &genai.Schema{}
	switch t := m["type"].(type) {
	case string:
		typ, err := schemaType(t)
		if err != nil {
			return nil, err
		}
		s.Type = typ
	case []any:
		// ["string", "null"] style nullability.
		for _, v := range t {
			name, _ := v.(string)
			if name == "null" {
				s.Nullable = true
				continue
			}
			typ, err := schemaType(name)
			if err != nil {
				return nil, err
			}
			s.Type = typ
		}
	case nil:
		if _, ok := m["properties"]; ok {
			s.Type = genai.TypeObject
		}
	default:
		return nil, fmt.Errorf("type must be a string, got %T", t)
	}

	if v, ok := m["description"].(string); ok {
		s.Description = v
	}
	if v, ok := m["format"].(string); ok {
		s.Format = v
	}
	if v, ok := m["nullable"].(bool); ok {
		s.Nullable = s.Nullable || v
	}
	if enum, ok := m["enum"].([]any); ok {
		for _, e := range enum {
			s.Enum = append(s.Enum, fmt.Sprint(e))
		}
	}

	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			sub, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("property %q: expected an object schema", name)
			}
			conv, err := toGenaiSchema(sub)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			s.Properties[name] = conv
		}
	}
	switch r := m["required"].(type) {
	case []any:
		for _, x := range r {
			if name, ok := x.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	case []string:
		s.Required = r
	}
	if raw, ok := m["items"]; ok {
		sub, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("items: expected an object schema")
		}
		conv, err := toGenaiSchema(sub)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		s.Items = conv
	}
	if s.Type == genai.TypeArray && s.Items == nil {
		return nil, fmt.Errorf("array schema needs items")
	}
	return s, nil
}

func schemaType(t string) (genai.Type, error) {
	switch strings.ToLower(t) {
	case "string":
		return genai.TypeString, nil
	case "number":
		return genai.TypeNumber, nil
	case "integer":
		return genai.TypeInteger, nil
	case "boolean":
		return genai.TypeBoolean, nil
	case "array":
		return genai.TypeArray, nil
	case "object":
		return genai.TypeObject, nil
	}
	return genai.TypeUnspecified, fmt.Errorf("unsupported schema type %q", t)
}
