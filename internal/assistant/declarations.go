package assistant

import (
	"google.golang.org/genai"

	"github.com/vegardlu/homelab-core/internal/tools"
)

// schemaType maps a JSON Schema type name to the genai type enum.
func schemaType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "string":
		return genai.TypeString
	default:
		return genai.TypeString
	}
}

// toGenaiSchema converts a tool input schema into a Gemini schema.
func toGenaiSchema(s tools.JSONSchema) *genai.Schema {
	out := &genai.Schema{
		Type:        schemaType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(*s.Items)
	}
	return out
}

// declarations converts every registered tool into a Gemini function
// declaration.
func declarations(registry *tools.Registry) []*genai.FunctionDeclaration {
	list := registry.List()
	decls := make([]*genai.FunctionDeclaration, 0, len(list))
	for _, t := range list {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGenaiSchema(t.InputSchema),
		})
	}
	return decls
}
