package tools

// FunctionSchema is the OpenAI-function-style shape spec §4.7 requires
// every tool to export: {name, description, parameters: {type,
// properties, required}}.
type FunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  FunctionSchemaParams   `json:"parameters"`
}

type FunctionSchemaParams struct {
	Type       string                          `json:"type"`
	Properties map[string]FunctionSchemaProperty `json:"properties"`
	Required   []string                        `json:"required"`
}

type FunctionSchemaProperty struct {
	Type        string                  `json:"type"`
	Description string                  `json:"description,omitempty"`
	Enum        []string                `json:"enum,omitempty"`
	Items       *FunctionSchemaProperty `json:"items,omitempty"`
}

// Schema builds the FunctionSchema for tool, per spec §4.7: array
// parameters must declare an items type.
func Schema(tool Tool) FunctionSchema {
	meta := tool.Metadata()
	params := tool.Parameters()

	props := make(map[string]FunctionSchemaProperty, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		prop := FunctionSchemaProperty{
			Type:        jsonSchemaType(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
		}
		if p.Type == ParamArray {
			itemsType := p.ItemsType
			if itemsType == "" {
				itemsType = ParamString
			}
			prop.Items = &FunctionSchemaProperty{Type: jsonSchemaType(itemsType)}
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return FunctionSchema{
		Name:        meta.Name,
		Description: meta.Description,
		Parameters: FunctionSchemaParams{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

func jsonSchemaType(t ParamType) string {
	switch t {
	case ParamInteger:
		return "integer"
	case ParamFloat:
		return "number"
	case ParamBoolean:
		return "boolean"
	case ParamArray:
		return "array"
	case ParamObject, ParamFile:
		return "object"
	default:
		return "string"
	}
}
