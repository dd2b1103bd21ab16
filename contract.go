package magicrows

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// Schema is a minimal JSON-Schema node, sufficient to describe the shapes
// contracts use: scalars, enums, arrays, and flat objects.
type Schema struct {
	Title                string             `json:"title,omitempty"`
	Type                 string             `json:"type"`
	Description          string             `json:"description,omitempty"`
	Enum                 []string           `json:"enum,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
}

// Contract is the machine-checkable shape the provider is asked to conform
// its response to: an object with exactly one top-level property named
// after the output specification. It must stay stable across a run so that
// provider-side validation and local parsing agree.
type Contract struct {
	Name   string
	Schema *Schema
}

// GenerateContract translates one output specification into a contract.
// includeReasoning is the run-level override: the value/reasoning wrapper
// is applied only when both it and the specification's flag are set, and
// then always in full (never a partial wrap).
func GenerateContract(spec OutputSpec, includeReasoning bool) (*Contract, error) {
	value, err := valueSchema(spec)
	if err != nil {
		return nil, err
	}

	if spec.Cardinality == CardinalityMultiple {
		value = &Schema{
			Type:        "array",
			Description: fmt.Sprintf("List of %s values for %s", spec.Type, spec.Name),
			Items:       value,
		}
	}

	if includeReasoning && spec.IncludeReasoning {
		value = &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"value": value,
				"reasoning": {
					Type:        "string",
					Description: "Explanation for why the value was chosen or generated.",
				},
			},
			Required:             []string{"value", "reasoning"},
			AdditionalProperties: boolPtr(false),
		}
	}

	return &Contract{
		Name: spec.Name,
		Schema: &Schema{
			Title:                spec.Name,
			Type:                 "object",
			Properties:           map[string]*Schema{spec.Name: value},
			Required:             []string{spec.Name},
			AdditionalProperties: boolPtr(false),
		},
	}, nil
}

// valueSchema builds the base shape for the declared output type. A "json"
// output is carried as a string; its content is validated during parsing,
// not here.
func valueSchema(spec OutputSpec) (*Schema, error) {
	switch spec.Type {
	case OutputText:
		return &Schema{
			Type:        "string",
			Description: fmt.Sprintf("Text output for %s", spec.Name),
		}, nil
	case OutputNumber:
		return &Schema{
			Type:        "number",
			Description: fmt.Sprintf("Numeric output for %s", spec.Name),
		}, nil
	case OutputCategory:
		if len(spec.Categories) == 0 {
			return nil, fmt.Errorf("generate contract for %q: %w", spec.Name, ErrNoCategories)
		}
		enum := make([]string, len(spec.Categories))
		for i, cat := range spec.Categories {
			enum[i] = cat.Name
		}
		return &Schema{
			Type:        "string",
			Description: fmt.Sprintf("Categorical output for %s", spec.Name),
			Enum:        enum,
		}, nil
	case OutputJSON:
		return &Schema{
			Type:        "string",
			Description: fmt.Sprintf("JSON string output for %s. The content should be valid JSON.", spec.Name),
		}, nil
	default:
		return nil, fmt.Errorf("generate contract for %q: %w: %q", spec.Name, ErrUnsupportedOutputType, spec.Type)
	}
}

// jsonSchema renders the contract as a plain map, the form providers that
// speak raw JSON Schema expect.
func (c *Contract) jsonSchema() map[string]any {
	raw, err := json.Marshal(c.Schema)
	if err != nil {
		// Schema is a closed tree of marshalable types; this cannot fail.
		panic(fmt.Sprintf("marshal contract %q: %v", c.Name, err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(fmt.Sprintf("remarshal contract %q: %v", c.Name, err))
	}
	return m
}

// genaiSchema converts the contract for the Gemini structured-output API.
func (c *Contract) genaiSchema() *genai.Schema {
	return toGenaiSchema(c.Schema)
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
	}
	switch s.Type {
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "array":
		out.Type = genai.TypeArray
	case "object":
		out.Type = genai.TypeObject
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
