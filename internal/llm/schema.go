package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/invoice-attestor/constants"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
)

// BuildRecordJSONSchema returns a JSON Schema (draft 2020-12 subset) for the requested fields.
func BuildRecordJSONSchema(schema []entity.FieldSpec) map[string]any {
	props := make(map[string]any, len(schema))
	required := []string{}
	for _, f := range schema {
		switch f.Kind {
		case constants.FieldNumber:
			props[f.Name] = map[string]any{"type": "number"}
		case constants.FieldISODate:
			props[f.Name] = map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`}
		default:
			p := map[string]any{"type": "string", "minLength": 1}
			if f.Name == constants.FieldVendorGSTIN {
				p["minLength"] = constants.GSTINLength
				p["maxLength"] = constants.GSTINLength
			}
			props[f.Name] = p
		}
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
