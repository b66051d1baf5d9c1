package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// buildHarmonizedSchema returns the JSON-Schema (draft 2020-12 subset) the
// extraction provider is constrained to. The same schema serves both
// document kinds so invoice and purchase-order outputs stay directly
// comparable. The provider fills missing fields with type-appropriate zero
// values; a response that omits required top-level keys entirely is a shape
// failure and gets retried.
func buildHarmonizedSchema() map[string]any {
	party := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":    map[string]any{"type": "string"},
			"gstin":   map[string]any{"type": "string"},
			"address": map[string]any{"type": "string"},
		},
	}

	lineItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": map[string]any{"type": "string"},
			"quantity":    map[string]any{"type": "number"},
			"unit_price":  map[string]any{"type": "number"},
			"amount":      map[string]any{"type": "number"},
		},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"invoice_number":  map[string]any{"type": "string"},
			"invoice_date":    map[string]any{"type": "string"},
			"po_number":       map[string]any{"type": "string"},
			"supplier":        party,
			"recipient":       party,
			"line_items":      map[string]any{"type": "array", "items": lineItem},
			"subtotal":        map[string]any{"type": "number"},
			"tax_rate":        map[string]any{"type": "string"},
			"tax_amount":      map[string]any{"type": "number"},
			"total_amount":    map[string]any{"type": "number"},
			"currency":        map[string]any{"type": "string"},
			"payment_terms":   map[string]any{"type": "string"},
			"place_of_supply": map[string]any{"type": "string"},
		},
		"required": []string{
			"invoice_number",
			"supplier",
			"recipient",
			"line_items",
			"total_amount",
		},
	}
}

// compileHarmonizedSchema compiles the harmonized schema for local
// validation of provider output.
func compileHarmonizedSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(buildHarmonizedSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("harmonized.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("harmonized.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateShape checks provider output against the harmonized schema.
func validateShape(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode response JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match harmonized schema: %w", err)
	}
	return nil
}
