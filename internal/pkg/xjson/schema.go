package xjson

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ValidateSchema validates a JSON instance against a raw JSON schema.
func ValidateSchema(rawSchema, instance json.RawMessage) error {
	var schema jsonschema.Schema
	if err := json.Unmarshal(rawSchema, &schema); err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve schema: %w", err)
	}

	var value any
	if err := json.Unmarshal(instance, &value); err != nil {
		return fmt.Errorf("parse instance: %w", err)
	}

	return resolved.Validate(value)
}
