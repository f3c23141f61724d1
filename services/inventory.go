package services

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const inventorySchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "maxItems": 64,
  "items": {
    "type": "object",
    "required": ["id", "qty"],
    "additionalProperties": false,
    "properties": {
      "id":   {"type": "string", "minLength": 1, "maxLength": 64},
      "qty":  {"type": "integer", "minimum": 0, "maximum": 9999},
      "slot": {"type": "integer", "minimum": 0, "maximum": 63}
    }
  }
}`

var inventorySchema = jsonschema.MustCompileString("inventory.schema.json", inventorySchemaJSON)

// ValidateInventory checks a client-supplied inventory blob. An empty blob is allowed.
func ValidateInventory(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: inventory is not valid JSON", ErrInvalidState)
	}
	if err := inventorySchema.Validate(v); err != nil {
		return fmt.Errorf("%w: inventory: %v", ErrInvalidState, err)
	}
	return nil
}
