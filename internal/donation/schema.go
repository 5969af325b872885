package donation

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// donationSchema is the JSON Schema every donation document must conform to
// before semantic validation runs. Kept inline so the binary carries its own
// contract; the on-disk "$schema" field is informational only.
const donationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "handler_domain", "method_donations"],
  "properties": {
    "$schema": {"type": "string"},
    "schema_version": {"type": "string"},
    "handler_domain": {"type": "string", "pattern": "^[a-z][a-z0-9_]*$"},
    "global_parameters": {"type": "array", "items": {"$ref": "#/$defs/parameter"}},
    "method_donations": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/method"}
    },
    "negative_patterns": {"type": "array", "items": {"$ref": "#/$defs/tokenPattern"}}
  },
  "additionalProperties": false,
  "$defs": {
    "method": {
      "type": "object",
      "required": ["method_name", "intent_suffix", "phrases"],
      "properties": {
        "method_name": {"type": "string", "pattern": "^[a-z][a-z0-9_]*$"},
        "intent_suffix": {"type": "string", "pattern": "^[a-z][a-z0-9_]*$"},
        "phrases": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
        "lemmas": {"type": "array", "items": {"type": "string"}},
        "parameters": {"type": "array", "items": {"$ref": "#/$defs/parameter"}},
        "token_patterns": {"type": "array", "items": {"$ref": "#/$defs/tokenPattern"}},
        "slot_patterns": {
          "type": "object",
          "additionalProperties": {"type": "array", "items": {"$ref": "#/$defs/tokenPattern"}}
        },
        "examples": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["text"],
            "properties": {
              "text": {"type": "string"},
              "parameters": {"type": "object"}
            },
            "additionalProperties": false
          }
        },
        "boost": {"type": "number", "minimum": 0, "maximum": 10}
      },
      "additionalProperties": false
    },
    "parameter": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "name": {"type": "string", "pattern": "^[a-z][a-z0-9_]*$"},
        "type": {"enum": ["string", "integer", "float", "duration", "datetime", "boolean", "choice", "entity"]},
        "required": {"type": "boolean"},
        "default_value": {},
        "description": {"type": "string"},
        "choices": {"type": "array", "items": {"type": "string"}},
        "min_value": {"type": "number"},
        "max_value": {"type": "number"},
        "pattern": {"type": "string"},
        "extraction_patterns": {"type": "array", "items": {"type": "string"}},
        "aliases": {"type": "array", "items": {"type": "string"}}
      },
      "additionalProperties": false
    },
    "tokenPattern": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "object"}
    }
  }
}`

var (
	compiledSchema     *jsonschema.Schema
	compiledSchemaOnce sync.Once
	compiledSchemaErr  error
)

// schema compiles the inline donation schema once.
func schema() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(donationSchema))
		if err != nil {
			compiledSchemaErr = fmt.Errorf("donation: parse inline schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("donation.schema.json", doc); err != nil {
			compiledSchemaErr = fmt.Errorf("donation: register inline schema: %w", err)
			return
		}
		compiledSchema, compiledSchemaErr = c.Compile("donation.schema.json")
	})
	return compiledSchema, compiledSchemaErr
}

// validateSchema checks raw against the donation JSON Schema.
func validateSchema(raw []byte) error {
	sch, err := schema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}
