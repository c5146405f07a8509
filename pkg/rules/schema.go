package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const packSchemaURL = "https://compass.schemas.local/rule-pack.schema.json"

// packSchema is the structural schema of a rule pack file.
const packSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["format_version", "rules"],
  "additionalProperties": false,
  "properties": {
    "format_version": {"type": "string", "minLength": 1},
    "context_type": {"type": "string"},
    "rules": {"type": "array", "items": {"$ref": "#/$defs/rule"}}
  },
  "$defs": {
    "rule": {
      "type": "object",
      "required": ["id", "action_type"],
      "additionalProperties": false,
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "context_type": {"type": "string"},
        "active": {"type": "boolean"},
        "base_score": {"type": "number"},
        "priority_tier": {"type": "integer", "minimum": 0},
        "condition": {"$ref": "#/$defs/condition"},
        "action_type": {"type": "string", "minLength": 1},
        "target_object_ref": {"type": "string"},
        "execution_strategy": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "kind": {"type": "string"},
            "allow_direct": {"type": "boolean"},
            "timeout": {"type": "string"}
          }
        },
        "description": {"type": "string"},
        "version": {"type": "integer", "minimum": 1},
        "reason": {"type": "string"},
        "suggested_action": {"type": "string"},
        "modifiers": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name"],
            "additionalProperties": false,
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "params": {"type": "object"}
            }
          }
        }
      }
    },
    "condition": {
      "type": "object",
      "required": ["kind"],
      "additionalProperties": false,
      "properties": {
        "kind": {"enum": ["static", "expr", "cel", "jsonlogic", "decision"]},
        "value": {"type": "boolean"},
        "expr": {"$ref": "#/$defs/expr"},
        "expression": {"type": "string"},
        "logic": {},
        "decision": {"type": "string"},
        "params": {"type": "object"}
      }
    },
    "expr": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "all": {"type": "array", "items": {"$ref": "#/$defs/expr"}},
        "any": {"type": "array", "items": {"$ref": "#/$defs/expr"}},
        "not": {"$ref": "#/$defs/expr"},
        "field": {"type": "string"},
        "op": {"type": "string"},
        "value": {}
      }
    }
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(packSchemaURL, strings.NewReader(packSchema)); err != nil {
			compileErr = fmt.Errorf("rule pack schema load failed: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(packSchemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("rule pack schema compile failed: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// validateStructure checks a decoded YAML document against the pack schema.
// The document is round-tripped through JSON so that the validator only
// sees JSON value types.
func validateStructure(doc any) error {
	s, err := schema()
	if err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("document is not representable as JSON: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return err
	}

	return s.Validate(value)
}
