package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// pactSchema is the structural schema every loaded document must satisfy
// before decoding. It is intentionally permissive about interaction innards;
// deep validation is the job of the matchers, not the loader.
const pactSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["consumer", "provider"],
  "properties": {
    "consumer": {
      "type": "object",
      "required": ["name"],
      "properties": {"name": {"type": "string", "minLength": 1}}
    },
    "provider": {
      "type": "object",
      "required": ["name"],
      "properties": {"name": {"type": "string", "minLength": 1}}
    },
    "interactions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "description": {"type": "string", "minLength": 1},
          "request": {
            "type": "object",
            "properties": {
              "method": {"type": "string"},
              "path": {"type": "string"}
            }
          },
          "response": {
            "type": "object",
            "properties": {
              "status": {"type": "integer", "minimum": 100, "maximum": 599}
            }
          }
        }
      }
    },
    "messages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "description": {"type": "string", "minLength": 1}
        }
      }
    },
    "metadata": {"type": "object"}
  }
}`

var compiledSchema = jsonschema.MustCompileString("pact.schema.json", pactSchema)

// Load decodes and validates a pact document from raw JSON.
func Load(data []byte) (*Pact, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("pact is not valid JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("pact failed schema validation: %w", err)
	}

	var pact Pact
	if err := json.Unmarshal(data, &pact); err != nil {
		return nil, fmt.Errorf("decoding pact: %w", err)
	}
	return &pact, nil
}

// LoadFile reads, validates and decodes a pact file.
func LoadFile(path string) (*Pact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pact file: %w", err)
	}
	pact, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pact, nil
}
