// Package schema derives JSON schemas from Go struct types and validates
// tool arguments against them.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
)

// Generate produces a JSON schema document for the struct type T, using
// json and jsonschema struct tags. The result is an object schema of the
// form {"type":"object","properties":{...},"required":[...]}.
func Generate[T any]() (json.RawMessage, error) {
	var zero T
	s := jsonschema.Reflect(&zero)
	root := extractRoot(s)

	doc := map[string]any{"type": "object"}
	if props := schemaProperties(root); props != nil {
		doc["properties"] = props
	}
	if len(root.Required) > 0 {
		doc["required"] = root.Required
	}
	return json.Marshal(doc)
}

// extractRoot resolves the root schema, following $ref into $defs if needed.
func extractRoot(s *jsonschema.Schema) *jsonschema.Schema {
	if s.Ref != "" && s.Definitions != nil {
		for _, def := range s.Definitions {
			if def.Type == "object" {
				return def
			}
		}
	}
	return s
}

// schemaProperties converts the ordered property map into a plain
// map[string]any suitable for serialization.
func schemaProperties(s *jsonschema.Schema) map[string]any {
	if s.Properties == nil {
		return nil
	}
	props := make(map[string]any)
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		props[pair.Key] = propertySchema(pair.Value)
	}
	return props
}

// propertySchema converts a single property schema to a serializable map.
func propertySchema(s *jsonschema.Schema) map[string]any {
	m := make(map[string]any)

	if s.Type != "" {
		m["type"] = s.Type
	}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if s.Default != nil {
		m["default"] = s.Default
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}

	// invopop/jsonschema models nullable (pointer) fields as anyOf.
	if len(s.AnyOf) > 0 {
		for _, sub := range s.AnyOf {
			if sub.Type != "null" && sub.Type != "" {
				m["type"] = sub.Type
				break
			}
		}
	}

	if s.Properties != nil {
		m["type"] = "object"
		m["properties"] = schemaProperties(s)
		if len(s.Required) > 0 {
			m["required"] = s.Required
		}
	}

	if s.Items != nil {
		m["items"] = propertySchema(s.Items)
	}

	return m
}

// Validator checks raw JSON arguments against a compiled schema.
type Validator struct {
	compiled *santhosh.Schema
}

// Compile builds a Validator from a raw JSON schema document. The name is
// used only for error reporting.
func Compile(name string, doc json.RawMessage) (*Validator, error) {
	compiled, err := santhosh.CompileString(name+".schema.json", string(doc))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{compiled: compiled}, nil
}

// Validate checks an argument payload against the schema. An empty payload
// is treated as an empty object.
func (v *Validator) Validate(args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var instance any
	if err := json.Unmarshal(args, &instance); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return v.compiled.Validate(instance)
}
