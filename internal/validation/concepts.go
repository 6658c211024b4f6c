package validation

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/campaignforge/forge/pkg/schema"
)

// conceptListSchemaJSON is the JSON Schema the planner's response must
// satisfy: a non-empty array of {title, prompt} objects.
const conceptListSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://campaignforge.dev/schemas/concepts.json",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["title", "prompt"],
    "properties": {
      "title": {"type": "string", "minLength": 1},
      "prompt": {"type": "string", "minLength": 1}
    },
    "additionalProperties": true
  }
}`

var (
	conceptSchemaOnce sync.Once
	conceptSchema     *jsonschema.Schema
	conceptSchemaErr  error
)

func compiledConceptSchema() (*jsonschema.Schema, error) {
	conceptSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(conceptListSchemaJSON))
		if err != nil {
			conceptSchemaErr = fmt.Errorf("unmarshal concept schema: %w", err)
			return
		}
		if err := c.AddResource("https://campaignforge.dev/schemas/concepts.json", doc); err != nil {
			conceptSchemaErr = fmt.Errorf("add concept schema resource: %w", err)
			return
		}
		conceptSchema, conceptSchemaErr = c.Compile("https://campaignforge.dev/schemas/concepts.json")
	})
	return conceptSchema, conceptSchemaErr
}

// ValidateConceptJSON checks that raw is a well-formed, non-empty concept
// array. Returns a PLANNING_ERROR describing the first violation.
func ValidateConceptJSON(raw []byte) error {
	compiled, err := compiledConceptSchema()
	if err != nil {
		return schema.NewError(schema.ErrCodePlanning, "concept schema unavailable").WithCause(err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodePlanning, "concept response is not valid JSON: %s", err.Error()).WithCause(err)
	}
	if err := compiled.Validate(doc); err != nil {
		return schema.NewErrorf(schema.ErrCodePlanning, "concept response rejected: %s", err.Error()).WithCause(err)
	}
	return nil
}
