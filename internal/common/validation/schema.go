// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"ace-pipeline/internal/models"
)

// Kind payload schemas. A payload that fails its kind schema is a
// SCHEMA_ERROR at the coordinator level: non-retryable, immediate
// dead-letter.
var kindSchemas = map[models.TaskKind]string{
	models.KindMCQ: `{
		"type": "object",
		"required": ["answers"],
		"properties": {
			"answers": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["question_id", "selected", "key"],
					"properties": {
						"question_id": {"type": "string", "minLength": 1},
						"selected":    {"type": "string"},
						"key":         {"type": "string", "minLength": 1}
					}
				}
			}
		}
	}`,
	models.KindText: `{
		"type": "object",
		"required": ["text"],
		"properties": {
			"text": {"type": "string", "minLength": 1}
		}
	}`,
	models.KindAudio: `{
		"type": "object",
		"required": ["audio_url"],
		"properties": {
			"audio_url":        {"type": "string", "minLength": 1, "pattern": "^(https?|s3)://"},
			"format":           {"type": "string"},
			"duration_seconds": {"type": "number", "minimum": 0}
		}
	}`,
}

var compiled = map[models.TaskKind]*gojsonschema.Schema{}

func init() {
	for kind, raw := range kindSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("invalid payload schema for kind %s: %v", kind, err))
		}
		compiled[kind] = schema
	}
}

// ValidatePayload checks a task's raw payload against the schema for its
// declared kind. Unknown kinds pass here; the router decides whether they are
// supported.
func ValidatePayload(kind models.TaskKind, payload []byte) error {
	schema, ok := compiled[kind]
	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("payload schema violation: %s", strings.Join(msgs, "; "))
}
