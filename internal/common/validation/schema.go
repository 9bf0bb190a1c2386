// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ResearchRequestSchema describes the conversation context accepted by the
// HTTP API and the deep-research worker.
const ResearchRequestSchema = `{
  "type": "object",
  "required": ["messages", "page_instance_id"],
  "properties": {
    "messages": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["role", "content"],
        "properties": {
          "role": {"type": "string", "enum": ["system", "user", "assistant", "tool"]},
          "content": {"type": "string"}
        }
      }
    },
    "conversation_id": {"type": "string"},
    "page_instance_id": {"type": "string", "minLength": 1},
    "model": {"type": "string"},
    "history_metadata": {"type": ["object", "null"]},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

// StringListSchema is the shape expected from the model when it is asked for
// search queries or URLs.
const StringListSchema = `{"type": "array", "items": {"type": "string"}}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error joins the individual errors into one line.
func (r *ValidationResult) Error() string {
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(parts, "; ")
}

var (
	schemaMu    sync.Mutex
	schemaCache = map[string]*gojsonschema.Schema{}
)

func compile(schema string) (*gojsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if s, ok := schemaCache[schema]; ok {
		return s, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	schemaCache[schema] = s
	return s, nil
}

// ValidateDocument validates a decoded Go value against a JSON schema.
func ValidateDocument(schema string, document interface{}) (*ValidationResult, error) {
	s, err := compile(schema)
	if err != nil {
		return nil, err
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	return toResult(result), nil
}

// ValidateJSON validates raw JSON text against a JSON schema. Text that is
// not JSON at all is reported as an error, not as an invalid result.
func ValidateJSON(schema string, raw []byte) (*ValidationResult, error) {
	s, err := compile(schema)
	if err != nil {
		return nil, err
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	return toResult(result), nil
}

func toResult(result *gojsonschema.Result) *ValidationResult {
	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out
}
