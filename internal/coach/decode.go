package coach

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidResponse is returned when a model reply cannot be read as the
// expected JSON object.
var ErrInvalidResponse = errors.New("coach: invalid model response")

// InvalidResponseError carries the raw reply that failed to decode.
type InvalidResponseError struct {
	Schema  string
	Content string
	Err     error
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("coach: invalid %s response: %v", e.Schema, e.Err)
}

func (e *InvalidResponseError) Unwrap() []error { return []error{ErrInvalidResponse, e.Err} }

// extractJSON strips markdown fences and any prose around the outermost
// JSON object.
func extractJSON(text string) (string, bool) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// decode validates text against d and unmarshals it into v.
func decode(d schemaDef, text string, v any) error {
	fail := func(err error) error {
		return &InvalidResponseError{Schema: d.name, Content: text, Err: err}
	}
	raw, ok := extractJSON(text)
	if !ok {
		return fail(errors.New("no JSON object found"))
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return fail(fmt.Errorf("invalid JSON: %w", err))
	}
	schema, err := d.compile()
	if err != nil {
		return fail(err)
	}
	if err := schema.Validate(doc); err != nil {
		return fail(fmt.Errorf("schema validation failed: %w", err))
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fail(err)
	}
	return nil
}
