package api

import (
	"encoding/json"
	"fmt"
)

// FieldError is one violation found while validating an event.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) Error() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// ValidationResult lists every distinct violation found, not just the first.
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Err converts an invalid result into an *APIError naming the first field.
func (r ValidationResult) Err() error {
	if r.Valid || len(r.Errors) == 0 {
		return nil
	}
	msg := r.Errors[0].Message
	if n := len(r.Errors); n > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, n-1)
	}
	return NewValidationError(r.Errors[0].Field, msg)
}

func newResult(errs []FieldError) ValidationResult {
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// ValidateEvent checks a decoded event: non-empty id, a known role, and
// every segment carrying its required fields.
func ValidateEvent(e *Event) ValidationResult {
	if e == nil {
		return newResult([]FieldError{{Field: "event", Message: "event is nil"}})
	}
	var errs []FieldError
	if e.ID == "" {
		errs = append(errs, FieldError{"id", "id is required"})
	}
	if !e.Role.Valid() {
		errs = append(errs, FieldError{"role", fmt.Sprintf("unknown role %q", e.Role)})
	}
	for i, s := range e.Segments {
		errs = append(errs, validateSegment(fmt.Sprintf("segments[%d]", i), s)...)
	}
	return newResult(errs)
}

func validateSegment(path string, s Segment) []FieldError {
	var errs []FieldError
	switch v := s.(type) {
	case *Text:
	case *ToolCall:
		if v.ID == "" {
			errs = append(errs, FieldError{path + ".id", "tool_call id is required"})
		}
		if v.Name == "" {
			errs = append(errs, FieldError{path + ".name", "tool_call name is required"})
		}
		if v.Args == nil {
			errs = append(errs, FieldError{path + ".args", "tool_call args is required"})
		}
	case *ToolResult:
		if v.ID == "" {
			errs = append(errs, FieldError{path + ".id", "tool_result id is required"})
		}
		if v.Output == nil && v.Error == "" {
			errs = append(errs, FieldError{path + ".output", "tool_result output is required"})
		}
	case *Reasoning:
		if v.ID == "" {
			errs = append(errs, FieldError{path + ".id", "reasoning id is required"})
		}
		if v.Parts == nil {
			errs = append(errs, FieldError{path + ".parts", "reasoning parts is required"})
		}
	case *WebSearchCall:
		if v.ID == "" {
			errs = append(errs, FieldError{path + ".id", "web_search_call id is required"})
		}
	case *CodeInterpreterCall:
		if v.ID == "" {
			errs = append(errs, FieldError{path + ".id", "code_interpreter_call id is required"})
		}
	case nil:
		errs = append(errs, FieldError{path, "segment is nil"})
	default:
		errs = append(errs, FieldError{path + ".type", fmt.Sprintf("unknown segment %T", s)})
	}
	return errs
}

// ValidateEventJSON checks a raw event payload before decoding. Unlike
// ValidateEvent it also catches wrong JSON types, such as a string ts or a
// segments field that is not an array.
func ValidateEventJSON(data []byte) ValidationResult {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return newResult([]FieldError{{Field: "event", Message: "event must be a JSON object"}})
	}

	var errs []FieldError
	if id, ok := raw["id"].(string); !ok || id == "" {
		errs = append(errs, FieldError{"id", "id must be a non-empty string"})
	}
	if role, ok := raw["role"].(string); !ok || !Role(role).Valid() {
		errs = append(errs, FieldError{"role", "role must be one of system, user, assistant, tool"})
	}
	if _, ok := raw["ts"].(float64); !ok {
		errs = append(errs, FieldError{"ts", "ts must be a number"})
	}
	segs, ok := raw["segments"].([]any)
	if !ok {
		errs = append(errs, FieldError{"segments", "segments must be an array"})
		return newResult(errs)
	}
	for i, s := range segs {
		errs = append(errs, validateRawSegment(fmt.Sprintf("segments[%d]", i), s)...)
	}
	return newResult(errs)
}

func validateRawSegment(path string, v any) []FieldError {
	seg, ok := v.(map[string]any)
	if !ok {
		return []FieldError{{path, "segment must be an object"}}
	}
	nonEmpty := func(field string) bool {
		s, ok := seg[field].(string)
		return ok && s != ""
	}

	var errs []FieldError
	typ, _ := seg["type"].(string)
	switch SegmentType(typ) {
	case SegmentTypeText:
		if _, ok := seg["text"].(string); !ok {
			errs = append(errs, FieldError{path + ".text", "text must be a string"})
		}
	case SegmentTypeToolCall:
		if !nonEmpty("id") {
			errs = append(errs, FieldError{path + ".id", "tool_call id is required"})
		}
		if !nonEmpty("name") {
			errs = append(errs, FieldError{path + ".name", "tool_call name is required"})
		}
		if _, ok := seg["args"].(map[string]any); !ok {
			errs = append(errs, FieldError{path + ".args", "tool_call args must be an object"})
		}
	case SegmentTypeToolResult:
		if !nonEmpty("id") {
			errs = append(errs, FieldError{path + ".id", "tool_result id is required"})
		}
		if _, ok := seg["output"]; !ok {
			errs = append(errs, FieldError{path + ".output", "tool_result output is required"})
		}
	case SegmentTypeReasoning:
		if !nonEmpty("id") {
			errs = append(errs, FieldError{path + ".id", "reasoning id is required"})
		}
		if _, ok := seg["output_index"].(float64); !ok {
			errs = append(errs, FieldError{path + ".output_index", "reasoning output_index must be a number"})
		}
		if _, ok := seg["parts"].([]any); !ok {
			errs = append(errs, FieldError{path + ".parts", "reasoning parts must be an array"})
		}
	case SegmentTypeWebSearchCall, SegmentTypeCodeInterpreterCall:
		if !nonEmpty("id") {
			errs = append(errs, FieldError{path + ".id", typ + " id is required"})
		}
	default:
		errs = append(errs, FieldError{path + ".type", fmt.Sprintf("unknown segment type %q", typ)})
	}
	return errs
}
