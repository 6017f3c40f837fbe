package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ParseArgs parses a tool call's raw arguments into an object. Empty input
// yields an empty object; anything other than a JSON object is an error.
func ParseArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments JSON: %w", err)
	}
	if args == nil {
		return nil, fmt.Errorf("arguments must be a JSON object")
	}
	return args, nil
}

// EncodeArgs serializes arguments as a JSON string, the encoding the
// OpenAI families expect.
func EncodeArgs(args map[string]any) (string, error) {
	if args == nil {
		return "{}", nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding arguments: %w", err)
	}
	return string(data), nil
}

// EncodeOutput renders a tool result for providers that take result
// content as a string. Strings pass through; other values are JSON encoded.
// When the result carries only an error, the error text is the output.
// The string form has no error flag, so a result with both keeps only its
// output.
func EncodeOutput(output any, errText string) (string, error) {
	if output == nil {
		return errText, nil
	}
	if s, ok := output.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return "", fmt.Errorf("encoding tool output: %w", err)
	}
	return string(data), nil
}

// DecodeOutput reverses EncodeOutput: content that is a JSON object or
// array becomes structured output again, anything else stays a string.
func DecodeOutput(content string) any {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return content
}

// NewID returns a provider-style identifier with the given prefix, for
// segments whose provider format carries no id.
func NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
