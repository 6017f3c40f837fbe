package provider

import "github.com/rhuss/convlog/pkg/api"

// Capabilities declares which parts of the event model a provider format
// can carry. Content outside these is dropped on encode.
type Capabilities struct {
	// SystemField means a leading system event becomes a separate request
	// field rather than a message.
	SystemField bool

	// Reasoning means reasoning segments are replayed to the provider.
	Reasoning bool

	// ReasoningEffort means the request accepts an effort option.
	ReasoningEffort bool

	// BuiltinTools means web search and code interpreter calls are replayed.
	BuiltinTools bool
}

// ValidateOptions checks request options against the provider's
// capabilities. Returns an APIError naming the unsupported option, or nil.
func ValidateOptions(caps Capabilities, opts RequestOptions) *api.APIError {
	if opts.Model == "" {
		return api.NewInvalidRequestError("model", "model is required")
	}
	if opts.MaxTokens < 0 {
		return api.NewInvalidRequestError("max_tokens", "max_tokens must not be negative")
	}
	if (opts.ReasoningEffort != "" || opts.ReasoningSummary != "") && !caps.ReasoningEffort {
		return api.NewInvalidRequestError("reasoning",
			"the selected provider does not accept reasoning options")
	}
	for i, t := range opts.Tools {
		if t.Name == "" {
			return api.NewInvalidRequestError("tools", "tool endpoint name is required")
		}
		for _, other := range opts.Tools[:i] {
			if other.Name == t.Name {
				return api.NewInvalidRequestError("tools", "duplicate tool endpoint "+t.Name)
			}
		}
	}
	return nil
}
