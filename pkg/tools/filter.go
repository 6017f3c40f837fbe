package tools

import "github.com/rhuss/convlog/pkg/api"

// FilterResult holds the outcome of filtering tool calls against an allow list.
type FilterResult struct {
	// Allowed contains tool calls that passed the filter.
	Allowed []*api.ToolCall

	// Rejected holds an error result for each call that was not allowed.
	Rejected []*api.ToolResult
}

// FilterAllowedTools checks each tool call against the allowed list.
// If allowedTools is empty or nil, all tool calls are allowed.
func FilterAllowedTools(calls []*api.ToolCall, allowedTools []string) FilterResult {
	if len(allowedTools) == 0 {
		return FilterResult{Allowed: calls}
	}

	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}

	var result FilterResult
	for _, call := range calls {
		if allowed[call.Name] {
			result.Allowed = append(result.Allowed, call)
		} else {
			result.Rejected = append(result.Rejected, &api.ToolResult{
				ID:    call.ID,
				Error: "tool " + call.Name + " is not in the allowed tools list",
			})
		}
	}
	return result
}
