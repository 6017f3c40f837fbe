package openaichat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/provider"
)

// streamFolder folds completion chunks of the first choice into one
// assistant event.
type streamFolder struct {
	reasoning    *api.Reasoning
	text         strings.Builder
	calls        *provider.ToolCallAssembler
	finishReason string
}

func newStreamFolder() *streamFolder {
	return &streamFolder{calls: provider.NewToolCallAssembler()}
}

// Fold applies one chunk.
func (f *streamFolder) Fold(data json.RawMessage) error {
	var chunk chatChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return api.NewInvalidRequestError("stream", "chunk is not valid JSON: "+err.Error())
	}
	if chunk.Error != nil {
		return &api.APIError{
			Type:    api.ErrorTypeServerError,
			Code:    fmt.Sprint(chunk.Error.Code),
			Message: chunk.Error.Message,
		}
	}
	// Usage-only chunks carry no choices.
	if len(chunk.Choices) == 0 {
		return nil
	}

	choice := chunk.Choices[0]
	delta := choice.Delta
	if delta.ReasoningContent != nil && *delta.ReasoningContent != "" {
		if f.reasoning == nil {
			f.reasoning = &api.Reasoning{ID: provider.NewID("rs_"), Parts: []api.ReasoningPart{}}
		}
		if err := f.reasoning.AppendDelta(0, *delta.ReasoningContent); err != nil {
			return err
		}
	}
	if delta.Content != nil {
		f.text.WriteString(*delta.Content)
	}
	for _, tc := range delta.ToolCalls {
		f.calls.Delta(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
	}
	if choice.FinishReason != nil {
		f.finishReason = *choice.FinishReason
	}
	return nil
}

// Finish emits reasoning, text and tool calls in that order.
func (f *streamFolder) Finish() (*provider.Conversion, error) {
	conv := &provider.Conversion{}
	if f.finishReason != "" && f.finishReason != "stop" && f.finishReason != "tool_calls" {
		debug.Log(debug.Providers, "chat completion stream ended early", "finish_reason", f.finishReason)
	}

	var segs []api.Segment
	if f.reasoning != nil {
		if err := f.reasoning.CompletePart(0, ""); err != nil {
			return nil, err
		}
		segs = append(segs, f.reasoning)
	}
	if f.text.Len() > 0 {
		segs = append(segs, &api.Text{Text: f.text.String()})
	}
	calls, skipped := f.calls.Finalize()
	for _, s := range skipped {
		conv.Skip(Name, s)
	}
	for _, c := range calls {
		segs = append(segs, c.Call)
	}

	if len(segs) > 0 {
		conv.Events = []*api.Event{api.NewEvent(api.RoleAssistant, segs...)}
	}
	return conv, nil
}
