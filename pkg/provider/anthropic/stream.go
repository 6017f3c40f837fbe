package anthropic

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/provider"
)

// streamBlock is a content block under construction, keyed by block index.
type streamBlock struct {
	kind      string
	text      strings.Builder
	reasoning *api.Reasoning
}

// streamFolder folds Messages API streaming events into one assistant event.
type streamFolder struct {
	blocks     map[int]*streamBlock
	calls      *provider.ToolCallAssembler
	stopReason string
}

func newStreamFolder() *streamFolder {
	return &streamFolder{
		blocks: make(map[int]*streamBlock),
		calls:  provider.NewToolCallAssembler(),
	}
}

// Fold applies one streaming event.
func (f *streamFolder) Fold(data json.RawMessage) error {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return api.NewInvalidRequestError("stream", "event is not valid JSON: "+err.Error())
	}

	switch ev.Type {
	case eventContentBlockStart:
		if ev.ContentBlock == nil {
			return nil
		}
		b := ev.ContentBlock
		switch b.Type {
		case blockToolUse:
			// The start block carries an empty input; the arguments follow
			// as input_json_delta fragments.
			f.calls.Delta(ev.Index, b.ID, b.Name, "")
		case blockThinking:
			r := openThinking(ev.Index)
			if err := r.AppendDelta(0, b.Thinking); err != nil {
				return err
			}
			f.blocks[ev.Index] = &streamBlock{kind: blockThinking, reasoning: r}
		default:
			sb := &streamBlock{kind: b.Type}
			sb.text.WriteString(b.Text)
			f.blocks[ev.Index] = sb
		}

	case eventContentBlockDelta:
		if ev.Delta == nil {
			return nil
		}
		switch ev.Delta.Type {
		case deltaText:
			f.block(ev.Index, blockText).text.WriteString(ev.Delta.Text)
		case deltaInputJSON:
			f.calls.Delta(ev.Index, "", "", ev.Delta.PartialJSON)
		case deltaThinking:
			b := f.block(ev.Index, blockThinking)
			if b.reasoning == nil {
				b.reasoning = openThinking(ev.Index)
			}
			if err := b.reasoning.AppendDelta(0, ev.Delta.Thinking); err != nil {
				return err
			}
		case deltaSignature:
			// Signatures are not replayed.
		default:
			debug.Log(debug.Providers, "ignoring anthropic delta", "type", ev.Delta.Type)
		}

	case eventContentBlockStop:
		if b, ok := f.blocks[ev.Index]; ok && b.reasoning != nil {
			return b.reasoning.CompletePart(0, "")
		}

	case eventMessageDelta:
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			f.stopReason = ev.Delta.StopReason
		}

	case eventError:
		apiErr := &api.APIError{Type: api.ErrorTypeServerError, Message: "stream error"}
		if ev.Error != nil {
			apiErr.Code, apiErr.Message = ev.Error.Type, ev.Error.Message
		}
		return apiErr

	case eventMessageStart, eventMessageStop, eventPing:

	default:
		debug.Log(debug.Providers, "ignoring anthropic stream event", "type", ev.Type)
	}
	return nil
}

// Finish assembles the blocks into one assistant event in block order.
func (f *streamFolder) Finish() (*provider.Conversion, error) {
	conv := &provider.Conversion{}
	debug.Log(debug.Providers, "anthropic stream finished", "stop_reason", f.stopReason)

	calls, skipped := f.calls.Finalize()
	for _, s := range skipped {
		conv.Skip(Name, s)
	}
	byIndex := make(map[int]api.Segment, len(f.blocks)+len(calls))
	for _, c := range calls {
		byIndex[c.Index] = c.Call
	}
	for i, b := range f.blocks {
		switch {
		case b.reasoning != nil:
			if err := b.reasoning.CompletePart(0, ""); err != nil {
				return nil, err
			}
			byIndex[i] = b.reasoning
		case b.kind == blockText && b.text.Len() > 0:
			byIndex[i] = &api.Text{Text: b.text.String()}
		}
	}
	if len(byIndex) == 0 {
		return conv, nil
	}

	indexes := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	e := api.NewEvent(api.RoleAssistant)
	for _, i := range indexes {
		e.Segments = append(e.Segments, byIndex[i])
	}
	conv.Events = []*api.Event{e}
	return conv, nil
}

func (f *streamFolder) block(index int, kind string) *streamBlock {
	b, ok := f.blocks[index]
	if !ok {
		b = &streamBlock{kind: kind}
		f.blocks[index] = b
	}
	return b
}

// openThinking starts a reasoning segment whose single part fills from deltas.
func openThinking(index int) *api.Reasoning {
	r := &api.Reasoning{ID: provider.NewID("rs_"), OutputIndex: index, Parts: []api.ReasoningPart{}}
	_ = r.StartPart(0, blockThinking)
	return r
}
