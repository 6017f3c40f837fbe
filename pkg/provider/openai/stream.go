package openai

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/provider"
)

// streamItem is an output item under construction, keyed by output index.
type streamItem struct {
	kind    string
	text    strings.Builder
	segment api.Segment // reasoning and built-in tool items
}

// streamFolder folds Responses API streaming events into one assistant event.
type streamFolder struct {
	items  map[int]*streamItem
	calls  *provider.ToolCallAssembler
	effort string
}

func newStreamFolder() *streamFolder {
	return &streamFolder{
		items: make(map[int]*streamItem),
		calls: provider.NewToolCallAssembler(),
	}
}

// Fold applies one streaming event.
func (f *streamFolder) Fold(data json.RawMessage) error {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return api.NewInvalidRequestError("stream", "event is not valid JSON: "+err.Error())
	}

	switch ev.Type {
	case eventOutputItemAdded:
		if ev.Item != nil {
			f.add(ev.OutputIndex, ev.SequenceNumber, ev.Item)
		}

	case eventTextDelta:
		f.item(ev.OutputIndex, itemMessage).text.WriteString(ev.Delta)

	case eventTextDone:
		it := f.item(ev.OutputIndex, itemMessage)
		if ev.Text != "" {
			it.text.Reset()
			it.text.WriteString(ev.Text)
		}

	case eventFuncCallArgsDelta:
		f.calls.Delta(ev.OutputIndex, "", "", ev.Delta)

	case eventFuncCallArgsDone:
		f.calls.SetArgs(ev.OutputIndex, ev.Arguments)

	case eventReasoningPartAdded:
		typ := ""
		if ev.Part != nil {
			typ = ev.Part.Type
		}
		return f.reasoning(ev.OutputIndex, ev.ItemID).StartPart(ev.SummaryIndex, typ)

	case eventReasoningTextDelta:
		return f.reasoning(ev.OutputIndex, ev.ItemID).AppendDelta(ev.SummaryIndex, ev.Delta)

	case eventReasoningTextDone:
		return f.reasoning(ev.OutputIndex, ev.ItemID).CompletePart(ev.SummaryIndex, ev.Text)

	case eventReasoningPartDone:
		text := ""
		if ev.Part != nil {
			text = ev.Part.Text
		}
		return f.reasoning(ev.OutputIndex, ev.ItemID).CompletePart(ev.SummaryIndex, text)

	case eventCodeInterpreterDelta:
		if c, ok := f.item(ev.OutputIndex, itemCodeInterpreterCall).segment.(*api.CodeInterpreterCall); ok {
			c.Code += ev.Delta
		}

	case eventCodeInterpreterDone:
		if c, ok := f.item(ev.OutputIndex, itemCodeInterpreterCall).segment.(*api.CodeInterpreterCall); ok && ev.Code != "" {
			c.Code = ev.Code
		}

	case eventWebSearchCompleted:
		if w, ok := f.item(ev.OutputIndex, itemWebSearchCall).segment.(*api.WebSearchCall); ok {
			w.Status = "completed"
		}

	case eventOutputItemDone:
		if ev.Item != nil {
			return f.done(ev.OutputIndex, ev.Item)
		}

	case eventResponseCompleted:
		if ev.Response != nil && ev.Response.Reasoning != nil {
			f.effort = ev.Response.Reasoning.Effort
		}

	case eventResponseFailed, eventResponseIncomplete:
		msg := "response " + strings.TrimPrefix(ev.Type, "response.")
		if ev.Response != nil && ev.Response.Error != nil {
			msg = ev.Response.Error.Message
		}
		return api.NewServerError(msg)

	case eventError:
		return &api.APIError{Type: api.ErrorTypeServerError, Code: ev.Code, Message: ev.Message}

	default:
		debug.Log(debug.Providers, "ignoring openai stream event", "type", ev.Type)
	}
	return nil
}

// Finish assembles the items into one assistant event in output order.
func (f *streamFolder) Finish() (*provider.Conversion, error) {
	conv := &provider.Conversion{}

	calls, skipped := f.calls.Finalize()
	for _, s := range skipped {
		conv.Skip(Name, s)
	}
	byIndex := make(map[int]api.Segment, len(calls))
	indexes := make([]int, 0, len(f.items)+len(calls))
	for _, c := range calls {
		byIndex[c.Index] = c.Call
		indexes = append(indexes, c.Index)
	}
	for i, it := range f.items {
		switch {
		case it.kind == itemMessage && it.text.Len() > 0:
			byIndex[i] = &api.Text{Text: it.text.String()}
		case it.segment != nil:
			byIndex[i] = it.segment
		default:
			continue
		}
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	if len(indexes) == 0 {
		return conv, nil
	}
	e := api.NewEvent(api.RoleAssistant)
	for _, i := range indexes {
		e.Segments = append(e.Segments, byIndex[i])
	}
	conv.Events = []*api.Event{e}
	attachReasoningSummary(conv, &reasoningConfig{Effort: f.effort})
	return conv, nil
}

func (f *streamFolder) item(index int, kind string) *streamItem {
	it, ok := f.items[index]
	if !ok {
		it = &streamItem{kind: kind}
		switch kind {
		case itemReasoning:
			it.segment = &api.Reasoning{OutputIndex: index, Parts: []api.ReasoningPart{}}
		case itemWebSearchCall:
			it.segment = &api.WebSearchCall{OutputIndex: index}
		case itemCodeInterpreterCall:
			it.segment = &api.CodeInterpreterCall{OutputIndex: index}
		}
		f.items[index] = it
	}
	return it
}

func (f *streamFolder) reasoning(index int, itemID string) *api.Reasoning {
	r, ok := f.item(index, itemReasoning).segment.(*api.Reasoning)
	if !ok {
		// The index was claimed by another item kind; keep the reasoning
		// detached so the stream can continue.
		r = &api.Reasoning{OutputIndex: index}
	}
	if r.ID == "" {
		r.ID = itemID
	}
	return r
}

func (f *streamFolder) add(index, seq int, it *item) {
	switch it.Type {
	case itemFunctionCall:
		f.calls.Delta(index, it.CallID, it.Name, it.Arguments)
	case itemMessage:
		f.item(index, itemMessage)
	case itemReasoning:
		r := f.reasoning(index, it.ID)
		r.SequenceNumber = seq
	case itemWebSearchCall:
		if w, ok := f.item(index, itemWebSearchCall).segment.(*api.WebSearchCall); ok {
			w.ID, w.Status, w.SequenceNumber = it.ID, it.Status, seq
		}
	case itemCodeInterpreterCall:
		if c, ok := f.item(index, itemCodeInterpreterCall).segment.(*api.CodeInterpreterCall); ok {
			c.ID, c.Status, c.Code, c.SequenceNumber = it.ID, it.Status, it.Code, seq
		}
	default:
		debug.Log(debug.Providers, "ignoring openai output item", "type", it.Type)
	}
}

func (f *streamFolder) done(index int, it *item) error {
	switch it.Type {
	case itemFunctionCall:
		f.calls.Delta(index, it.CallID, it.Name, "")
		if it.Arguments != "" {
			f.calls.SetArgs(index, it.Arguments)
		}
	case itemMessage:
		m := f.item(index, itemMessage)
		if m.text.Len() == 0 {
			for _, p := range it.Content {
				m.text.WriteString(p.Text)
			}
		}
	case itemReasoning:
		r := f.reasoning(index, it.ID)
		for i, p := range it.Summary {
			if err := r.CompletePart(i, p.Text); err != nil {
				return fmt.Errorf("reasoning item %s: %w", it.ID, err)
			}
		}
	case itemWebSearchCall:
		if w, ok := f.item(index, itemWebSearchCall).segment.(*api.WebSearchCall); ok {
			w.ID, w.Status = it.ID, it.Status
		}
	case itemCodeInterpreterCall:
		if c, ok := f.item(index, itemCodeInterpreterCall).segment.(*api.CodeInterpreterCall); ok {
			c.ID, c.Status = it.ID, it.Status
			if it.Code != "" {
				c.Code = it.Code
			}
		}
	}
	return nil
}
