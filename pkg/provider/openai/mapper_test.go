package openai

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/provider"
	"github.com/rhuss/convlog/pkg/provider/providertest"
	"github.com/rhuss/convlog/pkg/tools"
)

func TestRoundTrip(t *testing.T) {
	providertest.RoundTrip(t, New(), providertest.ToolLog(t))
}

func TestRoundTrip_ToolResultsAsStrings(t *testing.T) {
	providertest.StringOutputResults(t, New())
}

func TestEncode_SystemStaysAMessage(t *testing.T) {
	p, err := New().Encode(providertest.ToolLog(t))
	if err != nil {
		t.Fatal(err)
	}
	if p.System != "" {
		t.Errorf("System = %q, want empty", p.System)
	}

	var items []item
	if err := json.Unmarshal(p.Messages, &items); err != nil {
		t.Fatal(err)
	}
	wantTypes := []string{
		itemMessage, itemMessage, itemMessage, itemFunctionCall, itemFunctionCallOutput, itemMessage,
	}
	if len(items) != len(wantTypes) {
		t.Fatalf("got %d items, want %d", len(items), len(wantTypes))
	}
	for i, w := range wantTypes {
		if items[i].Type != w {
			t.Errorf("items[%d].Type = %q, want %q", i, items[i].Type, w)
		}
	}
	if items[0].Role != "system" || items[0].Content[0].Type != "input_text" {
		t.Errorf("system item = %+v", items[0])
	}
	if items[2].Content[0].Type != "output_text" {
		t.Errorf("assistant part type = %q, want output_text", items[2].Content[0].Type)
	}
	if items[3].Arguments != `{"city":"Paris","days":2}` {
		t.Errorf("arguments = %s", items[3].Arguments)
	}
	if string(items[4].Output) != `"{\"temp\":21}"` {
		t.Errorf("output = %s", items[4].Output)
	}
}

func TestEncode_ReasoningAndBuiltins(t *testing.T) {
	log, err := api.NewEventLog(
		api.NewEvent(api.RoleUser, &api.Text{Text: "search"}),
		api.NewEvent(api.RoleAssistant,
			&api.Reasoning{ID: "rs_1", Parts: []api.ReasoningPart{
				{SummaryIndex: 1, Text: "second", IsComplete: true},
				{SummaryIndex: 0, Text: "first", IsComplete: true},
			}},
			&api.WebSearchCall{ID: "ws_1", Status: "completed"},
			&api.CodeInterpreterCall{ID: "ci_1", Status: "completed", Code: "print(1)"},
			&api.Text{Text: "done"},
		),
	)
	if err != nil {
		t.Fatal(err)
	}

	m := New()
	p, err := m.Encode(log)
	if err != nil {
		t.Fatal(err)
	}
	var items []item
	if err := json.Unmarshal(p.Messages, &items); err != nil {
		t.Fatal(err)
	}
	if items[1].Type != itemReasoning || items[1].Summary[0].Text != "first" || items[1].Summary[1].Text != "second" {
		t.Errorf("reasoning item = %+v", items[1])
	}
	if items[3].Code != "print(1)" {
		t.Errorf("code interpreter item = %+v", items[3])
	}

	conv, err := m.Decode(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Events) != 2 || len(conv.Events[1].Segments) != 4 {
		t.Fatalf("decoded %v", providertest.Shape(conv.Events))
	}
	r := conv.Events[1].Segments[0].(*api.Reasoning)
	if r.ID != "rs_1" || r.Text() != "first\n\nsecond" || r.OutputIndex != 1 {
		t.Errorf("reasoning = %+v", r)
	}
}

func TestDecode_BadArgumentsSkipOnlyThatCall(t *testing.T) {
	input := `[
		{"type":"message","role":"user","content":[{"type":"input_text","text":"go"}]},
		{"type":"function_call","call_id":"call_bad","name":"f","arguments":"{oops"},
		{"type":"function_call","call_id":"call_ok","name":"g","arguments":"{\"x\":1}"},
		{"type":"mystery"}
	]`
	conv, err := New().Decode(&provider.Payload{Messages: json.RawMessage(input)})
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Skipped) != 2 || conv.Skipped[0].ID != "call_bad" {
		t.Errorf("Skipped = %+v", conv.Skipped)
	}
	if len(conv.Events) != 2 {
		t.Fatalf("events = %v", providertest.Shape(conv.Events))
	}
	call := conv.Events[1].Segments[0].(*api.ToolCall)
	if call.ID != "call_ok" || call.Args["x"] != float64(1) {
		t.Errorf("call = %+v", call)
	}
	if conv.Outcome().Kind != api.OutcomeAppliedWithSkips {
		t.Errorf("Outcome = %v", conv.Outcome())
	}
}

func TestDecodeResponse(t *testing.T) {
	body := `{
		"id": "resp_1",
		"status": "completed",
		"reasoning": {"effort": "low", "summary": "detailed"},
		"output": [
			{"id":"rs_1","type":"reasoning","summary":[{"type":"summary_text","text":"thinking"}]},
			{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"output_text","text":"Hi! "},{"type":"output_text","text":"How can I help?"}]}
		]
	}`
	conv, err := New().DecodeResponse([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Events) != 1 {
		t.Fatalf("events = %v", providertest.Shape(conv.Events))
	}
	e := conv.Events[0]
	if e.Role != api.RoleAssistant || len(e.Segments) != 2 {
		t.Fatalf("event = %v", providertest.Shape(conv.Events))
	}
	if got := e.Text(); got != "Hi! How can I help?" {
		t.Errorf("Text() = %q", got)
	}
	if e.Reasoning == nil || e.Reasoning.Effort != "low" || e.Reasoning.Summary != "thinking" {
		t.Errorf("Reasoning = %+v", e.Reasoning)
	}
}

func TestDecodeResponse_Error(t *testing.T) {
	_, err := New().DecodeResponse([]byte(`{"status":"failed","error":{"code":"rate_limit","message":"slow down"}}`))
	if !errors.Is(err, &api.APIError{Type: api.ErrorTypeServerError}) {
		t.Errorf("err = %v, want server error", err)
	}
}

func TestRequestBody(t *testing.T) {
	body, err := New().RequestBody(providertest.ToolLog(t), provider.RequestOptions{
		Model:            "gpt-5",
		MaxTokens:        8000,
		ReasoningEffort:  "low",
		ReasoningSummary: "detailed",
		Tools:            []tools.Endpoint{{Name: "get_weather", Description: "Weather"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatal(err)
	}
	if req["model"] != "gpt-5" || req["max_output_tokens"] != float64(8000) || req["store"] != false {
		t.Errorf("request = %v", req)
	}
	reasoning := req["reasoning"].(map[string]any)
	if reasoning["effort"] != "low" || reasoning["summary"] != "detailed" {
		t.Errorf("reasoning = %v", reasoning)
	}
	tool := req["tools"].([]any)[0].(map[string]any)
	if tool["type"] != "function" || tool["name"] != "get_weather" || tool["parameters"] == nil {
		t.Errorf("tool = %v", tool)
	}
	if len(req["input"].([]any)) != 6 {
		t.Errorf("input has %d items", len(req["input"].([]any)))
	}
}

func TestRequestBody_RequiresModel(t *testing.T) {
	_, err := New().RequestBody(providertest.ToolLog(t), provider.RequestOptions{})
	if !errors.Is(err, &api.APIError{Type: api.ErrorTypeInvalidRequest}) {
		t.Errorf("err = %v, want invalid_request", err)
	}
}
