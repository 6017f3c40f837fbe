package provider

import (
	"reflect"
	"testing"
)

func TestToolCallAssembler_InterleavedDeltas(t *testing.T) {
	a := NewToolCallAssembler()
	a.Delta(1, "call_b", "lookup", `{"q":`)
	a.Delta(0, "call_a", "get_weather", "")
	a.Delta(0, "", "", `{"city":"Par`)
	a.Delta(1, "", "", `"go"}`)
	a.Delta(0, "", "", `is"}`)

	if a.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", a.Len())
	}

	calls, skipped := a.Finalize()
	if len(skipped) != 0 {
		t.Fatalf("skipped = %+v", skipped)
	}
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if calls[0].Index != 0 || calls[0].Call.ID != "call_a" || calls[0].Call.Name != "get_weather" {
		t.Errorf("calls[0] = %+v", calls[0].Call)
	}
	if !reflect.DeepEqual(calls[0].Call.Args, map[string]any{"city": "Paris"}) {
		t.Errorf("calls[0].Args = %v", calls[0].Call.Args)
	}
	if !reflect.DeepEqual(calls[1].Call.Args, map[string]any{"q": "go"}) {
		t.Errorf("calls[1].Args = %v", calls[1].Call.Args)
	}
	if a.Len() != 0 {
		t.Errorf("Len() after Finalize = %d, want 0", a.Len())
	}
}

func TestToolCallAssembler_BadArgsSkipOnlyThatCall(t *testing.T) {
	a := NewToolCallAssembler()
	a.Delta(0, "call_ok", "ok", `{}`)
	a.Delta(1, "call_bad", "bad", `{"unterminated`)
	a.Delta(2, "call_nameless", "", `{}`)
	a.Delta(3, "call_empty", "empty", "")

	calls, skipped := a.Finalize()
	if len(calls) != 2 || calls[0].Call.ID != "call_ok" || calls[1].Call.ID != "call_empty" {
		t.Fatalf("calls = %+v", calls)
	}
	if len(calls[1].Call.Args) != 0 {
		t.Errorf("empty arguments should parse to an empty object, got %v", calls[1].Call.Args)
	}
	if len(skipped) != 2 || skipped[0].ID != "call_bad" || skipped[1].ID != "call_nameless" {
		t.Errorf("skipped = %+v", skipped)
	}
}

func TestToolCallAssembler_SetArgsReplaces(t *testing.T) {
	a := NewToolCallAssembler()
	a.Delta(0, "c1", "f", `{"a":`)
	a.SetArgs(0, `{"a":1}`)
	calls, _ := a.Finalize()
	if len(calls) != 1 || calls[0].Call.Args["a"] != float64(1) {
		t.Errorf("calls = %+v", calls)
	}
}

func TestToolCallAssembler_GeneratesMissingID(t *testing.T) {
	a := NewToolCallAssembler()
	a.Delta(0, "", "f", `{}`)
	calls, _ := a.Finalize()
	if len(calls) != 1 || len(calls[0].Call.ID) <= len("call_") {
		t.Errorf("calls = %+v", calls)
	}
}
