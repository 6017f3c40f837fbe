package api

import (
	"errors"
	"testing"
)

func toolCall(id string) *ToolCall {
	return &ToolCall{ID: id, Name: "fn_" + id, Args: map[string]any{"id": id}}
}

func TestEventLogRejectsDuplicateID(t *testing.T) {
	log, err := NewEventLog(&Event{ID: "e1", Role: RoleUser, Segments: Segments{&Text{Text: "a"}}})
	if err != nil {
		t.Fatal(err)
	}

	err = log.Append(&Event{ID: "e1", Role: RoleAssistant, Segments: Segments{&Text{Text: "b"}}})
	if !errors.Is(err, &APIError{Type: ErrorTypeValidation}) {
		t.Fatalf("Append(duplicate) = %v, want validation error", err)
	}
	if log.Len() != 1 {
		t.Errorf("Len() = %d, want 1", log.Len())
	}
}

func TestEventLogRejectsOrphanToolResult(t *testing.T) {
	log, _ := NewEventLog(NewEvent(RoleUser, &Text{Text: "q"}))

	err := log.Append(NewEvent(RoleTool, &ToolResult{ID: "call_x", Output: "ok"}))
	if !errors.Is(err, &APIError{Type: ErrorTypeValidation}) {
		t.Fatalf("Append(orphan) = %v, want validation error", err)
	}
	if log.Len() != 1 {
		t.Errorf("orphan result was appended")
	}
}

func TestEventLogUnresolvedToolCalls(t *testing.T) {
	a, b, c := toolCall("a"), toolCall("b"), toolCall("c")
	log, err := NewEventLog(
		NewEvent(RoleUser, &Text{Text: "q"}),
		NewEvent(RoleAssistant, a, b),
		NewEvent(RoleTool, &ToolResult{ID: "a", Output: "done"}),
		NewEvent(RoleAssistant, c),
	)
	if err != nil {
		t.Fatal(err)
	}

	got := log.UnresolvedToolCalls()
	if len(got) != 2 || got[0] != b || got[1] != c {
		t.Fatalf("UnresolvedToolCalls = %v, want [b c]", got)
	}
	if got[0].Args["id"] != "b" {
		t.Errorf("arguments were not preserved: %v", got[0].Args)
	}

	if err := log.Append(NewEvent(RoleTool, &ToolResult{ID: "b", Output: 1}, &ToolResult{ID: "c", Output: 2})); err != nil {
		t.Fatal(err)
	}
	if got := log.UnresolvedToolCalls(); len(got) != 0 {
		t.Errorf("UnresolvedToolCalls after results = %v, want none", got)
	}
}

func TestEventLogSameEventCallAndResult(t *testing.T) {
	log, _ := NewEventLog()
	err := log.Append(NewEvent(RoleAssistant, toolCall("x"), &ToolResult{ID: "x", Output: "inline"}))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(log.UnresolvedToolCalls()) != 0 {
		t.Error("inline result should resolve the call")
	}
}

func TestSystemParameter(t *testing.T) {
	tests := []struct {
		name   string
		events []*Event
		want   string
	}{
		{"empty log", nil, ""},
		{
			"leading system",
			[]*Event{NewEvent(RoleSystem, &Text{Text: "be brief"}), NewEvent(RoleUser, &Text{Text: "hi"})},
			"be brief",
		},
		{
			"system not first",
			[]*Event{NewEvent(RoleUser, &Text{Text: "hi"}), NewEvent(RoleSystem, &Text{Text: "late"})},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewEventLog(tt.events...)
			if err != nil {
				t.Fatal(err)
			}
			if got := log.SystemParameter(); got != tt.want {
				t.Errorf("SystemParameter() = %q, want %q", got, tt.want)
			}
		})
	}
}
