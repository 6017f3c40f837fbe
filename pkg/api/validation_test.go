package api

import "testing"

func TestValidateEvent(t *testing.T) {
	tests := []struct {
		name      string
		event     *Event
		wantValid bool
		wantErrs  int
	}{
		{
			name:      "valid text event",
			event:     &Event{ID: "e1", Role: RoleUser, Segments: Segments{&Text{Text: "hi"}}},
			wantValid: true,
		},
		{
			name:     "missing id and bad role",
			event:    &Event{Role: "bot", Segments: Segments{&Text{Text: "hi"}}},
			wantErrs: 2,
		},
		{
			name: "tool call missing name and args",
			event: &Event{ID: "e1", Role: RoleAssistant, Segments: Segments{
				&ToolCall{ID: "c1"},
			}},
			wantErrs: 2,
		},
		{
			name: "tool result without output",
			event: &Event{ID: "e1", Role: RoleTool, Segments: Segments{
				&ToolResult{ID: "c1"},
			}},
			wantErrs: 1,
		},
		{
			name: "tool result carrying only an error",
			event: &Event{ID: "e1", Role: RoleTool, Segments: Segments{
				&ToolResult{ID: "c1", Error: "boom"},
			}},
			wantValid: true,
		},
		{
			name: "reasoning without parts",
			event: &Event{ID: "e1", Role: RoleAssistant, Segments: Segments{
				&Reasoning{ID: "r"},
			}},
			wantErrs: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateEvent(tt.event)
			if res.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (errors %v)", res.Valid, tt.wantValid, res.Errors)
			}
			if !tt.wantValid && len(res.Errors) != tt.wantErrs {
				t.Errorf("got %d errors %v, want %d", len(res.Errors), res.Errors, tt.wantErrs)
			}
		})
	}
}

func TestValidateEventJSON(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantFields []string
	}{
		{
			name: "valid",
			data: `{"id":"e","role":"assistant","ts":1,"segments":[{"type":"text","text":"x"}]}`,
		},
		{
			name:       "string ts and object segments",
			data:       `{"id":"e","role":"user","ts":"yesterday","segments":{}}`,
			wantFields: []string{"ts", "segments"},
		},
		{
			name:       "reasoning with string output_index",
			data:       `{"id":"e","role":"assistant","ts":1,"segments":[{"type":"reasoning","id":"r","output_index":"0","parts":[]}]}`,
			wantFields: []string{"segments[0].output_index"},
		},
		{
			name:       "one error per broken segment",
			data:       `{"id":"e","role":"assistant","ts":1,"segments":[{"type":"text","text":7},{"type":"tool_call","id":"c","name":"f","args":"{}"},{"type":"audio"}]}`,
			wantFields: []string{"segments[0].text", "segments[1].args", "segments[2].type"},
		},
		{
			name:       "everything missing",
			data:       `{}`,
			wantFields: []string{"id", "role", "ts", "segments"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateEventJSON([]byte(tt.data))
			if res.Valid != (len(tt.wantFields) == 0) {
				t.Fatalf("Valid = %v, errors %v", res.Valid, res.Errors)
			}
			if len(res.Errors) != len(tt.wantFields) {
				t.Fatalf("got errors %v, want fields %v", res.Errors, tt.wantFields)
			}
			for i, f := range tt.wantFields {
				if res.Errors[i].Field != f {
					t.Errorf("Errors[%d].Field = %q, want %q", i, res.Errors[i].Field, f)
				}
			}
		})
	}
}

func TestValidationResultErr(t *testing.T) {
	if err := (ValidationResult{Valid: true}).Err(); err != nil {
		t.Errorf("Err() on valid result = %v", err)
	}
	res := ValidateEvent(&Event{})
	if err := res.Err(); err == nil {
		t.Error("Err() on invalid result = nil")
	}
}
