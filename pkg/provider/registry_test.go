package provider

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/tools"
)

type stubMapper struct{ name string }

func (s stubMapper) Name() string               { return s.name }
func (s stubMapper) Capabilities() Capabilities { return Capabilities{} }
func (s stubMapper) Encode(log *api.EventLog) (*Payload, error) {
	return &Payload{Messages: json.RawMessage(`[]`)}, nil
}
func (s stubMapper) Decode(*Payload) (*Conversion, error)                      { return &Conversion{}, nil }
func (s stubMapper) DecodeResponse([]byte) (*Conversion, error)                { return &Conversion{}, nil }
func (s stubMapper) RequestBody(*api.EventLog, RequestOptions) ([]byte, error) { return nil, nil }
func (s stubMapper) NewStreamFolder() StreamFolder                             { return nil }

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(stubMapper{"b"}, stubMapper{"a"})

	if got := r.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names() = %v", got)
	}
	if _, err := r.Get("a"); err != nil {
		t.Errorf("Get(a): %v", err)
	}

	log, _ := api.NewEventLog()
	_, err := r.Encode(log, "gemini")
	if !errors.Is(err, &api.APIError{Type: api.ErrorTypeConfiguration}) {
		t.Fatalf("Encode(unknown) err = %v, want configuration error", err)
	}
	if _, err := r.Decode(&Payload{}, "gemini"); err == nil {
		t.Error("Decode(unknown) should fail")
	}
}

func TestValidateOptions(t *testing.T) {
	reasoning := Capabilities{ReasoningEffort: true}
	tests := []struct {
		name      string
		caps      Capabilities
		opts      RequestOptions
		wantParam string
	}{
		{"minimal", Capabilities{}, RequestOptions{Model: "m"}, ""},
		{"missing model", Capabilities{}, RequestOptions{}, "model"},
		{"negative max tokens", Capabilities{}, RequestOptions{Model: "m", MaxTokens: -1}, "max_tokens"},
		{"effort unsupported", Capabilities{}, RequestOptions{Model: "m", ReasoningEffort: "low"}, "reasoning"},
		{"effort supported", reasoning, RequestOptions{Model: "m", ReasoningEffort: "low"}, ""},
		{"nameless tool", Capabilities{}, RequestOptions{Model: "m", Tools: []tools.Endpoint{{}}}, "tools"},
		{"duplicate tool", Capabilities{}, RequestOptions{Model: "m", Tools: []tools.Endpoint{{Name: "x"}, {Name: "x"}}}, "tools"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOptions(tt.caps, tt.opts)
			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Param != tt.wantParam {
				t.Fatalf("err = %v, want param %q", err, tt.wantParam)
			}
		})
	}
}

func TestConversionOutcome(t *testing.T) {
	c := &Conversion{Events: []*api.Event{
		api.NewEvent(api.RoleAssistant, &api.Text{Text: "a"}, &api.Text{Text: "b"}),
	}}
	if got := c.Outcome(); got.Kind != api.OutcomeApplied || got.Total != 2 {
		t.Errorf("Outcome() = %+v", got)
	}
	c.Skip("test", SkippedSegment{ID: "call_bad", Reason: "invalid"})
	got := c.Outcome()
	if got.Kind != api.OutcomeAppliedWithSkips || got.Total != 3 || got.Applied != 2 {
		t.Errorf("Outcome() = %+v", got)
	}
}
